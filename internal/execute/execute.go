// Package execute applies reviewed entities to the backing store, one write
// per entity, with per-entity success/failure accounting.
package execute

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/projecthangar/mro-service/internal/db"
	"github.com/projecthangar/mro-service/internal/gemini"
	"github.com/projecthangar/mro-service/internal/models"
)

const (
	embeddingModel    = "gemini-embedding-001"
	minEmbeddableText = 10
)

// Executor routes entities to kind-specific write handlers.
type Executor struct {
	db     db.DB
	gemini gemini.Client
}

// New creates an Executor. A nil gemini client disables remark embeddings.
func New(database db.DB, gem gemini.Client) *Executor {
	return &Executor{db: database, gemini: gem}
}

// Execute performs the entity's suggested action. Skip-suggested entities are
// trivially successful no-ops. Store failures are captured in the result and
// never returned as an error.
func (e *Executor) Execute(ctx context.Context, entity *models.ExtractedEntity) models.ActionResult {
	if entity.SuggestedAction == models.ActionSkip {
		return models.ActionResult{
			Success:  true,
			EntityID: entity.ID,
			Action:   models.ActionSkip,
			Message:  "Skipped as requested.",
		}
	}

	var (
		recordID string
		message  string
		err      error
	)

	switch entity.Kind {
	case models.KindMaintenanceVisit:
		recordID, message, err = e.createVisit(ctx, entity)
	case models.KindEmployeeSchedule:
		recordID, message, err = e.upsertSchedule(ctx, entity)
	case models.KindCertificate:
		recordID, message, err = e.writeCertificate(ctx, entity)
	default:
		err = fmt.Errorf("no executor for %s documents", entity.Kind)
	}

	if err != nil {
		log.Printf("WARNING: execute %s entity %s failed: %v", entity.Kind, entity.ID, err)
		return models.ActionResult{
			Success:  false,
			EntityID: entity.ID,
			Action:   entity.SuggestedAction,
			Error:    err.Error(),
			Message:  fmt.Sprintf("Failed: %v", err),
		}
	}

	entity.Status = models.StatusExecuted
	return models.ActionResult{
		Success:  true,
		EntityID: entity.ID,
		Action:   entity.SuggestedAction,
		RecordID: recordID,
		Message:  message,
	}
}

// ExecuteBulk executes entities strictly in input order. Entities whose
// status is error or whose suggested action is skip are counted as skipped
// without a write. SuccessCount + ErrorCount + SkippedCount always equals
// the number of entities submitted.
func (e *Executor) ExecuteBulk(ctx context.Context, entities []*models.ExtractedEntity) models.BulkResult {
	result := models.BulkResult{Results: make([]models.ActionResult, 0, len(entities))}

	for _, entity := range entities {
		if entity.Status == models.StatusError || entity.SuggestedAction == models.ActionSkip {
			result.SkippedCount++
			result.Results = append(result.Results, models.ActionResult{
				Success:  true,
				EntityID: entity.ID,
				Action:   models.ActionSkip,
				Message:  "Skipped.",
			})
			continue
		}

		res := e.Execute(ctx, entity)
		if res.Success {
			result.SuccessCount++
		} else {
			result.ErrorCount++
		}
		result.Results = append(result.Results, res)
	}

	return result
}

// ─── Maintenance Visits ─────────────────────────────────────────────────────

// createVisit inserts one visit. The visit number's uniqueness is re-checked
// at write time via ON CONFLICT DO NOTHING, so a sibling entity written
// earlier in the same batch cannot slip a second copy in.
func (e *Executor) createVisit(ctx context.Context, entity *models.ExtractedEntity) (string, string, error) {
	f := entity.Fields
	rows, err := e.db.Query(ctx,
		`INSERT INTO maintenance_visits
		 (aircraft_id, visit_number, check_type, date_in, date_out, hangar_id, status, work_order_number, remarks)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (visit_number) DO NOTHING
		 RETURNING id`,
		f["aircraft_id"], f["visit_number"], f["check_type"],
		dateArg(f, "date_in"), dateArg(f, "date_out"),
		optional(f, "hangar_id"), optional(f, "status"),
		optional(f, "work_order_number"), optional(f, "remarks"))
	if err != nil {
		return "", "", fmt.Errorf("insert visit: %w", err)
	}
	if len(rows) == 0 {
		return "", "", fmt.Errorf("visit %v was created by another row since validation", f["visit_number"])
	}

	visitID := fmt.Sprintf("%v", rows[0]["id"])
	e.embedRemarks(ctx, visitID, strVal(f["remarks"]))
	return visitID, fmt.Sprintf("Created maintenance visit %v.", f["visit_number"]), nil
}

// embedRemarks stores a semantic embedding of the visit remarks for the
// assistant's similarity search. Failures are logged, never fatal.
func (e *Executor) embedRemarks(ctx context.Context, visitID, remarks string) {
	if e.gemini == nil || len(remarks) <= minEmbeddableText {
		return
	}
	embedding, err := e.gemini.EmbedContent(ctx, embeddingModel, remarks)
	if err != nil {
		log.Printf("WARNING: embedding failed for visit %s: %v", visitID, err)
		return
	}
	if err := e.db.Exec(ctx,
		`INSERT INTO visit_embeddings (visit_id, embedding, chunk_text)
		 VALUES ($1, $2::halfvec, $3)
		 ON CONFLICT (visit_id) DO UPDATE SET embedding = EXCLUDED.embedding, chunk_text = EXCLUDED.chunk_text`,
		visitID, formatEmbedding(embedding), remarks); err != nil {
		log.Printf("WARNING: store embedding failed for visit %s: %v", visitID, err)
	}
}

// ─── Employee Schedules ─────────────────────────────────────────────────────

// upsertSchedule creates or replaces the unique assignment for
// (employee, date) in a single statement, so a failure cannot leave the
// employee without any assignment.
func (e *Executor) upsertSchedule(ctx context.Context, entity *models.ExtractedEntity) (string, string, error) {
	f := entity.Fields
	id, err := e.db.Insert(ctx,
		`INSERT INTO employee_supports (employee_id, support_code_id, visit_id, assignment_date, shift, remarks)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (employee_id, assignment_date)
		 DO UPDATE SET support_code_id = EXCLUDED.support_code_id, visit_id = EXCLUDED.visit_id,
		               shift = EXCLUDED.shift, remarks = EXCLUDED.remarks, updated_at = NOW()
		 RETURNING id`,
		f["employee_id"], f["support_code_id"], optional(f, "visit_id"),
		dateArg(f, "assignment_date"), optional(f, "shift"), optional(f, "remarks"))
	if err != nil {
		return "", "", fmt.Errorf("upsert assignment: %w", err)
	}

	verb := "Created"
	if entity.SuggestedAction == models.ActionUpdate {
		verb = "Replaced"
	}
	return id, fmt.Sprintf("%s assignment for %v on %v.", verb, f["employee_number"], f["assignment_date"]), nil
}

// ─── Certificates ───────────────────────────────────────────────────────────

func (e *Executor) writeCertificate(ctx context.Context, entity *models.ExtractedEntity) (string, string, error) {
	if entity.SuggestedAction == models.ActionUpdate {
		return e.renewCertificate(ctx, entity)
	}

	f := entity.Fields
	id, err := e.db.Insert(ctx,
		`INSERT INTO employee_authorizations
		 (employee_id, certificate_number, authorization_type_id, aircraft_model_id, issue_date, expiry_date, remarks, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		 RETURNING id`,
		f["employee_id"], f["certificate_number"],
		optional(f, "authorization_type_id"), optional(f, "aircraft_model_id"),
		dateArg(f, "issue_date"), dateArg(f, "expiry_date"), optional(f, "remarks"))
	if err != nil {
		return "", "", fmt.Errorf("insert certificate: %w", err)
	}
	return id, fmt.Sprintf("Created certificate %v.", f["certificate_number"]), nil
}

// renewCertificate updates the existing authorization identified during
// duplicate detection.
func (e *Executor) renewCertificate(ctx context.Context, entity *models.ExtractedEntity) (string, string, error) {
	existingID := duplicateExistingID(entity.Conflicts)
	if existingID == "" {
		return "", "", fmt.Errorf("update requested but no existing authorization was identified")
	}

	f := entity.Fields
	if err := e.db.Exec(ctx,
		`UPDATE employee_authorizations
		 SET certificate_number = $1, issue_date = $2, expiry_date = $3, remarks = $4, updated_at = NOW()
		 WHERE id = $5`,
		f["certificate_number"], dateArg(f, "issue_date"), dateArg(f, "expiry_date"),
		optional(f, "remarks"), existingID); err != nil {
		return "", "", fmt.Errorf("update certificate: %w", err)
	}
	return existingID, fmt.Sprintf("Renewed certificate %v.", f["certificate_number"]), nil
}

func duplicateExistingID(conflicts []models.ConflictCheck) string {
	for _, c := range conflicts {
		if c.Kind == models.ConflictDuplicate && c.ExistingID != "" {
			return c.ExistingID
		}
	}
	return ""
}

// ─── Helpers ────────────────────────────────────────────────────────────────

var dateLayouts = []string{"2006-01-02", "2006/01/02", "02/01/2006", "2 Jan 2006"}

// dateArg normalizes a date field to ISO form for the store, or nil when the
// field is absent. Values the validator accepted always parse here.
func dateArg(fields map[string]any, name string) any {
	s := strVal(fields[name])
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

func optional(fields map[string]any, name string) any {
	v, ok := fields[name]
	if !ok || strVal(v) == "" {
		return nil
	}
	return v
}

func strVal(v any) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", v))
}

func formatEmbedding(embedding []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", v)
	}
	b.WriteByte(']')
	return b.String()
}
