// Package assist answers free-text operational questions: it gathers a
// read-only snapshot of hangar and workforce state, retrieves semantically
// similar visit remarks, and forwards everything to Claude.
package assist

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/projecthangar/mro-service/internal/anthropic"
	"github.com/projecthangar/mro-service/internal/db"
	"github.com/projecthangar/mro-service/internal/gemini"
)

const (
	chatModel      = "claude-haiku-4-5-20251001"
	chatMaxTokens  = 1024
	embeddingModel = "gemini-embedding-001"

	expiryWindowDays   = 90
	criticalWindowDays = 30
)

const systemPrompt = `You are an operations assistant for an aircraft MRO facility. Answer questions using ONLY the operational snapshot and maintenance records provided. Be concise and concrete: cite visit numbers, dates, and counts from the snapshot. If the snapshot does not contain enough information to answer, say so plainly.`

// Assistant composes operational context and queries Claude.
type Assistant struct {
	db     db.DB
	claude anthropic.Client
	gemini gemini.Client
}

// New creates an Assistant. A nil gemini client disables semantic remark
// retrieval; the snapshot alone is then used as context.
func New(database db.DB, claude anthropic.Client, gem gemini.Client) *Assistant {
	return &Assistant{db: database, claude: claude, gemini: gem}
}

// Snapshot is a point-in-time view of operational state.
type Snapshot struct {
	VisitsInProgress  int64            `json:"visitsInProgress"`
	VisitsTotal       int64            `json:"visitsTotal"`
	EmployeesAssigned int64            `json:"employeesAssigned"`
	EmployeesTotal    int64            `json:"employeesTotal"`
	ExpiringSoon      []ExpiringRecord `json:"expiringSoon"`
}

// ExpiringRecord is one authorization expiring within the 90-day window.
// Critical marks those within 30 days.
type ExpiringRecord struct {
	Employee      string `json:"employee"`
	Authorization string `json:"authorization"`
	AircraftModel string `json:"aircraftModel"`
	ExpiryDate    string `json:"expiryDate"`
	Critical      bool   `json:"critical"`
}

// GatherSnapshot issues its three context queries concurrently. A failed
// slice falls back to zero values rather than failing the whole snapshot.
func (a *Assistant) GatherSnapshot(ctx context.Context, today time.Time) Snapshot {
	day := today.Format("2006-01-02")
	var snap Snapshot
	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		rows, err := a.db.Query(ctx,
			`SELECT COUNT(*) FILTER (WHERE date_in <= $1 AND date_out >= $1) AS in_progress,
			        COUNT(*) AS total
			 FROM maintenance_visits`, day)
		if err != nil || len(rows) == 0 {
			log.Printf("WARNING: visit snapshot query failed: %v", err)
			return
		}
		snap.VisitsInProgress, _ = toInt64(rows[0]["in_progress"])
		snap.VisitsTotal, _ = toInt64(rows[0]["total"])
	}()
	go func() {
		defer wg.Done()
		rows, err := a.db.Query(ctx,
			`SELECT (SELECT COUNT(*) FROM employees) AS total,
			        (SELECT COUNT(DISTINCT employee_id) FROM employee_supports WHERE assignment_date = $1) AS assigned`,
			day)
		if err != nil || len(rows) == 0 {
			log.Printf("WARNING: workforce snapshot query failed: %v", err)
			return
		}
		snap.EmployeesTotal, _ = toInt64(rows[0]["total"])
		snap.EmployeesAssigned, _ = toInt64(rows[0]["assigned"])
	}()
	go func() {
		defer wg.Done()
		rows, err := a.db.Query(ctx,
			`SELECT e.name AS employee, at.name AS authorization, am.name AS model, ea.expiry_date
			 FROM employee_authorizations ea
			 JOIN employees e ON ea.employee_id = e.id
			 LEFT JOIN authorization_types at ON ea.authorization_type_id = at.id
			 LEFT JOIN aircraft_models am ON ea.aircraft_model_id = am.id
			 WHERE ea.active = TRUE AND ea.expiry_date BETWEEN $1 AND $1::date + $2
			 ORDER BY ea.expiry_date`, day, expiryWindowDays)
		if err != nil {
			log.Printf("WARNING: expiry snapshot query failed: %v", err)
			return
		}
		critical := today.AddDate(0, 0, criticalWindowDays)
		for _, r := range rows {
			rec := ExpiringRecord{
				Employee:      strVal(r["employee"]),
				Authorization: strVal(r["authorization"]),
				AircraftModel: strVal(r["model"]),
			}
			if t, ok := r["expiry_date"].(time.Time); ok {
				rec.ExpiryDate = t.Format("2006-01-02")
				rec.Critical = !t.After(critical)
			}
			snap.ExpiringSoon = append(snap.ExpiringSoon, rec)
		}
	}()
	wg.Wait()

	return snap
}

// Answer answers one question. Failures of the chat completion itself are
// internalized into an apology string embedding the error; the caller never
// sees an error.
func (a *Assistant) Answer(ctx context.Context, question string, today time.Time) string {
	snap := a.GatherSnapshot(ctx, today)
	remarks := a.similarRemarks(ctx, question)

	prompt := buildContextPrompt(snap, remarks, question, today)
	answer, err := a.claude.CreateMessage(ctx, chatModel, chatMaxTokens, systemPrompt,
		[]anthropic.Message{anthropic.UserText(prompt)})
	if err != nil {
		log.Printf("WARNING: assistant completion failed: %v", err)
		return fmt.Sprintf("I'm sorry, I couldn't answer that right now (%v). Please try again.", err)
	}
	return answer
}

// similarRemarks embeds the question and retrieves the closest visit remarks.
// Best effort: any failure yields an empty slice.
func (a *Assistant) similarRemarks(ctx context.Context, question string) []string {
	if a.gemini == nil {
		return nil
	}
	embedding, err := a.gemini.EmbedContent(ctx, embeddingModel, question)
	if err != nil {
		log.Printf("WARNING: question embedding failed: %v", err)
		return nil
	}

	rows, err := a.db.Query(ctx,
		`SELECT ve.chunk_text, mv.visit_number, mv.date_in
		 FROM visit_embeddings ve
		 JOIN maintenance_visits mv ON ve.visit_id = mv.id
		 ORDER BY ve.embedding <=> $1::halfvec
		 LIMIT 5`, formatEmbedding(embedding))
	if err != nil {
		log.Printf("WARNING: remark search failed: %v", err)
		return nil
	}

	var remarks []string
	for _, r := range rows {
		remarks = append(remarks, fmt.Sprintf("[visit %v, %v] %v", r["visit_number"], r["date_in"], r["chunk_text"]))
	}
	return remarks
}

func buildContextPrompt(snap Snapshot, remarks []string, question string, today time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "OPERATIONAL SNAPSHOT (%s):\n", today.Format("2006-01-02"))
	fmt.Fprintf(&b, "- Aircraft in maintenance today: %d (of %d visits on record)\n", snap.VisitsInProgress, snap.VisitsTotal)
	fmt.Fprintf(&b, "- Workforce: %d of %d employees assigned today\n", snap.EmployeesAssigned, snap.EmployeesTotal)
	fmt.Fprintf(&b, "- Certifications expiring within %d days: %d\n", expiryWindowDays, len(snap.ExpiringSoon))
	for _, rec := range snap.ExpiringSoon {
		marker := ""
		if rec.Critical {
			marker = " [CRITICAL]"
		}
		fmt.Fprintf(&b, "  - %s: %s / %s expires %s%s\n", rec.Employee, rec.Authorization, rec.AircraftModel, rec.ExpiryDate, marker)
	}
	if len(remarks) > 0 {
		b.WriteString("\nRELATED MAINTENANCE RECORDS:\n")
		for _, r := range remarks {
			fmt.Fprintf(&b, "%s\n---\n", r)
		}
	}
	fmt.Fprintf(&b, "\nQUESTION: %s", question)
	return b.String()
}

func strVal(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int32:
		return int64(val), true
	case int:
		return int64(val), true
	case float64:
		return int64(val), true
	default:
		return 0, false
	}
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
