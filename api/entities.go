package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/projecthangar/mro-service/internal/models"
)

// ─── GET /uploads/{id}/entities ─────────────────────────────────────────────

func (h *Handler) handleListEntities(ctx context.Context, batchID string, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if resp, err := h.requireBatch(ctx, batchID); resp != nil || err != nil {
		if err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		return *resp, nil
	}

	qp := models.ParseQueryParams(event)
	status := qp.Params["status"]
	action := qp.Params["action"]

	whereClauses := []string{"batch_id = $1"}
	args := []any{batchID}
	argIdx := 2

	if status != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, status)
		argIdx++
	}
	if action != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("suggested_action = $%d", argIdx))
		args = append(args, action)
		argIdx++
	}

	whereSQL := strings.Join(whereClauses, " AND ")

	countRows, err := h.db.Query(ctx,
		fmt.Sprintf("SELECT COUNT(*) AS total FROM ingest_entities WHERE %s", whereSQL),
		args...)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	total, _ := toInt(countRows[0]["total"])

	queryArgs := append(args, qp.Limit, qp.Offset)
	entities, err := h.db.Query(ctx,
		fmt.Sprintf(`SELECT id, row_number, document_kind, fields, validation, conflicts,
		        status, suggested_action, created_at, updated_at
		 FROM ingest_entities
		 WHERE %s
		 ORDER BY row_number
		 LIMIT $%d OFFSET $%d`, whereSQL, argIdx, argIdx+1),
		queryArgs...)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}

	return models.APIResponse(200, map[string]any{
		"uploadId":   batchID,
		"entities":   entities,
		"pagination": models.NewPagination(total, qp.Page, qp.Limit),
	})
}

// ─── GET /uploads/{id}/entities/{entityId} ──────────────────────────────────

func (h *Handler) handleEntityDetail(ctx context.Context, batchID, entityID string) (events.APIGatewayProxyResponse, error) {
	entity, resp, err := h.loadEntity(ctx, batchID, entityID)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	if resp != nil {
		return *resp, nil
	}
	return models.APIResponse(200, map[string]any{"entity": entity})
}

// ─── PATCH /uploads/{id}/entities/{entityId} ────────────────────────────────

type patchEntityRequest struct {
	Fields map[string]any `json:"fields"`
	Action string         `json:"action"`
}

// handleUpdateEntity applies field edits and re-runs validation from scratch.
// An explicit action of "skip" always wins; create or update overrides are
// rejected while the entity still has blocking errors.
func (h *Handler) handleUpdateEntity(ctx context.Context, batchID, entityID string, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var req patchEntityRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		return errResponse(400, "invalid request body")
	}
	if len(req.Fields) == 0 && req.Action == "" {
		return errResponse(400, "No fields to update")
	}

	entity, resp, err := h.loadEntity(ctx, batchID, entityID)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	if resp != nil {
		return *resp, nil
	}
	if entity.Status == models.StatusExecuted {
		return errResponse(409, "Entity has already been executed")
	}

	if entity.Fields == nil {
		entity.Fields = make(map[string]any)
	}
	for name, value := range req.Fields {
		if value == nil {
			delete(entity.Fields, name)
			continue
		}
		entity.Fields[name] = value
	}

	h.validator.Validate(ctx, entity, time.Now().UTC())

	switch req.Action {
	case "":
	case string(models.ActionSkip):
		entity.SuggestedAction = models.ActionSkip
		entity.Status = models.StatusSkipped
	case string(models.ActionCreate), string(models.ActionUpdate):
		if entity.Status == models.StatusError {
			return errResponse(400, fmt.Sprintf("Cannot set action to %s while the entity has blocking errors", req.Action))
		}
		entity.SuggestedAction = models.Action(req.Action)
	default:
		return errResponse(400, "action must be create, update, or skip")
	}

	if err := h.saveEntity(ctx, entity); err != nil {
		return events.APIGatewayProxyResponse{}, fmt.Errorf("save entity: %w", err)
	}

	return models.APIResponse(200, map[string]any{"entity": entity})
}

// ─── Entity Persistence ─────────────────────────────────────────────────────

// requireBatch returns a 404 response when the batch does not exist.
func (h *Handler) requireBatch(ctx context.Context, batchID string) (*events.APIGatewayProxyResponse, error) {
	rows, err := h.db.Query(ctx, "SELECT id FROM ingest_batches WHERE id = $1", batchID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		resp, _ := errResponse(404, "Upload not found")
		return &resp, nil
	}
	return nil, nil
}

// loadEntity reads one entity row scoped to its batch. The second return is a
// ready error response when the entity does not exist.
func (h *Handler) loadEntity(ctx context.Context, batchID, entityID string) (*models.ExtractedEntity, *events.APIGatewayProxyResponse, error) {
	rows, err := h.db.Query(ctx,
		`SELECT id, row_number, document_kind, fields, validation, conflicts, status, suggested_action
		 FROM ingest_entities WHERE id = $1 AND batch_id = $2`, entityID, batchID)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		resp, _ := errResponse(404, "Entity not found")
		return nil, &resp, nil
	}
	entity, err := entityFromRow(rows[0])
	if err != nil {
		return nil, nil, err
	}
	return entity, nil, nil
}

// loadBatchEntities reads every entity of a batch in row order.
func (h *Handler) loadBatchEntities(ctx context.Context, batchID string) ([]*models.ExtractedEntity, error) {
	rows, err := h.db.Query(ctx,
		`SELECT id, row_number, document_kind, fields, validation, conflicts, status, suggested_action
		 FROM ingest_entities WHERE batch_id = $1 ORDER BY row_number`, batchID)
	if err != nil {
		return nil, err
	}

	entities := make([]*models.ExtractedEntity, 0, len(rows))
	for _, row := range rows {
		entity, err := entityFromRow(row)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

func entityFromRow(row map[string]any) (*models.ExtractedEntity, error) {
	entity := &models.ExtractedEntity{
		ID:              fmt.Sprintf("%v", row["id"]),
		Kind:            models.DocumentKind(fmt.Sprintf("%v", row["document_kind"])),
		SuggestedAction: models.Action(fmt.Sprintf("%v", row["suggested_action"])),
		Status:          models.EntityStatus(fmt.Sprintf("%v", row["status"])),
	}
	entity.RowNumber, _ = toInt(row["row_number"])

	if err := decodeJSONColumn(row["fields"], &entity.Fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	if err := decodeJSONColumn(row["validation"], &entity.Validation); err != nil {
		return nil, fmt.Errorf("decode validation: %w", err)
	}
	if err := decodeJSONColumn(row["conflicts"], &entity.Conflicts); err != nil {
		return nil, fmt.Errorf("decode conflicts: %w", err)
	}
	return entity, nil
}

// decodeJSONColumn decodes a jsonb value into dst regardless of whether the
// driver returned it as raw bytes, a string, or an already-decoded value.
func decodeJSONColumn(v any, dst any) error {
	if v == nil {
		return nil
	}
	var raw []byte
	switch val := v.(type) {
	case []byte:
		raw = val
	case string:
		raw = []byte(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		raw = b
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func (h *Handler) saveEntity(ctx context.Context, entity *models.ExtractedEntity) error {
	fieldsJSON, _ := json.Marshal(entity.Fields)
	validationJSON, _ := json.Marshal(entity.Validation)
	conflictsJSON, _ := json.Marshal(entity.Conflicts)

	return h.db.Exec(ctx,
		`UPDATE ingest_entities
		 SET fields = $1, validation = $2, conflicts = $3, status = $4, suggested_action = $5, updated_at = NOW()
		 WHERE id = $6`,
		string(fieldsJSON), string(validationJSON), string(conflictsJSON),
		string(entity.Status), string(entity.SuggestedAction), entity.ID)
}

func (h *Handler) markEntityStatus(ctx context.Context, entityID string, status models.EntityStatus) error {
	return h.db.Exec(ctx,
		"UPDATE ingest_entities SET status = $1, updated_at = NOW() WHERE id = $2",
		string(status), entityID)
}
