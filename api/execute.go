package main

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/events"

	"github.com/projecthangar/mro-service/internal/execute"
	"github.com/projecthangar/mro-service/internal/gemini"
	"github.com/projecthangar/mro-service/internal/models"
)

// newExecutor builds an Executor with a best-effort gemini client. Without
// one, writes still succeed and only remark embeddings are skipped.
func (h *Handler) newExecutor(ctx context.Context) *execute.Executor {
	var gem gemini.Client
	client, err := h.getGeminiClient(ctx)
	if err != nil {
		log.Printf("WARNING: no gemini client, remark embeddings disabled: %v", err)
	} else {
		gem = client
	}
	return execute.New(h.db, gem)
}

// ─── POST /uploads/{id}/entities/{entityId}/execute ─────────────────────────

func (h *Handler) handleExecuteEntity(ctx context.Context, batchID, entityID string) (events.APIGatewayProxyResponse, error) {
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
	if entity.Status == models.StatusError {
		return errResponse(400, "Entity has blocking errors; fix them or mark it skipped")
	}

	result := h.newExecutor(ctx).Execute(ctx, entity)

	if result.Success {
		status := models.StatusExecuted
		if result.Action == models.ActionSkip {
			status = models.StatusSkipped
		}
		if err := h.markEntityStatus(ctx, entity.ID, status); err != nil {
			return events.APIGatewayProxyResponse{}, fmt.Errorf("mark entity: %w", err)
		}
	}

	return models.APIResponse(200, map[string]any{"result": result})
}

// ─── POST /uploads/{id}/execute ─────────────────────────────────────────────

// handleExecuteBatch executes every entity of the batch in row order. Rows
// with blocking errors or a skip action are counted as skipped, failed rows
// never halt the remainder.
func (h *Handler) handleExecuteBatch(ctx context.Context, batchID string) (events.APIGatewayProxyResponse, error) {
	if resp, err := h.requireBatch(ctx, batchID); resp != nil || err != nil {
		if err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		return *resp, nil
	}

	entities, err := h.loadBatchEntities(ctx, batchID)
	if err != nil {
		return events.APIGatewayProxyResponse{}, fmt.Errorf("load entities: %w", err)
	}
	if len(entities) == 0 {
		return errResponse(400, "Upload has no entities to execute")
	}

	pending := make([]*models.ExtractedEntity, 0, len(entities))
	alreadyExecuted := 0
	for _, entity := range entities {
		if entity.Status == models.StatusExecuted {
			alreadyExecuted++
			continue
		}
		pending = append(pending, entity)
	}

	result := h.newExecutor(ctx).ExecuteBulk(ctx, pending)

	for i, res := range result.Results {
		if !res.Success {
			continue
		}
		status := models.StatusExecuted
		if res.Action == models.ActionSkip {
			status = models.StatusSkipped
		}
		if err := h.markEntityStatus(ctx, pending[i].ID, status); err != nil {
			log.Printf("WARNING: mark entity %s failed: %v", pending[i].ID, err)
		}
	}

	if err := h.db.Exec(ctx,
		"UPDATE ingest_batches SET processing_status = 'executed', updated_at = NOW() WHERE id = $1",
		batchID); err != nil {
		log.Printf("WARNING: mark batch %s executed failed: %v", batchID, err)
	}

	return models.APIResponse(200, map[string]any{
		"uploadId":        batchID,
		"successCount":    result.SuccessCount,
		"errorCount":      result.ErrorCount,
		"skippedCount":    result.SkippedCount,
		"alreadyExecuted": alreadyExecuted,
		"results":         result.Results,
	})
}
