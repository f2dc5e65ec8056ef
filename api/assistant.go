package main

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/projecthangar/mro-service/internal/assist"
	"github.com/projecthangar/mro-service/internal/gemini"
	"github.com/projecthangar/mro-service/internal/models"
)

// ─── POST /assistant/query ──────────────────────────────────────────────────

func (h *Handler) handleAssistantQuery(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var body struct {
		Question string `json:"question"`
	}
	if err := json.Unmarshal([]byte(event.Body), &body); err != nil || strings.TrimSpace(body.Question) == "" {
		return errResponse(400, "question is required")
	}

	claude, err := h.getClaudeClient(ctx)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}

	// Semantic remark retrieval is best effort.
	var gem gemini.Client
	if client, gerr := h.getGeminiClient(ctx); gerr != nil {
		log.Printf("WARNING: no gemini client, remark retrieval disabled: %v", gerr)
	} else {
		gem = client
	}

	today := time.Now().UTC()
	answer := assist.New(h.db, claude, gem).Answer(ctx, body.Question, today)

	return models.APIResponse(200, map[string]any{
		"question": body.Question,
		"answer":   answer,
		"asOf":     today.Format("2006-01-02"),
	})
}

// ─── GET /dashboard/summary ─────────────────────────────────────────────────

func (h *Handler) handleDashboardSummary(ctx context.Context) (events.APIGatewayProxyResponse, error) {
	today := time.Now().UTC()
	snapshot := assist.New(h.db, nil, nil).GatherSnapshot(ctx, today)

	uploads, err := h.db.Query(ctx,
		`SELECT id, source_filename, file_kind, processing_status, document_kind,
		        total_count, valid_count, error_count, created_at
		 FROM ingest_batches
		 ORDER BY created_at DESC
		 LIMIT 10`)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}

	return models.APIResponse(200, map[string]any{
		"asOf":          today.Format("2006-01-02"),
		"snapshot":      snapshot,
		"recentUploads": uploads,
	})
}
