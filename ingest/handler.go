package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"

	"github.com/projecthangar/mro-service/internal/anthropic"
	"github.com/projecthangar/mro-service/internal/awsutil"
	"github.com/projecthangar/mro-service/internal/db"
	"github.com/projecthangar/mro-service/internal/gemini"
	"github.com/projecthangar/mro-service/internal/validate"
)

// Handler holds dependencies for the Ingest Lambda.
type Handler struct {
	db        db.DB
	s3        awsutil.S3Client
	secrets   awsutil.SecretsProvider
	claude    anthropic.Client
	gemini    gemini.Client
	validator *validate.Validator
	bucket    string
}

// Handle processes SQS messages — one uploaded document per message.
func (h *Handler) Handle(ctx context.Context, event events.SQSEvent) error {
	for _, record := range event.Records {
		var msg ingestMessage
		if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
			return fmt.Errorf("parse message: %w", err)
		}

		log.Printf("Ingesting %s document %s: %s", msg.FileKind, msg.BatchID, msg.S3Key)

		// Structural failures mark the batch failed inside processDocument
		// and return nil. An error here is infrastructure trouble: leave the
		// batch in processing so the redrive can retry it.
		if err := h.processDocument(ctx, msg); err != nil {
			log.Printf("ERROR processing document %s: %v", msg.BatchID, err)
			return err
		}
	}
	return nil
}

type ingestMessage struct {
	BatchID  string `json:"batchId"`
	S3Key    string `json:"s3Key"`
	FileKind string `json:"fileKind"` // "csv" or "image"
}

func (h *Handler) markBatchFailed(ctx context.Context, batchID, message string) {
	_ = h.db.Exec(ctx,
		"UPDATE ingest_batches SET processing_status = 'failed', error_message = $1, updated_at = NOW() WHERE id = $2",
		message, batchID)
}

func (h *Handler) getClaudeClient(ctx context.Context) (anthropic.Client, error) {
	if h.claude != nil {
		return h.claude, nil
	}

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		secretJSON, err := h.secrets.GetSecretJSON(ctx, os.Getenv("ANTHROPIC_SECRET_ARN"))
		if err != nil {
			return nil, fmt.Errorf("get anthropic secret: %w", err)
		}
		apiKey = secretJSON["ANTHROPIC_API_KEY"]
	}

	h.claude = anthropic.New(apiKey)
	return h.claude, nil
}

func (h *Handler) getGeminiClient(ctx context.Context) (gemini.Client, error) {
	if h.gemini != nil {
		return h.gemini, nil
	}

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		secretJSON, err := h.secrets.GetSecretJSON(ctx, os.Getenv("GEMINI_SECRET_ARN"))
		if err != nil {
			return nil, fmt.Errorf("get gemini secret: %w", err)
		}
		apiKey = secretJSON["GEMINI_API_KEY"]
	}

	client, err := gemini.New(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	h.gemini = client
	return client, nil
}
