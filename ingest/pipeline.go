package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/projecthangar/mro-service/internal/ingestion"
	"github.com/projecthangar/mro-service/internal/models"
	"github.com/projecthangar/mro-service/internal/tabular"
)

// processDocument runs the ingestion pipeline for one uploaded document.
// Structural failures (empty document, unknown kind) mark the batch failed
// without redriving the message; per-row problems are recorded on the row's
// entity and never halt sibling rows.
func (h *Handler) processDocument(ctx context.Context, msg ingestMessage) error {
	if err := h.db.Exec(ctx,
		"UPDATE ingest_batches SET processing_status = 'processing', updated_at = NOW() WHERE id = $1",
		msg.BatchID); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	reader, err := h.s3.GetObject(ctx, h.bucket, msg.S3Key)
	if err != nil {
		return fmt.Errorf("download document: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	// The operative date is fixed once per document and threaded explicitly.
	today := time.Now().UTC()

	switch msg.FileKind {
	case "image":
		return h.processImage(ctx, msg, data, today)
	default:
		return h.processCSV(ctx, msg, data, today)
	}
}

func (h *Handler) processCSV(ctx context.Context, msg ingestMessage, data []byte, today time.Time) error {
	doc, err := tabular.Parse(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, tabular.ErrEmptyDocument) {
			log.Printf("WARNING: document %s has no data rows", msg.BatchID)
			h.markBatchFailed(ctx, msg.BatchID, "the document contains no data rows")
			return nil
		}
		return fmt.Errorf("parse csv: %w", err)
	}

	claude, err := h.getClaudeClient(ctx)
	if err != nil {
		log.Printf("WARNING: no inference client, relying on keyword fallback: %v", err)
	}
	classifier := ingestion.NewClassifier(claude)

	samples := doc.Rows
	if len(samples) > 3 {
		samples = samples[:3]
	}

	kind, confidence := classifier.Detect(ctx, doc.Headers, samples)
	if kind == models.KindUnknown {
		log.Printf("WARNING: could not classify document %s", msg.BatchID)
		h.markBatchFailed(ctx, msg.BatchID, "could not determine the document type from its columns")
		return nil
	}

	var warnings []string
	if confidence <= ingestion.FallbackConfidence {
		warnings = append(warnings, "document type determined by keyword matching; review the detected kind")
	}

	mapping := classifier.MapColumns(ctx, kind, doc.Headers, doc.Rows[0])
	if len(mapping) == 0 {
		h.markBatchFailed(ctx, msg.BatchID, fmt.Sprintf("no columns could be mapped for a %s document", kind))
		return nil
	}
	for _, header := range doc.Headers {
		if _, ok := mapping[header]; !ok {
			warnings = append(warnings, fmt.Sprintf("column %q matched no known field and was dropped", header))
		}
	}

	bags := ingestion.TransformRows(doc.Rows, mapping)

	var total, valid, failed int
	for i, fields := range bags {
		entity := &models.ExtractedEntity{
			Kind:      kind,
			RowNumber: i + 1,
			Fields:    fields,
		}
		h.validator.Validate(ctx, entity, today)

		if err := h.storeEntity(ctx, msg.BatchID, entity); err != nil {
			return fmt.Errorf("store entity for row %d: %w", entity.RowNumber, err)
		}

		total++
		if entity.Status == models.StatusError {
			failed++
		} else {
			valid++
		}
	}

	return h.finishBatch(ctx, msg.BatchID, kind, confidence, warnings, total, valid, failed)
}

func (h *Handler) storeEntity(ctx context.Context, batchID string, entity *models.ExtractedEntity) error {
	fieldsJSON, _ := json.Marshal(entity.Fields)
	validationJSON, _ := json.Marshal(entity.Validation)
	conflictsJSON, _ := json.Marshal(entity.Conflicts)

	id, err := h.db.Insert(ctx,
		`INSERT INTO ingest_entities
		 (batch_id, row_number, document_kind, fields, validation, conflicts, status, suggested_action)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		batchID, entity.RowNumber, string(entity.Kind),
		string(fieldsJSON), string(validationJSON), string(conflictsJSON),
		string(entity.Status), string(entity.SuggestedAction))
	if err != nil {
		return err
	}
	entity.ID = id
	return nil
}

func (h *Handler) finishBatch(ctx context.Context, batchID string, kind models.DocumentKind, confidence float64, warnings []string, total, valid, failed int) error {
	warningsJSON, _ := json.Marshal(warnings)
	if err := h.db.Exec(ctx,
		`UPDATE ingest_batches
		 SET processing_status = 'extracted', document_kind = $1, confidence = $2, warnings = $3,
		     total_count = $4, valid_count = $5, error_count = $6, updated_at = NOW()
		 WHERE id = $7`,
		string(kind), confidence, string(warningsJSON), total, valid, failed, batchID); err != nil {
		return fmt.Errorf("finish batch: %w", err)
	}

	log.Printf("Batch %s: extracted %d %s entities (%d valid, %d with errors)", batchID, total, kind, valid, failed)
	return nil
}
