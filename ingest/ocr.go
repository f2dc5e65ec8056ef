package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/projecthangar/mro-service/internal/gemini"
	"github.com/projecthangar/mro-service/internal/models"
)

// visionConfidence is a fixed score for OCR-derived entities: the vision
// model returns no usable per-field confidence.
const visionConfidence = 0.75

var mimeTypeMap = map[string]string{
	".jpg": "image/jpeg", ".jpeg": "image/jpeg",
	".png": "image/png", ".gif": "image/gif",
	".bmp": "image/bmp", ".tiff": "image/tiff", ".tif": "image/tiff",
	".webp": "image/webp",
}

// processImage extracts a single certificate entity from an uploaded image
// and runs it through the same validator as CSV-derived certificate rows.
func (h *Handler) processImage(ctx context.Context, msg ingestMessage, data []byte, today time.Time) error {
	mimeType := mimeTypeMap[strings.ToLower(filepath.Ext(msg.S3Key))]
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	geminiClient, err := h.getGeminiClient(ctx)
	if err != nil {
		return fmt.Errorf("get gemini client: %w", err)
	}

	temp := float32(0.1)
	responseText, err := geminiClient.GenerateContent(ctx, "gemini-2.5-flash", []gemini.Part{
		{Text: CertificateExtractionPrompt},
		{Data: data, MIMEType: mimeType},
	}, &gemini.GenerateConfig{
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("vision extraction: %w", err)
	}

	fields, err := parseCertificateResponse(responseText)
	if err != nil {
		log.Printf("WARNING: unusable vision response for %s: %v", msg.BatchID, err)
		h.markBatchFailed(ctx, msg.BatchID, "the certificate image could not be read; try a clearer photo")
		return nil
	}

	entity := &models.ExtractedEntity{
		Kind:      models.KindCertificate,
		RowNumber: 1,
		Fields:    fields,
	}
	h.validator.Validate(ctx, entity, today)

	if err := h.storeEntity(ctx, msg.BatchID, entity); err != nil {
		return fmt.Errorf("store entity: %w", err)
	}

	valid, failed := 1, 0
	if entity.Status == models.StatusError {
		valid, failed = 0, 1
	}
	return h.finishBatch(ctx, msg.BatchID, models.KindCertificate, visionConfidence, nil, 1, valid, failed)
}

// parseCertificateResponse decodes the vision model's JSON, dropping null
// and empty values the same way the row transformer does.
func parseCertificateResponse(responseText string) (map[string]any, error) {
	cleaned := cleanMarkdownFences(responseText)
	if cleaned == "" {
		return nil, fmt.Errorf("empty response")
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	fields := make(map[string]any)
	for key, value := range raw {
		if value == nil {
			continue
		}
		if s, ok := value.(string); ok {
			if strings.TrimSpace(s) == "" {
				continue
			}
			fields[key] = strings.TrimSpace(s)
			continue
		}
		fields[key] = value
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("no fields extracted")
	}
	return fields, nil
}

func cleanMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = s[7:]
	} else if strings.HasPrefix(s, "```") {
		s = s[3:]
	}
	if strings.HasSuffix(s, "```") {
		s = s[:len(s)-3]
	}
	return strings.TrimSpace(s)
}
