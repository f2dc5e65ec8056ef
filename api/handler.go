package main

import (
	"context"
	cryptoRand "crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/projecthangar/mro-service/internal/anthropic"
	"github.com/projecthangar/mro-service/internal/awsutil"
	"github.com/projecthangar/mro-service/internal/db"
	"github.com/projecthangar/mro-service/internal/gemini"
	"github.com/projecthangar/mro-service/internal/models"
	"github.com/projecthangar/mro-service/internal/validate"
)

// Handler holds dependencies for all API endpoints.
type Handler struct {
	db        db.DB
	s3        awsutil.S3Client
	secrets   awsutil.SecretsProvider
	claude    anthropic.Client
	gemini    gemini.Client
	validator *validate.Validator
	bucket    string
}

var csvExtensions = map[string]bool{".csv": true}

var pdfExtensions = map[string]bool{".pdf": true}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tiff": true, ".tif": true, ".heic": true, ".heif": true,
}

var contentTypeMap = map[string]string{
	".csv": "text/csv",
	".jpg": "image/jpeg", ".jpeg": "image/jpeg",
	".png": "image/png", ".gif": "image/gif",
	".bmp": "image/bmp", ".tiff": "image/tiff", ".tif": "image/tiff",
	".heic": "image/heic", ".heif": "image/heif",
	".pdf": "application/pdf",
}

// Handle routes incoming events to the appropriate handler.
func (h *Handler) Handle(ctx context.Context, rawEvent json.RawMessage) (events.APIGatewayProxyResponse, error) {
	// Check for EventBridge warmer
	var warmer struct {
		Source string `json:"source"`
	}
	if json.Unmarshal(rawEvent, &warmer) == nil && warmer.Source == "mro.warmer" {
		return events.APIGatewayProxyResponse{StatusCode: 200, Body: "warm"}, nil
	}

	var event events.APIGatewayProxyRequest
	if err := json.Unmarshal(rawEvent, &event); err != nil {
		return errResponse(400, "invalid request")
	}

	method := event.HTTPMethod
	path := event.Resource
	pathParams := event.PathParameters

	switch {
	case path == "/uploads" && method == "POST":
		return h.handleUpload(ctx, event)
	case path == "/uploads/{id}/status" && method == "GET":
		return h.handleStatus(ctx, pathParams["id"])
	case path == "/uploads/{id}/entities" && method == "GET":
		return h.handleListEntities(ctx, pathParams["id"], event)
	case path == "/uploads/{id}/entities/{entityId}" && method == "GET":
		return h.handleEntityDetail(ctx, pathParams["id"], pathParams["entityId"])
	case path == "/uploads/{id}/entities/{entityId}" && method == "PATCH":
		return h.handleUpdateEntity(ctx, pathParams["id"], pathParams["entityId"], event)
	case path == "/uploads/{id}/entities/{entityId}/execute" && method == "POST":
		return h.handleExecuteEntity(ctx, pathParams["id"], pathParams["entityId"])
	case path == "/uploads/{id}/execute" && method == "POST":
		return h.handleExecuteBatch(ctx, pathParams["id"])
	case path == "/assistant/query" && method == "POST":
		return h.handleAssistantQuery(ctx, event)
	case path == "/dashboard/summary" && method == "GET":
		return h.handleDashboardSummary(ctx)
	default:
		return errResponse(404, "Not found")
	}
}

func errResponse(status int, msg string) (events.APIGatewayProxyResponse, error) {
	return models.APIResponse(status, map[string]string{"error": msg})
}

// ─── POST /uploads ──────────────────────────────────────────────────────────

type uploadRequest struct {
	Filename string `json:"filename"`
}

func (h *Handler) handleUpload(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var req uploadRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		return errResponse(400, "invalid request body")
	}

	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		return errResponse(400, "filename is required")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	var fileKind string
	switch {
	case csvExtensions[ext]:
		fileKind = "csv"
	case imageExtensions[ext]:
		fileKind = "image"
	case pdfExtensions[ext]:
		fileKind = "pdf"
	default:
		return errResponse(400, "File must be a CSV (.csv), an image (.jpg, .png, etc.), or a PDF (.pdf)")
	}

	batchID := newUUID()
	s3Key := fmt.Sprintf("uploads/%s/%s", batchID, filename)

	_, err := h.db.Insert(ctx,
		`INSERT INTO ingest_batches (id, source_filename, s3_key, file_kind, processing_status)
		 VALUES ($1, $2, $3, $4, 'pending') RETURNING id`,
		batchID, filename, s3Key, fileKind)
	if err != nil {
		return events.APIGatewayProxyResponse{}, fmt.Errorf("insert batch: %w", err)
	}

	ct := contentTypeMap[ext]
	uploadURL, err := h.s3.PresignPutObject(ctx, h.bucket, s3Key, ct, time.Hour)
	if err != nil {
		return events.APIGatewayProxyResponse{}, fmt.Errorf("presign: %w", err)
	}

	return models.APIResponse(200, map[string]any{
		"uploadId":  batchID,
		"fileKind":  fileKind,
		"filename":  filename,
		"uploadUrl": uploadURL,
		"s3Key":     s3Key,
	})
}

// ─── GET /uploads/{id}/status ───────────────────────────────────────────────

func (h *Handler) handleStatus(ctx context.Context, batchID string) (events.APIGatewayProxyResponse, error) {
	rows, err := h.db.Query(ctx,
		`SELECT id, source_filename, file_kind, processing_status, document_kind,
		        confidence, warnings, total_count, valid_count, error_count,
		        error_message, created_at, updated_at
		 FROM ingest_batches WHERE id = $1`, batchID)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	if len(rows) == 0 {
		return errResponse(404, "Upload not found")
	}

	row := rows[0]
	return models.APIResponse(200, map[string]any{
		"uploadId":     fmt.Sprintf("%v", row["id"]),
		"filename":     row["source_filename"],
		"fileKind":     row["file_kind"],
		"status":       row["processing_status"],
		"documentKind": row["document_kind"],
		"confidence":   row["confidence"],
		"warnings":     row["warnings"],
		"totalCount":   row["total_count"],
		"validCount":   row["valid_count"],
		"errorCount":   row["error_count"],
		"errorMessage": row["error_message"],
		"createdAt":    row["created_at"],
		"updatedAt":    row["updated_at"],
	})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

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

func toInt(v any) (int, bool) {
	i, ok := toInt64(v)
	return int(i), ok
}

func newUUID() string {
	var uuid [16]byte
	_, _ = cryptoRand.Read(uuid[:])
	uuid[6] = (uuid[6] & 0x0f) | 0x40 // version 4
	uuid[8] = (uuid[8] & 0x3f) | 0x80 // variant 10
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		uuid[0:4], uuid[4:6], uuid[6:8], uuid[8:10], uuid[10:16])
}
