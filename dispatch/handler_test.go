package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/gif"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ─── Mocks ──────────────────────────────────────────────────────────────────

type mockDB struct {
	execFn func(ctx context.Context, sql string, args ...any) error
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	return nil, nil
}

func (m *mockDB) Insert(ctx context.Context, sql string, args ...any) (string, error) {
	return "test-id", nil
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) error {
	if m.execFn != nil {
		return m.execFn(ctx, sql, args...)
	}
	return nil
}

func (m *mockDB) Pool() *pgxpool.Pool { return nil }

type fakeS3 struct {
	content []byte
	putKey  string
	putCT   string
}

func (m *fakeS3) PresignPutObject(ctx context.Context, bucket, key, contentType string, expires time.Duration) (string, error) {
	return "", nil
}

func (m *fakeS3) PresignGetObject(ctx context.Context, bucket, key string, expires time.Duration) (string, error) {
	return "", nil
}

func (m *fakeS3) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.content)), nil
}

func (m *fakeS3) PutObject(ctx context.Context, bucket, key, contentType string, body io.Reader) error {
	m.putKey = key
	m.putCT = contentType
	return nil
}

type mockSQS struct {
	queueURL string
	messages []string
}

func (m *mockSQS) SendMessage(ctx context.Context, queueURL, body string) error {
	m.queueURL = queueURL
	m.messages = append(m.messages, body)
	return nil
}

func s3Event(key string) events.S3Event {
	return events.S3Event{
		Records: []events.S3EventRecord{{
			S3: events.S3Entity{
				Bucket: events.S3Bucket{Name: "test-bucket"},
				Object: events.S3Object{Key: key},
			},
		}},
	}
}

func decodeMessage(t *testing.T, body string) map[string]string {
	t.Helper()
	var msg map[string]string
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		t.Fatalf("unmarshal message %q: %v", body, err)
	}
	return msg
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestDispatchCSV(t *testing.T) {
	sqs := &mockSQS{}
	h := &Handler{
		db:       &mockDB{},
		s3:       &fakeS3{},
		sqs:      sqs,
		bucket:   "test-bucket",
		queueURL: "https://sqs/ingest",
	}

	if err := h.Handle(context.Background(), s3Event("uploads/batch-1/visits.csv")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sqs.queueURL != "https://sqs/ingest" {
		t.Errorf("queueURL = %q", sqs.queueURL)
	}
	if len(sqs.messages) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sqs.messages))
	}
	msg := decodeMessage(t, sqs.messages[0])
	if msg["batchId"] != "batch-1" || msg["s3Key"] != "uploads/batch-1/visits.csv" || msg["fileKind"] != "csv" {
		t.Errorf("message = %v", msg)
	}
}

func TestDispatchDecodesEscapedKeys(t *testing.T) {
	sqs := &mockSQS{}
	h := &Handler{db: &mockDB{}, s3: &fakeS3{}, sqs: sqs, bucket: "test-bucket", queueURL: "q"}

	if err := h.Handle(context.Background(), s3Event("uploads/batch-1/my%20visits.csv")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := decodeMessage(t, sqs.messages[0])
	if msg["s3Key"] != "uploads/batch-1/my visits.csv" {
		t.Errorf("s3Key = %q", msg["s3Key"])
	}
}

func TestDispatchIgnoresForeignKeys(t *testing.T) {
	sqs := &mockSQS{}
	h := &Handler{db: &mockDB{}, s3: &fakeS3{}, sqs: sqs, bucket: "test-bucket", queueURL: "q"}

	for _, key := range []string{"pages/batch-1/page_0001.jpg", "uploads/lonely.csv", "tmp/x"} {
		if err := h.Handle(context.Background(), s3Event(key)); err != nil {
			t.Fatalf("%s: unexpected error: %v", key, err)
		}
	}
	if len(sqs.messages) != 0 {
		t.Errorf("sent %d messages, want 0", len(sqs.messages))
	}
}

func TestDispatchUnsupportedExtension(t *testing.T) {
	var failureMessage string
	db := &mockDB{
		execFn: func(ctx context.Context, sql string, args ...any) error {
			if strings.Contains(sql, "'failed'") {
				failureMessage = args[0].(string)
			}
			return nil
		},
	}
	sqs := &mockSQS{}
	h := &Handler{db: db, s3: &fakeS3{}, sqs: sqs, bucket: "test-bucket", queueURL: "q"}

	err := h.Handle(context.Background(), s3Event("uploads/batch-1/report.docx"))
	if err == nil {
		t.Fatal("expected error for unsupported extension")
	}
	if !strings.Contains(failureMessage, "unsupported file type") {
		t.Errorf("failure message = %q", failureMessage)
	}
	if len(sqs.messages) != 0 {
		t.Errorf("sent %d messages, want 0", len(sqs.messages))
	}
}

func TestDispatchJPEGPassThrough(t *testing.T) {
	// A decodable upload is queued under its original key with no re-upload.
	s3 := &fakeS3{content: []byte("jpeg-bytes")}
	sqs := &mockSQS{}
	h := &Handler{db: &mockDB{}, s3: s3, sqs: sqs, bucket: "test-bucket", queueURL: "q"}

	if err := h.Handle(context.Background(), s3Event("uploads/batch-1/cert.jpg")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s3.putKey != "" {
		t.Errorf("pass-through must not re-upload, put %q", s3.putKey)
	}
	msg := decodeMessage(t, sqs.messages[0])
	if msg["s3Key"] != "uploads/batch-1/cert.jpg" || msg["fileKind"] != "image" {
		t.Errorf("message = %v", msg)
	}
}

func TestDispatchGIFReEncodedToJPEG(t *testing.T) {
	var buf bytes.Buffer
	img := image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{color.White, color.Black})
	if err := gif.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	s3 := &fakeS3{content: buf.Bytes()}
	sqs := &mockSQS{}
	h := &Handler{db: &mockDB{}, s3: s3, sqs: sqs, bucket: "test-bucket", queueURL: "q"}

	if err := h.Handle(context.Background(), s3Event("uploads/batch-1/cert.gif")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s3.putKey != "pages/batch-1/page_0001.jpg" {
		t.Errorf("putKey = %q", s3.putKey)
	}
	if s3.putCT != "image/jpeg" {
		t.Errorf("content type = %q", s3.putCT)
	}
	msg := decodeMessage(t, sqs.messages[0])
	if msg["s3Key"] != "pages/batch-1/page_0001.jpg" || msg["fileKind"] != "image" {
		t.Errorf("message = %v", msg)
	}
}

func TestDispatchCorruptImageFailsBatch(t *testing.T) {
	var failureMessage string
	db := &mockDB{
		execFn: func(ctx context.Context, sql string, args ...any) error {
			if strings.Contains(sql, "'failed'") {
				failureMessage = args[0].(string)
			}
			return nil
		},
	}
	s3 := &fakeS3{content: []byte("not a gif")}
	h := &Handler{db: db, s3: s3, sqs: &mockSQS{}, bucket: "test-bucket", queueURL: "q"}

	err := h.Handle(context.Background(), s3Event("uploads/batch-1/cert.gif"))
	if err == nil {
		t.Fatal("expected error for undecodable image")
	}
	if !strings.Contains(failureMessage, "decode") {
		t.Errorf("failure message = %q", failureMessage)
	}
}

func TestGetMutoolPathOverride(t *testing.T) {
	h := &Handler{mutoolPath: "/opt/bin/mutool"}
	if got := h.getMutoolPath(); got != "/opt/bin/mutool" {
		t.Errorf("getMutoolPath() = %q", got)
	}
}

func TestGetHeifConvertPathOverride(t *testing.T) {
	h := &Handler{heifConvertPath: "/opt/bin/heif-convert"}
	if got := h.getHeifConvertPath(); got != "/opt/bin/heif-convert" {
		t.Errorf("getHeifConvertPath() = %q", got)
	}
}
