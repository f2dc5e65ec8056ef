package execute

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/projecthangar/mro-service/internal/gemini"
	"github.com/projecthangar/mro-service/internal/models"
)

// ─── Mock DB ────────────────────────────────────────────────────────────────

type mockDB struct {
	queryFn  func(ctx context.Context, sql string, args ...any) ([]map[string]any, error)
	insertFn func(ctx context.Context, sql string, args ...any) (string, error)
	execFn   func(ctx context.Context, sql string, args ...any) error
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, sql, args...)
	}
	return nil, nil
}

func (m *mockDB) Insert(ctx context.Context, sql string, args ...any) (string, error) {
	if m.insertFn != nil {
		return m.insertFn(ctx, sql, args...)
	}
	return "test-id", nil
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) error {
	if m.execFn != nil {
		return m.execFn(ctx, sql, args...)
	}
	return nil
}

func (m *mockDB) Pool() *pgxpool.Pool { return nil }

func visitEntity() *models.ExtractedEntity {
	return &models.ExtractedEntity{
		ID:              "ent-1",
		Kind:            models.KindMaintenanceVisit,
		SuggestedAction: models.ActionCreate,
		Status:          models.StatusValid,
		Fields: map[string]any{
			"aircraft_id":  int64(7),
			"visit_number": "V-1001",
			"check_type":   "C-Check",
			"date_in":      "2026-09-01",
			"date_out":     "2026-09-20",
			"remarks":      "main landing gear overhaul and cabin refresh",
		},
	}
}

// ─── Execute ────────────────────────────────────────────────────────────────

func TestExecuteSkipIsNoOp(t *testing.T) {
	called := false
	db := &mockDB{
		queryFn: func(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
			called = true
			return nil, nil
		},
		insertFn: func(ctx context.Context, sql string, args ...any) (string, error) {
			called = true
			return "", nil
		},
	}

	e := visitEntity()
	e.SuggestedAction = models.ActionSkip

	res := New(db, nil).Execute(context.Background(), e)
	if !res.Success {
		t.Error("skip must be trivially successful")
	}
	if res.Action != models.ActionSkip {
		t.Errorf("action = %v", res.Action)
	}
	if called {
		t.Error("skip must not touch the store")
	}
}

func TestExecuteCreateVisit(t *testing.T) {
	var gotSQL string
	db := &mockDB{
		queryFn: func(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
			gotSQL = sql
			return []map[string]any{{"id": int64(101)}}, nil
		},
	}

	e := visitEntity()
	res := New(db, nil).Execute(context.Background(), e)
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Error)
	}
	if res.RecordID != "101" {
		t.Errorf("recordId = %s, want 101", res.RecordID)
	}
	if e.Status != models.StatusExecuted {
		t.Errorf("status = %v, want executed", e.Status)
	}
	if !strings.Contains(gotSQL, "ON CONFLICT (visit_number) DO NOTHING") {
		t.Errorf("insert must re-check the visit number, got %s", gotSQL)
	}
}

func TestExecuteCreateVisitDuplicateAtWriteTime(t *testing.T) {
	db := &mockDB{
		queryFn: func(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
			// ON CONFLICT DO NOTHING swallowed the insert.
			return nil, nil
		},
	}

	e := visitEntity()
	res := New(db, nil).Execute(context.Background(), e)
	if res.Success {
		t.Fatal("expected failure when the visit number was taken since validation")
	}
	if !strings.Contains(res.Error, "since validation") {
		t.Errorf("error = %s", res.Error)
	}
	if e.Status == models.StatusExecuted {
		t.Error("failed entity must not be marked executed")
	}
}

func TestExecuteUpsertSchedule(t *testing.T) {
	var gotSQL string
	db := &mockDB{
		insertFn: func(ctx context.Context, sql string, args ...any) (string, error) {
			gotSQL = sql
			return "202", nil
		},
	}

	e := &models.ExtractedEntity{
		ID:              "ent-2",
		Kind:            models.KindEmployeeSchedule,
		SuggestedAction: models.ActionUpdate,
		Status:          models.StatusWarning,
		Fields: map[string]any{
			"employee_id":     int64(1042),
			"employee_number": "E-1042",
			"support_code_id": int64(11),
			"assignment_date": "2026-09-01",
		},
	}

	res := New(db, nil).Execute(context.Background(), e)
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Error)
	}
	if !strings.Contains(gotSQL, "ON CONFLICT (employee_id, assignment_date)") {
		t.Errorf("schedule write must be a single upsert, got %s", gotSQL)
	}
	if !strings.Contains(res.Message, "Replaced") {
		t.Errorf("message = %s, want replacement wording for update", res.Message)
	}
}

func TestExecuteCertificateRenewal(t *testing.T) {
	var updateSQL string
	var updateArgs []any
	db := &mockDB{
		execFn: func(ctx context.Context, sql string, args ...any) error {
			updateSQL = sql
			updateArgs = args
			return nil
		},
	}

	e := &models.ExtractedEntity{
		ID:              "ent-3",
		Kind:            models.KindCertificate,
		SuggestedAction: models.ActionUpdate,
		Status:          models.StatusWarning,
		Conflicts: []models.ConflictCheck{{
			Kind:       models.ConflictDuplicate,
			Severity:   models.SeverityWarning,
			ExistingID: "31",
		}},
		Fields: map[string]any{
			"employee_id":        int64(1042),
			"certificate_number": "C-778",
			"expiry_date":        "2027-03-01",
		},
	}

	res := New(db, nil).Execute(context.Background(), e)
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Error)
	}
	if res.RecordID != "31" {
		t.Errorf("recordId = %s, want the renewed authorization id", res.RecordID)
	}
	if !strings.Contains(updateSQL, "UPDATE employee_authorizations") {
		t.Errorf("sql = %s", updateSQL)
	}
	if updateArgs[len(updateArgs)-1] != "31" {
		t.Errorf("last arg = %v, want 31", updateArgs[len(updateArgs)-1])
	}
}

func TestExecuteCertificateUpdateWithoutExistingID(t *testing.T) {
	e := &models.ExtractedEntity{
		ID:              "ent-4",
		Kind:            models.KindCertificate,
		SuggestedAction: models.ActionUpdate,
		Fields:          map[string]any{"certificate_number": "C-778"},
	}

	res := New(&mockDB{}, nil).Execute(context.Background(), e)
	if res.Success {
		t.Fatal("expected failure without an identified existing authorization")
	}
}

func TestExecuteUnsupportedKind(t *testing.T) {
	e := &models.ExtractedEntity{
		ID:              "ent-5",
		Kind:            models.KindAircraft,
		SuggestedAction: models.ActionCreate,
	}

	res := New(&mockDB{}, nil).Execute(context.Background(), e)
	if res.Success {
		t.Fatal("expected failure for unsupported kind")
	}
}

// ─── ExecuteBulk ────────────────────────────────────────────────────────────

func TestExecuteBulkCountsConserve(t *testing.T) {
	db := &mockDB{
		queryFn: func(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
			return []map[string]any{{"id": int64(1)}}, nil
		},
	}

	skip := visitEntity()
	skip.SuggestedAction = models.ActionSkip

	errored := visitEntity()
	errored.Status = models.StatusError

	entities := []*models.ExtractedEntity{visitEntity(), skip, errored, visitEntity()}

	result := New(db, nil).ExecuteBulk(context.Background(), entities)
	if result.SuccessCount != 2 {
		t.Errorf("successCount = %d, want 2", result.SuccessCount)
	}
	if result.SkippedCount != 2 {
		t.Errorf("skippedCount = %d, want 2", result.SkippedCount)
	}
	if result.ErrorCount != 0 {
		t.Errorf("errorCount = %d, want 0", result.ErrorCount)
	}
	if got := result.SuccessCount + result.ErrorCount + result.SkippedCount; got != len(entities) {
		t.Errorf("counts sum to %d, want %d", got, len(entities))
	}
	if len(result.Results) != len(entities) {
		t.Errorf("results = %d, want %d", len(result.Results), len(entities))
	}
}

func TestExecuteBulkFailuresDoNotHalt(t *testing.T) {
	calls := 0
	db := &mockDB{
		queryFn: func(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
			calls++
			if calls == 1 {
				return nil, fmt.Errorf("write failed")
			}
			return []map[string]any{{"id": int64(calls)}}, nil
		},
	}

	entities := []*models.ExtractedEntity{visitEntity(), visitEntity(), visitEntity()}

	result := New(db, nil).ExecuteBulk(context.Background(), entities)
	if result.ErrorCount != 1 {
		t.Errorf("errorCount = %d, want 1", result.ErrorCount)
	}
	if result.SuccessCount != 2 {
		t.Errorf("successCount = %d, want 2", result.SuccessCount)
	}
}

func TestExecuteBulkErrorStatusSkippedWithoutWrite(t *testing.T) {
	writes := 0
	db := &mockDB{
		queryFn: func(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
			writes++
			return []map[string]any{{"id": int64(1)}}, nil
		},
	}

	errored := visitEntity()
	errored.Status = models.StatusError
	errored.SuggestedAction = models.ActionCreate

	result := New(db, nil).ExecuteBulk(context.Background(), []*models.ExtractedEntity{errored})
	if writes != 0 {
		t.Errorf("expected no store writes, got %d", writes)
	}
	if result.SkippedCount != 1 {
		t.Errorf("skippedCount = %d, want 1", result.SkippedCount)
	}
}

// ─── Embeddings ─────────────────────────────────────────────────────────────

func TestEmbedRemarksStoresVector(t *testing.T) {
	var embedSQL string
	db := &mockDB{
		queryFn: func(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
			return []map[string]any{{"id": int64(101)}}, nil
		},
		execFn: func(ctx context.Context, sql string, args ...any) error {
			embedSQL = sql
			return nil
		},
	}
	gem := &gemini.MockClient{
		EmbedContentFn: func(ctx context.Context, model, text string) ([]float32, error) {
			return []float32{0.1, 0.2, 0.3}, nil
		},
	}

	res := New(db, gem).Execute(context.Background(), visitEntity())
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Error)
	}
	if !strings.Contains(embedSQL, "visit_embeddings") {
		t.Errorf("expected embedding insert, got %q", embedSQL)
	}
}

func TestEmbedRemarksFailureIsNotFatal(t *testing.T) {
	db := &mockDB{
		queryFn: func(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
			return []map[string]any{{"id": int64(101)}}, nil
		},
	}
	gem := &gemini.MockClient{
		EmbedContentFn: func(ctx context.Context, model, text string) ([]float32, error) {
			return nil, fmt.Errorf("quota exceeded")
		},
	}

	res := New(db, gem).Execute(context.Background(), visitEntity())
	if !res.Success {
		t.Fatalf("embedding failure must not fail the write: %s", res.Error)
	}
}

func TestEmbedRemarksSkipsShortText(t *testing.T) {
	embedCalled := false
	db := &mockDB{
		queryFn: func(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
			return []map[string]any{{"id": int64(101)}}, nil
		},
	}
	gem := &gemini.MockClient{
		EmbedContentFn: func(ctx context.Context, model, text string) ([]float32, error) {
			embedCalled = true
			return []float32{0.1}, nil
		},
	}

	e := visitEntity()
	e.Fields["remarks"] = "short"

	New(db, gem).Execute(context.Background(), e)
	if embedCalled {
		t.Error("short remarks must not be embedded")
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func TestDateArg(t *testing.T) {
	fields := map[string]any{
		"iso":    "2026-09-01",
		"slash":  "01/09/2026",
		"empty":  "",
		"spaced": " 2026-09-01 ",
	}

	if got := dateArg(fields, "iso"); got != "2026-09-01" {
		t.Errorf("iso = %v", got)
	}
	if got := dateArg(fields, "slash"); got != "2026-09-01" {
		t.Errorf("slash = %v", got)
	}
	if got := dateArg(fields, "empty"); got != nil {
		t.Errorf("empty = %v, want nil", got)
	}
	if got := dateArg(fields, "absent"); got != nil {
		t.Errorf("absent = %v, want nil", got)
	}
	if got := dateArg(fields, "spaced"); got != "2026-09-01" {
		t.Errorf("spaced = %v", got)
	}
}

func TestFormatEmbedding(t *testing.T) {
	got := formatEmbedding([]float32{0.5, -1, 0.25})
	if got != "[0.5,-1,0.25]" {
		t.Errorf("formatEmbedding = %q", got)
	}
}
