package assist

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/projecthangar/mro-service/internal/anthropic"
	"github.com/projecthangar/mro-service/internal/gemini"
)

// ─── Mock DB ────────────────────────────────────────────────────────────────

type mockDB struct {
	queryFn func(ctx context.Context, sql string, args ...any) ([]map[string]any, error)
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, sql, args...)
	}
	return nil, nil
}

func (m *mockDB) Insert(ctx context.Context, sql string, args ...any) (string, error) {
	return "test-id", nil
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) error { return nil }

func (m *mockDB) Pool() *pgxpool.Pool { return nil }

var today = time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

func snapshotDB() *mockDB {
	return &mockDB{
		queryFn: func(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
			switch {
			case strings.Contains(sql, "in_progress"):
				return []map[string]any{{"in_progress": int64(4), "total": int64(120)}}, nil
			case strings.Contains(sql, "assigned"):
				return []map[string]any{{"total": int64(85), "assigned": int64(61)}}, nil
			case strings.Contains(sql, "FROM employee_authorizations"):
				return []map[string]any{
					{
						"employee":      "J. de Vries",
						"authorization": "EASA Part-66 B1.1",
						"model":         "A320",
						"expiry_date":   time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
					},
					{
						"employee":      "M. Janssen",
						"authorization": "NDT Level 2",
						"model":         "B777",
						"expiry_date":   time.Date(2026, 11, 15, 0, 0, 0, 0, time.UTC),
					},
				}, nil
			default:
				return nil, nil
			}
		},
	}
}

// ─── Snapshot ───────────────────────────────────────────────────────────────

func TestGatherSnapshot(t *testing.T) {
	a := New(snapshotDB(), nil, nil)

	snap := a.GatherSnapshot(context.Background(), today)
	if snap.VisitsInProgress != 4 || snap.VisitsTotal != 120 {
		t.Errorf("visits = %d/%d, want 4/120", snap.VisitsInProgress, snap.VisitsTotal)
	}
	if snap.EmployeesAssigned != 61 || snap.EmployeesTotal != 85 {
		t.Errorf("employees = %d/%d, want 61/85", snap.EmployeesAssigned, snap.EmployeesTotal)
	}
	if len(snap.ExpiringSoon) != 2 {
		t.Fatalf("expiringSoon = %d records, want 2", len(snap.ExpiringSoon))
	}

	// Within 30 days of Aug 31 is critical, Nov 15 is not.
	if !snap.ExpiringSoon[0].Critical {
		t.Error("Sep 10 expiry should be critical")
	}
	if snap.ExpiringSoon[1].Critical {
		t.Error("Nov 15 expiry should not be critical")
	}
}

func TestGatherSnapshotFallsBackOnFailure(t *testing.T) {
	db := &mockDB{
		queryFn: func(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
			return nil, fmt.Errorf("connection refused")
		},
	}

	snap := New(db, nil, nil).GatherSnapshot(context.Background(), today)
	if snap.VisitsInProgress != 0 || snap.EmployeesTotal != 0 || len(snap.ExpiringSoon) != 0 {
		t.Errorf("failed snapshot should be zero-valued, got %+v", snap)
	}
}

func TestGatherSnapshotPartialFailure(t *testing.T) {
	db := snapshotDB()
	base := db.queryFn
	db.queryFn = func(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
		if strings.Contains(sql, "FROM employee_authorizations") {
			return nil, fmt.Errorf("timeout")
		}
		return base(ctx, sql, args...)
	}

	snap := New(db, nil, nil).GatherSnapshot(context.Background(), today)
	if snap.VisitsInProgress != 4 {
		t.Errorf("visit slice should survive, got %d", snap.VisitsInProgress)
	}
	if len(snap.ExpiringSoon) != 0 {
		t.Errorf("failed slice should be empty, got %v", snap.ExpiringSoon)
	}
}

// ─── Answer ─────────────────────────────────────────────────────────────────

func TestAnswerForwardsSnapshotContext(t *testing.T) {
	var gotPrompt, gotSystem string
	claude := &anthropic.MockClient{
		CreateMessageFn: func(ctx context.Context, model string, maxTokens int64, system string, messages []anthropic.Message) (string, error) {
			gotSystem = system
			gotPrompt = messages[0].Content[0].Text
			return "Four aircraft are in maintenance today.", nil
		},
	}

	a := New(snapshotDB(), claude, nil)
	answer := a.Answer(context.Background(), "How many aircraft are in work?", today)

	if answer != "Four aircraft are in maintenance today." {
		t.Errorf("answer = %q", answer)
	}
	if gotSystem == "" {
		t.Error("expected a system prompt")
	}
	for _, want := range []string{"2026-08-31", "4 (of 120", "61 of 85", "J. de Vries", "[CRITICAL]", "How many aircraft are in work?"} {
		if !strings.Contains(gotPrompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, gotPrompt)
		}
	}
}

func TestAnswerInternalizesCompletionFailure(t *testing.T) {
	claude := &anthropic.MockClient{
		CreateMessageFn: func(ctx context.Context, model string, maxTokens int64, system string, messages []anthropic.Message) (string, error) {
			return "", fmt.Errorf("overloaded")
		},
	}

	answer := New(snapshotDB(), claude, nil).Answer(context.Background(), "status?", today)
	if !strings.Contains(answer, "I'm sorry") || !strings.Contains(answer, "overloaded") {
		t.Errorf("answer = %q, want apology embedding the error", answer)
	}
}

func TestAnswerIncludesSimilarRemarks(t *testing.T) {
	db := snapshotDB()
	base := db.queryFn
	db.queryFn = func(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
		if strings.Contains(sql, "visit_embeddings") {
			return []map[string]any{
				{"chunk_text": "hydraulic pump replaced", "visit_number": "V-0990", "date_in": "2026-07-01"},
			}, nil
		}
		return base(ctx, sql, args...)
	}

	var gotPrompt string
	claude := &anthropic.MockClient{
		CreateMessageFn: func(ctx context.Context, model string, maxTokens int64, system string, messages []anthropic.Message) (string, error) {
			gotPrompt = messages[0].Content[0].Text
			return "ok", nil
		},
	}
	gem := &gemini.MockClient{}

	New(db, claude, gem).Answer(context.Background(), "any hydraulic issues lately?", today)
	if !strings.Contains(gotPrompt, "hydraulic pump replaced") {
		t.Errorf("prompt missing retrieved remark:\n%s", gotPrompt)
	}
	if !strings.Contains(gotPrompt, "V-0990") {
		t.Errorf("prompt missing visit reference:\n%s", gotPrompt)
	}
}

func TestSimilarRemarksWithoutGemini(t *testing.T) {
	a := New(snapshotDB(), nil, nil)
	if got := a.similarRemarks(context.Background(), "anything"); got != nil {
		t.Errorf("expected nil without gemini, got %v", got)
	}
}

func TestSimilarRemarksEmbedFailure(t *testing.T) {
	gem := &gemini.MockClient{
		EmbedContentFn: func(ctx context.Context, model, text string) ([]float32, error) {
			return nil, fmt.Errorf("quota")
		},
	}

	a := New(snapshotDB(), nil, gem)
	if got := a.similarRemarks(context.Background(), "anything"); got != nil {
		t.Errorf("expected nil on embed failure, got %v", got)
	}
}
