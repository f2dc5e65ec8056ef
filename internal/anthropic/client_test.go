package anthropic

import (
	"context"
	"testing"
)

func TestMockClient_CreateMessage(t *testing.T) {
	mock := &MockClient{
		CreateMessageFn: func(ctx context.Context, model string, maxTokens int64, system string, messages []Message) (string, error) {
			if model != "claude-haiku-4-5-20251001" {
				t.Errorf("unexpected model: %s", model)
			}
			if maxTokens != 4096 {
				t.Errorf("unexpected maxTokens: %d", maxTokens)
			}
			if system != "You classify documents." {
				t.Errorf("unexpected system prompt: %s", system)
			}
			if len(messages) != 1 {
				t.Errorf("expected 1 message, got %d", len(messages))
			}
			if messages[0].Role != "user" {
				t.Errorf("expected user role, got %s", messages[0].Role)
			}
			return "maintenance_visit", nil
		},
	}

	result, err := mock.CreateMessage(context.Background(), "claude-haiku-4-5-20251001", 4096,
		"You classify documents.", []Message{UserText("Headers: Aircraft, Visit, Date In")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "maintenance_visit" {
		t.Errorf("unexpected result: %s", result)
	}
}

func TestMockClient_NoFunction(t *testing.T) {
	mock := &MockClient{}

	result, err := mock.CreateMessage(context.Background(), "model", 1024, "", nil)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if result != "" {
		t.Errorf("expected empty result, got %q", result)
	}
}

func TestUserText(t *testing.T) {
	msg := UserText("hello")
	if msg.Role != "user" {
		t.Errorf("expected user role, got %s", msg.Role)
	}
	if len(msg.Content) != 1 || msg.Content[0].Text != "hello" {
		t.Errorf("unexpected content: %+v", msg.Content)
	}
}

func TestContentPart_Types(t *testing.T) {
	textPart := ContentPart{Text: "hello"}
	if textPart.Text != "hello" {
		t.Error("text part mismatch")
	}

	imagePart := ContentPart{ImageData: []byte("image"), MIMEType: "image/jpeg"}
	if imagePart.MIMEType != "image/jpeg" {
		t.Error("mime type mismatch")
	}
}
