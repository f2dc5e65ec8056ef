package ingestion

import (
	"context"
	"log"
	"strings"

	"github.com/projecthangar/mro-service/internal/anthropic"
	"github.com/projecthangar/mro-service/internal/models"
)

const (
	// DefaultModel is the Claude model used for classification and mapping.
	DefaultModel = "claude-haiku-4-5-20251001"

	classifyMaxTokens = 16
	mapMaxTokens      = 1024
	maxSampleRows     = 3

	// ModelConfidence and FallbackConfidence grade how the document kind was
	// determined; keyword matching is serviceable but cruder than the model.
	ModelConfidence    = 0.9
	FallbackConfidence = 0.7
)

// Classifier infers document kinds and column mappings, preferring Claude
// and falling back to deterministic keyword matching when the model call
// fails or returns something unusable.
type Classifier struct {
	claude anthropic.Client
	model  string
}

// NewClassifier creates a Classifier. A nil client disables the model path
// entirely, leaving only the keyword fallback.
func NewClassifier(claude anthropic.Client) *Classifier {
	return &Classifier{claude: claude, model: DefaultModel}
}

// Detect infers the document kind from headers and up to three sample rows.
// The returned confidence reflects which path produced the answer; it is 0
// when the kind is unknown.
func (c *Classifier) Detect(ctx context.Context, headers []string, samples []map[string]string) (models.DocumentKind, float64) {
	if c.claude != nil {
		resp, err := c.claude.CreateMessage(ctx, c.model, classifyMaxTokens,
			ClassifierSystemPrompt,
			[]anthropic.Message{anthropic.UserText(buildClassifyPrompt(headers, samples))})
		if err != nil {
			log.Printf("WARNING: classification call failed, using keyword fallback: %v", err)
		} else {
			token := models.DocumentKind(strings.ToLower(strings.TrimSpace(resp)))
			for _, kind := range models.KnownKinds {
				if token == kind {
					return kind, ModelConfidence
				}
			}
			log.Printf("WARNING: unrecognized classification %q, using keyword fallback", resp)
		}
	}

	kind := DetectByKeywords(headers)
	if kind == models.KindUnknown {
		return models.KindUnknown, 0
	}
	return kind, FallbackConfidence
}

// DetectByKeywords classifies a document from its headers alone by testing
// three-way keyword conjunctions per kind. It is deterministic and ignores
// row content entirely.
func DetectByKeywords(headers []string) models.DocumentKind {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = normalizeHeader(h)
	}

	for _, rule := range detectionRules {
		if matchesRule(normalized, rule) {
			return rule.kind
		}
	}
	return models.KindUnknown
}

func matchesRule(normalized []string, rule detectionRule) bool {
	for _, group := range rule.groups {
		if !anyHeaderContains(normalized, group) {
			return false
		}
	}
	return true
}

func anyHeaderContains(normalized []string, stems []string) bool {
	for _, h := range normalized {
		for _, stem := range stems {
			if strings.Contains(h, stem) {
				return true
			}
		}
	}
	return false
}
