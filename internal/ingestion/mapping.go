package ingestion

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/projecthangar/mro-service/internal/anthropic"
	"github.com/projecthangar/mro-service/internal/models"
)

// MapColumns produces a source-header → canonical-field mapping for the given
// kind. The model path is tried first; unparsable or empty output falls back
// to keyword matching. Columns matching nothing are absent from the result.
func (c *Classifier) MapColumns(ctx context.Context, kind models.DocumentKind, headers []string, sample map[string]string) map[string]string {
	if c.claude != nil {
		resp, err := c.claude.CreateMessage(ctx, c.model, mapMaxTokens,
			MapperSystemPrompt,
			[]anthropic.Message{anthropic.UserText(buildMapPrompt(kind, headers, sample))})
		if err != nil {
			log.Printf("WARNING: column mapping call failed, using keyword fallback: %v", err)
		} else if mapping := parseMappingResponse(resp, kind, headers); len(mapping) > 0 {
			return mapping
		} else {
			log.Printf("WARNING: unusable column mapping response, using keyword fallback")
		}
	}
	return MapColumnsByKeywords(kind, headers)
}

// parseMappingResponse extracts the first balanced {...} span from the model
// output and keeps only pairs naming a real source header and a canonical
// field of the kind.
func parseMappingResponse(resp string, kind models.DocumentKind, headers []string) map[string]string {
	span := firstJSONObject(resp)
	if span == "" {
		return nil
	}

	var raw map[string]string
	if err := json.Unmarshal([]byte(span), &raw); err != nil {
		return nil
	}

	valid := make(map[string]bool, len(fieldSchemas[kind]))
	for _, f := range fieldSchemas[kind] {
		valid[f.Name] = true
	}
	known := make(map[string]bool, len(headers))
	for _, h := range headers {
		known[h] = true
	}

	mapping := make(map[string]string)
	for source, target := range raw {
		if known[source] && valid[target] {
			mapping[source] = target
		}
	}
	return mapping
}

// MapColumnsByKeywords maps each canonical field of the kind to the first
// unused header containing one of the field's keyword stems. Deterministic:
// the same headers always yield the same mapping.
func MapColumnsByKeywords(kind models.DocumentKind, headers []string) map[string]string {
	mapping := make(map[string]string)
	used := make(map[string]bool)

	for _, field := range fieldSchemas[kind] {
		source := findHeader(headers, used, field.Keywords)
		if source == "" {
			continue
		}
		mapping[source] = field.Name
		used[source] = true
	}
	return mapping
}

func findHeader(headers []string, used map[string]bool, stems []string) string {
	for _, stem := range stems {
		for _, h := range headers {
			if used[h] {
				continue
			}
			if strings.Contains(normalizeHeader(h), stem) {
				return h
			}
		}
	}
	return ""
}

// firstJSONObject returns the first balanced top-level {...} span in s,
// or "" when none exists. Braces inside JSON strings are ignored.
func firstJSONObject(s string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
