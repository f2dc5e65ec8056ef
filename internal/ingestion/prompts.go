package ingestion

import (
	"fmt"
	"strings"

	"github.com/projecthangar/mro-service/internal/models"
)

// ClassifierSystemPrompt frames the classification call. The model must
// answer with a single lowercase kind token and nothing else.
const ClassifierSystemPrompt = `You classify spreadsheet documents uploaded to an aircraft MRO (Maintenance, Repair, Overhaul) operations system.

There are exactly four recognized document kinds:
- maintenance_visit: one row per hangar visit of an aircraft. Distinguishing columns: aircraft registration / tail number, a visit or check identifier, and a pair of date-in / date-out columns.
- employee_schedule: one row per daily work assignment of an employee. Distinguishing columns: an employee number or name, an assignment date or shift, and a support / task / assignment code.
- certificate: one row per personnel authorization. Distinguishing columns: an employee or holder, a certificate or authorization / licence / rating type, and issue or expiry dates.
- aircraft: one row per airframe in the fleet. Distinguishing columns: registration, model / type, and serial number (MSN), operator or delivery date.

Respond with exactly one of these lowercase tokens: maintenance_visit, employee_schedule, certificate, aircraft. If none fits, respond with: unknown. Do not add any other text.`

// buildClassifyPrompt embeds the headers and up to three sample rows.
func buildClassifyPrompt(headers []string, samples []map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Column headers: %s\n", strings.Join(headers, ", "))
	for i, row := range samples {
		if i >= maxSampleRows {
			break
		}
		var cells []string
		for _, h := range headers {
			cells = append(cells, row[h])
		}
		fmt.Fprintf(&b, "Sample row %d: %s\n", i+1, strings.Join(cells, ", "))
	}
	b.WriteString("\nWhich document kind is this?")
	return b.String()
}

// MapperSystemPrompt frames the column-mapping call. The model must answer
// with a bare JSON object.
const MapperSystemPrompt = `You map spreadsheet column headers to the canonical field names of an aircraft MRO operations system.

Respond with a single JSON object whose keys are source column headers (exactly as given) and whose values are canonical field names from the provided schema. Omit source columns that match no canonical field. Map each canonical field at most once. Respond with the JSON object only — no prose, no markdown fences.`

// buildMapPrompt embeds the target schema for the kind plus the headers and
// one sample row.
func buildMapPrompt(kind models.DocumentKind, headers []string, sample map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document kind: %s\n\nCanonical fields:\n", kind)
	for _, f := range fieldSchemas[kind] {
		fmt.Fprintf(&b, "- %s: %s\n", f.Name, f.Description)
	}
	fmt.Fprintf(&b, "\nSource column headers: %s\n", strings.Join(headers, ", "))
	if sample != nil {
		var cells []string
		for _, h := range headers {
			cells = append(cells, fmt.Sprintf("%s=%q", h, sample[h]))
		}
		fmt.Fprintf(&b, "Sample row: %s\n", strings.Join(cells, ", "))
	}
	b.WriteString("\nReturn the mapping JSON object.")
	return b.String()
}
