// Package validate enriches extracted entities against the backing store:
// it resolves human-readable references to record ids, enforces required
// fields, and runs kind-specific conflict detection. The operative date is
// always an explicit parameter, never ambient state.
package validate

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/projecthangar/mro-service/internal/db"
	"github.com/projecthangar/mro-service/internal/models"
)

// Validator validates extracted entities of every supported document kind.
type Validator struct {
	db db.DB
}

// New creates a Validator backed by the given store.
func New(database db.DB) *Validator {
	return &Validator{db: database}
}

// Validate runs the kind-specific validator and derives the entity's
// validation result, conflicts, suggested action, and status in place.
// A backing-store failure or panic during validation is recovered locally
// into a single general-field error with a forced skip; it is never
// propagated to the caller.
func (v *Validator) Validate(ctx context.Context, e *models.ExtractedEntity, today time.Time) {
	var (
		res       models.ValidationResult
		conflicts []models.ConflictCheck
		err       error
	)

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("validator panic: %v", r)
			}
		}()

		switch e.Kind {
		case models.KindMaintenanceVisit:
			res, conflicts, err = v.validateVisit(ctx, e.Fields)
		case models.KindEmployeeSchedule:
			res, conflicts, err = v.validateSchedule(ctx, e.Fields)
		case models.KindCertificate:
			res, conflicts, err = v.validateCertificate(ctx, e.Fields, today)
		default:
			// Unsupported kinds take the forced-skip path below.
			err = fmt.Errorf("no validator for %s documents", e.Kind)
		}
	}()

	if err != nil {
		log.Printf("WARNING: validation failed for entity %s: %v", e.ID, err)
		e.Validation = models.ValidationResult{
			IsValid: false,
			Errors: []models.FieldError{{
				Field:    "general",
				Message:  fmt.Sprintf("validation could not be completed: %v", err),
				Severity: models.SeverityError,
			}},
		}
		e.Conflicts = nil
		e.SuggestedAction = models.ActionSkip
		e.Status = models.StatusError
		return
	}

	res.IsValid = !hasBlockingError(res.Errors)
	e.Validation = res
	e.Conflicts = conflicts
	e.SuggestedAction = models.DeriveAction(e.Kind, conflicts)
	e.Status = models.DeriveStatus(res, conflicts)
}

func hasBlockingError(errs []models.FieldError) bool {
	for _, fe := range errs {
		if fe.Severity == models.SeverityError {
			return true
		}
	}
	return false
}

// ─── Field Access ───────────────────────────────────────────────────────────

func strField(fields map[string]any, name string) string {
	v, ok := fields[name]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", v))
}

func requireFields(fields map[string]any, names ...string) []models.FieldError {
	var errs []models.FieldError
	for _, name := range names {
		if strField(fields, name) == "" {
			errs = append(errs, models.FieldError{
				Field:    name,
				Message:  fmt.Sprintf("%s is required", name),
				Severity: models.SeverityError,
			})
		}
	}
	return errs
}

var dateLayouts = []string{"2006-01-02", "2006/01/02", "02/01/2006", "2 Jan 2006"}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ─── Reference Resolution ───────────────────────────────────────────────────

// lookupID runs a query expected to select a single id column and returns
// the first row's id. found is false when no row matches.
func (v *Validator) lookupID(ctx context.Context, sql string, args ...any) (int64, bool, error) {
	rows, err := v.db.Query(ctx, sql, args...)
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	id, ok := toInt64(rows[0]["id"])
	if !ok {
		return 0, false, fmt.Errorf("non-numeric id in %v", rows[0])
	}
	return id, true, nil
}

func (v *Validator) resolveAircraft(ctx context.Context, registration string) (int64, bool, error) {
	return v.lookupID(ctx,
		"SELECT id FROM aircraft WHERE UPPER(registration) = UPPER($1)", registration)
}

// parseEmployeeNumber strips an optional E- prefix and parses the remainder
// as the numeric employee number.
func parseEmployeeNumber(ref string) (int64, bool) {
	s := strings.TrimSpace(ref)
	if len(s) > 1 && (s[0] == 'E' || s[0] == 'e') && s[1] == '-' {
		s = s[2:]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// resolveEmployee resolves an employee by number (optionally E- prefixed) or,
// failing that, by fuzzy name match.
func (v *Validator) resolveEmployee(ctx context.Context, numberRef, nameRef string) (int64, bool, error) {
	if numberRef != "" {
		if n, ok := parseEmployeeNumber(numberRef); ok {
			return v.lookupID(ctx,
				"SELECT id FROM employees WHERE employee_number = $1", n)
		}
		// A non-numeric value in the number column is treated as a name.
		if nameRef == "" {
			nameRef = numberRef
		}
	}
	if nameRef == "" {
		return 0, false, nil
	}
	return v.lookupID(ctx,
		"SELECT id FROM employees WHERE name ILIKE '%' || $1 || '%' ORDER BY id LIMIT 1", nameRef)
}

func (v *Validator) resolveSupportCode(ctx context.Context, code string) (int64, bool, error) {
	return v.lookupID(ctx,
		"SELECT id FROM support_codes WHERE UPPER(code) = UPPER($1)", code)
}

func (v *Validator) resolveAuthorizationType(ctx context.Context, name string) (int64, bool, error) {
	return v.lookupID(ctx,
		`SELECT id FROM authorization_types
		 WHERE name ILIKE '%' || $1 || '%' OR $1 ILIKE '%' || name || '%'
		 ORDER BY id LIMIT 1`, name)
}

func (v *Validator) resolveAircraftModel(ctx context.Context, name string) (int64, bool, error) {
	return v.lookupID(ctx,
		`SELECT id FROM aircraft_models
		 WHERE name ILIKE '%' || $1 || '%' OR $1 ILIKE '%' || name || '%'
		 ORDER BY id LIMIT 1`, name)
}

func (v *Validator) resolveVisitNumber(ctx context.Context, visitNumber string) (int64, bool, error) {
	return v.lookupID(ctx,
		"SELECT id FROM maintenance_visits WHERE UPPER(visit_number) = UPPER($1)", visitNumber)
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
