package validate

import (
	"context"
	"fmt"
	"time"

	"github.com/projecthangar/mro-service/internal/models"
)

// validateCertificate checks a certificate entity. The employee must resolve;
// authorization type and aircraft model resolve by substring match and are
// only warnings when unresolved, so the record can still be created for later
// linkage. An already-lapsed expiry date is explicitly allowed and recorded
// as a warning.
func (v *Validator) validateCertificate(ctx context.Context, fields map[string]any, today time.Time) (models.ValidationResult, []models.ConflictCheck, error) {
	var res models.ValidationResult
	var conflicts []models.ConflictCheck

	res.Errors = requireFields(fields, "certificate_number", "authorization_type", "expiry_date")

	numberRef := strField(fields, "employee_number")
	nameRef := strField(fields, "employee_name")
	if numberRef == "" && nameRef == "" {
		res.Errors = append(res.Errors, models.FieldError{
			Field:    "employee_number",
			Message:  "an employee number or name is required",
			Severity: models.SeverityError,
		})
	}

	var employeeID int64
	if numberRef != "" || nameRef != "" {
		id, found, err := v.resolveEmployee(ctx, numberRef, nameRef)
		if err != nil {
			return res, nil, fmt.Errorf("resolve employee: %w", err)
		}
		if !found {
			res.Errors = append(res.Errors, models.FieldError{
				Field:    "employee_number",
				Message:  fmt.Sprintf("no employee matches %q", firstNonEmpty(numberRef, nameRef)),
				Severity: models.SeverityError,
			})
		} else {
			employeeID = id
			fields["employee_id"] = id
		}
	}

	var authTypeID, modelID int64
	if authType := strField(fields, "authorization_type"); authType != "" {
		id, found, err := v.resolveAuthorizationType(ctx, authType)
		if err != nil {
			return res, nil, fmt.Errorf("resolve authorization type: %w", err)
		}
		if !found {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("authorization type %q is not recognized; the certificate will be recorded unlinked", authType))
		} else {
			authTypeID = id
			fields["authorization_type_id"] = id
		}
	}

	if model := strField(fields, "aircraft_model"); model != "" {
		id, found, err := v.resolveAircraftModel(ctx, model)
		if err != nil {
			return res, nil, fmt.Errorf("resolve aircraft model: %w", err)
		}
		if !found {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("aircraft model %q is not recognized; the certificate will be recorded unlinked", model))
		} else {
			modelID = id
			fields["aircraft_model_id"] = id
		}
	}

	var expiry time.Time
	if s := strField(fields, "expiry_date"); s != "" {
		t, ok := parseDate(s)
		if !ok {
			res.Errors = append(res.Errors, models.FieldError{
				Field: "expiry_date", Message: fmt.Sprintf("unparsable date %q", s), Severity: models.SeverityError,
			})
		} else {
			expiry = t
			if t.Before(today) {
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("certificate already expired on %s", t.Format(dateFormat)))
			}
		}
	}
	if s := strField(fields, "issue_date"); s != "" {
		if _, ok := parseDate(s); !ok {
			res.Warnings = append(res.Warnings, fmt.Sprintf("unparsable issue date %q ignored", s))
		}
	}

	if employeeID != 0 && authTypeID != 0 && modelID != 0 && !expiry.IsZero() {
		dup, err := v.checkDuplicateAuthorization(ctx, employeeID, authTypeID, modelID, expiry)
		if err != nil {
			return res, nil, err
		}
		conflicts = append(conflicts, dup...)
	}

	return res, conflicts, nil
}

// checkDuplicateAuthorization looks for an active authorization of the same
// employee, type, and model. A later incoming expiry reads as a renewal and
// suggests update; an earlier or equal one is ambiguous and only informational.
func (v *Validator) checkDuplicateAuthorization(ctx context.Context, employeeID, authTypeID, modelID int64, expiry time.Time) ([]models.ConflictCheck, error) {
	rows, err := v.db.Query(ctx,
		`SELECT id, expiry_date FROM employee_authorizations
		 WHERE employee_id = $1 AND authorization_type_id = $2 AND aircraft_model_id = $3 AND active = TRUE
		 ORDER BY expiry_date DESC LIMIT 1`,
		employeeID, authTypeID, modelID)
	if err != nil {
		return nil, fmt.Errorf("check duplicate authorization: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	existingID, _ := toInt64(rows[0]["id"])
	existingExpiry, _ := toTime(rows[0]["expiry_date"])

	if expiry.After(existingExpiry) {
		return []models.ConflictCheck{{
			Kind:       models.ConflictDuplicate,
			Severity:   models.SeverityWarning,
			Message:    fmt.Sprintf("an active authorization exists with expiry %s; this looks like a renewal", existingExpiry.Format(dateFormat)),
			Resolution: "updating will extend the existing authorization",
			ExistingID: fmt.Sprintf("%d", existingID),
		}}, nil
	}
	return []models.ConflictCheck{{
		Kind:       models.ConflictDuplicate,
		Severity:   models.SeverityInfo,
		Message:    fmt.Sprintf("an active authorization exists with a later or equal expiry (%s)", existingExpiry.Format(dateFormat)),
		ExistingID: fmt.Sprintf("%d", existingID),
	}}, nil
}

func toTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		return parseDate(val)
	default:
		return time.Time{}, false
	}
}
