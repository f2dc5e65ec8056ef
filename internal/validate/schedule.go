package validate

import (
	"context"
	"fmt"

	"github.com/projecthangar/mro-service/internal/models"
)

// validateSchedule checks an employee-schedule entity: employee and support
// code must resolve, the referenced visit is optional, and an existing
// assignment for the same employee and date is a non-blocking duplicate that
// suggests an in-place update.
func (v *Validator) validateSchedule(ctx context.Context, fields map[string]any) (models.ValidationResult, []models.ConflictCheck, error) {
	var res models.ValidationResult
	var conflicts []models.ConflictCheck

	res.Errors = requireFields(fields, "assignment_date", "support_code")

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

	if code := strField(fields, "support_code"); code != "" {
		id, found, err := v.resolveSupportCode(ctx, code)
		if err != nil {
			return res, nil, fmt.Errorf("resolve support code: %w", err)
		}
		if !found {
			res.Errors = append(res.Errors, models.FieldError{
				Field:    "support_code",
				Message:  fmt.Sprintf("no support code matches %q", code),
				Severity: models.SeverityError,
			})
		} else {
			fields["support_code_id"] = id
		}
	}

	// The visit reference is optional; an unresolved one is only a warning.
	if visitNumber := strField(fields, "visit_number"); visitNumber != "" {
		id, found, err := v.resolveVisitNumber(ctx, visitNumber)
		if err != nil {
			return res, nil, fmt.Errorf("resolve visit: %w", err)
		}
		if !found {
			conflicts = append(conflicts, models.ConflictCheck{
				Kind:     models.ConflictInvalidReference,
				Severity: models.SeverityWarning,
				Message:  fmt.Sprintf("referenced visit %s does not exist; the assignment will not be linked", visitNumber),
			})
		} else {
			fields["visit_id"] = id
		}
	}

	assignmentDate := strField(fields, "assignment_date")
	if assignmentDate != "" {
		t, ok := parseDate(assignmentDate)
		if !ok {
			res.Errors = append(res.Errors, models.FieldError{
				Field: "assignment_date", Message: fmt.Sprintf("unparsable date %q", assignmentDate), Severity: models.SeverityError,
			})
		} else if employeeID != 0 {
			existingID, found, err := v.lookupID(ctx,
				"SELECT id FROM employee_supports WHERE employee_id = $1 AND assignment_date = $2",
				employeeID, t.Format(dateFormat))
			if err != nil {
				return res, nil, fmt.Errorf("check duplicate assignment: %w", err)
			}
			if found {
				conflicts = append(conflicts, models.ConflictCheck{
					Kind:       models.ConflictDuplicate,
					Severity:   models.SeverityWarning,
					Message:    fmt.Sprintf("employee already has an assignment on %s", t.Format(dateFormat)),
					Resolution: "updating will replace the existing assignment",
					ExistingID: fmt.Sprintf("%d", existingID),
				})
			}
		}
	}

	return res, conflicts, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
