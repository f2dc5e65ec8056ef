package validate

import (
	"context"
	"fmt"
	"time"

	"github.com/projecthangar/mro-service/internal/models"
)

const dateFormat = "2006-01-02"

// validateVisit checks a maintenance-visit entity: required fields, aircraft
// resolution, date logic, duplicate visit numbers, and hangar capacity over
// the visit's [date_in, date_out] interval.
func (v *Validator) validateVisit(ctx context.Context, fields map[string]any) (models.ValidationResult, []models.ConflictCheck, error) {
	var res models.ValidationResult
	var conflicts []models.ConflictCheck

	res.Errors = requireFields(fields, "aircraft_registration", "visit_number", "check_type", "date_in", "date_out")

	if reg := strField(fields, "aircraft_registration"); reg != "" {
		id, found, err := v.resolveAircraft(ctx, reg)
		if err != nil {
			return res, nil, fmt.Errorf("resolve aircraft: %w", err)
		}
		if !found {
			res.Errors = append(res.Errors, models.FieldError{
				Field:    "aircraft_registration",
				Message:  fmt.Sprintf("no aircraft with registration %s", reg),
				Severity: models.SeverityError,
			})
		} else {
			fields["aircraft_id"] = id
		}
	}

	dateIn, dateOut, dateErrs := parseVisitDates(fields)
	res.Errors = append(res.Errors, dateErrs...)

	if visitNumber := strField(fields, "visit_number"); visitNumber != "" {
		existingID, found, err := v.resolveVisitNumber(ctx, visitNumber)
		if err != nil {
			return res, nil, fmt.Errorf("check duplicate visit: %w", err)
		}
		if found {
			conflicts = append(conflicts, models.ConflictCheck{
				Kind:       models.ConflictDuplicate,
				Severity:   models.SeverityError,
				Message:    fmt.Sprintf("a visit with number %s already exists", visitNumber),
				Resolution: "skip this row or change the visit number",
				ExistingID: fmt.Sprintf("%d", existingID),
			})
		}
	}

	if hangar := strField(fields, "hangar"); hangar != "" {
		hangarConflicts, warnings, err := v.checkHangarCapacity(ctx, fields, hangar, dateIn, dateOut)
		if err != nil {
			return res, nil, err
		}
		conflicts = append(conflicts, hangarConflicts...)
		res.Warnings = append(res.Warnings, warnings...)
	}

	return res, conflicts, nil
}

func parseVisitDates(fields map[string]any) (time.Time, time.Time, []models.FieldError) {
	var errs []models.FieldError
	var dateIn, dateOut time.Time

	if s := strField(fields, "date_in"); s != "" {
		t, ok := parseDate(s)
		if !ok {
			errs = append(errs, models.FieldError{
				Field: "date_in", Message: fmt.Sprintf("unparsable date %q", s), Severity: models.SeverityError,
			})
		}
		dateIn = t
	}
	if s := strField(fields, "date_out"); s != "" {
		t, ok := parseDate(s)
		if !ok {
			errs = append(errs, models.FieldError{
				Field: "date_out", Message: fmt.Sprintf("unparsable date %q", s), Severity: models.SeverityError,
			})
		}
		dateOut = t
	}

	if !dateIn.IsZero() && !dateOut.IsZero() && !dateOut.After(dateIn) {
		errs = append(errs, models.FieldError{
			Field: "date_out", Message: "date_out must be after date_in", Severity: models.SeverityError,
		})
	}
	return dateIn, dateOut, errs
}

// checkHangarCapacity counts visits whose interval overlaps the new visit's
// interval at the same hangar. Occupancy at or above capacity is a blocking
// overlap conflict; partial occupancy is a utilization warning.
func (v *Validator) checkHangarCapacity(ctx context.Context, fields map[string]any, hangar string, dateIn, dateOut time.Time) ([]models.ConflictCheck, []string, error) {
	rows, err := v.db.Query(ctx,
		"SELECT id, capacity FROM hangars WHERE UPPER(name) = UPPER($1)", hangar)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve hangar: %w", err)
	}
	if len(rows) == 0 {
		return nil, []string{fmt.Sprintf("hangar %q is not recognized; capacity not checked", hangar)}, nil
	}

	hangarID, _ := toInt64(rows[0]["id"])
	capacity, _ := toInt64(rows[0]["capacity"])
	fields["hangar_id"] = hangarID

	if dateIn.IsZero() || dateOut.IsZero() {
		return nil, nil, nil
	}

	occRows, err := v.db.Query(ctx,
		`SELECT COUNT(*) AS total FROM maintenance_visits
		 WHERE hangar_id = $1 AND date_in <= $2 AND date_out >= $3`,
		hangarID, dateOut.Format(dateFormat), dateIn.Format(dateFormat))
	if err != nil {
		return nil, nil, fmt.Errorf("count hangar occupancy: %w", err)
	}
	occupancy := int64(0)
	if len(occRows) > 0 {
		occupancy, _ = toInt64(occRows[0]["total"])
	}

	switch {
	case capacity > 0 && occupancy >= capacity:
		return []models.ConflictCheck{{
			Kind:       models.ConflictOverlap,
			Severity:   models.SeverityError,
			Message:    fmt.Sprintf("hangar %s is full for this interval (%d of %d bays occupied)", hangar, occupancy, capacity),
			Resolution: "choose another hangar or shift the visit dates",
		}}, nil, nil
	case occupancy > 0:
		return []models.ConflictCheck{{
			Kind:     models.ConflictOverlap,
			Severity: models.SeverityWarning,
			Message:  fmt.Sprintf("hangar %s will be at %d of %d bays during this interval", hangar, occupancy+1, capacity),
		}}, nil, nil
	default:
		return nil, nil, nil
	}
}
