package models

// DocumentKind identifies what kind of records an ingested document contains.
type DocumentKind string

const (
	KindMaintenanceVisit DocumentKind = "maintenance_visit"
	KindEmployeeSchedule DocumentKind = "employee_schedule"
	KindCertificate      DocumentKind = "certificate"
	KindAircraft         DocumentKind = "aircraft"
	KindUnknown          DocumentKind = "unknown"
)

// KnownKinds lists every kind the classifier may return, excluding unknown.
var KnownKinds = []DocumentKind{
	KindMaintenanceVisit, KindEmployeeSchedule, KindCertificate, KindAircraft,
}

// Severity grades a validation error or conflict.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Rank imposes the total order error > warning > info > none used to derive
// an entity status from its accumulated conflicts.
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// ConflictKind categorizes a business-rule collision with existing records.
type ConflictKind string

const (
	ConflictDuplicate        ConflictKind = "duplicate"
	ConflictOverlap          ConflictKind = "overlap"
	ConflictInvalidReference ConflictKind = "invalid_reference"
	ConflictMissingData      ConflictKind = "missing_data"
)

// EntityStatus is the display status of an extracted entity.
type EntityStatus string

const (
	StatusValid    EntityStatus = "valid"
	StatusWarning  EntityStatus = "warning"
	StatusError    EntityStatus = "error"
	StatusSkipped  EntityStatus = "skipped"
	StatusExecuted EntityStatus = "executed"
)

// Action is the create/update/skip recommendation for an entity.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionSkip   Action = "skip"
)

// FieldError is a validation error attached to a single field. The synthetic
// field name "general" is used when a validator fails as a whole.
type FieldError struct {
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// ValidationResult is the outcome of validating one entity. It is recomputed
// from scratch whenever the entity's fields change.
type ValidationResult struct {
	IsValid  bool         `json:"isValid"`
	Errors   []FieldError `json:"errors,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`
}

// ConflictCheck records one detected collision between an incoming entity and
// existing backing-store state.
type ConflictCheck struct {
	Kind       ConflictKind `json:"kind"`
	Severity   Severity     `json:"severity"`
	Message    string       `json:"message"`
	Resolution string       `json:"resolution,omitempty"`
	ExistingID string       `json:"existingId,omitempty"`
}

// ExtractedEntity is one candidate database record derived from a source row
// or image, prior to being committed.
type ExtractedEntity struct {
	ID              string           `json:"id"`
	Kind            DocumentKind     `json:"kind"`
	RowNumber       int              `json:"rowNumber"`
	Fields          map[string]any   `json:"fields"`
	Validation      ValidationResult `json:"validation"`
	SuggestedAction Action           `json:"suggestedAction"`
	Conflicts       []ConflictCheck  `json:"conflicts,omitempty"`
	Status          EntityStatus     `json:"status"`
}

// ActionResult records one executed action against the backing store.
type ActionResult struct {
	Success  bool   `json:"success"`
	EntityID string `json:"entityId"`
	Action   Action `json:"action"`
	RecordID string `json:"recordId,omitempty"`
	Error    string `json:"error,omitempty"`
	Message  string `json:"message"`
}

// BulkResult aggregates per-entity results of a bulk execution.
// SuccessCount + ErrorCount + SkippedCount always equals len(Results).
type BulkResult struct {
	SuccessCount int            `json:"successCount"`
	ErrorCount   int            `json:"errorCount"`
	SkippedCount int            `json:"skippedCount"`
	Results      []ActionResult `json:"results"`
}

// DeriveStatus computes the display status from a validation result and the
// accumulated conflicts: error if the validation is invalid or any conflict is
// error-severity, warning if any conflict or validation warning is present,
// valid otherwise. Skipped is an explicit override and never derived here.
func DeriveStatus(v ValidationResult, conflicts []ConflictCheck) EntityStatus {
	max := 0
	for _, c := range conflicts {
		if r := c.Severity.Rank(); r > max {
			max = r
		}
	}
	switch {
	case !v.IsValid || max >= SeverityError.Rank():
		return StatusError
	case max >= SeverityWarning.Rank() || len(v.Warnings) > 0:
		return StatusWarning
	default:
		return StatusValid
	}
}

// updatableKinds are the kinds whose duplicates can be resolved in place.
var updatableKinds = map[DocumentKind]bool{
	KindEmployeeSchedule: true,
	KindCertificate:      true,
}

// DeriveAction computes the suggested action: skip when any blocking
// (error-severity) conflict exists, update when a warning-severity duplicate
// exists and the kind supports in-place update, create otherwise.
// Info-severity duplicates do not force anything and resolve to create.
func DeriveAction(kind DocumentKind, conflicts []ConflictCheck) Action {
	update := false
	for _, c := range conflicts {
		if c.Severity == SeverityError {
			return ActionSkip
		}
		if c.Kind == ConflictDuplicate && c.Severity == SeverityWarning {
			update = true
		}
	}
	if update && updatableKinds[kind] {
		return ActionUpdate
	}
	return ActionCreate
}
