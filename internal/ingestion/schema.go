// Package ingestion turns parsed tabular documents into candidate entities:
// it classifies the document kind, maps source columns to canonical fields,
// and transforms rows into loosely-typed field bags. Classification and
// mapping each have a model-assisted primary path and a deterministic
// keyword fallback.
package ingestion

import (
	"strings"

	"github.com/projecthangar/mro-service/internal/models"
)

// FieldSpec describes one canonical field of a document kind. Keywords are
// normalized stems searched for in normalized source headers by the fallback
// column mapper, in order.
type FieldSpec struct {
	Name        string
	Description string
	Keywords    []string
}

// fieldSchemas defines the canonical target schema per document kind.
var fieldSchemas = map[models.DocumentKind][]FieldSpec{
	models.KindMaintenanceVisit: {
		{"aircraft_registration", "aircraft registration / tail number", []string{"aircraftregistration", "registration", "aircraft", "tail"}},
		{"visit_number", "unique maintenance visit number", []string{"visitnumber", "visitno", "visit"}},
		{"check_type", "type of check performed (A-Check, C-Check, ...)", []string{"checktype", "check", "worktype"}},
		{"date_in", "arrival / induction date", []string{"datein", "arrival", "induction", "startdate"}},
		{"date_out", "departure / release date", []string{"dateout", "departure", "release", "enddate", "etd"}},
		{"hangar", "hangar or bay where the visit takes place", []string{"hangar", "bay", "dock"}},
		{"status", "visit status", []string{"status", "state"}},
		{"work_order_number", "work order reference", []string{"workorder", "wonumber"}},
		{"remarks", "free-text remarks", []string{"remark", "note", "comment", "description"}},
	},
	models.KindEmployeeSchedule: {
		{"employee_number", "employee number, optionally E- prefixed", []string{"employeenumber", "employeeno", "employeeid", "empno", "staffnumber", "employee"}},
		{"employee_name", "employee full name", []string{"employeename", "name"}},
		{"assignment_date", "date of the assignment", []string{"assignmentdate", "date", "day"}},
		{"support_code", "support / task code the employee is assigned to", []string{"supportcode", "support", "taskcode", "assignment", "duty", "code"}},
		{"visit_number", "referenced maintenance visit number", []string{"visitnumber", "visit"}},
		{"shift", "shift label", []string{"shift"}},
		{"remarks", "free-text remarks", []string{"remark", "note", "comment"}},
	},
	models.KindCertificate: {
		{"employee_number", "employee number, optionally E- prefixed", []string{"employeenumber", "employeeno", "employeeid", "empno", "employee", "staff"}},
		{"employee_name", "employee / holder full name", []string{"employeename", "holder", "name"}},
		{"certificate_number", "certificate number", []string{"certificatenumber", "certno", "certificate", "cert"}},
		{"authorization_type", "authorization / rating / licence type", []string{"authorizationtype", "authorisation", "authorization", "rating", "licence", "license"}},
		{"aircraft_model", "aircraft model the authorization covers", []string{"aircraftmodel", "aircrafttype", "model"}},
		{"issue_date", "issue date", []string{"issuedate", "issued", "issue", "validfrom"}},
		{"expiry_date", "expiry date", []string{"expirydate", "expiry", "expires", "expire", "validuntil", "validto"}},
		{"remarks", "free-text remarks", []string{"remark", "note", "comment"}},
	},
	models.KindAircraft: {
		{"registration", "aircraft registration / tail number", []string{"registration", "tail", "reg"}},
		{"model", "aircraft model / type", []string{"model", "aircrafttype", "type"}},
		{"serial_number", "manufacturer serial number", []string{"msn", "serialnumber", "serial"}},
		{"operator", "owner / operator", []string{"operator", "owner"}},
		{"delivery_date", "delivery date", []string{"deliverydate", "delivery"}},
		{"status", "aircraft status", []string{"status"}},
	},
}

// detectionRule is a three-way conjunction of header keyword groups. A
// document matches a kind when every group matches at least one header.
type detectionRule struct {
	kind   models.DocumentKind
	groups [3][]string
}

// detectionRules are evaluated in order; the first full match wins.
var detectionRules = []detectionRule{
	{models.KindMaintenanceVisit, [3][]string{
		{"aircraft", "registration", "tail"},
		{"visit", "check"},
		{"datein", "dateout", "arrival", "departure"},
	}},
	{models.KindEmployeeSchedule, [3][]string{
		{"employee", "staff", "emp"},
		{"date", "day", "shift"},
		{"support", "assignment", "task", "duty"},
	}},
	{models.KindCertificate, [3][]string{
		{"employee", "staff", "holder", "name"},
		{"certificate", "authorization", "authorisation", "licence", "license", "rating"},
		{"expiry", "expire", "valid", "issue"},
	}},
	{models.KindAircraft, [3][]string{
		{"registration", "tail", "reg"},
		{"model", "type"},
		{"msn", "serial", "owner", "operator", "delivery"},
	}},
}

// Schema returns the canonical field schema for a kind, or nil for unknown.
func Schema(kind models.DocumentKind) []FieldSpec {
	return fieldSchemas[kind]
}

// normalizeHeader lowercases a header and strips every non-alphanumeric rune,
// so "Date In" and "date_in" compare equal.
func normalizeHeader(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
