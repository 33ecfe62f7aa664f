// Package validation implements the AMR validation and canonicalization
// service: PENMAN parse, ordered modular checks, and a versioned structured
// report.
package validation

import "encoding/json"

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityLint    Severity = "lint"
)

// Issue is a single finding produced by a check.
type Issue struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Severity Severity       `json:"severity"`
	Context  map[string]any `json:"context,omitempty"`
}

// Report is the outcome of validating one PENMAN submission. TripleCount and
// CanonicalPenman are nil when parsing failed.
type Report struct {
	IsValid         bool    `json:"is_valid"`
	AmrVersion      string  `json:"amr_version"`
	RoleSetVersion  string  `json:"role_set_version"`
	RuleVersion     string  `json:"rule_version"`
	TripleCount     *int    `json:"triple_count"`
	CanonicalPenman *string `json:"canonical_penman"`
	Errors          []Issue `json:"errors"`
	Warnings        []Issue `json:"warnings"`
}

// HasErrorCode reports whether the report contains an error with the given
// code.
func (r *Report) HasErrorCode(code string) bool {
	for _, issue := range r.Errors {
		if issue.Code == code {
			return true
		}
	}

	return false
}

// HasWarningCode reports whether the report contains a warning with the
// given code.
func (r *Report) HasWarningCode(code string) bool {
	for _, issue := range r.Warnings {
		if issue.Code == code {
			return true
		}
	}

	return false
}

// ToJSON serializes the report for storage on the annotation row.
func (r *Report) ToJSON() (string, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return "", err
	}

	return string(raw), nil
}

// FromJSON parses a stored report. A nil report and error are returned when
// the payload is not valid JSON.
func FromJSON(raw string) (*Report, error) {
	var report Report
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return nil, err
	}

	return &report, nil
}
