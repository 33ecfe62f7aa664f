package validation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestService() *Service {
	return NewService("amr-2.0-tr", "tr-propbank-1.4", "vld-2025.01")
}

func TestValidateAcceptsWellFormedGraph(t *testing.T) {
	report := newTestService().Validate("(b / buy-01 :ARG0 (p / person))")

	require.True(t, report.IsValid)
	require.Empty(t, report.Errors)
	require.NotNil(t, report.TripleCount)
	require.Equal(t, 3, *report.TripleCount)
	require.NotNil(t, report.CanonicalPenman)
	require.Equal(t, "(b / buy-01 :ARG0 (p / person))",
		*report.CanonicalPenman)

	require.Equal(t, "amr-2.0-tr", report.AmrVersion)
	require.Equal(t, "tr-propbank-1.4", report.RoleSetVersion)
	require.Equal(t, "vld-2025.01", report.RuleVersion)
}

func TestValidateEmptyInput(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\n  \n"} {
		report := newTestService().Validate(input)

		require.False(t, report.IsValid)
		require.True(t, report.HasErrorCode("empty_input"))
		require.Nil(t, report.TripleCount)
		require.Nil(t, report.CanonicalPenman)
	}
}

func TestValidateUnbalancedParens(t *testing.T) {
	report := newTestService().Validate("(b / buy-01 :ARG0 (p / person)")

	require.False(t, report.IsValid)
	require.Len(t, report.Errors, 1)
	require.Equal(t, "parse_error", report.Errors[0].Code)
	require.Equal(t, "Parantez dengesi hatalı.", report.Errors[0].Message)
}

func TestValidateParseFailure(t *testing.T) {
	// Balanced parens but not decodable PENMAN.
	report := newTestService().Validate("(b / )")

	require.False(t, report.IsValid)
	require.True(t, report.HasErrorCode("parse_error"))
	require.Contains(t, report.Errors[0].Context, "detail")
}

func TestValidateConflictingAndDanglingVariables(t *testing.T) {
	report := newTestService().Validate(
		"(b / boy :ARG0 (b / bark-01) :ARG1 x)",
	)

	require.False(t, report.IsValid)
	require.True(t, report.HasErrorCode("conflicting_instances"))
	require.True(t, report.HasErrorCode("dangling_variable"))

	for _, issue := range report.Errors {
		switch issue.Code {
		case "conflicting_instances":
			require.Equal(t, "b", issue.Context["variable"])
			require.Equal(t, "boy", issue.Context["existing"])
			require.Equal(t, "bark-01", issue.Context["conflict"])
		case "dangling_variable":
			require.Equal(t, []string{"x"}, issue.Context["variables"])
		}
	}

	// Parse succeeded, so the canonical form and count are still filled.
	require.NotNil(t, report.CanonicalPenman)
	require.NotNil(t, report.TripleCount)
}

func TestValidateRoleMismatch(t *testing.T) {
	report := newTestService().Validate("(b / buy-01 :ARG9 (p / person))")

	require.False(t, report.IsValid)
	require.True(t, report.HasErrorCode("role_mismatch"))

	for _, issue := range report.Errors {
		if issue.Code != "role_mismatch" {
			continue
		}
		require.Equal(t, []string{"ARG9"}, issue.Context["roles"])
		require.Equal(t, "tr-propbank-1.4",
			issue.Context["role_set_version"])
	}
}

func TestValidateTurkishRoleSetExtensions(t *testing.T) {
	input := "(g / git-01 :ARGM-CAUS (n / neden))"

	// Allowed under tr-propbank.
	report := newTestService().Validate(input)
	require.True(t, report.IsValid)

	// Rejected under the base role set.
	report = NewService("amr-2.0", "base-1.0", "vld-2025.01").
		Validate(input)
	require.False(t, report.IsValid)
	require.True(t, report.HasErrorCode("role_mismatch"))
}

func TestValidateReentrancyWarning(t *testing.T) {
	report := newTestService().Validate(
		"(w / want-01 :ARG0 (b / boy) :ARG1 (g / go-02 :ARG0 b))",
	)

	require.True(t, report.IsValid)
	require.True(t, report.HasWarningCode("reentrancy"))

	for _, issue := range report.Warnings {
		if issue.Code != "reentrancy" {
			continue
		}
		require.Equal(t, "b", issue.Context["variable"])
		require.Equal(t, 2, issue.Context["incoming_edges"])
	}
}

func TestValidateNoRolesWarning(t *testing.T) {
	report := newTestService().Validate("(k / kitap)")

	require.True(t, report.IsValid)
	require.True(t, report.HasWarningCode("no_roles_detected"))
}

func TestValidateDuplicateRolesLint(t *testing.T) {
	report := newTestService().Validate(
		"(b / buy-01 :ARG0 (p / person) :ARG0 (q / person))",
	)

	require.True(t, report.IsValid)
	require.True(t, report.HasWarningCode("duplicate_roles"))

	for _, issue := range report.Warnings {
		if issue.Code != "duplicate_roles" {
			continue
		}
		require.Equal(t, SeverityLint, issue.Severity)
		require.Equal(t, "b", issue.Context["variable"])
		require.Equal(t, []string{":ARG0"}, issue.Context["roles"])
	}
}

func TestValidateWhitespaceLint(t *testing.T) {
	report := newTestService().Validate("  (b / buy-01)  ")

	require.True(t, report.IsValid)
	require.True(t, report.HasWarningCode("leading_trailing_whitespace"))
}

func TestValidateCanonicalFormIsIdempotent(t *testing.T) {
	svc := newTestService()

	report := svc.Validate(`(w / want-01
	    :ARG0 (b / boy)
	    :ARG1 (g / go-02
	        :ARG0 b))`)
	require.True(t, report.IsValid)
	require.NotNil(t, report.CanonicalPenman)

	again := svc.Validate(*report.CanonicalPenman)
	require.True(t, again.IsValid)
	require.Equal(t, *report.CanonicalPenman, *again.CanonicalPenman)
}

func TestReportJSONRoundTrip(t *testing.T) {
	report := newTestService().Validate("(b / buy-01 :ARG0 (p / person))")

	raw, err := report.ToJSON()
	require.NoError(t, err)

	parsed, err := FromJSON(raw)
	require.NoError(t, err)
	require.Equal(t, report.IsValid, parsed.IsValid)
	require.Equal(t, report.AmrVersion, parsed.AmrVersion)
	require.Equal(t, *report.TripleCount, *parsed.TripleCount)
	require.Equal(t, *report.CanonicalPenman, *parsed.CanonicalPenman)
}
