package validation

import "strings"

// baseRoles is the base AMR PropBank role vocabulary: numbered arguments plus
// the standard ARGM modifiers.
var baseRoles = []string{
	"ARG0", "ARG1", "ARG2", "ARG3", "ARG4", "ARG5", "ARG6",
	"ARGM-ADV", "ARGM-CAU", "ARGM-CND", "ARGM-DIR", "ARGM-DIS",
	"ARGM-EXT", "ARGM-LOC", "ARGM-MNR", "ARGM-MOD", "ARGM-NEG",
	"ARGM-PRD", "ARGM-PRP", "ARGM-REC", "ARGM-TMP",
}

// trPropbankExtensions holds the additional modifiers of the Turkish
// PropBank role sets.
var trPropbankExtensions = []string{"ARGM-CAUS", "ARGM-ADJ"}

// allowedRoles builds the role vocabulary for a role set version. Versions
// prefixed "tr-propbank" (case-insensitive) extend the base set; any unknown
// version falls back to the base set.
func allowedRoles(roleSetVersion string) map[string]struct{} {
	roles := make(map[string]struct{}, len(baseRoles)+2)
	for _, role := range baseRoles {
		roles[role] = struct{}{}
	}

	lowered := strings.ToLower(roleSetVersion)
	if strings.HasPrefix(lowered, "tr-propbank") {
		for _, role := range trPropbankExtensions {
			roles[role] = struct{}{}
		}
	}

	return roles
}
