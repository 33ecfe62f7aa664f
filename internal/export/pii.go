package export

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/amrlab/amrflow/internal/amr"
)

// PiiFilter applies the export's PII strategy to user-identifying fields.
// Anonymization is a pure function of the input, so repeated exports over
// unchanged data produce identical output.
type PiiFilter struct {
	strategy amr.PiiStrategy
}

// NewPiiFilter creates a filter for the given strategy.
func NewPiiFilter(strategy amr.PiiStrategy) PiiFilter {
	return PiiFilter{strategy: strategy}
}

// UserID maps a user id according to the strategy.
func (f PiiFilter) UserID(userID *int64) *int64 {
	if userID == nil {
		return nil
	}
	switch f.strategy {
	case amr.PiiInclude:
		return userID
	case amr.PiiStrip:
		return nil
	}

	anon := int64(anonHash(fmt.Sprintf("user-%d", *userID)) % 10_000_000)
	return &anon
}

// Source maps a sentence source tag according to the strategy.
func (f PiiFilter) Source(source *string) *string {
	if source == nil {
		return nil
	}
	switch f.strategy {
	case amr.PiiInclude:
		return source
	case amr.PiiStrip:
		return nil
	}

	anon := fmt.Sprintf("src-%d", anonHash(*source)%1_000_000)
	return &anon
}

// IPAddress maps an IP address according to the strategy.
func (f PiiFilter) IPAddress(ip *string) *string {
	if ip == nil {
		return nil
	}
	switch f.strategy {
	case amr.PiiInclude:
		return ip
	case amr.PiiStrip:
		return nil
	}

	anon := "0.0.0.0"
	return &anon
}

// CleanseDetails walks a failed submission's details map and applies the
// strategy to email-like, IP-like and source-like keys. Other values pass
// through untouched.
func (f PiiFilter) CleanseDetails(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}

	sanitized := make(map[string]any, len(details))
	for key, value := range details {
		lowered := strings.ToLower(key)
		text, isString := value.(string)

		switch {
		case strings.Contains(lowered, "email") && isString:
			sanitized[key] = f.email(text)

		case strings.Contains(lowered, "ip") && isString:
			sanitized[key] = deref(f.IPAddress(&text))

		case isString && (strings.Contains(lowered, "source_id") ||
			lowered == "source"):

			sanitized[key] = deref(f.Source(&text))

		default:
			sanitized[key] = value
		}
	}
	return sanitized
}

func (f PiiFilter) email(value string) any {
	switch f.strategy {
	case amr.PiiInclude:
		return value
	case amr.PiiStrip:
		return nil
	}

	return fmt.Sprintf("user-%d@example.local", anonHash(value)%1_000_000)
}

func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// anonHash is the stable hash behind every anonymized value. FNV-1a keeps
// the mapping deterministic across processes and runs.
func anonHash(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
