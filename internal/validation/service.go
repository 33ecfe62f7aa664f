package validation

import (
	"regexp"
	"sort"
	"strings"

	"github.com/amrlab/amrflow/internal/penman"
)

// checkFunc is the fixed signature every modular check implements. Checks
// receive the decoded graph and the original submission text and yield their
// own errors and warnings.
type checkFunc func(g *penman.Graph, originalText string) ([]Issue, []Issue)

// namedCheck pairs a check with its registry name.
type namedCheck struct {
	name  string
	check checkFunc
}

// Service validates PENMAN submissions against a project's version triple.
// Construct one per request with the project's versions; the rule set is
// fixed for the service's lifetime.
type Service struct {
	amrVersion     string
	roleSetVersion string
	ruleVersion    string

	allowed map[string]struct{}
	checks  []namedCheck
}

// NewService builds a validation service for the given project version
// triple.
func NewService(amrVersion, roleSetVersion, ruleVersion string) *Service {
	s := &Service{
		amrVersion:     amrVersion,
		roleSetVersion: roleSetVersion,
		ruleVersion:    ruleVersion,
		allowed:        allowedRoles(roleSetVersion),
	}

	// The checks run in registration order; all of them run regardless of
	// earlier findings.
	s.checks = []namedCheck{
		{name: "root", check: s.checkRoot},
		{name: "variables", check: s.checkVariables},
		{name: "reentrancy", check: s.checkReentrancy},
		{name: "triple_count", check: s.checkTripleCount},
		{name: "triple_roles", check: s.checkRoles},
		{name: "lint", check: s.lintWarnings},
	}

	return s
}

// variablePattern matches well-formed PENMAN variable names.
var variablePattern = regexp.MustCompile(`^[a-zA-Z][\w-]*$`)

// Validate runs the full pipeline on the submitted text and returns the
// structured report.
func (s *Service) Validate(penmanText string) *Report {
	var errs, warns []Issue

	normalized := normalize(penmanText)
	if normalized == "" {
		errs = append(errs, Issue{
			Code:     "empty_input",
			Message:  "AMR içeriği boş olamaz.",
			Severity: SeverityError,
		})

		return s.report(errs, warns, nil, nil)
	}

	if !parenthesesBalanced(normalized) {
		errs = append(errs, Issue{
			Code:     "parse_error",
			Message:  "Parantez dengesi hatalı.",
			Severity: SeverityError,
		})

		return s.report(errs, warns, nil, nil)
	}

	graph, err := penman.Decode(normalized)
	if err != nil {
		errs = append(errs, Issue{
			Code:     "parse_error",
			Message:  "PENMAN çözümleme hatası.",
			Severity: SeverityError,
			Context:  map[string]any{"detail": err.Error()},
		})

		return s.report(errs, warns, nil, nil)
	}

	for _, c := range s.checks {
		checkErrs, checkWarns := c.check(graph, penmanText)
		errs = append(errs, checkErrs...)
		warns = append(warns, checkWarns...)
	}

	canonical, err := penman.Encode(graph)
	if err != nil {
		// The graph came from Decode, so encoding cannot fail; treat
		// it as a parse error if it somehow does.
		errs = append(errs, Issue{
			Code:     "parse_error",
			Message:  "PENMAN kanonikleştirme hatası.",
			Severity: SeverityError,
			Context:  map[string]any{"detail": err.Error()},
		})

		return s.report(errs, warns, nil, nil)
	}

	tripleCount := len(graph.Triples)

	return s.report(errs, warns, &canonical, &tripleCount)
}

func (s *Service) report(errs, warns []Issue, canonical *string,
	tripleCount *int) *Report {

	if errs == nil {
		errs = []Issue{}
	}
	if warns == nil {
		warns = []Issue{}
	}

	return &Report{
		IsValid:         len(errs) == 0,
		AmrVersion:      s.amrVersion,
		RoleSetVersion:  s.roleSetVersion,
		RuleVersion:     s.ruleVersion,
		TripleCount:     tripleCount,
		CanonicalPenman: canonical,
		Errors:          errs,
		Warnings:        warns,
	}
}

// normalize strips surrounding whitespace per line and drops blank lines.
func normalize(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}

	return strings.Join(lines, "\n")
}

// parenthesesBalanced checks that the paren depth never goes negative and
// ends at zero.
func parenthesesBalanced(text string) bool {
	depth := 0
	for _, c := range text {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth < 0 {
			return false
		}
	}

	return depth == 0
}

// checkRoot verifies the graph has a top variable bound to a concept.
func (s *Service) checkRoot(g *penman.Graph, _ string) ([]Issue, []Issue) {
	var errs []Issue

	if g.Top == "" {
		errs = append(errs, Issue{
			Code:     "missing_root",
			Message:  "Kök düğüm tespit edilemedi.",
			Severity: SeverityError,
		})

		return errs, nil
	}

	for _, inst := range g.Instances() {
		if inst.Source == g.Top {
			return nil, nil
		}
	}

	errs = append(errs, Issue{
		Code:     "uninstantiated_root",
		Message:  "Kök düğüm için kavram bulunamadı.",
		Severity: SeverityError,
		Context:  map[string]any{"root": g.Top},
	})

	return errs, nil
}

// checkVariables verifies variable naming, instance consistency, and that
// every referenced variable has an instance.
func (s *Service) checkVariables(g *penman.Graph, _ string) ([]Issue, []Issue) {
	var errs, warns []Issue

	instances := make(map[string]string)
	for _, inst := range g.Instances() {
		variable, concept := inst.Source, inst.Target

		if !variablePattern.MatchString(variable) {
			errs = append(errs, Issue{
				Code:     "invalid_variable_name",
				Message:  "Geçersiz değişken adı.",
				Severity: SeverityError,
				Context:  map[string]any{"variable": variable},
			})
		}

		if previous, ok := instances[variable]; ok &&
			previous != concept {

			errs = append(errs, Issue{
				Code:     "conflicting_instances",
				Message:  "Aynı değişken birden fazla kavramla eşlenmiş.",
				Severity: SeverityError,
				Context: map[string]any{
					"variable": variable,
					"existing": previous,
					"conflict": concept,
				},
			})
		}
		instances[variable] = concept
	}

	referenced := make(map[string]struct{})
	for _, edge := range g.Edges() {
		if variablePattern.MatchString(edge.Target) {
			referenced[edge.Target] = struct{}{}
		}
	}

	var dangling []string
	for variable := range referenced {
		if _, ok := instances[variable]; !ok {
			dangling = append(dangling, variable)
		}
	}
	if len(dangling) > 0 {
		sort.Strings(dangling)
		errs = append(errs, Issue{
			Code:     "dangling_variable",
			Message:  "Tanımlanmayan değişkene referans var.",
			Severity: SeverityError,
			Context:  map[string]any{"variables": dangling},
		})
	}

	if len(instances) == 0 {
		warns = append(warns, Issue{
			Code:     "no_instances",
			Message:  "Hiçbir düğümde kavram tanımı bulunamadı.",
			Severity: SeverityWarning,
		})
	}

	return errs, warns
}

// checkReentrancy flags nodes receiving more than one incoming edge.
func (s *Service) checkReentrancy(g *penman.Graph, _ string) ([]Issue, []Issue) {
	incoming := make(map[string]int)
	for _, edge := range g.Edges() {
		incoming[edge.Target]++
	}

	var reentrant []string
	for node, count := range incoming {
		if count > 1 {
			reentrant = append(reentrant, node)
		}
	}
	sort.Strings(reentrant)

	var warns []Issue
	for _, node := range reentrant {
		warns = append(warns, Issue{
			Code:     "reentrancy",
			Message:  "Düğüm birden fazla üstten bağ alıyor.",
			Severity: SeverityWarning,
			Context: map[string]any{
				"variable":       node,
				"incoming_edges": incoming[node],
			},
		})
	}

	return nil, warns
}

// checkTripleCount flags empty graphs and graphs without instance triples.
func (s *Service) checkTripleCount(g *penman.Graph, _ string) ([]Issue, []Issue) {
	if len(g.Triples) == 0 {
		return []Issue{{
			Code:     "no_triples",
			Message:  "Graf içinde üçleme bulunamadı.",
			Severity: SeverityError,
		}}, nil
	}

	if len(g.Instances()) == 0 {
		return nil, []Issue{{
			Code:     "no_instance_triples",
			Message:  "Herhangi bir :instance üçlemesi tespit edilmedi.",
			Severity: SeverityWarning,
		}}
	}

	return nil, nil
}

// checkRoles verifies PropBank-style roles against the project's allowed
// role set.
func (s *Service) checkRoles(g *penman.Graph, _ string) ([]Issue, []Issue) {
	var propbankRoles []string
	for _, t := range g.Triples {
		role := strings.TrimPrefix(t.Role, ":")
		if strings.HasPrefix(strings.ToUpper(role), "ARG") {
			propbankRoles = append(
				propbankRoles, strings.ToUpper(role),
			)
		}
	}

	var disallowed []string
	for _, role := range propbankRoles {
		if _, ok := s.allowed[role]; !ok {
			disallowed = append(disallowed, role)
		}
	}

	var errs, warns []Issue
	if len(disallowed) > 0 {
		sort.Strings(disallowed)
		errs = append(errs, Issue{
			Code:     "role_mismatch",
			Message:  "İzin verilmeyen PropBank rol(ler) kullanılmış.",
			Severity: SeverityError,
			Context: map[string]any{
				"roles":            disallowed,
				"role_set_version": s.roleSetVersion,
			},
		})
	}

	if len(propbankRoles) == 0 {
		warns = append(warns, Issue{
			Code:     "no_roles_detected",
			Message:  "AMR içinde PropBank rolü tespit edilemedi.",
			Severity: SeverityWarning,
		})
	}

	return errs, warns
}

// lintWarnings flags duplicated roles on a node and sloppy surrounding
// whitespace.
func (s *Service) lintWarnings(g *penman.Graph, text string) ([]Issue, []Issue) {
	roleCounts := make(map[string]map[string]int)
	for _, edge := range g.Edges() {
		if roleCounts[edge.Source] == nil {
			roleCounts[edge.Source] = make(map[string]int)
		}
		roleCounts[edge.Source][edge.Role]++
	}

	var sources []string
	for source, counts := range roleCounts {
		for _, count := range counts {
			if count > 1 {
				sources = append(sources, source)
				break
			}
		}
	}
	sort.Strings(sources)

	var warns []Issue
	for _, source := range sources {
		var duplicated []string
		for role, count := range roleCounts[source] {
			if count > 1 {
				duplicated = append(duplicated, role)
			}
		}
		sort.Strings(duplicated)

		warns = append(warns, Issue{
			Code:     "duplicate_roles",
			Message:  "Aynı düğüm için yinelenen roller mevcut.",
			Severity: SeverityLint,
			Context: map[string]any{
				"variable": source,
				"roles":    duplicated,
			},
		})
	}

	if strings.TrimSpace(text) != text {
		warns = append(warns, Issue{
			Code:     "leading_trailing_whitespace",
			Message:  "Başta/sonda gereksiz boşluklar bulundu, kanonize edildi.",
			Severity: SeverityLint,
		})
	}

	return nil, warns
}
