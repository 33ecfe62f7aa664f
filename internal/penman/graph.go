// Package penman implements decoding and encoding of PENMAN-serialized AMR
// graphs. A graph is a rooted set of (source, role, target) triples; the
// special :instance role binds a variable to its concept.
package penman

import "sort"

// InstanceRole is the role binding a variable to its concept.
const InstanceRole = ":instance"

// Triple is a single (source, role, target) edge. Targets are stored
// verbatim: variables and symbol constants as-is, string constants with the
// surrounding quotes kept so that encoding round-trips.
type Triple struct {
	Source string
	Role   string
	Target string
}

// Graph is a decoded PENMAN graph. The triple order follows the depth-first
// order of the original serialization.
type Graph struct {
	// Top is the root variable of the graph.
	Top string

	// Triples holds every edge, :instance triples included.
	Triples []Triple

	// root retains the parse tree so the graph can be re-encoded without
	// reconstructing nesting from the triple set.
	root *node
}

// node is a parsed PENMAN node: a variable, an optional concept, and its
// ordered relations.
type node struct {
	variable  string
	concept   string
	relations []relation
}

// relation is a role paired with either a nested node or an atomic target.
type relation struct {
	role   string
	child  *node
	target string
}

// Instances returns the :instance triples of the graph in serialization
// order.
func (g *Graph) Instances() []Triple {
	var out []Triple
	for _, t := range g.Triples {
		if t.Role == InstanceRole {
			out = append(out, t)
		}
	}

	return out
}

// Edges returns every non-instance triple in serialization order.
func (g *Graph) Edges() []Triple {
	var out []Triple
	for _, t := range g.Triples {
		if t.Role != InstanceRole {
			out = append(out, t)
		}
	}

	return out
}

// Equal reports whether two graphs are isomorphic under the identity variable
// mapping: same top and the same triple multiset.
func Equal(a, b *Graph) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Top != b.Top || len(a.Triples) != len(b.Triples) {
		return false
	}

	as := sortedTriples(a.Triples)
	bs := sortedTriples(b.Triples)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}

	return true
}

func sortedTriples(triples []Triple) []Triple {
	out := make([]Triple, len(triples))
	copy(out, triples)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		return out[i].Target < out[j].Target
	})

	return out
}
