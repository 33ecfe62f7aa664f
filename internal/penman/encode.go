package penman

import (
	"fmt"
	"strings"
)

// Encode serializes the graph back to PENMAN text on a single line with
// normalized spacing. Decoding the result yields a graph Equal to the
// original, and re-encoding is idempotent.
func Encode(g *Graph) (string, error) {
	if g == nil || g.root == nil {
		return "", fmt.Errorf("penman: cannot encode graph without a " +
			"parse tree")
	}

	var sb strings.Builder
	encodeNode(&sb, g.root)

	return sb.String(), nil
}

func encodeNode(sb *strings.Builder, n *node) {
	sb.WriteByte('(')
	sb.WriteString(n.variable)

	if n.concept != "" {
		sb.WriteString(" / ")
		sb.WriteString(n.concept)
	}

	for _, rel := range n.relations {
		sb.WriteByte(' ')
		sb.WriteString(rel.role)
		sb.WriteByte(' ')

		if rel.child != nil {
			encodeNode(sb, rel.child)
			continue
		}

		sb.WriteString(rel.target)
	}

	sb.WriteByte(')')
}
