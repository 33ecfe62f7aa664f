package penman

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDecodeSimple(t *testing.T) {
	g, err := Decode("(b / buy-01 :ARG0 (p / person))")
	require.NoError(t, err)

	require.Equal(t, "b", g.Top)
	require.Equal(t, []Triple{
		{Source: "b", Role: ":instance", Target: "buy-01"},
		{Source: "b", Role: ":ARG0", Target: "p"},
		{Source: "p", Role: ":instance", Target: "person"},
	}, g.Triples)
}

func TestDecodeMultiline(t *testing.T) {
	text := `(w / want-01
    :ARG0 (b / boy)
    :ARG1 (g / go-02
        :ARG0 b))`

	g, err := Decode(text)
	require.NoError(t, err)

	require.Equal(t, "w", g.Top)
	require.Len(t, g.Triples, 6)

	// The reentrant reference to b stays an atomic target.
	require.Equal(t, Triple{Source: "g", Role: ":ARG0", Target: "b"},
		g.Triples[5])
}

func TestDecodeAtomTargets(t *testing.T) {
	g, err := Decode(`(d / date-entity :year 2024 :name "Ankara" :polarity -)`)
	require.NoError(t, err)

	require.Equal(t, []Triple{
		{Source: "d", Role: ":instance", Target: "date-entity"},
		{Source: "d", Role: ":year", Target: "2024"},
		{Source: "d", Role: ":name", Target: `"Ankara"`},
		{Source: "d", Role: ":polarity", Target: "-"},
	}, g.Triples)
}

func TestDecodeComments(t *testing.T) {
	text := `# ::id s1
# ::snt Adam kitap aldı.
(a / al-01 :ARG0 (x / adam))`

	g, err := Decode(text)
	require.NoError(t, err)
	require.Equal(t, "a", g.Top)
	require.Len(t, g.Triples, 3)
}

func TestDecodeAlignmentsStripped(t *testing.T) {
	g, err := Decode("(b / buy-01~e.1 :ARG0 (p / person~e.0))")
	require.NoError(t, err)

	require.Equal(t, "buy-01", g.Triples[0].Target)
	require.Equal(t, "person", g.Triples[2].Target)
}

func TestDecodeErrors(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "bare atom", input: "buy-01"},
		{name: "unclosed", input: "(b / buy-01"},
		{name: "trailing", input: "(b / buy-01) extra"},
		{name: "role without target", input: "(b / buy-01 :ARG0)"},
		{name: "missing concept", input: "(b / )"},
		{name: "double node", input: "(a / a-01)(b / b-01)"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.input)
			require.Error(t, err)

			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
		})
	}
}

func TestDecodeDuplicateInstances(t *testing.T) {
	// A re-used variable with a second concept parses fine; the validator
	// is responsible for flagging the conflict.
	g, err := Decode("(b / boy :ARG0 (b / bark-01) :ARG1 x)")
	require.NoError(t, err)

	instances := g.Instances()
	require.Len(t, instances, 2)
	require.Equal(t, "boy", instances[0].Target)
	require.Equal(t, "bark-01", instances[1].Target)
}

func TestEncodeRoundTrip(t *testing.T) {
	inputs := []string{
		"(b / buy-01 :ARG0 (p / person))",
		`(w / want-01 :ARG0 (b / boy) :ARG1 (g / go-02 :ARG0 b))`,
		`(d / date-entity :year 2024 :name "Ankara")`,
	}

	for _, input := range inputs {
		g, err := Decode(input)
		require.NoError(t, err)

		encoded, err := Encode(g)
		require.NoError(t, err)

		g2, err := Decode(encoded)
		require.NoError(t, err)
		require.True(t, Equal(g, g2), "round trip changed the graph: "+
			"%q -> %q", input, encoded)

		// Encoding is idempotent.
		encoded2, err := Encode(g2)
		require.NoError(t, err)
		require.Equal(t, encoded, encoded2)
	}
}

func TestEncodeNormalizesWhitespace(t *testing.T) {
	g, err := Decode("(b /  buy-01\n    :ARG0   (p / person))")
	require.NoError(t, err)

	encoded, err := Encode(g)
	require.NoError(t, err)
	require.Equal(t, "(b / buy-01 :ARG0 (p / person))", encoded)
}

func TestEqual(t *testing.T) {
	a, err := Decode("(b / buy-01 :ARG0 (p / person))")
	require.NoError(t, err)

	b, err := Decode("(b / buy-01 :ARG0 (p / person))")
	require.NoError(t, err)
	require.True(t, Equal(a, b))

	c, err := Decode("(b / buy-01 :ARG1 (p / person))")
	require.NoError(t, err)
	require.False(t, Equal(a, c))
}

// TestEncodeDecodeProperty generates random trees and checks that
// encode(decode(encode)) is stable and preserves the triple set.
func TestEncodeDecodeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := genTree(t, 0, "n")

		g, err := Decode(text)
		if err != nil {
			t.Fatalf("generated tree failed to parse: %v\n%s",
				err, text)
		}

		encoded, err := Encode(g)
		if err != nil {
			t.Fatal(err)
		}

		g2, err := Decode(encoded)
		if err != nil {
			t.Fatalf("canonical form failed to parse: %v\n%s",
				err, encoded)
		}
		if !Equal(g, g2) {
			t.Fatalf("canonical form is not isomorphic:\n%s\n%s",
				text, encoded)
		}

		encoded2, err := Encode(g2)
		if err != nil {
			t.Fatal(err)
		}
		if encoded != encoded2 {
			t.Fatalf("encoding is not idempotent:\n%s\n%s",
				encoded, encoded2)
		}
	})
}

// genTree emits a random PENMAN node with unique variable names derived from
// the prefix.
func genTree(t *rapid.T, depth int, prefix string) string {
	concept := rapid.StringMatching(`[a-z][a-z]{1,6}(-[0-9]{2})?`).
		Draw(t, "concept")

	out := "(" + prefix + " / " + concept

	if depth < 3 {
		numRels := rapid.IntRange(0, 3).Draw(t, "numRels")
		for i := 0; i < numRels; i++ {
			role := rapid.SampledFrom([]string{
				":ARG0", ":ARG1", ":ARG2", ":mod", ":time",
			}).Draw(t, "role")

			out += " " + role + " " + genTree(
				t, depth+1, prefix+string(rune('a'+i)),
			)
		}
	}

	return out + ")"
}
