package penman

import (
	"fmt"
	"strings"
	"unicode"
)

// DecodeError describes a failure to parse PENMAN text. Offset is a byte
// position into the input.
type DecodeError struct {
	Offset int
	Msg    string
}

// Error returns the error message.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("penman: %s at offset %d", e.Msg, e.Offset)
}

// Decode parses PENMAN text into a Graph. Lines starting with '#' (metadata
// comments) are ignored.
func Decode(text string) (*Graph, error) {
	lx := newLexer(text)

	root, err := parseNode(lx)
	if err != nil {
		return nil, err
	}

	// Nothing but whitespace may follow the root node.
	if tok, ok := lx.peek(); ok {
		return nil, &DecodeError{
			Offset: tok.offset,
			Msg: fmt.Sprintf(
				"unexpected trailing token %q", tok.text,
			),
		}
	}

	g := &Graph{
		Top:  root.variable,
		root: root,
	}
	g.Triples = collectTriples(root, g.Triples)

	return g, nil
}

// collectTriples walks the parse tree depth-first, appending each node's
// :instance triple followed by its relation triples.
func collectTriples(n *node, out []Triple) []Triple {
	if n.concept != "" {
		out = append(out, Triple{
			Source: n.variable,
			Role:   InstanceRole,
			Target: n.concept,
		})
	}

	for _, rel := range n.relations {
		if rel.child != nil {
			out = append(out, Triple{
				Source: n.variable,
				Role:   rel.role,
				Target: rel.child.variable,
			})
			out = collectTriples(rel.child, out)

			continue
		}

		out = append(out, Triple{
			Source: n.variable,
			Role:   rel.role,
			Target: rel.target,
		})
	}

	return out
}

// parseNode parses '(' var [ '/' concept ] relation* ')'.
func parseNode(lx *lexer) (*node, error) {
	tok, ok := lx.next()
	if !ok {
		return nil, &DecodeError{Offset: lx.pos, Msg: "unexpected end of input"}
	}
	if tok.kind != tokLParen {
		return nil, &DecodeError{
			Offset: tok.offset,
			Msg:    fmt.Sprintf("expected '(', got %q", tok.text),
		}
	}

	varTok, ok := lx.next()
	if !ok || varTok.kind != tokAtom {
		return nil, &DecodeError{
			Offset: lx.pos,
			Msg:    "expected variable after '('",
		}
	}

	n := &node{variable: varTok.text}

	// Optional concept.
	if tok, ok := lx.peek(); ok && tok.kind == tokSlash {
		lx.next()

		conceptTok, ok := lx.next()
		if !ok || (conceptTok.kind != tokAtom && conceptTok.kind != tokString) {
			return nil, &DecodeError{
				Offset: lx.pos,
				Msg:    "expected concept after '/'",
			}
		}
		n.concept = conceptTok.text
	}

	// Relations until the closing paren.
	for {
		tok, ok := lx.peek()
		if !ok {
			return nil, &DecodeError{
				Offset: lx.pos,
				Msg:    "unexpected end of input, expected ')'",
			}
		}

		if tok.kind == tokRParen {
			lx.next()
			return n, nil
		}

		if tok.kind != tokRole {
			return nil, &DecodeError{
				Offset: tok.offset,
				Msg: fmt.Sprintf(
					"expected role or ')', got %q", tok.text,
				),
			}
		}
		lx.next()

		rel := relation{role: tok.text}

		targetTok, ok := lx.peek()
		if !ok {
			return nil, &DecodeError{
				Offset: lx.pos,
				Msg: fmt.Sprintf(
					"role %s has no target", rel.role,
				),
			}
		}

		switch targetTok.kind {
		case tokLParen:
			child, err := parseNode(lx)
			if err != nil {
				return nil, err
			}
			rel.child = child

		case tokAtom, tokString:
			lx.next()
			rel.target = targetTok.text

		default:
			return nil, &DecodeError{
				Offset: targetTok.offset,
				Msg: fmt.Sprintf(
					"invalid target %q for role %s",
					targetTok.text, rel.role,
				),
			}
		}

		n.relations = append(n.relations, rel)
	}
}

type tokenKind int

const (
	tokLParen tokenKind = iota
	tokRParen
	tokSlash
	tokRole
	tokAtom
	tokString
)

type token struct {
	kind   tokenKind
	text   string
	offset int
}

// lexer produces PENMAN tokens with one-token lookahead.
type lexer struct {
	input  string
	pos    int
	peeked *token
}

func newLexer(input string) *lexer {
	return &lexer{input: input}
}

func (l *lexer) peek() (token, bool) {
	if l.peeked == nil {
		tok, ok := l.lex()
		if !ok {
			return token{}, false
		}
		l.peeked = &tok
	}

	return *l.peeked, true
}

func (l *lexer) next() (token, bool) {
	if l.peeked != nil {
		tok := *l.peeked
		l.peeked = nil
		return tok, true
	}

	return l.lex()
}

func (l *lexer) lex() (token, bool) {
	l.skipSpaceAndComments()
	if l.pos >= len(l.input) {
		return token{}, false
	}

	start := l.pos
	switch c := l.input[l.pos]; c {
	case '(':
		l.pos++
		return token{kind: tokLParen, text: "(", offset: start}, true

	case ')':
		l.pos++
		return token{kind: tokRParen, text: ")", offset: start}, true

	case '/':
		l.pos++
		return token{kind: tokSlash, text: "/", offset: start}, true

	case '"':
		return l.lexString()
	}

	// Role or atom: read until a delimiter. Alignment markers (~...) are
	// stripped from the token.
	end := l.pos
	for end < len(l.input) && !isDelimiter(rune(l.input[end])) {
		end++
	}
	text := l.input[l.pos:end]
	l.pos = end

	if idx := strings.IndexByte(text, '~'); idx >= 0 {
		text = text[:idx]
	}

	kind := tokAtom
	if strings.HasPrefix(text, ":") {
		kind = tokRole
	}

	return token{kind: kind, text: text, offset: start}, true
}

// lexString reads a double-quoted string constant, quotes retained.
func (l *lexer) lexString() (token, bool) {
	start := l.pos
	end := l.pos + 1
	for end < len(l.input) {
		if l.input[end] == '\\' && end+1 < len(l.input) {
			end += 2
			continue
		}
		if l.input[end] == '"' {
			end++
			break
		}
		end++
	}

	text := l.input[start:end]
	l.pos = end

	return token{kind: tokString, text: text, offset: start}, true
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if unicode.IsSpace(rune(c)) {
			l.pos++
			continue
		}
		if c == '#' {
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}
			continue
		}

		break
	}
}

func isDelimiter(r rune) bool {
	return unicode.IsSpace(r) || r == '(' || r == ')' || r == '/' ||
		r == '"'
}
