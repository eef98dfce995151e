// Package parser turns a pkg/lexer token stream into the typed AST of
// pkg/ast, for both the ontology DSL and GQL surface grammars.
// Both grammars are small enough that a hand-written recursive-descent
// parser over a short lookahead buffer stays readable; no generator or
// combinator library is involved.
package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/lexer"
	"github.com/mewdb/mew/pkg/mewerr"
)

// parser walks a fully materialized token slice (pkg/lexer.All), skipping
// Doc tokens into a side buffer so callers can attach doc comments to the
// next declaration without every grammar rule having to special-case them.
type parser struct {
	toks []lexer.Token
	pos  int
	doc  string // pending doc comment text, consumed by next declaration
}

func newParser(src string) *parser {
	return &parser{toks: lexer.All(src)}
}

// skipDocs advances over any Doc tokens at the cursor, keeping only the text
// of the last one (the doc attaches to the next declaration).
func (p *parser) skipDocs() {
	for p.toks[p.pos].Kind == lexer.Doc {
		p.doc = p.toks[p.pos].Text
		p.pos++
	}
}

func (p *parser) takeDoc() string {
	d := p.doc
	p.doc = ""
	return d
}

func (p *parser) cur() lexer.Token {
	p.skipDocs()
	return p.toks[p.pos]
}

func (p *parser) peekAt(off int) lexer.Token {
	i := p.pos + off
	for i < len(p.toks) && p.toks[i].Kind == lexer.Doc {
		i++
	}
	if i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[i]
}

func (p *parser) advance() lexer.Token {
	t := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) atEOF() bool { return p.cur().Kind == lexer.EOF }

func (p *parser) span() ast.Span {
	t := p.cur()
	return ast.Span{Line: t.Line, Col: t.Col}
}

func (p *parser) errorf(format string, args ...any) error {
	t := p.cur()
	msg := fmt.Sprintf(format, args...)
	return mewerr.Syntax(msg, "check the statement near line "+strconv.Itoa(t.Line)).
		WithLocation(t.Line, t.Col, t.Text)
}

func (p *parser) isKeyword(kw string) bool {
	t := p.cur()
	return t.Kind == lexer.Keyword && strings.EqualFold(t.Text, kw)
}

func (p *parser) isPunct(s string) bool {
	t := p.cur()
	return t.Kind == lexer.Punct && t.Text == s
}

func (p *parser) isIdent() bool { return p.cur().Kind == lexer.Ident }

func (p *parser) eatKeyword(kw string) bool {
	if p.isKeyword(kw) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) eatPunct(s string) bool {
	if p.isPunct(s) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expectKeyword(kw string) (lexer.Token, error) {
	if !p.isKeyword(kw) {
		return lexer.Token{}, p.errorf("expected keyword %q, got %q", kw, p.cur().Text)
	}
	return p.advance(), nil
}

func (p *parser) expectPunct(s string) (lexer.Token, error) {
	if !p.isPunct(s) {
		return lexer.Token{}, p.errorf("expected %q, got %q", s, p.cur().Text)
	}
	return p.advance(), nil
}

// expectIdent accepts an Ident token, or (since keywords are case-insensitive
// reserved words that otherwise read as identifiers in many grammar
// positions, e.g. a rule or type named after a near-keyword) a Keyword token
// used where an identifier is grammatically required.
func (p *parser) expectIdent() (string, error) {
	t := p.cur()
	if t.Kind != lexer.Ident && t.Kind != lexer.Keyword {
		return "", p.errorf("expected identifier, got %q", t.Text)
	}
	p.advance()
	return t.Text, nil
}

// typeRef parses a possibly-qualified type/edge reference: a bare name,
// `edge<Name>`, `edge<any>`, `any`, or a `|`-joined union of any of those.
func (p *parser) typeRef() (string, error) {
	var parts []string
	for {
		part, err := p.typeRefAtom()
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
		if p.isPunct("|") {
			p.advance()
			continue
		}
		break
	}
	return strings.Join(parts, "|"), nil
}

func (p *parser) typeRefAtom() (string, error) {
	name, err := p.expectIdent()
	if err != nil {
		return "", err
	}
	if strings.EqualFold(name, "edge") && p.isPunct("<") {
		p.advance()
		inner, err := p.expectIdent()
		if err != nil {
			return "", err
		}
		if _, err := p.expectPunct(">"); err != nil {
			return "", err
		}
		return "edge<" + inner + ">", nil
	}
	return name, nil
}

func parseInt(tok lexer.Token) (int64, error) {
	return strconv.ParseInt(tok.Text, 10, 64)
}

func parseFloat(tok lexer.Token) (float64, error) {
	return strconv.ParseFloat(tok.Text, 64)
}

// parseTimestamp parses an `@YYYY-MM-DD[THH:MM:SS[.mmm]][Z|±hh:mm]` literal
// into a time.Time.
func parseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimPrefix(raw, "@")
	layouts := []string{
		"2006-01-02T15:04:05.000Z07:00",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	var firstErr error
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// parseDuration parses a `123.days/hours/minutes/seconds/milliseconds`
// literal into a time.Duration.
func parseDuration(raw string) (time.Duration, error) {
	idx := strings.IndexByte(raw, '.')
	if idx < 0 {
		return 0, fmt.Errorf("malformed duration literal %q", raw)
	}
	n, err := strconv.ParseInt(raw[:idx], 10, 64)
	if err != nil {
		return 0, err
	}
	unit := raw[idx+1:]
	switch unit {
	case "days":
		return time.Duration(n) * 24 * time.Hour, nil
	case "hours":
		return time.Duration(n) * time.Hour, nil
	case "minutes":
		return time.Duration(n) * time.Minute, nil
	case "seconds":
		return time.Duration(n) * time.Second, nil
	case "milliseconds":
		return time.Duration(n) * time.Millisecond, nil
	default:
		return 0, fmt.Errorf("unknown duration unit %q", unit)
	}
}
