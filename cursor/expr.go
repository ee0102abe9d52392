package cursor

import (
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Op is a comparison operator used by Where.
type Op int

const (
	Eq Op = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

var opText = map[Op]string{Eq: "==", Ne: "!=", Lt: "<", Le: "<=", Gt: ">", Ge: ">="}

func (o Op) String() string {
	if s, ok := opText[o]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Step is one element of a path expression.
type Step interface {
	jq() (string, error)
	fansOut() bool
}

type fieldStep struct{ name string }

type atStep struct{ pos int }

type eachStep struct{}

type whereStep struct {
	path    []string
	op      Op
	literal any
}

// Field selects a key of a mapping.
func Field(name string) Step { return fieldStep{name: name} }

// At selects a list position. Negative positions count from the end.
func At(pos int) Step { return atStep{pos: pos} }

// Each fans out over the elements of a list or the values of a mapping.
func Each() Step { return eachStep{} }

// Where fans out over the elements of a list and keeps those whose value at
// the dotted path compares to literal with op. An empty path compares the
// element itself.
func Where(path string, op Op, literal any) Step {
	var parts []string
	if path != "" {
		parts = strings.Split(path, ".")
	}
	return whereStep{path: parts, op: op, literal: literal}
}

func (s fieldStep) jq() (string, error) { return "." + index(s.name), nil }
func (s fieldStep) fansOut() bool       { return false }

func (s atStep) jq() (string, error) { return ".[" + strconv.Itoa(s.pos) + "]", nil }
func (s atStep) fansOut() bool       { return false }

func (eachStep) jq() (string, error) { return ".[]", nil }
func (eachStep) fansOut() bool       { return true }

func (s whereStep) jq() (string, error) {
	if _, ok := opText[s.op]; !ok {
		return "", fmt.Errorf("%w: unknown operator %d", ErrInvalidProjection, int(s.op))
	}
	lit, err := json.Marshal(s.literal)
	if err != nil {
		return "", fmt.Errorf("%w: literal: %v", ErrInvalidProjection, err)
	}
	path := "."
	if len(s.path) > 0 {
		var b strings.Builder
		b.WriteByte('.')
		for _, p := range s.path {
			if p == "" {
				return "", fmt.Errorf("%w: empty path segment", ErrInvalidProjection)
			}
			b.WriteString(index(p))
		}
		path = b.String()
	}
	return fmt.Sprintf(".[] | select(%s %s %s)", path, s.op, lit), nil
}
func (whereStep) fansOut() bool { return true }

func index(name string) string {
	q, _ := json.Marshal(name)
	return "[" + string(q) + "]"
}

// Expr is a restricted path expression.
type Expr []Step

// Path builds an expression from steps.
func Path(steps ...Step) Expr { return Expr(steps) }

// JQ returns the jq program the expression compiles to.
func (e Expr) JQ() (string, error) {
	if len(e) == 0 {
		return ".", nil
	}
	parts := make([]string, len(e))
	for i, s := range e {
		if s == nil {
			return "", fmt.Errorf("%w: nil step", ErrInvalidProjection)
		}
		p, err := s.jq()
		if err != nil {
			return "", err
		}
		parts[i] = p
	}
	return strings.Join(parts, " | "), nil
}

// multi reports whether the expression can yield more than one value.
func (e Expr) multi() bool {
	for _, s := range e {
		if s != nil && s.fansOut() {
			return true
		}
	}
	return false
}

// ParseExpr parses the textual form of an expression:
//
//	payload.title        fields
//	[0] [-1]             positions
//	[*]                  every element
//	[?distance<=2]       filter; operators == != < <= > >=
//	[?payload.tag=='a']  literals: numbers, quoted strings, true, false, null
//
// Steps may be chained, e.g. "[?distance<2].payload.title".
func ParseExpr(text string) (Expr, error) {
	p := &parser{src: text}
	expr, err := p.parse()
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidProjection, text, err)
	}
	return expr, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) parse() (Expr, error) {
	var expr Expr
	for p.pos < len(p.src) {
		switch c := p.src[p.pos]; {
		case c == '.':
			p.pos++
			name, err := p.ident()
			if err != nil {
				return nil, err
			}
			expr = append(expr, Field(name))
		case c == '[':
			step, err := p.bracket()
			if err != nil {
				return nil, err
			}
			expr = append(expr, step)
		case len(expr) == 0 && isIdentStart(c):
			name, _ := p.ident()
			expr = append(expr, Field(name))
		default:
			return nil, fmt.Errorf("unexpected %q at offset %d", c, p.pos)
		}
	}
	return expr, nil
}

func (p *parser) ident() (string, error) {
	start := p.pos
	if p.pos >= len(p.src) || !isIdentStart(p.src[p.pos]) {
		return "", fmt.Errorf("expected field name at offset %d", p.pos)
	}
	for p.pos < len(p.src) && isIdentPart(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos], nil
}

func (p *parser) bracket() (Step, error) {
	end := closingBracket(p.src[p.pos:])
	if end < 0 {
		return nil, fmt.Errorf("unterminated '[' at offset %d", p.pos)
	}
	body := p.src[p.pos+1 : p.pos+end]
	p.pos += end + 1

	switch {
	case body == "*":
		return Each(), nil
	case strings.HasPrefix(body, "?"):
		return parseFilter(body[1:])
	default:
		n, err := strconv.Atoi(body)
		if err != nil {
			return nil, fmt.Errorf("invalid position %q", body)
		}
		return At(n), nil
	}
}

// closingBracket returns the offset of the ']' closing s[0], skipping
// brackets inside quoted literals, or -1.
func closingBracket(s string) int {
	var quote byte
	for i := 1; i < len(s); i++ {
		switch c := s[i]; {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ']':
			return i
		}
	}
	return -1
}

var opsByLength = []struct {
	text string
	op   Op
}{
	{"==", Eq}, {"!=", Ne}, {"<=", Le}, {">=", Ge}, {"<", Lt}, {">", Gt},
}

func parseFilter(body string) (Step, error) {
	for i := 0; i < len(body); i++ {
		for _, o := range opsByLength {
			if !strings.HasPrefix(body[i:], o.text) {
				continue
			}
			path := strings.TrimSpace(body[:i])
			for _, seg := range strings.Split(path, ".") {
				if path != "" && !isIdent(seg) {
					return nil, fmt.Errorf("invalid filter path %q", path)
				}
			}
			lit, err := parseLiteral(strings.TrimSpace(body[i+len(o.text):]))
			if err != nil {
				return nil, err
			}
			return Where(path, o.op, lit), nil
		}
	}
	return nil, fmt.Errorf("filter %q has no operator", body)
}

func parseLiteral(s string) (any, error) {
	switch {
	case s == "":
		return nil, fmt.Errorf("missing literal")
	case s == "true":
		return true, nil
	case s == "false":
		return false, nil
	case s == "null":
		return nil, nil
	case len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0]:
		return s[1 : len(s)-1], nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid literal %q", s)
	}
	return f, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || ('0' <= c && c <= '9')
}

func isIdent(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentPart(s[i]) {
			return false
		}
	}
	return true
}
