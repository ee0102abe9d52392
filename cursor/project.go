package cursor

import (
	"fmt"

	"github.com/itchyny/gojq"
)

// Project evaluates expr over the JSON form of the value and returns a
// cursor over the result. Expressions containing Each or Where produce a list;
// all others produce the single resulting value.
func (c *Cursor) Project(expr Expr) (*Cursor, error) {
	program, err := expr.JQ()
	if err != nil {
		return nil, err
	}
	query, err := gojq.Parse(program)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProjection, err)
	}

	doc, err := c.document()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProjection, err)
	}

	results := []any{}
	iter := query.Run(doc)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return nil, fmt.Errorf("%w: %v", ErrInvalidProjection, err)
		}
		results = append(results, v)
	}

	if expr.multi() {
		return New(results), nil
	}
	if len(results) == 0 {
		return New(nil), nil
	}
	return New(results[0]), nil
}

// ProjectText parses text with ParseExpr and projects it.
func (c *Cursor) ProjectText(text string) (*Cursor, error) {
	expr, err := ParseExpr(text)
	if err != nil {
		return nil, err
	}
	return c.Project(expr)
}
