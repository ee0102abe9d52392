// Package cursor provides lazy navigation over query results.
//
// A Cursor wraps one of three closed shapes:
//
//   - Scalar: a single value (string, number, bool, nil)
//   - List: an ordered sequence, typically []Match from a vector search
//   - Mapping: keyed values, such as map[uint64]Match or a single Match
//
// Navigation returns new cursors and never mutates the receiver:
//
//	top := results.Index(0)           // first match
//	key, _ := top.Key("key")          // its key
//	tail, _ := results.Slice(1, 3)    // second and third match
//	for c := range results.All() { ... }
//
// # Projection
//
// Project evaluates a restricted path expression over the JSON form of the
// value. Expressions are built from typed steps or parsed from text:
//
//	cursor.Path(cursor.Each(), cursor.Field("payload"), cursor.Field("title"))
//	cursor.ParseExpr("[?distance<=2].key")
//
// Expressions compile to jq programs executed by gojq. Expressions that fan out
// (Each, Where) produce a list; all others produce a single value.
package cursor
