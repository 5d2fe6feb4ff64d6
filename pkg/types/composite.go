package types

// Helpers for Postgres composite-type literals: `(f1,"f 2",NULL)`.
// Fields are always written quoted so commas and parens inside values
// cannot break the literal; NULL is written bare.

import (
	"errors"
	"fmt"
	"strings"
)

var errCompositeFieldCount = errors.New("composite: unexpected field count")

func quoteCompositeString(value string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range value {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

func quoteCompositeNullable(value *string) string {
	if value == nil {
		return "NULL"
	}
	return quoteCompositeString(*value)
}

func isCompositeNull(value string) bool {
	return strings.EqualFold(value, "NULL")
}

func newCompositeNullable(value string) *string {
	if isCompositeNull(value) {
		return nil
	}
	out := value
	return &out
}

// parseComposite splits a composite literal into its fields, honoring
// quoting and backslash escapes. expected <= 0 skips the count check.
func parseComposite(raw string, expected int) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 2 || raw[0] != '(' || raw[len(raw)-1] != ')' {
		return nil, fmt.Errorf("composite: invalid literal %q", raw)
	}
	body := raw[1 : len(raw)-1]

	var (
		fields   []string
		field    strings.Builder
		quoted   bool
		escaping bool
	)
	for i := 0; i < len(body); i++ {
		ch := body[i]
		switch {
		case escaping:
			field.WriteByte(ch)
			escaping = false
		case ch == '\\':
			escaping = true
		case ch == '"':
			quoted = !quoted
		case ch == ',' && !quoted:
			fields = append(fields, field.String())
			field.Reset()
		default:
			field.WriteByte(ch)
		}
	}
	fields = append(fields, field.String())

	if expected > 0 && len(fields) != expected {
		return nil, fmt.Errorf("%w: got %d expected %d", errCompositeFieldCount, len(fields), expected)
	}
	return fields, nil
}
