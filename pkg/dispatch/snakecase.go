package dispatch

import (
	"strings"
	"unicode"
)

// toSnakeCase converts a camelCase or PascalCase identifier to snake_case.
// Every uppercase rune after the first position gets an underscore, so runs
// of capitals split letter by letter ("ABC" becomes "a_b_c").
func toSnakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// rewriteArgumentKeys rewrites the keys of a flat JSON object to snake_case
// by splitting the raw text on commas and rewriting the quoted key of each
// key:value token. It recovers the common model failure of echoing schema
// keys in PascalCase.
//
// The rewrite is knowingly naive: nested objects, arrays, and string values
// containing commas or colons will not survive it. Callers treat it as a
// one-shot retry before giving up, never as JSON repair.
func rewriteArgumentKeys(raw string) string {
	parts := strings.Split(raw, ",")
	for i, part := range parts {
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		parts[i] = rewriteKeyToken(key) + ":" + value
	}
	return strings.Join(parts, ",")
}

// rewriteKeyToken snake_cases the quoted identifier inside one key segment,
// leaving the surrounding braces, quotes, and whitespace alone.
func rewriteKeyToken(key string) string {
	start := strings.Index(key, `"`)
	end := strings.LastIndex(key, `"`)
	if start < 0 || end <= start {
		return key
	}
	return key[:start+1] + toSnakeCase(key[start+1:end]) + key[end:]
}
