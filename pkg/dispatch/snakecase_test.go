package dispatch

import "testing"

// TestToSnakeCase covers the identifier conversion, including the
// letter-by-letter split of capital runs.
func TestToSnakeCase(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"a", "a"},
		{"A", "a"},
		{"rounding_mode", "rounding_mode"},
		{"RoundingMode", "rounding_mode"},
		{"camelCase", "camel_case"},
		{"ABC", "a_b_c"},
		{"promptList", "prompt_list"},
	}
	for _, tc := range cases {
		if got := toSnakeCase(tc.in); got != tc.want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// TestRewriteArgumentKeys_PascalKeys verifies that PascalCase keys in a flat
// object are rewritten while values keep their casing.
func TestRewriteArgumentKeys_PascalKeys(t *testing.T) {
	in := `{"RoundingMode": "NearestInteger", "BaseValue": 2.5}`
	want := `{"rounding_mode": "NearestInteger", "base_value": 2.5}`
	if got := rewriteArgumentKeys(in); got != want {
		t.Errorf("rewriteArgumentKeys(%q)\n got %q\nwant %q", in, got, want)
	}
}

// TestRewriteArgumentKeys_AlreadySnake verifies that conforming payloads
// pass through unchanged.
func TestRewriteArgumentKeys_AlreadySnake(t *testing.T) {
	in := `{"a": 1, "b": 2}`
	if got := rewriteArgumentKeys(in); got != in {
		t.Errorf("rewriteArgumentKeys(%q) = %q, want unchanged", in, got)
	}
}

// TestRewriteArgumentKeys_NoColon verifies that text without a key:value
// shape is left alone.
func TestRewriteArgumentKeys_NoColon(t *testing.T) {
	in := `just some text, with a comma`
	if got := rewriteArgumentKeys(in); got != in {
		t.Errorf("rewriteArgumentKeys(%q) = %q, want unchanged", in, got)
	}
}

// TestRewriteArgumentKeys_NestedNotSupported pins down the documented
// limitation: keys inside nested objects sit in value position and are not
// rewritten.
func TestRewriteArgumentKeys_NestedNotSupported(t *testing.T) {
	in := `{"Outer": {"InnerKey": 1}}`
	want := `{"outer": {"InnerKey": 1}}`
	if got := rewriteArgumentKeys(in); got != want {
		t.Errorf("rewriteArgumentKeys(%q) = %q, want %q", in, got, want)
	}
}
