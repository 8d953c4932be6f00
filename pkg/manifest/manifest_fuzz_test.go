package manifest

import (
	"encoding/json"
	"testing"
	"unicode/utf8"
)

func FuzzEscapeString(f *testing.F) {
	f.Add("hello")
	f.Add("quote \" backslash \\ newline \n")
	f.Add("\x00\x01\x1f\x7f")
	f.Add("ünïcödé")

	f.Fuzz(func(t *testing.T, s string) {
		out := EscapeString(s)
		if !utf8.ValidString(s) {
			return
		}

		var back string
		if err := json.Unmarshal([]byte(`"`+out+`"`), &back); err != nil {
			t.Fatalf("escaped %q is not a JSON string: %v", s, err)
		}
		if back != s {
			t.Fatalf("roundtrip mismatch: %q != %q", back, s)
		}
	})
}
