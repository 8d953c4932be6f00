package manifest

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/agenthands/slp/pkg/core"
	"github.com/agenthands/slp/pkg/digest"
)

func TestSerializeLayout(t *testing.T) {
	key := digest.Hex([]byte("model bytes"))
	m := Build(key, 11, "2026-10-18T09:00:00Z", "tinyllama-q4")

	want := "{\n" +
		`  "sha256": "` + string(key) + "\",\n" +
		`  "size_bytes": 11,` + "\n" +
		`  "created_at": "2026-10-18T09:00:00Z",` + "\n" +
		`  "original_name": "tinyllama-q4"` + "\n" +
		"}"

	if got := string(m.Serialize()); got != want {
		t.Errorf("unexpected manifest:\n%s\nwant:\n%s", got, want)
	}
}

func TestSerializeIsValidJSON(t *testing.T) {
	m := Build(digest.Hex(nil), 1<<40, "", "weird \"name\"\\ with\ttabs\nand\x01ctl → ünïcode")

	var decoded map[string]any
	if err := json.Unmarshal(m.Serialize(), &decoded); err != nil {
		t.Fatalf("manifest is not valid JSON: %v\n%s", err, m.Serialize())
	}

	if decoded["original_name"] != m.OriginalName {
		t.Errorf("name did not survive: %q", decoded["original_name"])
	}
	if decoded["size_bytes"].(float64) != float64(1<<40) {
		t.Errorf("unexpected size %v", decoded["size_bytes"])
	}

	keys := []string{`"sha256"`, `"size_bytes"`, `"created_at"`, `"original_name"`}
	s := string(m.Serialize())
	last := -1
	for _, k := range keys {
		i := strings.Index(s, k)
		if i <= last {
			t.Fatalf("key %s out of order", k)
		}
		last = i
	}
}

func TestEscapeString(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{`a"b`, `a\"b`},
		{`a\b`, `a\\b`},
		{"\b\f\n\r\t", `\b\f\n\r\t`},
		{"\x00\x1f", `\u0000\u001f`},
		{"\x7f", "\x7f"},
		{"ünï", "ünï"},
		{"\xff\xfe", "\xff\xfe"},
		{`already \n escaped`, `already \\n escaped`},
		{"", ""},
	}

	for _, tc := range cases {
		if got := EscapeString(tc.in); got != tc.want {
			t.Errorf("EscapeString(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidate(t *testing.T) {
	good := Build(digest.Hex([]byte("x")), 1, Now(), "x")
	if err := good.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}

	bad := []Manifest{
		Build("", 1, "", ""),
		Build("ABC", 1, "", ""),
		Build(digest.Hex(nil), 0, "", strings.Repeat("n", MaxNameLen+1)),
	}
	for i, m := range bad {
		if err := m.Validate(); !errors.Is(err, core.ErrInvalidInput) {
			t.Errorf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
}

func TestCodecRoundtrip(t *testing.T) {
	c := NewCodec()
	m := Build(digest.Hex([]byte("y")), 42, Now(), "prompts.jsonl")

	b1, err := c.Encode(m)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	b2, _ := c.Encode(m)
	if string(b1) != string(b2) {
		t.Error("canonical encoding should be deterministic")
	}

	got, err := c.Decode(b1)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got != m {
		t.Errorf("roundtrip mismatch: %+v != %+v", got, m)
	}

	if _, err := c.Decode([]byte{0xff, 0x00}); !errors.Is(err, core.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for garbage, got %v", err)
	}
	if _, err := c.Encode(Build("bad", 0, "", "")); !errors.Is(err, core.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for bad digest, got %v", err)
	}
}

func TestNowFormat(t *testing.T) {
	s := Now()
	if !strings.HasSuffix(s, "Z") || len(s) != len("2006-01-02T15:04:05Z") {
		t.Errorf("unexpected timestamp %q", s)
	}
}
