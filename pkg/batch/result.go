package batch

import (
	"strconv"
	"strings"
	"time"

	"github.com/agenthands/slp/pkg/manifest"
)

// Result is the outcome of one prompt.
type Result struct {
	Timestamp time.Time
	Prompt    string
	MaxTokens int
	Success   bool
	Elapsed   time.Duration
	Response  string
	Error     string
}

// MarshalLine renders r as a single JSONL record without the trailing newline.
// Key order is fixed: timestamp, prompt, max_tokens, success, elapsed_ms and
// then response or error.
func (r Result) MarshalLine() []byte {
	var b strings.Builder
	b.WriteString(`{"timestamp":"`)
	b.WriteString(r.Timestamp.UTC().Format(time.RFC3339))
	b.WriteString(`","prompt":"`)
	b.WriteString(manifest.EscapeString(r.Prompt))
	b.WriteString(`","max_tokens":`)
	b.WriteString(strconv.Itoa(r.MaxTokens))
	b.WriteString(`,"success":`)
	b.WriteString(strconv.FormatBool(r.Success))
	b.WriteString(`,"elapsed_ms":`)
	b.WriteString(strconv.FormatFloat(float64(r.Elapsed.Microseconds())/1000, 'f', 2, 64))
	if r.Success {
		b.WriteString(`,"response":"`)
		b.WriteString(manifest.EscapeString(r.Response))
	} else {
		b.WriteString(`,"error":"`)
		b.WriteString(manifest.EscapeString(r.Error))
	}
	b.WriteString(`"}`)
	return []byte(b.String())
}
