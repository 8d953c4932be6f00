package batch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/agenthands/slp/pkg/core"
)

const maxLineLen = 4 << 20

// Prompt is one request parsed from a JSONL prompts file.
type Prompt struct {
	Line      int
	Text      string
	MaxTokens int
}

// Warning describes an input line that was skipped.
type Warning struct {
	Line int
	Msg  string
}

func (w Warning) String() string { return fmt.Sprintf("line %d: %s", w.Line, w.Msg) }

type promptLine struct {
	Prompt    string `json:"prompt"`
	MaxTokens *int   `json:"max_tokens"`
}

// ReadPrompts parses one JSON object per line. Blank lines and lines starting
// with '#' are ignored. Lines that do not carry a non-empty prompt are skipped
// and reported as warnings. A missing max_tokens becomes defaultMax.
func ReadPrompts(r io.Reader, defaultMax int) ([]Prompt, []Warning, error) {
	if defaultMax <= 0 {
		defaultMax = core.DefaultMaxTokens
	}

	var (
		prompts  []Prompt
		warnings []Warning
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineLen)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}

		var pl promptLine
		if err := json.Unmarshal([]byte(line), &pl); err != nil {
			warnings = append(warnings, Warning{Line: n, Msg: "could not parse prompt: " + err.Error()})
			continue
		}
		if pl.Prompt == "" {
			warnings = append(warnings, Warning{Line: n, Msg: "missing prompt"})
			continue
		}
		p := Prompt{Line: n, Text: pl.Prompt, MaxTokens: defaultMax}
		if pl.MaxTokens != nil {
			if *pl.MaxTokens <= 0 {
				warnings = append(warnings, Warning{Line: n, Msg: fmt.Sprintf("max_tokens %d is not positive", *pl.MaxTokens)})
				continue
			}
			p.MaxTokens = *pl.MaxTokens
		}
		prompts = append(prompts, p)
	}
	if err := sc.Err(); err != nil {
		return prompts, warnings, fmt.Errorf("reading prompts: %w", err)
	}
	return prompts, warnings, nil
}
