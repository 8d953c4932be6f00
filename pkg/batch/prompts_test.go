package batch

import (
	"errors"
	"strings"
	"testing"

	"github.com/agenthands/slp/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPrompts(t *testing.T) {
	in := strings.Join([]string{
		`{"prompt": "What is AI?", "max_tokens": 20}`,
		``,
		`# a comment`,
		`{"prompt": "Explain \"ML\".\nBriefly."}`,
		`not json`,
		`{"max_tokens": 5}`,
		`{"prompt": "zero", "max_tokens": 0}`,
		`   {"prompt": "indented"}   `,
	}, "\n")

	prompts, warnings, err := ReadPrompts(strings.NewReader(in), 0)
	require.NoError(t, err)

	require.Len(t, prompts, 3)
	assert.Equal(t, Prompt{Line: 1, Text: "What is AI?", MaxTokens: 20}, prompts[0])
	assert.Equal(t, Prompt{Line: 4, Text: "Explain \"ML\".\nBriefly.", MaxTokens: 50}, prompts[1])
	assert.Equal(t, Prompt{Line: 8, Text: "indented", MaxTokens: 50}, prompts[2])

	require.Len(t, warnings, 3)
	assert.Equal(t, 5, warnings[0].Line)
	assert.Equal(t, 6, warnings[1].Line)
	assert.Equal(t, "line 6: missing prompt", warnings[1].String())
	assert.Equal(t, 7, warnings[2].Line)
}

func TestReadPromptsDefaultMax(t *testing.T) {
	prompts, _, err := ReadPrompts(strings.NewReader(`{"prompt":"x"}`), 128)
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	assert.Equal(t, 128, prompts[0].MaxTokens)
}

func TestReadPromptsReaderError(t *testing.T) {
	src := testkit.NewErrorReader(strings.NewReader(`{"prompt":"a"}`+"\n"+`{"prompt":"b"}`), 15, nil)
	prompts, _, err := ReadPrompts(src, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, testkit.ErrInjectedFault))
	assert.Len(t, prompts, 1)
}
