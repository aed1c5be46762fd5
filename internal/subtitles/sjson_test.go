package subtitles

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSRT = `1
00:00:00,000 --> 00:00:01,500
Hello, world.

2
00:00:01,500 --> 00:01:02,250
This cue spans
two lines.

3
01:00:00,010 --> 01:00:03,000
Last one.
`

func TestParseSRT(t *testing.T) {
	cues, err := ParseSRT([]byte(sampleSRT))
	require.NoError(t, err)
	require.Len(t, cues, 3)

	assert.Equal(t, Cue{Start: 0, End: 1500, Text: "Hello, world."}, cues[0])
	assert.Equal(t, Cue{Start: 1500, End: 62250, Text: "This cue spans two lines."}, cues[1])
	assert.Equal(t, int64(3600010), cues[2].Start)
}

func TestParseSRT_CRLFAndMissingIndex(t *testing.T) {
	data := "\ufeff00:00:01.000 --> 00:00:02.000 X1:10\r\nno index\r\n\r\ngarbage block\r\n\r\n3\r\n00:00:03,000 --> 00:00:04,000\r\nthird\r\n"

	cues, err := ParseSRT([]byte(data))
	require.NoError(t, err)
	require.Len(t, cues, 2)
	assert.Equal(t, Cue{Start: 1000, End: 2000, Text: "no index"}, cues[0])
	assert.Equal(t, "third", cues[1].Text)
}

func TestParseSRT_NoCues(t *testing.T) {
	for _, data := range []string{"", "   \n", `{"error": "not found"}`} {
		_, err := ParseSRT([]byte(data))
		assert.ErrorIs(t, err, ErrNoCues, data)
	}
}

func TestConvertSRT(t *testing.T) {
	data, err := ConvertSRT([]byte(sampleSRT))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, []any{0.0, 1500.0, 3600010.0}, got["start"])
	assert.Equal(t, []any{1500.0, 62250.0, 3603000.0}, got["end"])
	assert.Equal(t, []any{"Hello, world.", "This cue spans two lines.", "Last one."}, got["text"])
}
