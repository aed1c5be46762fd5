// Package subtitles converts vendor SRT captions into the SJSON format the
// video player loads.
package subtitles

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoCues is returned when caption data holds no parseable cue.
var ErrNoCues = errors.New("no subtitle cues found")

// Cue is one caption, with times in milliseconds.
type Cue struct {
	Start int64
	End   int64
	Text  string
}

// SJSON holds cues as three parallel arrays.
type SJSON struct {
	Start []int64  `json:"start"`
	End   []int64  `json:"end"`
	Text  []string `json:"text"`
}

// ParseSRT reads SRT caption data. Malformed blocks are skipped; multi-line
// cue text is joined with spaces.
func ParseSRT(data []byte) ([]Cue, error) {
	content := strings.TrimSpace(strings.ReplaceAll(string(data), "\r\n", "\n"))
	content = strings.TrimPrefix(content, "\ufeff")
	if content == "" {
		return nil, ErrNoCues
	}

	var cues []Cue
	for _, block := range strings.Split(content, "\n\n") {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 2 {
			continue
		}
		// The index line is optional in the wild.
		if !strings.Contains(lines[0], "-->") {
			lines = lines[1:]
		}
		parts := strings.Split(lines[0], "-->")
		if len(parts) != 2 {
			continue
		}
		start, err := parseTimestamp(parts[0])
		if err != nil {
			continue
		}
		end, err := parseTimestamp(parts[1])
		if err != nil {
			continue
		}
		cues = append(cues, Cue{
			Start: start,
			End:   end,
			Text:  strings.Join(lines[1:], " "),
		})
	}
	if len(cues) == 0 {
		return nil, ErrNoCues
	}
	return cues, nil
}

// parseTimestamp converts "HH:MM:SS,mmm" to milliseconds.
func parseTimestamp(value string) (int64, error) {
	value = strings.TrimSpace(value)
	// Position hints may follow the end time.
	if i := strings.IndexByte(value, ' '); i >= 0 {
		value = value[:i]
	}
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.ParseInt(hms[0], 10, 64)
	minutes, errM := strconv.ParseInt(hms[1], 10, 64)
	seconds, errS := strconv.ParseInt(hms[2], 10, 64)
	millis, errMS := strconv.ParseInt(timeParts[1], 10, 64)
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	return ((hours*60+minutes)*60+seconds)*1000 + millis, nil
}

// ToSJSON lays cues out as SJSON.
func ToSJSON(cues []Cue) SJSON {
	out := SJSON{
		Start: make([]int64, 0, len(cues)),
		End:   make([]int64, 0, len(cues)),
		Text:  make([]string, 0, len(cues)),
	}
	for _, c := range cues {
		out.Start = append(out.Start, c.Start)
		out.End = append(out.End, c.End)
		out.Text = append(out.Text, c.Text)
	}
	return out
}

// ConvertSRT parses SRT data and encodes it as SJSON.
func ConvertSRT(data []byte) ([]byte, error) {
	cues, err := ParseSRT(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ToSJSON(cues))
}
