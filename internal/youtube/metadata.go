package youtube

import (
	"bytes"
	"encoding/csv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// csvColumns is the YouTube CMS metadata sidecar layout.
var csvColumns = []string{
	"filename",
	"channel",
	"custom_id",
	"add_asset_labels",
	"title",
	"description",
	"keywords",
	"spoken_language",
	"caption_file",
	"caption_language",
	"category",
	"privacy",
	"notify_subscribers",
	"start_time",
	"end_time",
	"custom_thumbnail",
	"ownership",
	"block_outside_ownership",
	"usage_policy",
	"enable_content_id",
	"reference_exclusions",
	"match_policy",
	"ad_types",
	"ad_break_times",
	"playlist_id",
	"require_paid_subscription",
}

// Metadata is the populated part of a sidecar row.
type Metadata struct {
	FileName string
	Channel  string
	CustomID string
	Title    string
}

// SidecarCSV renders the header and the single data row. Videos are always
// uploaded unlisted.
func SidecarCSV(m Metadata) ([]byte, error) {
	values := map[string]string{
		"filename":  m.FileName,
		"channel":   m.Channel,
		"custom_id": m.CustomID,
		"title":     m.Title,
		"privacy":   "unlisted",
	}
	row := make([]string, len(csvColumns))
	for i, c := range csvColumns {
		row[i] = values[c]
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvColumns); err != nil {
		return nil, err
	}
	if err := w.Write(row); err != nil {
		return nil, err
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// FoldTitle reduces a title to printable ASCII: accents are stripped,
// other non-ASCII runes become '-' and commas are dropped.
func FoldTitle(title string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == ',':
			return -1
		case r > unicode.MaxASCII || !unicode.IsPrint(r):
			return '-'
		}
		return r
	}, folded)
}
