// Package payload extracts structured data blocks from assistant replies.
package payload

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/raphaelgruber/sprintpilot/internal/models"
)

// fencePattern matches a fenced code block and captures its info string and body.
var fencePattern = regexp.MustCompile("(?s)```([^\\n`]*)\\n(.*?)```")

type block struct {
	info string
	body string
}

func fencedBlocks(content string) []block {
	matches := fencePattern.FindAllStringSubmatch(content, -1)
	out := make([]block, 0, len(matches))
	for _, m := range matches {
		out = append(out, block{info: strings.TrimSpace(m[1]), body: strings.TrimSpace(m[2])})
	}
	return out
}

// Extract returns the first structured payload in content.
// Blocks tagged "json:<type>" win; otherwise the first untagged fenced
// JSON object with a known "type" field is used. Anything malformed or of
// an unknown type is ignored.
func Extract(content string) (*models.Payload, bool) {
	blocks := fencedBlocks(content)

	for _, b := range blocks {
		tag, ok := cutPrefixFold(b.info, "json:")
		if !ok {
			continue
		}
		t := models.PayloadType(strings.TrimSpace(tag))
		if !t.Known() {
			continue
		}
		if p, err := models.NewPayload(t, []byte(b.body)); err == nil {
			return p, true
		}
	}

	for _, b := range blocks {
		if b.info != "" && !strings.EqualFold(b.info, "json") {
			continue
		}
		var head struct {
			Type models.PayloadType `json:"type"`
		}
		if err := json.Unmarshal([]byte(b.body), &head); err != nil || !head.Type.Known() {
			continue
		}
		if p, err := models.NewPayload(head.Type, []byte(b.body)); err == nil {
			return p, true
		}
	}

	return nil, false
}

// Format renders v as a tagged block the extractor recognizes.
func Format(t models.PayloadType, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return "```json:" + string(t) + "\n" + string(data) + "\n```", nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return s[len(prefix):], true
}
