// Package parse turns raw model output into a folder and priority.
package parse

import (
	"encoding/json"
	"regexp"
	"strings"

	"notifai/internal/classifier/priority"
)

// Classification is a successfully parsed model answer.
type Classification struct {
	Folder   string
	Priority priority.Tier
}

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

type answer struct {
	Folder   *string `json:"folder"`
	Priority *int    `json:"priority"`
}

// Parse extracts the JSON object from raw. Reasoning blocks are dropped
// first. A priority outside the tier set becomes priority.Default; any
// other defect in the object reports false.
func Parse(raw string) (Classification, bool) {
	text := thinkBlock.ReplaceAllString(raw, "")
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < 0 || end < start {
		return Classification{}, false
	}

	var a answer
	if err := json.Unmarshal([]byte(text[start:end+1]), &a); err != nil {
		return Classification{}, false
	}
	if a.Folder == nil || a.Priority == nil {
		return Classification{}, false
	}
	return Classification{
		Folder:   strings.TrimSpace(*a.Folder),
		Priority: priority.Coerce(*a.Priority),
	}, true
}
