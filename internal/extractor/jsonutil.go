package extractor

import (
	"regexp"
	"strings"
)

var (
	fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	braceRe = regexp.MustCompile(`(?s)\{.*\}`)
)

// extractJSON pulls the JSON object out of a model reply. Models wrap
// answers in code fences or preamble text often enough that decoding
// the raw reply directly fails on otherwise usable output.
func extractJSON(reply string) (string, bool) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", false
	}
	if m := fenceRe.FindStringSubmatch(reply); m != nil {
		reply = strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(reply, "{") && strings.HasSuffix(reply, "}") {
		return reply, true
	}
	if m := braceRe.FindString(reply); m != "" {
		return m, true
	}
	if strings.EqualFold(reply, "null") {
		return "null", true
	}
	return "", false
}
