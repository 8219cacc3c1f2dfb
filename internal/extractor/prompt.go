package extractor

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// The reply schema is fixed. Downstream parsing depends on these exact
// keys, so prompt wording may change but the keys must not.
const promptTemplate = `You are a civic infrastructure analyst. Read the article below and decide whether it describes a specific public infrastructure or construction project (a road, bridge, transit line, park, public building, utility work, or similar).

If it does, respond with ONLY a JSON object using exactly these keys:
{
  "name": "official or commonly used project name",
  "location": "neighborhood, street, or district mentioned",
  "budget": "budget figure as written in the article, or null",
  "officials": ["names of officials quoted or mentioned"],
  "status": "one of: announced, approved, in_progress, delayed, completed, cancelled",
  "summary": "one to three sentence summary of what the article reports about the project"
}

If the article does not describe a specific project, respond with ONLY the word null.
Do not add commentary before or after the JSON.

Title: %s

Article:
%s`

// buildPrompt fills the template, truncating the body to maxBodyLen
// runes so long articles stay inside the model's context window.
func buildPrompt(title, body string, maxBodyLen int) string {
	if maxBodyLen > 0 && utf8.RuneCountInString(body) > maxBodyLen {
		runes := []rune(body)
		body = string(runes[:maxBodyLen])
		// Cut at a word boundary when one is close by.
		if i := strings.LastIndexByte(body, ' '); i > maxBodyLen/2 {
			body = body[:i]
		}
	}
	return fmt.Sprintf(promptTemplate, title, body)
}
