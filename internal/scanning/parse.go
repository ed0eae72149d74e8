package scanning

import (
	"strings"
)

// noTextMarker is what the transcription prompt asks a model to answer
// when an image carries no text
const noTextMarker = "NO_TEXT"

// cleanTranscription turns a model transcription into ExtractedText
func cleanTranscription(text string) string {
	text = strings.TrimSpace(text)

	// Models sometimes wrap the answer in a code block anyway
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if i := strings.Index(text, "\n"); i >= 0 && !strings.Contains(text[:i], " ") {
			text = text[i+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	if text == "" || strings.EqualFold(strings.Trim(text, ". "), noTextMarker) {
		return NoTextDetected
	}
	return text
}
