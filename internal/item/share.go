package item

import (
	"fmt"
	"strings"
)

// ShareText renders an item as a plain-text message for the platform share
// sheet. Items without analysis share only what they have.
func ShareText(it SavedItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "AI Mode: %s", it.DomainTag)

	if text := strings.TrimSpace(it.ExtractedText); text != "" {
		fmt.Fprintf(&b, "\n\nExtracted Text:\n%s", text)
	}
	if resp := strings.TrimSpace(it.AIResponse); resp != "" {
		fmt.Fprintf(&b, "\n\n---\n\nAI Analysis:\n%s", resp)
	}
	return b.String()
}
