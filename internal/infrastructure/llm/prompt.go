// Package llm holds what the language model adapters share.
package llm

import "strings"

// SystemPrompt appends the retrieved context to the fixed instructions so
// the user turn carries only the question.
func SystemPrompt(instructions, contextText string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(instructions))
	b.WriteString("\n\nContext:\n")
	b.WriteString(contextText)
	return b.String()
}
