package chat_engine

import (
	"fmt"
	"strings"

	"github.com/markdave123-py/spacechat/internal/models"
)

// DefaultFallbackMessage is used when the owner has not configured one.
const DefaultFallbackMessage = "I don't have information about that yet. Please contact the owner for more details."

// FallbackMessage returns the owner's fallback line, or the default.
func FallbackMessage(space *models.Space) string {
	if space.FallbackMessage != nil {
		if msg := strings.TrimSpace(*space.FallbackMessage); msg != "" {
			return msg
		}
	}
	return DefaultFallbackMessage
}

// BuildInstructions renders the system instructions for a space. The owner's
// description is appended verbatim last and overrides everything before it.
func BuildInstructions(space *models.Space) string {
	name := strings.TrimSpace(space.Name)
	if name == "" {
		name = "the assistant"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. You answer visitors' questions using the documents in your knowledge base.\n\n", name)

	b.WriteString("Rules:\n")
	b.WriteString("- Search the knowledge base before answering every question. This includes questions about who you are, " +
		"what you do, or your background: when the documents describe a person or organisation, treat them as your own " +
		"biography and answer in the first person.\n")
	b.WriteString("- Only state facts found in the knowledge base. Do not invent details.\n")
	fmt.Fprintf(&b, "- If the knowledge base has nothing relevant, reply with exactly the following text and nothing else:\n%s\n", FallbackMessage(space))
	b.WriteString("- Never say in your own words that you lack information; use the text above instead.\n")

	if v := optional(space.Persona); v != "" {
		fmt.Fprintf(&b, "\nPersona: %s\n", v)
	}
	if v := optional(space.Tone); v != "" {
		fmt.Fprintf(&b, "Tone: %s\n", v)
	}
	if v := optional(space.Audience); v != "" {
		fmt.Fprintf(&b, "Audience: %s\n", v)
	}

	if desc := strings.TrimSpace(space.Description); desc != "" {
		b.WriteString("\nInstructions from the owner. Follow them; they take precedence over the rules above:\n")
		b.WriteString(space.Description)
		b.WriteString("\n")
	}
	return b.String()
}

// withExcerpts appends retrieved chunks for providers that have no retrieval
// tool of their own.
func withExcerpts(instructions string, chunks []models.DocumentChunk) string {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\nYour knowledge base for this question consists of these excerpts:\n")
	for i, ch := range chunks {
		fmt.Fprintf(&b, "\n[%d]\n%s\n", i+1, ch.Text)
	}
	return b.String()
}

func optional(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
