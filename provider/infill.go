package provider

import "fmt"

const infillSystemPrompt = "You are a code completion engine. " +
	"Given the code before and after the cursor, reply with only the code " +
	"that belongs in between. No explanations, no markdown fences."

// InfillMessages synthesizes a chat conversation that asks for a
// fill-in-the-middle completion. Used by backends without a native FIM
// endpoint.
func InfillMessages(prompt, suffix string) []Message {
	return []Message{
		SystemMessage(infillSystemPrompt),
		UserMessage(fmt.Sprintf("<before_cursor>\n%s\n</before_cursor>\n<after_cursor>\n%s\n</after_cursor>", prompt, suffix)),
	}
}
