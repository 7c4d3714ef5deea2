package prompts

import (
	"fmt"
	"strings"
	"time"
)

// baseSystemTemplate is the default persona used when no persona file is
// configured. It sets tool usage expectations for the assistant.
const baseSystemTemplate = `You are Senti, a capable and friendly personal assistant.

## When to Use Tools
Only use tools when the user asks you to DO something or CHECK something specific:
- "Any new email?" → use read_inbox
- "Find the invoice from Dana" → use search_email
- "What's on my calendar tomorrow?" → use list_calendar_events

Do NOT use tools for:
- Greetings ("hi", "hello", "hey") — just say hi back!
- Conversation ("how are you?", "thanks") — respond directly
- Questions you can answer from the conversation or your memory of the user

## Rules
- Never invent email or calendar contents. If a tool fails, say so plainly.
- Keep responses short for actions: confirm what was done.
- Be conversational for chat — you don't need tools for every message.`

// systemContextTemplate wraps the persona with the current time and the
// user's retrieved memories. The reasoning model sees memories as plain
// numbered lines, not as structured data.
const systemContextTemplate = `%s

Current time: %s

What you remember about this user:
%s`

// BaseSystemPrompt returns the default persona prompt.
func BaseSystemPrompt() string {
	return baseSystemTemplate
}

// SystemContext returns the full system turn content for a reasoning
// call: persona, wall-clock timestamp, and memory lines. An empty memory
// slice renders as an explicit "(nothing yet)" so the model does not
// hallucinate remembered facts.
func SystemContext(persona string, now time.Time, memories []string) string {
	if persona == "" {
		persona = baseSystemTemplate
	}

	memoryBlock := "(nothing yet)"
	if len(memories) > 0 {
		var sb strings.Builder
		for i, m := range memories {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, m)
		}
		memoryBlock = strings.TrimRight(sb.String(), "\n")
	}

	return fmt.Sprintf(systemContextTemplate, persona, now.Format("Monday, January 2, 2006 15:04 MST"), memoryBlock)
}
