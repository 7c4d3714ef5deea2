package prompts

import "fmt"

// ExtractionNone is the sentinel the extraction model returns when an
// interaction contains nothing worth remembering.
const ExtractionNone = "None"

// extractionTemplate asks a model to distill one durable fact from a
// single turn. The single format verb is the turn text.
const extractionTemplate = `You maintain a long-term memory of durable facts about a user.

Read the following message and decide whether it contains ONE concise,
durable fact worth remembering for future conversations: a preference,
a relationship, a recurring commitment, a piece of personal information.

Transient chatter, questions, and one-off requests are NOT facts.

Return ONLY the fact as a single short sentence, for example:
Prefers morning meetings before 10am.

If there is nothing worth remembering, return exactly: None

Message:
%s

Fact:`

// ExtractionPrompt returns the interpolated single-fact extraction
// prompt for a turn's text.
func ExtractionPrompt(turnText string) string {
	return fmt.Sprintf(extractionTemplate, turnText)
}
