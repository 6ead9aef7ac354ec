package conversation

import (
	"strings"

	"github.com/ent0n29/pagechat/internal/transcript"
)

const (
	summarySystemPrompt = "Your role is to summarize web pages the user is browsing. Do not use any formatting. " +
		"Summarize the following content as a bullet list of the 5-7 key takeaways. " +
		"Then write a paragraph about surprising and novel things in the content. Always respond in English."

	askSystemPrompt = "You answer questions about the web page the user is browsing. " +
		"Use the page content and the conversation so far. Answer the last User message directly and concisely. " +
		"Always respond in English."

	summaryTemperature = 0.2
	askTemperature     = 0.1
	contextWindow      = 16384
)

// askPrompt is the page content followed by every turn up to and including
// the pending question.
func askPrompt(page string, turns transcript.Transcript) string {
	var b strings.Builder
	b.WriteString("Page content:\n")
	b.WriteString(page)
	b.WriteString("\n\nConversation:\n")
	b.WriteString(turns.Render())
	return b.String()
}
