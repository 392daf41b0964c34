package agent

import "github.com/Protocol-Lattice/pcb-agent/pkg/models"

// FinalReply extracts the text of the last assistant turn. Block content is
// joined with newlines. It returns "" when the conversation has no assistant turn.
func FinalReply(conv models.Conversation) string {
	for i := len(conv) - 1; i >= 0; i-- {
		if turn, ok := conv[i].(models.AssistantTurn); ok {
			return turn.Content()
		}
	}
	return ""
}
