package conversation

import "github.com/nemesisdesk/nemesis/internal/message"

// Preview renders the one-line queue preview of a conversation's most recent
// message. Attachment-only messages show a kind marker instead of content,
// and agent-sent messages are prefixed so the queue reads like a chat list.
func Preview(last *message.Message) string {
	if last == nil {
		return "Sem mensagens"
	}
	var preview string
	switch last.Type {
	case message.TypeImage:
		preview = "\U0001F4F7 Imagem"
	case message.TypeDocument:
		preview = "\U0001F4CE Arquivo"
	case message.TypeAudio:
		preview = "\U0001F3A4 Áudio"
	default:
		preview = last.Content
	}
	if last.Sender == message.SenderAgent {
		preview = "Você: " + preview
	}
	return preview
}
