package telegram

import (
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/nemesisdesk/nemesis/internal/message"
)

// Attachment is a media payload referenced by the channel's file id. The
// bytes stay on the channel; callers resolve a URL on demand.
type Attachment struct {
	FileID   string
	FileName string
	Mime     string
}

// Inbound is a channel event reduced to the fields the pipeline stores.
type Inbound struct {
	PartyID           string
	DisplayName       string
	Content           string
	Kind              message.Type
	Attachment        *Attachment
	ExternalMessageID string
	ReplyToExternalID string
}

// NormalizeUpdate classifies a raw channel update into exactly one Inbound.
// Classification precedence: text, then image, document, voice, audio. A
// caption on a media event becomes the message content, not a second message.
// Control events (joins, edits, callbacks, empty updates) return ok=false and
// are dropped without error.
func NormalizeUpdate(update tgbotapi.Update) (Inbound, bool) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return Inbound{}, false
	}

	in := Inbound{
		PartyID:           strconv.FormatInt(msg.Chat.ID, 10),
		DisplayName:       displayName(msg),
		ExternalMessageID: strconv.Itoa(msg.MessageID),
	}
	if msg.ReplyToMessage != nil {
		in.ReplyToExternalID = strconv.Itoa(msg.ReplyToMessage.MessageID)
	}

	switch {
	case strings.TrimSpace(msg.Text) != "":
		in.Kind = message.TypeText
		in.Content = msg.Text
	case len(msg.Photo) > 0:
		best := pickPhoto(msg.Photo)
		in.Kind = message.TypeImage
		in.Content = msg.Caption
		in.Attachment = &Attachment{FileID: best.FileID, Mime: "image/jpeg"}
	case msg.Document != nil:
		in.Kind = message.TypeDocument
		in.Content = msg.Caption
		in.Attachment = &Attachment{
			FileID:   msg.Document.FileID,
			FileName: msg.Document.FileName,
			Mime:     msg.Document.MimeType,
		}
	case msg.Voice != nil:
		in.Kind = message.TypeAudio
		in.Content = msg.Caption
		in.Attachment = &Attachment{FileID: msg.Voice.FileID, Mime: msg.Voice.MimeType}
	case msg.Audio != nil:
		in.Kind = message.TypeAudio
		in.Content = msg.Caption
		in.Attachment = &Attachment{
			FileID:   msg.Audio.FileID,
			FileName: msg.Audio.FileName,
			Mime:     msg.Audio.MimeType,
		}
	default:
		return Inbound{}, false
	}
	return in, true
}

func displayName(msg *tgbotapi.Message) string {
	if msg.From == nil {
		return ""
	}
	name := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	if name == "" {
		name = msg.From.UserName
	}
	return name
}
