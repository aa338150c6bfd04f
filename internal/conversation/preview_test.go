package conversation

import (
	"testing"

	"github.com/nemesisdesk/nemesis/internal/message"
)

func TestPreview(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		last *message.Message
		want string
	}{
		{"empty conversation", nil, "Sem mensagens"},
		{"customer text", &message.Message{Sender: message.SenderCustomer, Type: message.TypeText, Content: "oi"}, "oi"},
		{"agent text", &message.Message{Sender: message.SenderAgent, Type: message.TypeText, Content: "bom dia"}, "Você: bom dia"},
		{"image", &message.Message{Sender: message.SenderCustomer, Type: message.TypeImage}, "\U0001F4F7 Imagem"},
		{"document", &message.Message{Sender: message.SenderCustomer, Type: message.TypeDocument}, "\U0001F4CE Arquivo"},
		{"audio", &message.Message{Sender: message.SenderCustomer, Type: message.TypeAudio}, "\U0001F3A4 Áudio"},
		{"agent image", &message.Message{Sender: message.SenderAgent, Type: message.TypeImage}, "Você: \U0001F4F7 Imagem"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Preview(tc.last); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestParseUrgency(t *testing.T) {
	t.Parallel()

	if u, err := ParseUrgency("urgent"); err != nil || u != UrgencyUrgent {
		t.Fatalf("expected urgent, got %v %v", u, err)
	}
	if u, err := ParseUrgency("1"); err != nil || u != UrgencyAttention {
		t.Fatalf("expected attention, got %v %v", u, err)
	}
	if _, err := ParseUrgency("panic"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if UrgencyUrgent.String() != "urgent" || UrgencyNormal.String() != "normal" {
		t.Fatal("unexpected urgency names")
	}
}
