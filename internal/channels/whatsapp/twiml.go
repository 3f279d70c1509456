package whatsapp

import (
	"strconv"
	"strings"

	"github.com/twilio/twilio-go/twiml"

	"github.com/m3rciful/meterdesk/internal/conversation"
)

// RenderTwiML folds a response into a single TwiML message. Options become
// numbered lines; the engine accepts the number, the label or the value back.
// One message keeps the parts in order on the handset.
func RenderTwiML(resp conversation.Response) (string, error) {
	var verbs []twiml.Element
	if text := RenderText(resp); text != "" {
		verbs = append(verbs, twiml.MessagingMessage{Body: text})
	}
	return twiml.Messages(verbs)
}

// RenderText renders the response as plain text.
func RenderText(resp conversation.Response) string {
	parts := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		var b strings.Builder
		b.WriteString(m.Text)
		if m.Keyboard != nil {
			for i, o := range m.Keyboard.Options {
				b.WriteString("\n")
				b.WriteString(strconv.Itoa(i + 1))
				b.WriteString(". ")
				b.WriteString(o.Label)
			}
		}
		if s := strings.TrimSpace(b.String()); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}
