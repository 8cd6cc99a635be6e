// Package mailer renders notification mails and delivers them over SMTP.
package mailer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/br1n0/GlobaLeaks/internal/model"
)

const eventTimeLayout = "2006-01-02 15:04 UTC"

// KeywordRenderer fills %Keyword% placeholders in the stored subject
// and body templates from the enriched event.
type KeywordRenderer struct{}

// Render produces the subject and body for an event.
func (KeywordRenderer) Render(ev model.EnrichedEvent) (subject, body string, err error) {
	subject, body = ev.Templates.For(ev.Event.Kind)
	if subject == "" && body == "" {
		return "", "", fmt.Errorf("no template for kind %q", ev.Event.Kind)
	}

	tipID := ""
	if ev.Event.TipID != nil {
		tipID = *ev.Event.TipID
	}

	rep := strings.NewReplacer(
		"%NodeName%", ev.Node.Name,
		"%NodeURL%", ev.Node.URL,
		"%ReceiverName%", ev.Receiver.Name,
		"%EventTime%", ev.Event.CreatedAt.UTC().Format(eventTimeLayout),
		"%TipID%", tipID,
		"%PingCount%", strconv.Itoa(ev.PingCount),
	)
	return rep.Replace(subject), rep.Replace(body), nil
}
