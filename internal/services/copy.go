// Package services: message copy
//
// Outbound SMS copy for the manual-callback flow. There is no templating
// engine on purpose: the copy is fixed, with the patient greeting, the lead
// line (past due vs due soon), the office phone, and the opt-out footer
// assembled here.
package services

import (
	"strings"

	"github.com/dentalops/recallbridge/internal/domain"
)

const optOutFooter = " Reply STOP to opt out."

// RenderBody builds the outbound message for one touch. recallStatus selects
// the lead line; anything other than OVERDUE reads as due soon.
func RenderBody(practiceName, officePhone, firstName, recallStatus string) string {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = "there"
	}

	lead := "You're due for your next hygiene/recall visit."
	if recallStatus == domain.RecallOverdue {
		lead = "Your recall/cleaning is past due."
	}

	var b strings.Builder
	b.WriteString("Hi " + name + ", this is " + practiceName + ". " + lead + " ")
	b.WriteString("Reply YES and we'll call to schedule. Prefer a call now? Text CALL ME.")
	if officePhone != "" {
		b.WriteString("\n\nQuestions? Call " + officePhone + ".")
	}
	b.WriteString(optOutFooter)
	return b.String()
}

// truncateRunes clips s to at most n runes.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
