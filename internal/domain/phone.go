package domain

import (
	"regexp"
	"strings"
	"time"
)

var (
	nonDigitRE = regexp.MustCompile(`\D+`)
	e164RE     = regexp.MustCompile(`^\+\d{10,15}$`)
)

// NormalizePhone converts a raw NANP phone string to E.164, or returns "" when
// the input cannot be normalized. Ten digits get a +1 prefix; eleven digits
// starting with 1 get a plus.
func NormalizePhone(raw string) string {
	digits := nonDigitRE.ReplaceAllString(strings.TrimSpace(raw), "")
	switch {
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		return "+" + digits
	}
	return ""
}

// ValidE164 reports whether phone is a plausible E.164 number: a plus sign
// followed by 10 to 15 digits. Checked before any live send.
func ValidE164(phone string) bool {
	return e164RE.MatchString(phone)
}

// ComputeRecallStatus classifies a raw due date against the recall window.
// Missing or unparseable dates are UNKNOWN; dates strictly before today's
// midnight are OVERDUE; today through today+windowDays inclusive is DUE;
// anything later is NOT_DUE.
func ComputeRecallStatus(rawDueDate string, windowDays int, now time.Time) string {
	raw := strings.TrimSpace(rawDueDate)
	if raw == "" {
		return RecallUnknown
	}
	due, ok := parseDueDate(raw)
	if !ok {
		return RecallUnknown
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := today.AddDate(0, 0, windowDays)
	switch {
	case due.Before(today):
		return RecallOverdue
	case !due.After(end):
		return RecallDue
	}
	return RecallNotDue
}

// dueDateLayouts are the formats seen in practice exports, most common first.
var dueDateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2006-01-02T15:04:05Z07:00",
}

func parseDueDate(raw string) (time.Time, bool) {
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
