package automation

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Business hours are Monday to Friday, 09:00 up to but excluding 18:00.
const (
	openingHour = 9
	closingHour = 18
)

// IsBusinessHours reports whether t falls inside business hours in loc.
func IsBusinessHours(t time.Time, loc *time.Location) bool {
	if loc != nil {
		t = t.In(loc)
	}
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return t.Hour() >= openingHour && t.Hour() < closingHour
}

// MatchKeyword is a case-insensitive substring match. Nil or empty content
// and an empty keyword never match.
func MatchKeyword(content *string, keyword string) bool {
	if content == nil || *content == "" || keyword == "" {
		return false
	}
	// a Caser keeps state; one per call
	return strings.Contains(cases.Fold().String(*content), cases.Fold().String(keyword))
}

// renderReply fills the placeholders supported in action messages.
func renderReply(tmpl, contactName, inbound string) string {
	r := strings.NewReplacer(
		"{{contact_name}}", contactName,
		"{{message}}", inbound,
	)
	return r.Replace(tmpl)
}
