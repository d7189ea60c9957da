package escalation

import (
	"fmt"
	"strconv"
	"strings"
)

// Record is the lead summary written into the audit note. It is composed at
// escalation time and never stored.
type Record struct {
	Name      string
	Phone     string
	Email     string
	LeadScore string
}

func RecordFrom(conv Conversation) Record {
	return Record{
		Name:      firstNonEmpty(attr(conv.CustomAttributes, "name", "full_name"), conv.Contact.Name),
		Phone:     firstNonEmpty(attr(conv.CustomAttributes, "phone", "phone_number"), conv.Contact.Phone),
		Email:     firstNonEmpty(attr(conv.CustomAttributes, "email"), conv.Contact.Email),
		LeadScore: attr(conv.CustomAttributes, "lead_score"),
	}
}

func (r Record) AuditNote(customerMessage string, reason Reason) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Escalated to a human operator (reason: %s)\n", reason)
	fmt.Fprintf(&b, "Lead score: %s\n", orUnknown(r.LeadScore))
	fmt.Fprintf(&b, "Name: %s\n", orUnknown(r.Name))
	fmt.Fprintf(&b, "Phone: %s\n", orUnknown(r.Phone))
	fmt.Fprintf(&b, "Email: %s\n", orUnknown(r.Email))
	fmt.Fprintf(&b, "Customer message: %q", customerMessage)
	return b.String()
}

func attr(attrs map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := attrs[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
