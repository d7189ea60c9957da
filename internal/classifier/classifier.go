package classifier

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"leadrouter/internal/constants"
)

type Classification string

const (
	Incoming Classification = "incoming"
	Outgoing Classification = "outgoing"
	Activity Classification = "activity"
)

const (
	SenderContact  = "contact"
	SenderAgent    = "agent"
	SenderUser     = "user"
	SenderBot      = "bot"
	SenderAgentBot = "agent_bot"
)

// MessageType is the normalised declared type of a message.
type MessageType int

const (
	TypeUnknown MessageType = iota
	TypeIncoming
	TypeOutgoing
	TypeActivity
)

func (t MessageType) String() string {
	switch t {
	case TypeIncoming:
		return "incoming"
	case TypeOutgoing:
		return "outgoing"
	case TypeActivity:
		return "activity"
	default:
		return "unknown"
	}
}

var systemNoticePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)joined the conversation`),
	regexp.MustCompile(`(?i)is reviewing your details`),
	regexp.MustCompile(`(?i)^all ai specialists\b`),
	regexp.MustCompile(`(?i)^assigned to .+ by .+`),
	regexp.MustCompile(`(?i)self-assigned this conversation`),
	regexp.MustCompile(`(?i)^conversation (was )?(marked resolved|reopened|unassigned)`),
	regexp.MustCompile(`(?i)^conversation was marked as (open|pending|resolved)`),
}

// IsSystemNotice reports whether content is an automated platform notice.
func IsSystemNotice(content string) bool {
	content = strings.TrimSpace(content)
	if content == "" {
		return false
	}
	for _, p := range systemNoticePatterns {
		if p.MatchString(content) {
			return true
		}
	}
	return false
}

// NormalizeMessageType accepts the numeric (0, 1, 2, also as strings or floats)
// and the named forms of the message type.
func NormalizeMessageType(v interface{}) MessageType {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) {
			return TypeUnknown
		}
		return typeFromNumber(int64(t))
	case int:
		return typeFromNumber(int64(t))
	case int64:
		return typeFromNumber(t)
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		switch s {
		case "incoming":
			return TypeIncoming
		case "outgoing":
			return TypeOutgoing
		case "activity":
			return TypeActivity
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return typeFromNumber(n)
		}
	}
	return TypeUnknown
}

func typeFromNumber(n int64) MessageType {
	switch n {
	case 0:
		return TypeIncoming
	case 1:
		return TypeOutgoing
	case 2:
		return TypeActivity
	default:
		return TypeUnknown
	}
}

// Classify applies, first match wins: system-notice content, declared activity,
// declared outgoing, declared incoming (contact-authored and not oversized),
// then the sender type alone.
func Classify(ev InboundEvent) Classification {
	if IsSystemNotice(ev.Content) {
		return Activity
	}

	switch NormalizeMessageType(ev.MessageType) {
	case TypeActivity:
		return Activity
	case TypeOutgoing:
		return Outgoing
	case TypeIncoming:
		if ev.SenderType != SenderContact {
			return Activity
		}
		if utf8.RuneCountInString(ev.Content) > constants.LongIncomingThreshold {
			return Outgoing
		}
		return Incoming
	}

	if ev.SenderType == SenderContact {
		return Incoming
	}
	return Outgoing
}
