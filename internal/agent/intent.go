package agent

import "strings"

// Intent is the classification label for an inbound message.
type Intent string

const (
	IntentGreeting  Intent = "greeting"
	IntentQuestion  Intent = "question"
	IntentComplaint Intent = "complaint"
	IntentRefund    Intent = "refund"
	IntentTechnical Intent = "technical"
	IntentBilling   Intent = "billing"
	IntentOther     Intent = "other"
)

// Intents lists every label in a stable order.
var Intents = []Intent{ //nolint:gochecknoglobals // closed enum
	IntentGreeting,
	IntentQuestion,
	IntentComplaint,
	IntentRefund,
	IntentTechnical,
	IntentBilling,
	IntentOther,
}

// ParseIntent normalizes raw model output to a known Intent. Anything outside
// the closed set becomes IntentOther.
func ParseIntent(raw string) Intent {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.Trim(s, ".!\"'` ")
	for _, i := range Intents {
		if s == string(i) {
			return i
		}
	}
	return IntentOther
}
