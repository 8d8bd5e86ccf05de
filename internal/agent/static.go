package agent

import (
	"context"
	"strings"
)

var staticKeywords = []struct { //nolint:gochecknoglobals // lookup table
	intent Intent
	words  []string
}{
	{IntentRefund, []string{"refund", "money back", "return my"}},
	{IntentBilling, []string{"bill", "invoice", "charge", "payment"}},
	{IntentTechnical, []string{"error", "crash", "bug", "not working", "broken", "reset"}},
	{IntentComplaint, []string{"terrible", "awful", "angry", "disappointed", "complain"}},
	{IntentGreeting, []string{"hello", "hi ", "hey", "good morning"}},
}

var staticReplies = map[Intent]string{ //nolint:gochecknoglobals // lookup table
	IntentGreeting:  "Hello! How can I help you today?",
	IntentQuestion:  "Thanks for your question. Here is what I can tell you so far.",
	IntentComplaint: "I'm sorry about your experience. I've passed this to a member of our team.",
	IntentRefund:    "I understand you'd like a refund. A member of our team will review your request.",
	IntentTechnical: "Let's get that fixed. Please try restarting the device and tell me if the problem persists.",
	IntentBilling:   "I can help with billing. Could you share the invoice number?",
	IntentOther:     "Thanks for reaching out. Could you tell me a bit more?",
}

// Static is a deterministic Classifier and Responder that needs no external
// service. Replies for the intents in Escalate carry the escalation hint.
type Static struct {
	Escalate map[Intent]bool
}

// NewStatic returns a Static backend that escalates complaints and refunds.
func NewStatic() *Static {
	return &Static{Escalate: map[Intent]bool{IntentComplaint: true, IntentRefund: true}}
}

func (s *Static) Classify(_ context.Context, text string) (Intent, error) {
	lower := strings.ToLower(text) + " "
	for _, k := range staticKeywords {
		for _, w := range k.words {
			if strings.Contains(lower, w) {
				return k.intent, nil
			}
		}
	}
	if strings.Contains(text, "?") {
		return IntentQuestion, nil
	}
	return IntentOther, nil
}

func (s *Static) Respond(_ context.Context, _ string, intent Intent, _ []Turn) (Response, error) {
	reply, ok := staticReplies[intent]
	if !ok {
		reply = staticReplies[IntentOther]
	}
	return Response{Text: reply, NeedsEscalation: s.Escalate[intent]}, nil
}
