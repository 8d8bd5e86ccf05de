package agent

import "context"

// MaxHistory is the number of prior turns handed to a Responder.
const MaxHistory = 5

// FallbackReply is surfaced whenever the responder capability fails.
const FallbackReply = "I'm facing some technical issues right now. A member of our support team will follow up with you shortly."

// Turn is one prior exchange with the caller.
type Turn struct {
	Text  string `json:"message"`
	Reply string `json:"response"`
}

// Response is the responder output. NeedsEscalation is advisory.
type Response struct {
	Text            string
	NeedsEscalation bool
}

// Classifier maps a message to an intent.
type Classifier interface {
	Classify(ctx context.Context, text string) (Intent, error)
}

// Responder drafts a reply for a classified message.
type Responder interface {
	Respond(ctx context.Context, text string, intent Intent, history []Turn) (Response, error)
}

// LastTurns returns at most MaxHistory trailing turns, oldest first.
func LastTurns(history []Turn) []Turn {
	if len(history) <= MaxHistory {
		return history
	}
	return history[len(history)-MaxHistory:]
}
