package pipeline

import (
	"strings"

	"github.com/ymahak/cust/internal/agent"
)

var sensitiveIntents = map[agent.Intent]bool{ //nolint:gochecknoglobals // lookup table
	agent.IntentComplaint: true,
	agent.IntentRefund:    true,
	agent.IntentBilling:   true,
	agent.IntentTechnical: true,
}

var uncertaintyPhrases = []string{ //nolint:gochecknoglobals // lookup table
	"not sure",
	"cannot help",
	"unable to",
	"i don't know",
	"might be wrong",
}

// SensitivePolicy escalates on the responder hint, on sensitive intents, and
// on replies that read as uncertain.
func SensitivePolicy(intent agent.Intent, resp agent.Response) bool {
	if resp.NeedsEscalation || sensitiveIntents[intent] {
		return true
	}

	lower := strings.ToLower(resp.Text)
	for _, phrase := range uncertaintyPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
