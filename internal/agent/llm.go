package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/ymahak/cust/internal/domain"
)

const intentPrompt = `You are an intent classification agent. Analyze the user's message and classify it into one of these categories:
- greeting: Simple greetings or hello
- question: General questions about products/services
- complaint: Issues or problems
- refund: Refund requests
- technical: Technical support needed
- billing: Billing or payment issues
- other: Anything else

Respond with ONLY the category name, nothing else.`

const supportPrompt = `You are a helpful customer support agent.

Your responsibilities:
1. Provide friendly and professional assistance
2. Answer user questions accurately
3. Help resolve customer issues
4. Escalate to a human agent when the issue is complex or uncertain

IMPORTANT:
- If escalation is needed, include the word "ESCALATE" at the end of your response.
- Keep responses concise, empathetic, and clear.`

var escalateMarker = regexp.MustCompile(`(?i)\bescalate\b`)

var errNoChoices = errors.New("agent: no response choices")

// LLM implements Classifier and Responder on top of a langchaingo model.
type LLM struct {
	model llms.Model
}

func NewLLM(model llms.Model) *LLM {
	return &LLM{model: model}
}

func (l *LLM) Classify(ctx context.Context, text string) (Intent, error) {
	msgs := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, intentPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, text),
	}

	out, err := l.generate(ctx, msgs, llms.WithTemperature(0.3), llms.WithMaxTokens(50))
	if err != nil {
		return IntentOther, fmt.Errorf("agent.LLM.Classify: %w", err)
	}

	return ParseIntent(out), nil
}

func (l *LLM) Respond(ctx context.Context, text string, intent Intent, history []Turn) (Response, error) {
	msgs := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, supportPrompt),
		llms.TextParts(llms.ChatMessageTypeSystem, "User intent: "+string(intent)),
	}
	if turns := LastTurns(history); len(turns) > 0 {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, "Previous conversation:\n"+formatHistory(turns)))
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, text))

	out, err := l.generate(ctx, msgs, llms.WithTemperature(0.7), llms.WithMaxTokens(300))
	if err != nil {
		return Response{}, fmt.Errorf("agent.LLM.Respond: %w", err)
	}

	return parseReply(out), nil
}

func (l *LLM) generate(ctx context.Context, msgs []llms.MessageContent, opts ...llms.CallOption) (string, error) {
	resp, err := l.model.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, errNoChoices)
	}

	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// parseReply strips the escalation marker and reports whether it was present.
func parseReply(out string) Response {
	if !escalateMarker.MatchString(out) {
		return Response{Text: out}
	}
	cleaned := strings.TrimSpace(escalateMarker.ReplaceAllString(out, ""))
	return Response{Text: cleaned, NeedsEscalation: true}
}

func formatHistory(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("User: ")
		b.WriteString(t.Text)
		b.WriteString("\nAgent: ")
		b.WriteString(t.Reply)
	}
	return b.String()
}
