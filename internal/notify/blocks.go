package notify

import (
	"fmt"

	slacklib "github.com/slack-go/slack"

	"github.com/ymahak/cust/internal/domain"
)

// ActionApprove is the action id of the approve button on escalation posts.
const ActionApprove = "escalation_approve"

// BuildEscalationBlocks renders a pending escalation for a review channel with
// a button that approves the drafted reply as is.
func BuildEscalationBlocks(e *domain.Escalation) []slacklib.Block {
	header := fmt.Sprintf("*Escalation* `%s`\n*Reason:* %s\n*Caller:* %s", e.ID, e.Reason, e.CallerID)
	draft := fmt.Sprintf("*Draft reply:*\n>%s", e.OriginalResponse)

	return []slacklib.Block{
		slacklib.NewSectionBlock(slacklib.NewTextBlockObject(slacklib.MarkdownType, header, false, false), nil, nil),
		slacklib.NewDividerBlock(),
		slacklib.NewSectionBlock(slacklib.NewTextBlockObject(slacklib.MarkdownType, draft, false, false), nil, nil),
		slacklib.NewActionBlock("escalation_actions",
			slacklib.NewButtonBlockElement(ActionApprove, e.ID.String(),
				slacklib.NewTextBlockObject(slacklib.PlainTextType, "Approve draft", false, false),
			).WithStyle(slacklib.StylePrimary),
		),
	}
}

// BuildResolutionBlocks renders the reviewer's disposition.
func BuildResolutionBlocks(e *domain.Escalation) []slacklib.Block {
	text := fmt.Sprintf("*Escalation* `%s` *%s* by %s", e.ID, e.Status, e.ReviewedBy)
	blocks := []slacklib.Block{
		slacklib.NewSectionBlock(slacklib.NewTextBlockObject(slacklib.MarkdownType, text, false, false), nil, nil),
	}
	if e.HumanResponse != "" {
		reply := fmt.Sprintf("*Reply sent:*\n>%s", e.HumanResponse)
		blocks = append(blocks, slacklib.NewSectionBlock(
			slacklib.NewTextBlockObject(slacklib.MarkdownType, reply, false, false), nil, nil,
		))
	}
	if e.Notes != "" {
		blocks = append(blocks, slacklib.NewContextBlock("",
			slacklib.NewTextBlockObject(slacklib.MarkdownType, e.Notes, false, false),
		))
	}
	return blocks
}
