package main

import (
	"fmt"
	"log"

	"github.com/slack-go/slack"
)

// Notifier posts pipeline summaries to a Slack channel. It is optional:
// a nil Notifier (unconfigured token or channel) silently skips posting.
type Notifier struct {
	api       *slack.Client
	channelID string
}

func NewNotifier(cfg Config) *Notifier {
	if !cfg.SlackConfigured() {
		return nil
	}
	return &Notifier{
		api:       slack.New(cfg.SlackBotToken),
		channelID: cfg.SlackChannelID,
	}
}

// PostRunSummary sends the per-sprint rollup after a backlog run.
// Posting errors are logged, never fatal: a failed notification must
// not invalidate the run itself.
func (n *Notifier) PostRunSummary(results []StoryResult, summaries []SprintSummary) {
	if n == nil {
		return
	}

	text := fmt.Sprintf("*Evaluación INVEST completada:* %d historias procesadas\n\n%s",
		len(results), FormatSprintSummaries(summaries))

	_, _, err := n.api.PostMessage(n.channelID, slack.MsgOptionText(text, false))
	if err != nil {
		log.Printf("Slack post error: %v", err)
		return
	}
	log.Printf("Posted run summary to channel %s", n.channelID)
}
