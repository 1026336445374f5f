package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/adpilot-bot/adpilot/config"
	"github.com/adpilot-bot/adpilot/internal/action"
	"github.com/adpilot-bot/adpilot/internal/queue/streams"
)

// ActionAPI is the action-manager surface the gateway drives on
// inline-button presses.
type ActionAPI interface {
	Execute(ctx context.Context, actionID string) (action.Result, error)
	Reject(ctx context.Context, actionID string) (action.Result, error)
}

// Publisher enqueues jobs onto the streams.
type Publisher interface {
	PublishJSON(ctx context.Context, stream, eventType string, payload interface{}, opts ...streams.PublishOption) (string, error)
}

// Gateway turns inbound chat traffic into jobs and action decisions.
// Text messages are enqueued so chat handling never blocks on the LLM;
// button presses resolve pending actions synchronously.
type Gateway struct {
	logger    *log.Logger
	publisher Publisher
	actions   ActionAPI
	queues    config.QueueConfig
}

// NewGateway constructs a Gateway.
func NewGateway(logger *log.Logger, pub Publisher, actions ActionAPI, queues config.QueueConfig) *Gateway {
	return &Gateway{logger: logger, publisher: pub, actions: actions, queues: queues.Normalize()}
}

// HandleText routes one text message. A few slash commands map to
// system jobs; "new campaign ..." style requests become proposal jobs;
// everything else is a question.
func (g *Gateway) HandleText(ctx context.Context, chatID int64, userID, text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}

	var (
		stream  string
		event   string
		payload interface{}
	)
	lower := strings.ToLower(trimmed)
	switch {
	case lower == "/report" || lower == "/daily":
		stream, event, payload = g.queues.ReportStream, EventDailyReport, ReportJob{Notify: true}
	case lower == "/weekly":
		stream, event, payload = g.queues.ReportStream, EventWeeklyReport, ReportJob{Notify: true}
	case lower == "/sync":
		stream, event, payload = g.queues.SystemStream, EventSync, SyncJob{Mode: "recent"}
	case strings.HasPrefix(lower, "/new "):
		stream, event = g.queues.MessageStream, EventProposal
		payload = ProposalJob{Request: strings.TrimSpace(trimmed[len("/new "):]), UserID: userID, ChatID: chatID}
	default:
		stream, event = g.queues.MessageStream, EventQuestion
		payload = QuestionJob{Question: trimmed, UserID: userID, ChatID: chatID}
	}

	if _, err := g.publisher.PublishJSON(ctx, stream, event, payload); err != nil {
		g.logger.Printf("warn: enqueue %s from chat %d: %v", event, chatID, err)
	}
}

// HandleCallback resolves an approval button press. The returned text
// is the short acknowledgement shown in the chat client.
func (g *Gateway) HandleCallback(ctx context.Context, chatID int64, userID, data string) string {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != "action" {
		return "Unknown action"
	}
	verb, actionID := parts[1], parts[2]

	var (
		res action.Result
		err error
	)
	switch verb {
	case "approve":
		res, err = g.actions.Execute(ctx, actionID)
	case "reject":
		res, err = g.actions.Reject(ctx, actionID)
	default:
		return "Unknown action"
	}

	switch {
	case errors.Is(err, action.ErrExpired):
		return "This action expired and was rejected"
	case errors.Is(err, action.ErrNotFound):
		return "Action not found"
	case err != nil:
		g.logger.Printf("warn: %s action %s: %v", verb, actionID, err)
		return "Failed to apply, see logs"
	case res.AlreadyTerminal:
		return fmt.Sprintf("Already %s", res.Action.Status)
	default:
		return fmt.Sprintf("Action %s", res.Action.Status)
	}
}
