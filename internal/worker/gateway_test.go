package worker

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/adpilot-bot/adpilot/config"
	"github.com/adpilot-bot/adpilot/internal/action"
	"github.com/adpilot-bot/adpilot/internal/queue/streams"
	"github.com/adpilot-bot/adpilot/internal/store"
)

type published struct {
	stream  string
	event   string
	payload interface{}
}

type stubPublisher struct {
	published []published
}

func (p *stubPublisher) PublishJSON(ctx context.Context, stream, eventType string, payload interface{}, opts ...streams.PublishOption) (string, error) {
	p.published = append(p.published, published{stream: stream, event: eventType, payload: payload})
	return "1-0", nil
}

type stubActionAPI struct {
	executed []string
	rejected []string
	result   action.Result
	err      error
}

func (a *stubActionAPI) Execute(ctx context.Context, actionID string) (action.Result, error) {
	a.executed = append(a.executed, actionID)
	return a.result, a.err
}

func (a *stubActionAPI) Reject(ctx context.Context, actionID string) (action.Result, error) {
	a.rejected = append(a.rejected, actionID)
	return a.result, a.err
}

func newTestGateway(pub *stubPublisher, actions *stubActionAPI) *Gateway {
	return NewGateway(log.New(io.Discard, "", 0), pub, actions, config.QueueConfig{})
}

func TestHandleTextRoutesCommands(t *testing.T) {
	cases := []struct {
		text   string
		stream string
		event  string
	}{
		{"/report", "jobs.reports", EventDailyReport},
		{"/daily", "jobs.reports", EventDailyReport},
		{"/weekly", "jobs.reports", EventWeeklyReport},
		{"/sync", "jobs.system", EventSync},
		{"/new winter boots campaign", "jobs.messages", EventProposal},
		{"how is summer sale doing?", "jobs.messages", EventQuestion},
	}
	for _, tc := range cases {
		pub := &stubPublisher{}
		g := newTestGateway(pub, &stubActionAPI{})

		g.HandleText(context.Background(), 7, "u1", tc.text)

		if len(pub.published) != 1 {
			t.Fatalf("%q: published %d jobs, want 1", tc.text, len(pub.published))
		}
		got := pub.published[0]
		if got.stream != tc.stream || got.event != tc.event {
			t.Fatalf("%q: routed to %s/%s, want %s/%s", tc.text, got.stream, got.event, tc.stream, tc.event)
		}
	}
}

func TestHandleTextProposalRequestStripsCommand(t *testing.T) {
	pub := &stubPublisher{}
	g := newTestGateway(pub, &stubActionAPI{})

	g.HandleText(context.Background(), 7, "u1", "/new winter boots campaign")

	job, ok := pub.published[0].payload.(ProposalJob)
	if !ok {
		t.Fatalf("payload = %T", pub.published[0].payload)
	}
	if job.Request != "winter boots campaign" {
		t.Fatalf("request = %q", job.Request)
	}
	if job.ChatID != 7 || job.UserID != "u1" {
		t.Fatalf("job = %+v", job)
	}
}

func TestHandleTextIgnoresEmpty(t *testing.T) {
	pub := &stubPublisher{}
	g := newTestGateway(pub, &stubActionAPI{})

	g.HandleText(context.Background(), 7, "u1", "   ")

	if len(pub.published) != 0 {
		t.Fatalf("empty text must not publish")
	}
}

func TestHandleCallbackApprove(t *testing.T) {
	actions := &stubActionAPI{result: action.Result{Action: store.PendingAction{ID: "a1", Status: store.ActionStatusExecuted}}}
	g := newTestGateway(&stubPublisher{}, actions)

	got := g.HandleCallback(context.Background(), 7, "u1", "action:approve:a1")

	if got != "Action executed" {
		t.Fatalf("ack = %q", got)
	}
	if len(actions.executed) != 1 || actions.executed[0] != "a1" {
		t.Fatalf("executed = %v", actions.executed)
	}
}

func TestHandleCallbackReject(t *testing.T) {
	actions := &stubActionAPI{result: action.Result{Action: store.PendingAction{ID: "a1", Status: store.ActionStatusRejected}}}
	g := newTestGateway(&stubPublisher{}, actions)

	got := g.HandleCallback(context.Background(), 7, "u1", "action:reject:a1")

	if got != "Action rejected" {
		t.Fatalf("ack = %q", got)
	}
	if len(actions.rejected) != 1 {
		t.Fatalf("rejected = %v", actions.rejected)
	}
}

func TestHandleCallbackExpired(t *testing.T) {
	actions := &stubActionAPI{err: action.ErrExpired}
	g := newTestGateway(&stubPublisher{}, actions)

	got := g.HandleCallback(context.Background(), 7, "u1", "action:approve:a1")
	if got != "This action expired and was rejected" {
		t.Fatalf("ack = %q", got)
	}
}

func TestHandleCallbackNotFound(t *testing.T) {
	actions := &stubActionAPI{err: action.ErrNotFound}
	g := newTestGateway(&stubPublisher{}, actions)

	got := g.HandleCallback(context.Background(), 7, "u1", "action:approve:ghost")
	if got != "Action not found" {
		t.Fatalf("ack = %q", got)
	}
}

func TestHandleCallbackAlreadyTerminal(t *testing.T) {
	actions := &stubActionAPI{result: action.Result{
		Action:          store.PendingAction{ID: "a1", Status: store.ActionStatusExecuted},
		AlreadyTerminal: true,
	}}
	g := newTestGateway(&stubPublisher{}, actions)

	got := g.HandleCallback(context.Background(), 7, "u1", "action:approve:a1")
	if got != "Already executed" {
		t.Fatalf("ack = %q", got)
	}
}

func TestHandleCallbackMalformed(t *testing.T) {
	g := newTestGateway(&stubPublisher{}, &stubActionAPI{})

	for _, data := range []string{"", "action:approve", "other:approve:a1", "action:shrug:a1"} {
		if got := g.HandleCallback(context.Background(), 7, "u1", data); got != "Unknown action" {
			t.Fatalf("%q: ack = %q", data, got)
		}
	}
}
