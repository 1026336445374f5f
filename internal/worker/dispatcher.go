package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/adpilot-bot/adpilot/config"
	"github.com/adpilot-bot/adpilot/internal/chat"
	"github.com/adpilot-bot/adpilot/internal/core"
	"github.com/adpilot-bot/adpilot/internal/queue/streams"
	"github.com/adpilot-bot/adpilot/internal/store"
)

// StoreAPI captures the store methods required by the dispatcher.
type StoreAPI interface {
	ClaimIdempotency(ctx context.Context, scope, key string) (bool, error)
}

// Orchestrator is the slice of the core orchestrator the dispatcher
// drives. Each event type maps to exactly one of these entry points.
type Orchestrator interface {
	GenerateDailyReport(ctx context.Context, notify bool) (core.Report, error)
	GenerateWeeklyReport(ctx context.Context, notify bool) (core.Report, error)
	RunEveningAnalysis(ctx context.Context)
	SyncDirectData(ctx context.Context, mode core.SyncMode) (core.SyncSummary, error)
	HandleUserQuestion(ctx context.Context, question, userID string) (core.Answer, error)
	GenerateCampaignProposal(ctx context.Context, request, userID string) (store.Proposal, error)
}

// Dispatcher runs one worker pool per job stream and routes envelopes
// to the orchestrator.
type Dispatcher struct {
	logger    *log.Logger
	store     StoreAPI
	orch      Orchestrator
	transport chat.Transport
	consumer  *streams.Consumer
	queues    config.QueueConfig

	tracer      trace.Tracer
	jobCounter  otelmetric.Int64Counter
	failCounter otelmetric.Int64Counter
	skipCounter otelmetric.Int64Counter
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(logger *log.Logger, st StoreAPI, orch Orchestrator, transport chat.Transport, cons *streams.Consumer, queues config.QueueConfig, meter otelmetric.Meter, tracer trace.Tracer) *Dispatcher {
	if tracer == nil {
		tracer = trace.NewNoopTracerProvider().Tracer("worker")
	}
	d := &Dispatcher{
		logger:    logger,
		store:     st,
		orch:      orch,
		transport: transport,
		consumer:  cons,
		queues:    queues.Normalize(),
		tracer:    tracer,
	}
	if meter != nil {
		var err error
		d.jobCounter, err = meter.Int64Counter("worker_jobs_processed")
		if err != nil {
			logger.Printf("warn: create job counter failed: %v", err)
		}
		d.failCounter, err = meter.Int64Counter("worker_jobs_failed")
		if err != nil {
			logger.Printf("warn: create failure counter failed: %v", err)
		}
		d.skipCounter, err = meter.Int64Counter("worker_jobs_skipped")
		if err != nil {
			logger.Printf("warn: create skip counter failed: %v", err)
		}
	}
	return d
}

// Start blocks, running the per-stream worker pools until the context
// is cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	pools := []struct {
		stream  string
		workers int
	}{
		{d.queues.ReportStream, d.queues.ReportWorkers},
		{d.queues.MessageStream, d.queues.MessageWorkers},
		{d.queues.SystemStream, d.queues.SystemWorkers},
	}

	var wg sync.WaitGroup
	for _, pool := range pools {
		d.reclaimStuck(ctx, pool.stream)
		for i := 0; i < pool.workers; i++ {
			wg.Add(1)
			go func(stream string) {
				defer wg.Done()
				d.consumeLoop(ctx, stream)
			}(pool.stream)
		}
	}
	d.logger.Printf("dispatcher started: %s x%d, %s x%d, %s x%d",
		d.queues.ReportStream, d.queues.ReportWorkers,
		d.queues.MessageStream, d.queues.MessageWorkers,
		d.queues.SystemStream, d.queues.SystemWorkers)

	wg.Wait()
	d.logger.Printf("dispatcher stopped: %v", ctx.Err())
	return nil
}

func (d *Dispatcher) consumeLoop(ctx context.Context, stream string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := d.consumer.Read(ctx, stream, streams.WithBlock(5*time.Second), streams.WithCount(8))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Printf("error reading %s: %v", stream, err)
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range msgs {
			if err := d.handle(ctx, msg); err != nil {
				d.logger.Printf("error handling %s %s: %v", msg.Envelope.EventType, msg.ID, err)
			}
			if err := d.consumer.Ack(ctx, stream, msg.ID); err != nil {
				d.logger.Printf("warn: ack %s on %s: %v", msg.ID, stream, err)
			}
		}
	}
}

// reclaimStuck moves messages abandoned by dead consumers back into
// this dispatcher before the pools start. Idempotency claims keep the
// replays harmless.
func (d *Dispatcher) reclaimStuck(ctx context.Context, stream string) {
	start := "0-0"
	for {
		msgs, next, err := d.consumer.AutoClaim(ctx, stream, 5*time.Minute, start, 32)
		if err != nil {
			d.logger.Printf("warn: autoclaim %s: %v", stream, err)
			return
		}
		for _, msg := range msgs {
			if err := d.handle(ctx, msg); err != nil {
				d.logger.Printf("error replaying %s %s: %v", msg.Envelope.EventType, msg.ID, err)
			}
			if err := d.consumer.Ack(ctx, stream, msg.ID); err != nil {
				d.logger.Printf("warn: ack reclaimed %s: %v", msg.ID, err)
			}
		}
		if next == "0-0" || len(msgs) == 0 {
			return
		}
		start = next
	}
}

// handle claims and executes one job. A job that was already claimed is
// skipped; a job that fails is reported to its chat (when it has one)
// and the error propagated for logging.
func (d *Dispatcher) handle(ctx context.Context, msg streams.Message) error {
	ctx, span := d.tracer.Start(ctx, "worker.handle_job")
	defer span.End()

	claimed, err := d.store.ClaimIdempotency(ctx, msg.Envelope.EventType, msg.Envelope.EventID)
	if err != nil {
		return fmt.Errorf("claim idempotency: %w", err)
	}
	if !claimed {
		d.logger.Printf("skip event %s: already processed", msg.Envelope.EventID)
		if d.skipCounter != nil {
			d.skipCounter.Add(ctx, 1)
		}
		return nil
	}

	if err := d.dispatch(ctx, msg.Envelope); err != nil {
		if d.failCounter != nil {
			d.failCounter.Add(ctx, 1)
		}
		return err
	}
	if d.jobCounter != nil {
		d.jobCounter.Add(ctx, 1)
	}
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, env streams.Envelope) error {
	switch env.EventType {
	case EventDailyReport:
		var job ReportJob
		if err := json.Unmarshal(env.Data, &job); err != nil {
			return fmt.Errorf("unmarshal report job: %w", err)
		}
		_, err := d.orch.GenerateDailyReport(ctx, job.Notify)
		return err

	case EventWeeklyReport:
		var job ReportJob
		if err := json.Unmarshal(env.Data, &job); err != nil {
			return fmt.Errorf("unmarshal report job: %w", err)
		}
		_, err := d.orch.GenerateWeeklyReport(ctx, job.Notify)
		return err

	case EventEveningPulse:
		d.orch.RunEveningAnalysis(ctx)
		return nil

	case EventSync:
		var job SyncJob
		if err := json.Unmarshal(env.Data, &job); err != nil {
			return fmt.Errorf("unmarshal sync job: %w", err)
		}
		mode := core.SyncRecent
		if job.Mode == "full" {
			mode = core.SyncFull
		}
		summary, err := d.orch.SyncDirectData(ctx, mode)
		if err != nil {
			return err
		}
		d.logger.Printf("sync done: %d campaigns, %d stat rows", summary.Campaigns, summary.StatRows)
		return nil

	case EventQuestion:
		var job QuestionJob
		if err := json.Unmarshal(env.Data, &job); err != nil {
			return fmt.Errorf("unmarshal question job: %w", err)
		}
		answer, err := d.orch.HandleUserQuestion(ctx, job.Question, job.UserID)
		if err != nil {
			d.sendFailureNotice(ctx, job.ChatID)
			return fmt.Errorf("handle question: %w", err)
		}
		return d.deliverAnswer(ctx, job.ChatID, answer)

	case EventProposal:
		var job ProposalJob
		if err := json.Unmarshal(env.Data, &job); err != nil {
			return fmt.Errorf("unmarshal proposal job: %w", err)
		}
		p, err := d.orch.GenerateCampaignProposal(ctx, job.Request, job.UserID)
		if err != nil {
			d.sendFailureNotice(ctx, job.ChatID)
			return fmt.Errorf("generate proposal: %w", err)
		}
		text := fmt.Sprintf("Drafted proposal %q (%s). Say \"approve proposal\" when you're ready, or keep refining it.", p.Title, p.ID)
		return d.send(ctx, job.ChatID, text)

	default:
		return fmt.Errorf("unknown event type %q", env.EventType)
	}
}

// deliverAnswer renders either the answer text or the clarification
// menu to the originating chat.
func (d *Dispatcher) deliverAnswer(ctx context.Context, chatID int64, answer core.Answer) error {
	if answer.Clarification != nil {
		var b strings.Builder
		b.WriteString(answer.Clarification.Prompt)
		for i, opt := range answer.Clarification.Options {
			fmt.Fprintf(&b, "\n%d. %s (%s)", i+1, opt.Name, opt.ID)
		}
		return d.send(ctx, chatID, b.String())
	}
	return d.send(ctx, chatID, answer.Text)
}

func (d *Dispatcher) send(ctx context.Context, chatID int64, text string) error {
	if d.transport == nil || chatID == 0 {
		d.logger.Printf("delivery skipped (no transport): %d chars", len(text))
		return nil
	}
	return d.transport.SendMessage(ctx, chatID, text, chat.SendOptions{Markdown: true})
}

func (d *Dispatcher) sendFailureNotice(ctx context.Context, chatID int64) {
	if err := d.send(ctx, chatID, "Something went wrong handling that. Please try again."); err != nil {
		d.logger.Printf("warn: send failure notice: %v", err)
	}
}
