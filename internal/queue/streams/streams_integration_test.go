package streams_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/adpilot-bot/adpilot/internal/queue/streams"
)

func startRedis(t *testing.T, ctx context.Context) *redis.Client {
	t.Helper()

	redisC, err := tcRedis.RunContainer(ctx, testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")))
	if err != nil {
		t.Fatalf("redis container: %v", err)
	}
	t.Cleanup(func() { _ = redisC.Terminate(ctx) })

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPublishConsumeAckRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	client := startRedis(t, ctx)
	const stream = "jobs.test"

	if err := streams.EnsureGroup(ctx, client, stream, "workers"); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	// Creating the group again is a no-op.
	if err := streams.EnsureGroup(ctx, client, stream, "workers"); err != nil {
		t.Fatalf("ensure group twice: %v", err)
	}

	pub := streams.NewPublisher(client)
	id, err := pub.PublishJSON(ctx, stream, "report.daily", map[string]bool{"notify": true})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if id == "" {
		t.Fatalf("publish returned no message id")
	}

	cons := streams.NewConsumer(client, "workers", "c1")
	msgs, err := cons.Read(ctx, stream, streams.WithBlock(2*time.Second), streams.WithCount(10))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("read %d messages, want 1", len(msgs))
	}
	env := msgs[0].Envelope
	if env.EventType != "report.daily" {
		t.Fatalf("event type = %q", env.EventType)
	}
	if env.EventID == "" {
		t.Fatalf("publisher must assign an event id")
	}
	if string(env.Data) != `{"notify":true}` {
		t.Fatalf("data = %s", env.Data)
	}

	if err := cons.Ack(ctx, stream, msgs[0].ID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	pending, err := client.XPending(ctx, stream, "workers").Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("pending = %d after ack, want 0", pending.Count)
	}
}

// A message left unacked by one consumer is reclaimable by another.
func TestAutoClaimRecoversAbandonedMessages(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	client := startRedis(t, ctx)
	const stream = "jobs.claim"

	if err := streams.EnsureGroup(ctx, client, stream, "workers"); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	pub := streams.NewPublisher(client)
	if _, err := pub.PublishJSON(ctx, stream, "sync.data", map[string]string{"mode": "recent"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	dead := streams.NewConsumer(client, "workers", "dead")
	msgs, err := dead.Read(ctx, stream, streams.WithBlock(2*time.Second))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("read %d messages, want 1", len(msgs))
	}
	// No ack: simulate a consumer dying mid-job.

	alive := streams.NewConsumer(client, "workers", "alive")
	claimed, _, err := alive.AutoClaim(ctx, stream, 0, "0-0", 10)
	if err != nil {
		t.Fatalf("autoclaim: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("claimed %d messages, want 1", len(claimed))
	}
	if claimed[0].Envelope.EventType != "sync.data" {
		t.Fatalf("claimed event = %q", claimed[0].Envelope.EventType)
	}
}

// Garbage on the stream is acked and dropped rather than wedging the
// group.
func TestConsumerDropsMalformedEntries(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	client := startRedis(t, ctx)
	const stream = "jobs.garbage"

	if err := streams.EnsureGroup(ctx, client, stream, "workers"); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	if err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{"envelope": "not json"},
	}).Err(); err != nil {
		t.Fatalf("xadd: %v", err)
	}

	cons := streams.NewConsumer(client, "workers", "c1")
	msgs, err := cons.Read(ctx, stream, streams.WithBlock(2*time.Second))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("malformed entry surfaced: %+v", msgs)
	}
	pending, err := client.XPending(ctx, stream, "workers").Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("malformed entry left pending")
	}
}
