package nats

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/nexocrm/agentgate/internal/domain/audit"
)

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *AuditPublisher {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	p, err := Connect(context.Background(), url, "AGENTGATE_AUDIT_TEST", "audittest", nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := p.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return p
}

func TestAuditPublisher_WriteRoundTrip(t *testing.T) {
	p := testConnect(t)
	ctx := context.Background()

	entry := &audit.Entry{
		ID:        "test-" + t.Name(),
		Kind:      audit.KindExecution,
		Actor:     "rep-1",
		ToolName:  "create_case",
		Success:   true,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.Write(ctx, entry); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Read the entry back off the stream.
	consumer, err := p.js.CreateOrUpdateConsumer(ctx, "AGENTGATE_AUDIT_TEST", jetstream.ConsumerConfig{
		FilterSubject: "audittest.execution",
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}

	msgs, err := consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	for msg := range msgs.Messages() {
		var got audit.Entry
		if err := json.Unmarshal(msg.Data(), &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Kind != audit.KindExecution || got.Actor != "rep-1" {
			t.Errorf("entry = %+v", got)
		}
		_ = msg.Ack()
		return
	}
	t.Fatal("no message received")
}
