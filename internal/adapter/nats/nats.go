// Package nats publishes audit entries to NATS JetStream so downstream
// consumers (warehouse loaders, alerting) get the trail without coupling
// to the core's storage.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/nexocrm/agentgate/internal/domain/audit"
	"github.com/nexocrm/agentgate/internal/resilience"
)

// AuditPublisher implements auditlog.Sink over a JetStream stream. Each
// entry is published to <prefix>.<kind>, e.g. audit.execution. Publishes
// go through a circuit breaker so a NATS outage cannot stall the workflow
// engine behind connection timeouts.
type AuditPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	prefix  string
	breaker *resilience.Breaker
}

// Connect establishes a NATS connection, ensures the audit stream exists,
// and returns a publisher.
func Connect(ctx context.Context, url, streamName, subjectPrefix string, breaker *resilience.Breaker) (*AuditPublisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{subjectPrefix + ".>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &AuditPublisher{nc: nc, js: js, prefix: subjectPrefix, breaker: breaker}, nil
}

// Write publishes one audit entry. The entry is already redacted by the
// services; this layer only serializes and ships it.
func (p *AuditPublisher) Write(ctx context.Context, e *audit.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", p.prefix, e.Kind)

	publish := func() error {
		_, perr := p.js.Publish(ctx, subject, data)
		return perr
	}
	if p.breaker != nil {
		err = p.breaker.Execute(publish)
	} else {
		err = publish()
	}
	if err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Close shuts down the NATS connection.
func (p *AuditPublisher) Close() error {
	p.nc.Close()
	return nil
}
