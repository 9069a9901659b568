package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/wheaney/social-freedom-sub000/internal/core/domain"
)

type JetStreamConfig struct {
	Stream     string
	Subject    string
	Durable    string
	MaxDeliver int
	RetryDelay time.Duration
}

// JetStreamGate persiste les jobs dans un stream work-queue : un job n'est
// consommé qu'une fois, et relivré tant qu'il n'est pas acquitté.
type JetStreamGate struct {
	js  jetstream.JetStream
	cfg JetStreamConfig
}

// NewJetStreamGate s'assure que le stream existe (Idempotent)
func NewJetStreamGate(ctx context.Context, js jetstream.JetStream, cfg JetStreamConfig) (*JetStreamGate, error) {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       cfg.Stream,
		Subjects:   []string{cfg.Subject},
		Retention:  jetstream.WorkQueuePolicy,
		Storage:    jetstream.FileStorage,
		Replicas:   1,
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("create dispatch stream: %w", err)
	}
	return &JetStreamGate{js: js, cfg: cfg}, nil
}

func (g *JetStreamGate) Enqueue(ctx context.Context, job domain.DispatchJob) error {
	data, err := encodeJob(job)
	if err != nil {
		return err
	}

	msg := &nats.Msg{
		Subject: g.cfg.Subject,
		Data:    data,
		Header:  nats.Header{},
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	// L'ID du job sert de clé de dédoublonnage côté serveur
	if _, err := g.js.PublishMsg(ctx, msg, jetstream.WithMsgID(job.ID)); err != nil {
		return &domain.TransportError{Origin: "jetstream", Path: g.cfg.Subject, Err: err}
	}
	slog.DebugContext(ctx, "📮 Dispatch job enqueued", "job_id", job.ID, "kind", job.Kind)
	return nil
}

// Consume démarre le consumer durable et confie chaque message au worker.
func (g *JetStreamGate) Consume(ctx context.Context, worker *Worker) (jetstream.ConsumeContext, error) {
	cons, err := g.js.CreateOrUpdateConsumer(ctx, g.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       g.cfg.Durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: g.cfg.Subject,
		MaxDeliver:    g.cfg.MaxDeliver,
		AckWait:       30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("create dispatch consumer: %w", err)
	}

	tracer := otel.Tracer("dispatch-worker")
	return cons.Consume(func(msg jetstream.Msg) {
		mctx := otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(msg.Headers()))
		mctx, span := tracer.Start(mctx, "process_dispatch_job", trace.WithSpanKind(trace.SpanKindConsumer))
		defer span.End()

		mctx, cancel := context.WithTimeout(mctx, 30*time.Second)
		defer cancel()

		err := worker.Execute(mctx, msg.Data())
		switch {
		case err == nil:
			_ = msg.Ack()
		case !retryable(err):
			span.RecordError(err)
			slog.ErrorContext(mctx, "❌ Dropping dispatch job", "error", err)
			_ = msg.Term()
		default:
			span.RecordError(err)
			if nakErr := msg.NakWithDelay(g.cfg.RetryDelay); nakErr != nil && !errors.Is(nakErr, nats.ErrConnectionClosed) {
				slog.WarnContext(mctx, "Failed to nak dispatch job", "error", nakErr)
			}
		}
	})
}
