package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/wheaney/social-freedom-sub000/internal/adapters/wire"
	"github.com/wheaney/social-freedom-sub000/internal/core/domain"
	"github.com/wheaney/social-freedom-sub000/internal/core/ports"
)

var ingestTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ingested_events_total",
		Help: "Events received from followed accounts, by class and outcome",
	},
	[]string{"class", "outcome"},
)

const ingestTimeout = 30 * time.Second

// EventHandler reçoit les événements publiés par les comptes suivis.
type EventHandler struct {
	service ports.FanoutService
}

func NewEventHandler(service ports.FanoutService) *EventHandler {
	return &EventHandler{service: service}
}

// Handlers associe chaque classe de topic à son callback NATS.
func (h *EventHandler) Handlers() map[ports.TopicKind]nats.MsgHandler {
	return map[ports.TopicKind]nats.MsgHandler{
		ports.TopicPosts:   h.HandlePost,
		ports.TopicProfile: h.HandleProfile,
	}
}

func (h *EventHandler) HandlePost(msg *nats.Msg) {
	ctx, span := startSpan(msg, "process_post_event")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, ingestTimeout)
	defer cancel()

	event, err := wire.Decode[wire.PostEvent](msg.Data)
	if err != nil {
		span.RecordError(err)
		ingestTotal.WithLabelValues("posts", "malformed").Inc()
		slog.ErrorContext(ctx, "❌ Invalid post event format", "topic", msg.Subject, "error", err)
		return
	}

	outcome, err := h.service.IngestPost(ctx, msg.Subject, event.ToDomain())
	h.record(ctx, span, "posts", outcome, err, "post_id", event.ID)
}

func (h *EventHandler) HandleProfile(msg *nats.Msg) {
	ctx, span := startSpan(msg, "process_profile_event")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, ingestTimeout)
	defer cancel()

	update, err := wire.Decode[wire.AccountIdentity](msg.Data)
	if err != nil {
		span.RecordError(err)
		ingestTotal.WithLabelValues("profile", "malformed").Inc()
		slog.ErrorContext(ctx, "❌ Invalid profile event format", "topic", msg.Subject, "error", err)
		return
	}

	outcome, err := h.service.IngestProfile(ctx, msg.Subject, update.ToDomain())
	h.record(ctx, span, "profile", outcome, err, "owner_id", update.UserID)
}

func (h *EventHandler) record(ctx context.Context, span trace.Span, class string, outcome domain.IngestOutcome, err error, attrs ...any) {
	if err != nil {
		span.RecordError(err)
		ingestTotal.WithLabelValues(class, "error").Inc()
		slog.ErrorContext(ctx, "❌ Ingest failed", append(attrs, "class", class, "error", err)...)
		return
	}
	ingestTotal.WithLabelValues(class, string(outcome)).Inc()
	slog.DebugContext(ctx, "📨 Event processed", append(attrs, "class", class, "outcome", outcome)...)
}

// startSpan reprend la trace de l'émetteur depuis les headers NATS.
func startSpan(msg *nats.Msg, name string) (context.Context, trace.Span) {
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(msg.Header))
	return otel.Tracer("event-ingest").Start(ctx, name, trace.WithSpanKind(trace.SpanKindConsumer))
}
