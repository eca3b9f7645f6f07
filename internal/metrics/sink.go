package metrics

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ent0n29/mamashield/internal/alertfeed"
	"github.com/ent0n29/mamashield/internal/observability"
)

// Sink records impact events without ever failing the caller: a broken
// metric store must not cost a mother her reply. Store errors are logged,
// the Prometheus counter still moves, and alert-worthy kinds reach the ops
// feed.
type Sink struct {
	store  Store
	feed   *alertfeed.Hub
	obs    *observability.Metrics
	logger *zap.Logger
}

func NewSink(store Store, feed *alertfeed.Hub, obs *observability.Metrics, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{store: store, feed: feed, obs: obs, logger: logger}
}

func (s *Sink) Record(ctx context.Context, eventType string, details map[string]string) {
	if s == nil {
		return
	}
	e := Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		Count:   1,
		Details: details,
		At:      time.Now().UTC(),
	}

	if s.store != nil {
		if err := s.store.Append(ctx, e); err != nil {
			s.logger.Error("metric append failed",
				zap.String("event", eventType),
				zap.Error(err))
		}
	}
	if s.obs != nil {
		s.obs.DomainEvents.WithLabelValues(eventType).Inc()
	}
	if s.feed != nil {
		if kind, ok := feedKind(eventType); ok {
			s.feed.Publish(alertfeed.Event{Kind: kind, Body: renderDetails(details), At: e.At})
		}
	}
}

func feedKind(eventType string) (string, bool) {
	switch eventType {
	case EventCHWReferral:
		return alertfeed.KindCHWAlert, true
	case EventDangerFlag:
		return alertfeed.KindDangerFlag, true
	case EventFarmClinicReferral:
		return alertfeed.KindFarmReferral, true
	}
	return "", false
}

func renderDetails(details map[string]string) string {
	if len(details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+details[k])
	}
	return strings.Join(parts, " ")
}
