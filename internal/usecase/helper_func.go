package usecase

import (
	"context"
	"strings"

	"callcenter-service/internal/events"

	"go.uber.org/zap"
)

// dedupeIDs trims ids, drops blanks and keeps first occurrences in order.
func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func publish(ctx context.Context, pub events.Publisher, logger *zap.Logger, evt events.Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, evt); err != nil {
		logger.Warn("event not delivered",
			zap.String("event_type", evt.Type),
			zap.String("event_id", evt.ID),
			zap.Error(err))
	}
}
