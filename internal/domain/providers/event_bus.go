package providers

import (
	"context"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to scan
// lifecycle events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.ScanEvent) error

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.ScanEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

// EventChannel constants for different event types
const (
	// EventChannelScanUpdates is the channel for all scan updates
	EventChannelScanUpdates = "scans:updates"

	// EventChannelUserPrefix is the prefix for per-user channels
	EventChannelUserPrefix = "scans:user:"
)

// GetUserChannel returns the channel name for a specific user
func GetUserChannel(userID string) string {
	return EventChannelUserPrefix + userID
}
