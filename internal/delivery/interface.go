package delivery

import (
	"context"
)

// ChannelSender is the outbound delivery port, implemented once per channel.
// The wire mechanics of reaching a device, mailbox or phone are the sender's
// concern; the cascade only consumes this contract.
type ChannelSender interface {
	// Send delivers the payload to the user over this channel. Failures must
	// be classified through pkg/errors so the retry engine can distinguish
	// transient, rate-limited, invalid-target and terminal outcomes.
	Send(ctx context.Context, userID string, payload Payload) (SendReceipt, error)

	// Channel returns the channel this sender serves.
	Channel() Channel

	// CostPerMessage returns the nominal per-message cost, used for the
	// cascade's cost-ceiling check before any attempt is made.
	CostPerMessage() float64
}

// PreferencesStore reads user delivery preferences from the profile store.
type PreferencesStore interface {
	GetPreferences(ctx context.Context, userID string) (*UserPreferences, error)
}

// ResultStore persists delivery results. Persistence is the caller's
// responsibility; the cascade itself never writes.
type ResultStore interface {
	SaveResult(ctx context.Context, result *DeliveryResult) error
}
