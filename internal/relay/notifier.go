package relay

import (
	"context"
	"errors"

	"github.com/Klingon-tech/klingnet-lock/internal/escrow"
	klog "github.com/Klingon-tech/klingnet-lock/internal/log"
	"github.com/rs/zerolog"
)

// LogNotifier writes each event to the log.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier returns a notifier logging to the relay component logger.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: klog.WithComponent("relay")}
}

// Notify logs ev.
func (n *LogNotifier) Notify(_ context.Context, ev *escrow.Event) error {
	n.logger.Info().
		Uint64("seq", ev.Seq).
		Str("id", ev.ID.String()).
		Str("asset", ev.Asset.String()).
		Str("sender", ev.Sender.String()).
		Uint64("amount", ev.Amount).
		Str("recipient", ev.Recipient).
		Msg("TokensLocked")
	return nil
}

// Multi fans an event out to several notifiers. Every notifier is called;
// the errors are joined.
type Multi []escrow.Notifier

// Notify calls each notifier in order.
func (m Multi) Notify(ctx context.Context, ev *escrow.Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
