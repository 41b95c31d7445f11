package infra

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/eliteGoblin/bidbot/internal/domain"
)

// Invoker hands a signing request to the agent over the first transport that accepts it.
type Invoker struct {
	transports []domain.SigningTransport
	logger     *zap.Logger
}

// NewInvoker creates an invoker that tries transports in the given order.
func NewInvoker(logger *zap.Logger, transports ...domain.SigningTransport) *Invoker {
	return &Invoker{
		transports: transports,
		logger:     logger,
	}
}

// Transports returns the transports in dispatch order.
func (inv *Invoker) Transports() []domain.SigningTransport {
	return inv.transports
}

// Invoke tries every available transport in order and returns the name of the
// first one that accepted the request. If none did, the error is a
// SigningDispatchFailed BidError joining each transport's failure.
func (inv *Invoker) Invoke(ctx context.Context, req domain.SigningRequest, callbackURL string) (string, error) {
	var failures []error

	for _, transport := range inv.transports {
		if !transport.Available() {
			inv.logger.Debug("signing transport unavailable, skipping",
				zap.String("transport", transport.Name()))
			failures = append(failures, fmt.Errorf("%s: unavailable", transport.Name()))
			continue
		}

		if err := transport.Dispatch(ctx, req, callbackURL); err != nil {
			inv.logger.Warn("signing transport failed",
				zap.String("transport", transport.Name()),
				zap.String("request_id", req.RequestID),
				zap.Error(err))
			failures = append(failures, fmt.Errorf("%s: %w", transport.Name(), err))

			// A stop request aborts the whole dispatch, not just this transport.
			if ctx.Err() != nil {
				break
			}
			continue
		}

		inv.logger.Info("signing request dispatched",
			zap.String("transport", transport.Name()),
			zap.String("request_id", req.RequestID))
		return transport.Name(), nil
	}

	if len(failures) == 0 {
		failures = append(failures, errors.New("no signing transports configured"))
	}
	return "", domain.NewBidError(domain.CodeSigningDispatchFailed, errors.Join(failures...))
}

// Ensure Invoker implements domain.SigningInvoker.
var _ domain.SigningInvoker = (*Invoker)(nil)
