// Package notify provides the fire-and-forget notification dispatcher
// consumed by the sync pipeline and badge awarder.
package notify

import "context"

// Dispatcher delivers a short user-facing message. Delivery is best effort;
// callers log failures and move on.
type Dispatcher interface {
	Send(ctx context.Context, userID, message string) error
}

// Noop is the default Dispatcher; it drops every message.
type Noop struct{}

// Send implements Dispatcher.
func (Noop) Send(ctx context.Context, userID, message string) error {
	return nil
}
