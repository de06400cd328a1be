package notify

import (
	"context"
	"errors"
)

// Multi publishes each event to every sink and reports all failures together.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, channel string, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, channel, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
