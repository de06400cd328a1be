package repository

import "context"

// Transactor runs fn against repositories bound to a single database
// transaction. The transaction commits if fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(rides RideRepository, drivers DriverRepository) error) error
}
