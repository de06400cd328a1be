package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/repository"
)

const rideColumns = `id, rider_id, driver_id, rider_name, rider_phone, driver_name, driver_phone, vehicle_plate,
	vehicle_type_id, pickup_lat, pickup_lng, pickup_address, destination_lat, destination_lng, destination_address,
	distance_km, estimated_duration_sec, estimated_price, final_price, status, cancel_reason, cancelled_by,
	requested_at, accepted_at, arriving_at, arrived_at, started_at, completed_at, cancelled_at, updated_at`

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q Querier
}

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{q: db}
}

// NewRideRepositoryWithTx creates a ride repository using a transaction.
func NewRideRepositoryWithTx(tx *sql.Tx) *RideRepository {
	return &RideRepository{q: tx}
}

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	query := `INSERT INTO rides (` + rideColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30)`

	_, err := r.q.ExecContext(ctx, query,
		ride.ID,
		ride.RiderID,
		nullString(ride.DriverID),
		ride.RiderName,
		ride.RiderPhone,
		ride.DriverName,
		ride.DriverPhone,
		ride.VehiclePlate,
		ride.VehicleTypeID,
		ride.Pickup.Lat,
		ride.Pickup.Lng,
		ride.Pickup.Address,
		ride.Destination.Lat,
		ride.Destination.Lng,
		ride.Destination.Address,
		ride.DistanceKm,
		int64(ride.EstimatedDuration/time.Second),
		ride.EstimatedPrice,
		nullFloat(ride.FinalPrice),
		ride.Status,
		ride.CancelReason,
		string(ride.CancelledBy),
		ride.RequestedAt,
		nullTime(ride.AcceptedAt),
		nullTime(ride.ArrivingAt),
		nullTime(ride.ArrivedAt),
		nullTime(ride.StartedAt),
		nullTime(ride.CompletedAt),
		nullTime(ride.CancelledAt),
		ride.UpdatedAt,
	)
	return mapWriteError(err)
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`

	ride, err := scanRide(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return ride, nil
}

// GetByIDs retrieves the rides that exist among ids.
func (r *RideRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Ride, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = ANY($1)`
	return r.queryRides(ctx, query, pq.Array(ids))
}

// Update writes the ride only if its stored updated_at still matches the
// expected version.
func (r *RideRepository) Update(ctx context.Context, ride *domain.Ride, expected domain.Version) error {
	query := `
		UPDATE rides
		SET driver_id = $3, driver_name = $4, driver_phone = $5, vehicle_plate = $6,
			final_price = $7, status = $8, cancel_reason = $9, cancelled_by = $10,
			accepted_at = $11, arriving_at = $12, arrived_at = $13, started_at = $14,
			completed_at = $15, cancelled_at = $16, updated_at = $17
		WHERE id = $1 AND updated_at = $2
	`

	result, err := r.q.ExecContext(ctx, query,
		ride.ID,
		expected.Time(),
		nullString(ride.DriverID),
		ride.DriverName,
		ride.DriverPhone,
		ride.VehiclePlate,
		nullFloat(ride.FinalPrice),
		ride.Status,
		ride.CancelReason,
		string(ride.CancelledBy),
		nullTime(ride.AcceptedAt),
		nullTime(ride.ArrivingAt),
		nullTime(ride.ArrivedAt),
		nullTime(ride.StartedAt),
		nullTime(ride.CompletedAt),
		nullTime(ride.CancelledAt),
		ride.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 1 {
		return nil
	}

	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM rides WHERE id = $1)`, ride.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrVersionMismatch
}

// GetActiveByDriverID retrieves the non-terminal ride assigned to a driver.
func (r *RideRepository) GetActiveByDriverID(ctx context.Context, driverID string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides
		WHERE driver_id = $1 AND status IN ('ACCEPTED', 'DRIVER_ARRIVING', 'DRIVER_ARRIVED', 'IN_PROGRESS')
		LIMIT 1`

	ride, err := scanRide(r.q.QueryRowContext(ctx, query, driverID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ride, nil
}

// ListPendingRequestedBefore returns PENDING rides requested before cutoff, oldest first.
func (r *RideRepository) ListPendingRequestedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides
		WHERE status = 'PENDING' AND requested_at < $1
		ORDER BY requested_at
		LIMIT $2`
	return r.queryRides(ctx, query, cutoff, limit)
}

func (r *RideRepository) queryRides(ctx context.Context, query string, args ...any) ([]*domain.Ride, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*domain.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*domain.Ride, error) {
	var ride domain.Ride
	var (
		driverID    sql.NullString
		durationSec int64
		finalPrice  sql.NullFloat64
		cancelledBy string
		acceptedAt  sql.NullTime
		arrivingAt  sql.NullTime
		arrivedAt   sql.NullTime
		startedAt   sql.NullTime
		completedAt sql.NullTime
		cancelledAt sql.NullTime
	)

	err := row.Scan(
		&ride.ID,
		&ride.RiderID,
		&driverID,
		&ride.RiderName,
		&ride.RiderPhone,
		&ride.DriverName,
		&ride.DriverPhone,
		&ride.VehiclePlate,
		&ride.VehicleTypeID,
		&ride.Pickup.Lat,
		&ride.Pickup.Lng,
		&ride.Pickup.Address,
		&ride.Destination.Lat,
		&ride.Destination.Lng,
		&ride.Destination.Address,
		&ride.DistanceKm,
		&durationSec,
		&ride.EstimatedPrice,
		&finalPrice,
		&ride.Status,
		&ride.CancelReason,
		&cancelledBy,
		&ride.RequestedAt,
		&acceptedAt,
		&arrivingAt,
		&arrivedAt,
		&startedAt,
		&completedAt,
		&cancelledAt,
		&ride.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	ride.DriverID = driverID.String
	ride.EstimatedDuration = time.Duration(durationSec) * time.Second
	if finalPrice.Valid {
		price := finalPrice.Float64
		ride.FinalPrice = &price
	}
	ride.CancelledBy = domain.Role(cancelledBy)
	ride.AcceptedAt = acceptedAt.Time
	ride.ArrivingAt = arrivingAt.Time
	ride.ArrivedAt = arrivedAt.Time
	ride.StartedAt = startedAt.Time
	ride.CompletedAt = completedAt.Time
	ride.CancelledAt = cancelledAt.Time
	ride.UpdatedAt = ride.UpdatedAt.UTC()

	return &ride, nil
}
