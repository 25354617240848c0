package location

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shutterspot/shutterspot/internal/geo"
)

const selectLocation = `
	SELECT
		id, title, description,
		latitude, longitude,
		city, state, photo_path,
		is_deleted, created_at
	FROM locations
`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL location repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create inserts a location.
func (r *PostgresRepository) Create(ctx context.Context, loc *Location) error {
	if loc.ID == "" {
		loc.ID = uuid.NewString()
	}
	if loc.CreatedAt.IsZero() {
		loc.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO locations (
			id, title, description, latitude, longitude,
			city, state, photo_path, is_deleted, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		loc.ID, loc.Title, loc.Description,
		loc.Coordinate.Latitude, loc.Coordinate.Longitude,
		loc.City, loc.State, loc.PhotoPath,
		loc.IsDeleted, loc.CreatedAt,
	)
	return err
}

// Get retrieves a location by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Location, error) {
	row := r.pool.QueryRow(ctx, selectLocation+` WHERE id = $1`, id)

	loc, err := scanLocation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLocationNotFound
		}
		return nil, err
	}
	return loc, nil
}

// GetActiveCandidates lists non-deleted locations, oldest first.
func (r *PostgresRepository) GetActiveCandidates(ctx context.Context) ([]Location, error) {
	rows, err := r.pool.Query(ctx, selectLocation+` WHERE NOT is_deleted ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *loc)
	}
	return out, rows.Err()
}

// SoftDelete marks a location deleted.
func (r *PostgresRepository) SoftDelete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE locations SET is_deleted = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLocationNotFound
	}
	return nil
}

// scanLocation scans a location from a row.
func scanLocation(row pgx.Row) (*Location, error) {
	var (
		loc      Location
		lat, lon float64
	)

	if err := row.Scan(
		&loc.ID, &loc.Title, &loc.Description,
		&lat, &lon,
		&loc.City, &loc.State, &loc.PhotoPath,
		&loc.IsDeleted, &loc.CreatedAt,
	); err != nil {
		return nil, err
	}

	coord, err := geo.NewCoordinate(lat, lon)
	if err != nil {
		return nil, fmt.Errorf("location %s: %w", loc.ID, err)
	}
	loc.Coordinate = coord
	return &loc, nil
}
