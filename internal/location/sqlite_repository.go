package location

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shutterspot/shutterspot/internal/geo"
)

// SQLiteRepository is the on-device implementation of Repository.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an already migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a location.
func (r *SQLiteRepository) Create(ctx context.Context, loc *Location) error {
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
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		loc.ID, loc.Title, loc.Description,
		loc.Coordinate.Latitude, loc.Coordinate.Longitude,
		loc.City, loc.State, loc.PhotoPath,
		loc.IsDeleted, loc.CreatedAt.UnixMilli(),
	)
	return err
}

// Get retrieves a location by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Location, error) {
	row := r.db.QueryRowContext(ctx, selectLocation+` WHERE id = ?`, id)

	loc, err := scanSQLiteLocation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLocationNotFound
		}
		return nil, err
	}
	return loc, nil
}

// GetActiveCandidates lists non-deleted locations, oldest first.
func (r *SQLiteRepository) GetActiveCandidates(ctx context.Context) ([]Location, error) {
	rows, err := r.db.QueryContext(ctx, selectLocation+` WHERE is_deleted = 0 ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Location
	for rows.Next() {
		loc, err := scanSQLiteLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *loc)
	}
	return out, rows.Err()
}

// SoftDelete marks a location deleted.
func (r *SQLiteRepository) SoftDelete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE locations SET is_deleted = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLocationNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteLocation(row scanner) (*Location, error) {
	var (
		loc       Location
		lat, lon  float64
		createdAt int64
	)

	if err := row.Scan(
		&loc.ID, &loc.Title, &loc.Description,
		&lat, &lon,
		&loc.City, &loc.State, &loc.PhotoPath,
		&loc.IsDeleted, &createdAt,
	); err != nil {
		return nil, err
	}

	coord, err := geo.NewCoordinate(lat, lon)
	if err != nil {
		return nil, fmt.Errorf("location %s: %w", loc.ID, err)
	}
	loc.Coordinate = coord
	loc.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &loc, nil
}
