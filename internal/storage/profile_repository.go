package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/ip-report-scanner/internal/models"
	"github.com/ip-report-scanner/internal/types"
	"github.com/jackc/pgx/v5"
)

// ProfileRepository handles IP profile persistence
type ProfileRepository struct {
	db *PostgresDB
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *PostgresDB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetOrCreate resolves a profile idempotently, keyed by normalized
// address. Concurrent creators converge on the first inserted row.
func (r *ProfileRepository) GetOrCreate(ctx context.Context, profile *models.IPProfile) (*models.IPProfile, bool, error) {
	query := `
		INSERT INTO ip_profiles (address, is_private, country_code, created_at)
		VALUES ($1, $2, '', $3)
		ON CONFLICT (address) DO NOTHING
	`

	tag, err := r.db.Pool().Exec(ctx, query, profile.Address, profile.IsPrivate, profile.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create profile: %w", err)
	}
	created := tag.RowsAffected() > 0

	stored, err := r.Get(ctx, profile.Address)
	if err != nil {
		return nil, false, err
	}

	return stored, created, nil
}

// Get retrieves a profile by normalized address
func (r *ProfileRepository) Get(ctx context.Context, address string) (*models.IPProfile, error) {
	query := `
		SELECT address, is_private, country_code, created_at
		FROM ip_profiles
		WHERE address = $1
	`

	var profile models.IPProfile
	err := r.db.Pool().QueryRow(ctx, query, address).Scan(
		&profile.Address,
		&profile.IsPrivate,
		&profile.CountryCode,
		&profile.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &types.ServiceError{
				Code:    types.ErrCodeProfileNotFound,
				Message: fmt.Sprintf("profile not found: %s", address),
			}
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return &profile, nil
}

// GetMany retrieves profiles for the given addresses, preserving order
func (r *ProfileRepository) GetMany(ctx context.Context, addresses []string) ([]*models.IPProfile, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	query := `
		SELECT address, is_private, country_code, created_at
		FROM ip_profiles
		WHERE address = ANY($1)
	`

	rows, err := r.db.Pool().Query(ctx, query, addresses)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	byAddress := make(map[string]*models.IPProfile, len(addresses))
	for rows.Next() {
		var profile models.IPProfile
		if err := rows.Scan(&profile.Address, &profile.IsPrivate, &profile.CountryCode, &profile.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		byAddress[profile.Address] = &profile
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read profiles: %w", err)
	}

	result := make([]*models.IPProfile, 0, len(addresses))
	for _, address := range addresses {
		if profile, ok := byAddress[address]; ok {
			result = append(result, profile)
		}
	}

	return result, nil
}

// SetCountry fills the country code write-once. A profile whose country
// is already resolved is left untouched.
func (r *ProfileRepository) SetCountry(ctx context.Context, address, countryCode string) error {
	query := `
		UPDATE ip_profiles
		SET country_code = $2
		WHERE address = $1 AND country_code = ''
	`

	if _, err := r.db.Pool().Exec(ctx, query, address, countryCode); err != nil {
		return fmt.Errorf("failed to set profile country: %w", err)
	}
	return nil
}
