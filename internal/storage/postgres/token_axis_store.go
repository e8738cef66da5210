package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"tipscore/internal/domain"
	"tipscore/internal/storage"
)

// TokenAxisStore implements storage.TokenAxisStore using PostgreSQL.
type TokenAxisStore struct {
	pool *Pool
}

// NewTokenAxisStore creates a new TokenAxisStore.
func NewTokenAxisStore(pool *Pool) *TokenAxisStore {
	return &TokenAxisStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenAxisStore = (*TokenAxisStore)(nil)

// Upsert creates or replaces a token's classification. Historical user
// scores are never touched.
func (s *TokenAxisStore) Upsert(ctx context.Context, axis *domain.TokenAxis) error {
	if axis == nil {
		return storage.ErrInvalidInput
	}
	a := *axis
	a.Token = domain.NormalizeAddress(a.Token)
	if err := a.Validate(); err != nil {
		return storage.ErrInvalidInput
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO token_axis (token_address, is_economic, decimals, reference_rate, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token_address) DO UPDATE SET
			is_economic = EXCLUDED.is_economic,
			decimals = EXCLUDED.decimals,
			reference_rate = EXCLUDED.reference_rate,
			updated_at = EXCLUDED.updated_at
	`, a.Token, a.IsEconomic, a.Decimals, a.ReferenceRate.String(), a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert token axis: %w", err)
	}
	return nil
}

// Get retrieves a token's classification. Returns ErrNotFound for tokens
// never configured.
func (s *TokenAxisStore) Get(ctx context.Context, token string) (*domain.TokenAxis, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT token_address, is_economic, decimals, reference_rate::text, updated_at
		FROM token_axis
		WHERE token_address = $1
	`, domain.NormalizeAddress(token))

	axis, err := scanTokenAxis(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token axis: %w", err)
	}
	return axis, nil
}

// List retrieves all configured tokens, ordered by address ASC.
func (s *TokenAxisStore) List(ctx context.Context) ([]*domain.TokenAxis, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT token_address, is_economic, decimals, reference_rate::text, updated_at
		FROM token_axis
		ORDER BY token_address ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list token axes: %w", err)
	}
	defer rows.Close()

	var result []*domain.TokenAxis
	for rows.Next() {
		axis, err := scanTokenAxis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token axis row: %w", err)
		}
		result = append(result, axis)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token axis rows: %w", err)
	}
	return result, nil
}

// scanTokenAxis scans a single row into a TokenAxis.
func scanTokenAxis(row pgx.Row) (*domain.TokenAxis, error) {
	var a domain.TokenAxis
	var rate string

	err := row.Scan(&a.Token, &a.IsEconomic, &a.Decimals, &rate, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	a.ReferenceRate, err = parseDecimal(rate)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// parseDecimal parses a numeric column rendered as text.
func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return d, nil
}
