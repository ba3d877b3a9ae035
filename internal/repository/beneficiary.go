package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/kwabena-osei/vaultcore/internal/domain"
)

const beneficiaryColumns = `id, customer_id, holder_name, institution,
	account_number, routing_code, branch, jurisdiction, currency, created_at`

type BeneficiaryRepository struct {
	db *sql.DB
}

func NewBeneficiaryRepository(db *sql.DB) *BeneficiaryRepository {
	return &BeneficiaryRepository{db: db}
}

// Lookup is scoped to the owning customer so one customer can never resolve
// another's saved beneficiaries.
func (r *BeneficiaryRepository) Lookup(ctx context.Context, customerID, beneficiaryID uuid.UUID) (*domain.Beneficiary, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+beneficiaryColumns+` FROM beneficiaries
		WHERE id = $1 AND customer_id = $2`,
		beneficiaryID, customerID,
	)

	var b domain.Beneficiary
	err := row.Scan(
		&b.ID, &b.CustomerID, &b.HolderName, &b.Institution,
		&b.AccountNumber, &b.RoutingCode, &b.Branch, &b.Jurisdiction,
		&b.Currency, &b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("Lookup: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("Lookup: %w", err)
	}
	return &b, nil
}

// CachedDirectory fronts the beneficiary table with a short TTL cache.
// Beneficiary records change rarely and are read on every prefilled
// initiation, so stale reads within the TTL are acceptable.
type CachedDirectory struct {
	repo  *BeneficiaryRepository
	cache *gocache.Cache
}

func NewCachedDirectory(repo *BeneficiaryRepository, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{
		repo:  repo,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (d *CachedDirectory) Lookup(ctx context.Context, customerID, beneficiaryID uuid.UUID) (*domain.Beneficiary, error) {
	key := customerID.String() + "/" + beneficiaryID.String()
	if cached, ok := d.cache.Get(key); ok {
		b := cached.(domain.Beneficiary)
		return &b, nil
	}

	b, err := d.repo.Lookup(ctx, customerID, beneficiaryID)
	if err != nil {
		return nil, fmt.Errorf("Lookup: %w", err)
	}

	d.cache.SetDefault(key, *b)
	return b, nil
}
