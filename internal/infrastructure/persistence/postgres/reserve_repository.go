package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/domain/entities"
	domainerrors "github.com/fintrellis/ledgercore/internal/domain/errors"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
)

var _ ports.ReserveStore = (*ReserveRepository)(nil)

// ReserveRepository implements ReserveStore.
type ReserveRepository struct {
	pool *pgxpool.Pool
}

// NewReserveRepository creates the repository.
func NewReserveRepository(pool *pgxpool.Pool) *ReserveRepository {
	return &ReserveRepository{pool: pool}
}

const reserveColumns = `id, settlement_id, merchant_id, reserve_wallet_id, currency,
	reserved, used, group_id, status, created_at, expires_at, released_at`

// Save inserts a reserve row.
func (r *ReserveRepository) Save(ctx context.Context, reserve *entities.RefundReserve) error {
	q := queryEngine(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO refund_reserves
			(id, settlement_id, merchant_id, reserve_wallet_id, currency,
			 reserved, used, group_id, status, created_at, expires_at, released_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		reserve.ID(), reserve.SettlementID(), reserve.MerchantID(), reserve.ReserveWalletID(),
		reserve.Currency().Code(), reserve.Reserved().Amount(), reserve.Used().Amount(),
		reserve.GroupID(), reserve.Status(), reserve.CreatedAt(), reserve.ExpiresAt(), reserve.ReleasedAt(),
	)
	if err != nil {
		return fmt.Errorf("insert reserve: %w", err)
	}
	return nil
}

// Update persists consumption and release transitions.
func (r *ReserveRepository) Update(ctx context.Context, reserve *entities.RefundReserve) error {
	q := queryEngine(ctx, r.pool)
	tag, err := q.Exec(ctx, `
		UPDATE refund_reserves
		SET used = $2, status = $3, released_at = $4
		WHERE id = $1`,
		reserve.ID(), reserve.Used().Amount(), reserve.Status(), reserve.ReleasedAt(),
	)
	if err != nil {
		return fmt.Errorf("update reserve: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainerrors.ErrReserveNotFound
	}
	return nil
}

// FindByID loads a reserve.
func (r *ReserveRepository) FindByID(ctx context.Context, id uuid.UUID) (*entities.RefundReserve, error) {
	return r.findOne(ctx, `SELECT `+reserveColumns+` FROM refund_reserves WHERE id = $1`, id)
}

// FindBySettlement returns the reserve carved out of a settlement.
func (r *ReserveRepository) FindBySettlement(ctx context.Context, settlementID uuid.UUID) (*entities.RefundReserve, error) {
	return r.findOne(ctx, `SELECT `+reserveColumns+` FROM refund_reserves WHERE settlement_id = $1`, settlementID)
}

// ListConsumable returns the merchant's reserves with remaining capacity,
// oldest first. Refunds consume reserves in settlement order.
func (r *ReserveRepository) ListConsumable(ctx context.Context, merchantID string) ([]*entities.RefundReserve, error) {
	return r.list(ctx, `
		SELECT `+reserveColumns+` FROM refund_reserves
		WHERE merchant_id = $1 AND status IN ('ACTIVE', 'PARTIALLY_USED')
		ORDER BY created_at`, merchantID)
}

// ListExpired returns consumable reserves past their hold window.
func (r *ReserveRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*entities.RefundReserve, error) {
	return r.list(ctx, `
		SELECT `+reserveColumns+` FROM refund_reserves
		WHERE status IN ('ACTIVE', 'PARTIALLY_USED') AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2`, now, limit)
}

func (r *ReserveRepository) list(ctx context.Context, query string, args ...any) ([]*entities.RefundReserve, error) {
	q := queryEngine(ctx, r.pool)
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reserves: %w", err)
	}
	defer rows.Close()

	var reserves []*entities.RefundReserve
	for rows.Next() {
		res, err := scanReserve(rows)
		if err != nil {
			return nil, err
		}
		reserves = append(reserves, res)
	}
	return reserves, rows.Err()
}

func (r *ReserveRepository) findOne(ctx context.Context, query string, args ...any) (*entities.RefundReserve, error) {
	q := queryEngine(ctx, r.pool)
	res, err := scanReserve(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainerrors.ErrReserveNotFound
		}
		return nil, fmt.Errorf("query reserve: %w", err)
	}
	return res, nil
}

func scanReserve(row pgx.Row) (*entities.RefundReserve, error) {
	var (
		id              uuid.UUID
		settlementID    uuid.UUID
		merchantID      string
		reserveWalletID int64
		code            string
		reserved        int64
		used            int64
		groupID         uuid.UUID
		status          string
		createdAt       time.Time
		expiresAt       time.Time
		releasedAt      *time.Time
	)
	err := row.Scan(&id, &settlementID, &merchantID, &reserveWalletID, &code,
		&reserved, &used, &groupID, &status, &createdAt, &expiresAt, &releasedAt)
	if err != nil {
		return nil, err
	}
	currency, err := valueobjects.NewCurrency(code)
	if err != nil {
		return nil, err
	}
	return entities.ReconstructRefundReserve(
		id, settlementID, merchantID, reserveWalletID,
		valueobjects.NewMoney(reserved, currency),
		valueobjects.NewMoney(used, currency),
		groupID,
		entities.ReserveStatus(status),
		createdAt, expiresAt, releasedAt,
	), nil
}
