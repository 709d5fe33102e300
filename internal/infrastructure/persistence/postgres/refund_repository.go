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

var _ ports.RefundStore = (*RefundRepository)(nil)

// RefundRepository implements RefundStore. A partial unique index on
// order_id permits at most one live FULL refund per order.
type RefundRepository struct {
	pool *pgxpool.Pool
}

// NewRefundRepository creates the repository.
func NewRefundRepository(pool *pgxpool.Pool) *RefundRepository {
	return &RefundRepository{pool: pool}
}

const refundColumns = `id, order_id, settlement_id, merchant_id, merchant_wallet_id,
	buyer_id, buyer_wallet_id, amount, original_amount, currency, reason, status,
	refund_type, initiator_kind, group_id, idempotency_key, created_at, processed_at, expires_at`

// Save inserts a refund row.
func (r *RefundRepository) Save(ctx context.Context, refund *entities.Refund) error {
	q := queryEngine(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO refunds
			(id, order_id, settlement_id, merchant_id, merchant_wallet_id,
			 buyer_id, buyer_wallet_id, amount, original_amount, currency, reason, status,
			 refund_type, initiator_kind, group_id, idempotency_key, created_at, processed_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		refund.ID(), refund.OrderID(), refund.SettlementID(), refund.MerchantID(), refund.MerchantWalletID(),
		refund.BuyerID(), refund.BuyerWalletID(), refund.Amount().Amount(), refund.OriginalAmount().Amount(),
		refund.Currency().Code(), refund.Reason(), refund.Status(),
		refund.Type(), refund.Initiator(), refund.GroupID(), refund.IdempotencyKey(),
		refund.CreatedAt(), refund.ProcessedAt(), refund.ExpiresAt(),
	)
	if err != nil {
		if isUniqueViolation(err, "idempotency_key") {
			return domainerrors.ErrIdempotencyConflict
		}
		if isUniqueViolation(err, "order_id") {
			return domainerrors.ErrAlreadyRefunded
		}
		return fmt.Errorf("insert refund: %w", err)
	}
	return nil
}

// Update persists a status transition.
func (r *RefundRepository) Update(ctx context.Context, refund *entities.Refund) error {
	q := queryEngine(ctx, r.pool)
	tag, err := q.Exec(ctx, `
		UPDATE refunds
		SET status = $2, group_id = $3, processed_at = $4, expires_at = $5
		WHERE id = $1`,
		refund.ID(), refund.Status(), refund.GroupID(), refund.ProcessedAt(), refund.ExpiresAt(),
	)
	if err != nil {
		return fmt.Errorf("update refund: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainerrors.ErrRefundNotFound
	}
	return nil
}

// FindByID loads a refund.
func (r *RefundRepository) FindByID(ctx context.Context, id uuid.UUID) (*entities.Refund, error) {
	return r.findOne(ctx, `SELECT `+refundColumns+` FROM refunds WHERE id = $1`, id)
}

// FindByIdempotencyKey returns the refund created under the key.
func (r *RefundRepository) FindByIdempotencyKey(ctx context.Context, key string) (*entities.Refund, error) {
	return r.findOne(ctx, `SELECT `+refundColumns+` FROM refunds WHERE idempotency_key = $1`, key)
}

// ListByOrder returns every refund against an order, oldest first.
func (r *RefundRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*entities.Refund, error) {
	return r.list(ctx, `
		SELECT `+refundColumns+` FROM refunds
		WHERE order_id = $1
		ORDER BY created_at`, orderID)
}

// ListByMerchant pages a merchant's refunds, newest first.
func (r *RefundRepository) ListByMerchant(ctx context.Context, merchantID string, offset, limit int) ([]*entities.Refund, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx, `
		SELECT `+refundColumns+` FROM refunds
		WHERE merchant_id = $1
		ORDER BY created_at DESC
		OFFSET $2 LIMIT $3`, merchantID, offset, limit)
}

// ListPendingFunds returns PENDING_FUNDS refunds still inside their deadline.
func (r *RefundRepository) ListPendingFunds(ctx context.Context, now time.Time, limit int) ([]*entities.Refund, error) {
	return r.list(ctx, `
		SELECT `+refundColumns+` FROM refunds
		WHERE status = 'PENDING_FUNDS' AND expires_at > $1
		ORDER BY created_at
		LIMIT $2`, now, limit)
}

// ListExpired returns PENDING_FUNDS refunds past their deadline.
func (r *RefundRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*entities.Refund, error) {
	return r.list(ctx, `
		SELECT `+refundColumns+` FROM refunds
		WHERE status = 'PENDING_FUNDS' AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2`, now, limit)
}

func (r *RefundRepository) list(ctx context.Context, query string, args ...any) ([]*entities.Refund, error) {
	q := queryEngine(ctx, r.pool)
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	defer rows.Close()

	var refunds []*entities.Refund
	for rows.Next() {
		ref, err := scanRefund(rows)
		if err != nil {
			return nil, err
		}
		refunds = append(refunds, ref)
	}
	return refunds, rows.Err()
}

func (r *RefundRepository) findOne(ctx context.Context, query string, args ...any) (*entities.Refund, error) {
	q := queryEngine(ctx, r.pool)
	ref, err := scanRefund(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainerrors.ErrRefundNotFound
		}
		return nil, fmt.Errorf("query refund: %w", err)
	}
	return ref, nil
}

func scanRefund(row pgx.Row) (*entities.Refund, error) {
	var (
		id               uuid.UUID
		orderID          uuid.UUID
		settlementID     *uuid.UUID
		merchantID       string
		merchantWalletID int64
		buyerID          string
		buyerWalletID    int64
		amount           int64
		originalAmount   int64
		code             string
		reason           string
		status           string
		refundType       string
		initiatorKind    string
		groupID          *uuid.UUID
		idempotencyKey   *string
		createdAt        time.Time
		processedAt      *time.Time
		expiresAt        *time.Time
	)
	err := row.Scan(&id, &orderID, &settlementID, &merchantID, &merchantWalletID,
		&buyerID, &buyerWalletID, &amount, &originalAmount, &code, &reason, &status,
		&refundType, &initiatorKind, &groupID, &idempotencyKey, &createdAt, &processedAt, &expiresAt)
	if err != nil {
		return nil, err
	}
	currency, err := valueobjects.NewCurrency(code)
	if err != nil {
		return nil, err
	}
	return entities.ReconstructRefund(
		id, orderID, settlementID, merchantID, merchantWalletID,
		buyerID, buyerWalletID,
		valueobjects.NewMoney(amount, currency),
		valueobjects.NewMoney(originalAmount, currency),
		reason,
		entities.RefundStatus(status),
		entities.RefundType(refundType),
		entities.InitiatorKind(initiatorKind),
		groupID, idempotencyKey,
		createdAt, processedAt, expiresAt,
	), nil
}
