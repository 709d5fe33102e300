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
)

var _ ports.GroupStore = (*GroupRepository)(nil)

// GroupRepository implements GroupStore.
type GroupRepository struct {
	pool *pgxpool.Pool
}

// NewGroupRepository creates the repository.
func NewGroupRepository(pool *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

const groupColumns = `id, status, merchant_id, buyer_id, reason, idempotency_key, created_at, finalized_at`

// Save inserts a new group. A duplicate idempotency key maps to
// ErrIdempotencyConflict so the caller can replay the original.
func (r *GroupRepository) Save(ctx context.Context, group *entities.TransactionGroup) error {
	q := queryEngine(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO transaction_groups
			(id, status, merchant_id, buyer_id, reason, idempotency_key, created_at, finalized_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		group.ID(), group.Status(), group.MerchantID(), group.BuyerID(),
		group.Reason(), group.IdempotencyKey(), group.CreatedAt(), group.FinalizedAt(),
	)
	if err != nil {
		if isUniqueViolation(err, "idempotency_key") {
			return domainerrors.ErrIdempotencyConflict
		}
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

// Update persists a status transition.
func (r *GroupRepository) Update(ctx context.Context, group *entities.TransactionGroup) error {
	q := queryEngine(ctx, r.pool)
	tag, err := q.Exec(ctx, `
		UPDATE transaction_groups
		SET status = $2, reason = $3, finalized_at = $4
		WHERE id = $1`,
		group.ID(), group.Status(), group.Reason(), group.FinalizedAt(),
	)
	if err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainerrors.ErrGroupNotFound
	}
	return nil
}

// FindByID loads a group.
func (r *GroupRepository) FindByID(ctx context.Context, id uuid.UUID) (*entities.TransactionGroup, error) {
	return r.findOne(ctx, `SELECT `+groupColumns+` FROM transaction_groups WHERE id = $1`, id)
}

// FindByIDForUpdate loads a group under its row lock.
func (r *GroupRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entities.TransactionGroup, error) {
	return r.findOne(ctx, `SELECT `+groupColumns+` FROM transaction_groups WHERE id = $1 FOR UPDATE`, id)
}

// FindByIdempotencyKey returns the group created under the key.
func (r *GroupRepository) FindByIdempotencyKey(ctx context.Context, key string) (*entities.TransactionGroup, error) {
	return r.findOne(ctx, `SELECT `+groupColumns+` FROM transaction_groups WHERE idempotency_key = $1`, key)
}

// ListStaleInProgress returns IN_PROGRESS groups older than the cutoff.
// Groups backing an active refund reserve are excluded; those holds live for
// the reserve window and the release sweep finalizes them.
func (r *GroupRepository) ListStaleInProgress(ctx context.Context, olderThan time.Time, limit int) ([]*entities.TransactionGroup, error) {
	q := queryEngine(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT `+groupColumns+` FROM transaction_groups g
		WHERE g.status = 'IN_PROGRESS' AND g.created_at < $1
		  AND NOT EXISTS (
			SELECT 1 FROM refund_reserves rr WHERE rr.group_id = g.id
		  )
		ORDER BY g.created_at
		LIMIT $2`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale groups: %w", err)
	}
	defer rows.Close()

	var groups []*entities.TransactionGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (r *GroupRepository) findOne(ctx context.Context, query string, args ...any) (*entities.TransactionGroup, error) {
	q := queryEngine(ctx, r.pool)
	g, err := scanGroup(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainerrors.ErrGroupNotFound
		}
		return nil, fmt.Errorf("query group: %w", err)
	}
	return g, nil
}

func scanGroup(row pgx.Row) (*entities.TransactionGroup, error) {
	var (
		id             uuid.UUID
		status         string
		merchantID     *string
		buyerID        *string
		reason         string
		idempotencyKey *string
		createdAt      time.Time
		finalizedAt    *time.Time
	)
	err := row.Scan(&id, &status, &merchantID, &buyerID, &reason, &idempotencyKey, &createdAt, &finalizedAt)
	if err != nil {
		return nil, err
	}
	return entities.ReconstructTransactionGroup(
		id,
		entities.GroupStatus(status),
		merchantID, buyerID,
		reason,
		idempotencyKey,
		createdAt,
		finalizedAt,
	), nil
}
