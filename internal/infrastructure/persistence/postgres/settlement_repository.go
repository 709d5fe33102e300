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

var _ ports.SettlementStore = (*SettlementRepository)(nil)

// SettlementRepository implements SettlementStore over the settlements and
// settlement_links tables. The UNIQUE constraint on settlement_links.group_id
// is the storage-level gate against paying the same group out twice.
type SettlementRepository struct {
	pool *pgxpool.Pool
}

// NewSettlementRepository creates the repository.
func NewSettlementRepository(pool *pgxpool.Pool) *SettlementRepository {
	return &SettlementRepository{pool: pool}
}

const settlementColumns = `id, merchant_id, currency, total, fee, net, commission_rate,
	group_count, status, group_id, idempotency_key, created_at, settled_at`

// Save inserts a settlement row. The idempotency key has a partial unique
// index that ignores FAILED rows, so a failed attempt does not block a retry
// under the same key.
func (r *SettlementRepository) Save(ctx context.Context, settlement *entities.Settlement) error {
	q := queryEngine(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO settlements
			(id, merchant_id, currency, total, fee, net, commission_rate,
			 group_count, status, group_id, idempotency_key, created_at, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		settlement.ID(), settlement.MerchantID(), settlement.Currency().Code(),
		settlement.Total().Amount(), settlement.Fee().Amount(), settlement.Net().Amount(),
		settlement.CommissionRate().Decimal(), settlement.GroupCount(), settlement.Status(),
		settlement.GroupID(), settlement.IdempotencyKey(), settlement.CreatedAt(), settlement.SettledAt(),
	)
	if err != nil {
		if isUniqueViolation(err, "idempotency_key") {
			return domainerrors.ErrIdempotencyConflict
		}
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

// Update persists a status transition.
func (r *SettlementRepository) Update(ctx context.Context, settlement *entities.Settlement) error {
	q := queryEngine(ctx, r.pool)
	tag, err := q.Exec(ctx, `
		UPDATE settlements
		SET status = $2, group_id = $3, settled_at = $4
		WHERE id = $1`,
		settlement.ID(), settlement.Status(), settlement.GroupID(), settlement.SettledAt(),
	)
	if err != nil {
		return fmt.Errorf("update settlement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainerrors.ErrSettlementNotFound
	}
	return nil
}

// FindByID loads a settlement.
func (r *SettlementRepository) FindByID(ctx context.Context, id uuid.UUID) (*entities.Settlement, error) {
	return r.findOne(ctx, `SELECT `+settlementColumns+` FROM settlements WHERE id = $1`, id)
}

// FindByIdempotencyKey returns the non-failed settlement under the key.
// FAILED rows are audit records and never shadow a retry.
func (r *SettlementRepository) FindByIdempotencyKey(ctx context.Context, key string) (*entities.Settlement, error) {
	return r.findOne(ctx, `
		SELECT `+settlementColumns+` FROM settlements
		WHERE idempotency_key = $1 AND status <> 'FAILED'`, key)
}

// ListByMerchant pages a merchant's settlements, newest first.
func (r *SettlementRepository) ListByMerchant(ctx context.Context, merchantID string, offset, limit int) ([]*entities.Settlement, error) {
	q := queryEngine(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT `+settlementColumns+` FROM settlements
		WHERE merchant_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, merchantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	var settlements []*entities.Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		settlements = append(settlements, s)
	}
	return settlements, rows.Err()
}

// UnsettledGroupIDs returns the merchant's SETTLED groups that no settlement
// link covers yet, oldest first.
func (r *SettlementRepository) UnsettledGroupIDs(ctx context.Context, merchantID string) ([]uuid.UUID, error) {
	q := queryEngine(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT g.id FROM transaction_groups g
		WHERE g.merchant_id = $1 AND g.status = 'SETTLED'
		  AND NOT EXISTS (
			SELECT 1 FROM settlement_links sl WHERE sl.group_id = g.id
		  )
		ORDER BY g.created_at`, merchantID)
	if err != nil {
		return nil, fmt.Errorf("query unsettled groups: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertLinks records the groups a settlement paid out. A group already
// linked elsewhere violates the unique index and maps to ErrDoubleSettlement.
func (r *SettlementRepository) InsertLinks(ctx context.Context, links []entities.SettlementLink) error {
	q := queryEngine(ctx, r.pool)
	for _, link := range links {
		_, err := q.Exec(ctx, `
			INSERT INTO settlement_links (settlement_id, group_id, amount, currency)
			VALUES ($1, $2, $3, $4)`,
			link.SettlementID, link.GroupID, link.Amount.Amount(), link.Amount.Currency().Code(),
		)
		if err != nil {
			if isUniqueViolation(err, "group_id") {
				return domainerrors.ErrDoubleSettlement
			}
			return fmt.Errorf("insert settlement link: %w", err)
		}
	}
	return nil
}

// FindLinkByGroup returns the link covering a group.
func (r *SettlementRepository) FindLinkByGroup(ctx context.Context, groupID uuid.UUID) (*entities.SettlementLink, error) {
	q := queryEngine(ctx, r.pool)
	link, err := scanLink(q.QueryRow(ctx, `
		SELECT settlement_id, group_id, amount, currency
		FROM settlement_links WHERE group_id = $1`, groupID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainerrors.ErrSettlementNotFound
		}
		return nil, fmt.Errorf("query settlement link: %w", err)
	}
	return link, nil
}

// ListLinks returns the links of one settlement.
func (r *SettlementRepository) ListLinks(ctx context.Context, settlementID uuid.UUID) ([]entities.SettlementLink, error) {
	q := queryEngine(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT settlement_id, group_id, amount, currency
		FROM settlement_links WHERE settlement_id = $1`, settlementID)
	if err != nil {
		return nil, fmt.Errorf("list settlement links: %w", err)
	}
	defer rows.Close()

	var links []entities.SettlementLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, *link)
	}
	return links, rows.Err()
}

func (r *SettlementRepository) findOne(ctx context.Context, query string, args ...any) (*entities.Settlement, error) {
	q := queryEngine(ctx, r.pool)
	s, err := scanSettlement(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainerrors.ErrSettlementNotFound
		}
		return nil, fmt.Errorf("query settlement: %w", err)
	}
	return s, nil
}

func scanSettlement(row pgx.Row) (*entities.Settlement, error) {
	var (
		id             uuid.UUID
		merchantID     string
		code           string
		total          int64
		fee            int64
		net            int64
		rateStr        string
		groupCount     int
		status         string
		groupID        *uuid.UUID
		idempotencyKey *string
		createdAt      time.Time
		settledAt      *time.Time
	)
	err := row.Scan(&id, &merchantID, &code, &total, &fee, &net, &rateStr,
		&groupCount, &status, &groupID, &idempotencyKey, &createdAt, &settledAt)
	if err != nil {
		return nil, err
	}
	currency, err := valueobjects.NewCurrency(code)
	if err != nil {
		return nil, err
	}
	rate, err := valueobjects.NewRate(rateStr)
	if err != nil {
		return nil, err
	}
	return entities.ReconstructSettlement(
		id, merchantID,
		valueobjects.NewMoney(total, currency),
		valueobjects.NewMoney(fee, currency),
		valueobjects.NewMoney(net, currency),
		rate, groupCount,
		entities.SettlementStatus(status),
		groupID, idempotencyKey,
		createdAt, settledAt,
	), nil
}

func scanLink(row pgx.Row) (*entities.SettlementLink, error) {
	var (
		settlementID uuid.UUID
		groupID      uuid.UUID
		amount       int64
		code         string
	)
	if err := row.Scan(&settlementID, &groupID, &amount, &code); err != nil {
		return nil, err
	}
	currency, err := valueobjects.NewCurrency(code)
	if err != nil {
		return nil, err
	}
	return &entities.SettlementLink{
		SettlementID: settlementID,
		GroupID:      groupID,
		Amount:       valueobjects.NewMoney(amount, currency),
	}, nil
}
