package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/domain/entities"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
)

var _ ports.EntryStore = (*EntryRepository)(nil)

// EntryRepository implements EntryStore on the hot table, with the balance
// and reconciliation aggregates reaching into the warm and cold tiers. The
// hot table is append-only; updates are rejected by a trigger anyway.
type EntryRepository struct {
	pool *pgxpool.Pool
}

// NewEntryRepository creates the repository.
func NewEntryRepository(pool *pgxpool.Pool) *EntryRepository {
	return &EntryRepository{pool: pool}
}

const entryColumns = `id, wallet_id, amount, currency, entry_type, status, reference_id,
	description, initiator_kind, initiator_id, ip, user_agent, held_at, confirmed_at`

const insertEntrySQL = `
	INSERT INTO transaction
		(wallet_id, amount, currency, entry_type, status, reference_id,
		 description, initiator_kind, initiator_id, ip, user_agent, held_at, confirmed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	RETURNING id`

// Insert appends one entry.
func (r *EntryRepository) Insert(ctx context.Context, entry *entities.Entry) error {
	q := queryEngine(ctx, r.pool)
	var id int64
	audit := entry.Audit()
	err := q.QueryRow(ctx, insertEntrySQL,
		entry.WalletID(), entry.Amount().Amount(), entry.Amount().Currency().Code(),
		entry.Type(), entry.Status(), entry.ReferenceID(),
		entry.Description(), audit.InitiatorKind, audit.InitiatorID, audit.IP, audit.UserAgent,
		entry.HeldAt(), entry.ConfirmedAt(),
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	entry.SetID(id)
	return nil
}

// InsertBatch appends a set of entries. Runs inside the caller's transaction,
// so the batch is atomic by construction.
func (r *EntryRepository) InsertBatch(ctx context.Context, entries []*entities.Entry) error {
	for _, e := range entries {
		if err := r.Insert(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// FindByReference returns the hot entries of one group, oldest first.
func (r *EntryRepository) FindByReference(ctx context.Context, referenceID uuid.UUID) ([]*entities.Entry, error) {
	q := queryEngine(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT `+entryColumns+` FROM transaction
		WHERE reference_id = $1
		ORDER BY id`, referenceID)
	if err != nil {
		return nil, fmt.Errorf("query entries by reference: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// SumByReference sums the group's hot entries restricted to the statuses.
func (r *EntryRepository) SumByReference(ctx context.Context, referenceID uuid.UUID, statuses []entities.EntryStatus) (int64, error) {
	q := queryEngine(ctx, r.pool)
	var sum int64
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transaction
		WHERE reference_id = $1 AND status = ANY($2)`,
		referenceID, statusStrings(statuses),
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum entries: %w", err)
	}
	return sum, nil
}

// WalletTotals computes the balance aggregates. Settled spans the hot and
// warm tiers; warm checkpoints are SETTLED rows and sum in naturally. The
// hold component counts only HOLD debits of groups still IN_PROGRESS.
func (r *EntryRepository) WalletTotals(ctx context.Context, walletID int64) (ports.WalletTotals, error) {
	q := queryEngine(ctx, r.pool)
	var totals ports.WalletTotals
	err := q.QueryRow(ctx, `
		SELECT
			(SELECT COALESCE(SUM(amount), 0) FROM transaction
			 WHERE wallet_id = $1 AND status IN ('SETTLED', 'REFUNDED'))
			+
			(SELECT COALESCE(SUM(amount), 0) FROM transaction_snapshot
			 WHERE wallet_id = $1 AND status IN ('SETTLED', 'REFUNDED')),
			(SELECT COALESCE(SUM(t.amount), 0) FROM transaction t
			 JOIN transaction_groups g ON g.id = t.reference_id
			 WHERE t.wallet_id = $1 AND t.status = 'HOLD' AND t.amount < 0
			   AND g.status = 'IN_PROGRESS')`,
		walletID,
	).Scan(&totals.Settled, &totals.HoldDebit)
	if err != nil {
		return ports.WalletTotals{}, fmt.Errorf("wallet totals: %w", err)
	}
	return totals, nil
}

// SumHoldCredits sums positive HOLD credits on the wallet for the references.
// Spans the hot and warm tiers like WalletTotals: the snapshot pass may move
// a settled order's escrow credit to warm before its payout runs.
func (r *EntryRepository) SumHoldCredits(ctx context.Context, walletID int64, referenceIDs []uuid.UUID) (int64, error) {
	q := queryEngine(ctx, r.pool)
	var sum int64
	err := q.QueryRow(ctx, `
		SELECT
			(SELECT COALESCE(SUM(amount), 0) FROM transaction
			 WHERE wallet_id = $1 AND status = 'HOLD' AND entry_type = 'CREDIT'
			   AND amount > 0 AND reference_id = ANY($2))
			+
			(SELECT COALESCE(SUM(amount), 0) FROM transaction_snapshot
			 WHERE wallet_id = $1 AND status = 'HOLD' AND entry_type = 'CREDIT'
			   AND amount > 0 AND reference_id = ANY($2))`,
		walletID, referenceIDs,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum hold credits: %w", err)
	}
	return sum, nil
}

// ListByWallet pages the hot entries of a wallet, newest first.
func (r *EntryRepository) ListByWallet(ctx context.Context, walletID int64, offset, limit int) ([]*entities.Entry, error) {
	q := queryEngine(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT `+entryColumns+` FROM transaction
		WHERE wallet_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3`, walletID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// StatusSums returns per-tier, per-status aggregates over all three tiers.
func (r *EntryRepository) StatusSums(ctx context.Context) ([]ports.StatusSum, error) {
	q := queryEngine(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT 'hot', status, COALESCE(SUM(amount), 0), COUNT(*)
		FROM transaction GROUP BY status
		UNION ALL
		SELECT 'warm', status, COALESCE(SUM(amount), 0), COUNT(*)
		FROM transaction_snapshot GROUP BY status
		UNION ALL
		SELECT 'cold', status, COALESCE(SUM(amount), 0), COUNT(*)
		FROM transaction_snapshot_archive GROUP BY status
		ORDER BY 1, 2`)
	if err != nil {
		return nil, fmt.Errorf("status sums: %w", err)
	}
	defer rows.Close()

	var sums []ports.StatusSum
	for rows.Next() {
		var s ports.StatusSum
		var status string
		if err := rows.Scan(&s.Tier, &status, &s.Sum, &s.Count); err != nil {
			return nil, err
		}
		s.Status = entities.EntryStatus(status)
		sums = append(sums, s)
	}
	return sums, rows.Err()
}

// UnbalancedGroups returns groups whose hot HOLD entries do not sum to zero.
func (r *EntryRepository) UnbalancedGroups(ctx context.Context, limit int) ([]ports.GroupSum, error) {
	q := queryEngine(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT reference_id, SUM(amount) FROM transaction
		WHERE status = 'HOLD'
		GROUP BY reference_id
		HAVING SUM(amount) <> 0
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("unbalanced groups: %w", err)
	}
	defer rows.Close()

	var groups []ports.GroupSum
	for rows.Next() {
		var g ports.GroupSum
		if err := rows.Scan(&g.ReferenceID, &g.Sum); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func statusStrings(statuses []entities.EntryStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

// scanEntries maps the standard column set to entities.
func scanEntries(rows pgx.Rows) ([]*entities.Entry, error) {
	var entries []*entities.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(row pgx.Row) (*entities.Entry, error) {
	var (
		id            int64
		walletID      int64
		amount        int64
		code          string
		entryType     string
		status        string
		referenceID   uuid.UUID
		description   string
		initiatorKind string
		initiatorID   string
		ip            string
		userAgent     string
		heldAt        time.Time
		confirmedAt   *time.Time
	)
	err := row.Scan(&id, &walletID, &amount, &code, &entryType, &status, &referenceID,
		&description, &initiatorKind, &initiatorID, &ip, &userAgent, &heldAt, &confirmedAt)
	if err != nil {
		return nil, err
	}
	currency, err := valueobjects.NewCurrency(code)
	if err != nil {
		return nil, err
	}
	return entities.ReconstructEntry(
		id, walletID,
		valueobjects.NewMoney(amount, currency),
		entities.EntryType(entryType),
		entities.EntryStatus(status),
		referenceID,
		description,
		entities.Audit{
			InitiatorKind: entities.InitiatorKind(initiatorKind),
			InitiatorID:   initiatorID,
			IP:            ip,
			UserAgent:     userAgent,
		},
		heldAt, confirmedAt,
		false, nil,
	), nil
}
