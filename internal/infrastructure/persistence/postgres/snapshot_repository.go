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

var _ ports.SnapshotStore = (*SnapshotRepository)(nil)

// SnapshotRepository moves entries between the hot, warm and cold tiers.
// Entry ids are preserved across tiers so tracking and audits can follow a
// row wherever it lives.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository creates the repository.
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

// WalletsWithHotFinalized returns wallets holding hot entries of terminal
// groups.
func (r *SnapshotRepository) WalletsWithHotFinalized(ctx context.Context, limit int) ([]int64, error) {
	q := queryEngine(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT DISTINCT t.wallet_id FROM transaction t
		JOIN transaction_groups g ON g.id = t.reference_id
		WHERE g.status <> 'IN_PROGRESS'
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query wallets with finalized entries: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// ListHotFinalized returns a wallet's hot entries whose group is terminal.
func (r *SnapshotRepository) ListHotFinalized(ctx context.Context, walletID int64, limit int) ([]*entities.Entry, error) {
	q := queryEngine(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT `+hotSnapshotColumns(`t`)+` FROM transaction t
		JOIN transaction_groups g ON g.id = t.reference_id
		WHERE t.wallet_id = $1 AND g.status <> 'IN_PROGRESS'
		ORDER BY t.id
		LIMIT $2`, walletID, limit)
	if err != nil {
		return nil, fmt.Errorf("list finalized entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// CopyToWarm writes the entries into the warm tier, id preserved, stamped
// with the snapshot date.
func (r *SnapshotRepository) CopyToWarm(ctx context.Context, entries []*entities.Entry, snapshotDate time.Time) error {
	q := queryEngine(ctx, r.pool)
	for _, e := range entries {
		audit := e.Audit()
		_, err := q.Exec(ctx, `
			INSERT INTO transaction_snapshot
				(id, wallet_id, amount, currency, entry_type, status, reference_id,
				 description, initiator_kind, initiator_id, ip, user_agent,
				 held_at, confirmed_at, is_ledger_entry, snapshot_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, false, $15)`,
			e.ID(), e.WalletID(), e.Amount().Amount(), e.Amount().Currency().Code(),
			e.Type(), e.Status(), e.ReferenceID(),
			e.Description(), audit.InitiatorKind, audit.InitiatorID, audit.IP, audit.UserAgent,
			e.HeldAt(), e.ConfirmedAt(), snapshotDate,
		)
		if err != nil {
			return fmt.Errorf("copy entry %d to warm: %w", e.ID(), err)
		}
	}
	return nil
}

// DeleteFromHot removes moved entries from the hot tier. Runs in the same
// store transaction as the copy.
func (r *SnapshotRepository) DeleteFromHot(ctx context.Context, entryIDs []int64) error {
	q := queryEngine(ctx, r.pool)
	_, err := q.Exec(ctx, `DELETE FROM transaction WHERE id = ANY($1)`, entryIDs)
	if err != nil {
		return fmt.Errorf("delete from hot: %w", err)
	}
	return nil
}

// WalletsWithWarmBefore returns wallets holding non-checkpoint warm entries
// older than the cutoff.
func (r *SnapshotRepository) WalletsWithWarmBefore(ctx context.Context, cutoff time.Time, limit int) ([]int64, error) {
	q := queryEngine(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT DISTINCT wallet_id FROM transaction_snapshot
		WHERE is_ledger_entry = false AND snapshot_date < $1
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query wallets with old warm entries: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// ListWarmBefore returns a wallet's non-checkpoint warm entries older than
// the cutoff.
func (r *SnapshotRepository) ListWarmBefore(ctx context.Context, walletID int64, cutoff time.Time, limit int) ([]*entities.Entry, error) {
	q := queryEngine(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT id, wallet_id, amount, currency, entry_type, status, reference_id,
			description, initiator_kind, initiator_id, ip, user_agent,
			held_at, confirmed_at, is_ledger_entry, snapshot_date
		FROM transaction_snapshot
		WHERE wallet_id = $1 AND is_ledger_entry = false AND snapshot_date < $2
		ORDER BY id
		LIMIT $3`, walletID, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list old warm entries: %w", err)
	}
	defer rows.Close()

	var entries []*entities.Entry
	for rows.Next() {
		e, err := scanWarmEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// InsertWarmCheckpoint writes the synthetic LEDGER row replacing an archived
// set of entries.
func (r *SnapshotRepository) InsertWarmCheckpoint(ctx context.Context, checkpoint *entities.Entry) error {
	q := queryEngine(ctx, r.pool)
	audit := checkpoint.Audit()
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO transaction_snapshot
			(id, wallet_id, amount, currency, entry_type, status, reference_id,
			 description, initiator_kind, initiator_id, ip, user_agent,
			 held_at, confirmed_at, is_ledger_entry, snapshot_date)
		VALUES (nextval('transaction_id_seq'), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, true, $13)
		RETURNING id`,
		checkpoint.WalletID(), checkpoint.Amount().Amount(), checkpoint.Amount().Currency().Code(),
		checkpoint.Type(), checkpoint.Status(), checkpoint.ReferenceID(),
		checkpoint.Description(), audit.InitiatorKind, audit.InitiatorID, audit.IP, audit.UserAgent,
		checkpoint.HeldAt(), checkpoint.ConfirmedAt(), checkpoint.SnapshotDate(),
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	checkpoint.SetID(id)
	return nil
}

// CopyToArchive writes the entries into the cold tier, id preserved.
func (r *SnapshotRepository) CopyToArchive(ctx context.Context, entries []*entities.Entry) error {
	q := queryEngine(ctx, r.pool)
	for _, e := range entries {
		audit := e.Audit()
		_, err := q.Exec(ctx, `
			INSERT INTO transaction_snapshot_archive
				(id, wallet_id, amount, currency, entry_type, status, reference_id,
				 description, initiator_kind, initiator_id, ip, user_agent,
				 held_at, confirmed_at, is_ledger_entry, snapshot_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			e.ID(), e.WalletID(), e.Amount().Amount(), e.Amount().Currency().Code(),
			e.Type(), e.Status(), e.ReferenceID(),
			e.Description(), audit.InitiatorKind, audit.InitiatorID, audit.IP, audit.UserAgent,
			e.HeldAt(), e.ConfirmedAt(), e.IsCheckpoint(), e.SnapshotDate(),
		)
		if err != nil {
			return fmt.Errorf("copy entry %d to archive: %w", e.ID(), err)
		}
	}
	return nil
}

// DeleteFromWarm removes archived entries from the warm tier.
func (r *SnapshotRepository) DeleteFromWarm(ctx context.Context, entryIDs []int64) error {
	q := queryEngine(ctx, r.pool)
	_, err := q.Exec(ctx, `DELETE FROM transaction_snapshot WHERE id = ANY($1)`, entryIDs)
	if err != nil {
		return fmt.Errorf("delete from warm: %w", err)
	}
	return nil
}

// InsertTracking maps a checkpoint reference to the originals it absorbed.
func (r *SnapshotRepository) InsertTracking(ctx context.Context, checkpointRef uuid.UUID, originalRefs []uuid.UUID) error {
	q := queryEngine(ctx, r.pool)
	for _, ref := range originalRefs {
		_, err := q.Exec(ctx, `
			INSERT INTO ledger_entries_tracking (checkpoint_reference_id, original_reference_id)
			VALUES ($1, $2)`, checkpointRef, ref)
		if err != nil {
			return fmt.Errorf("insert tracking row: %w", err)
		}
	}
	return nil
}

// hotSnapshotColumns qualifies the shared column list with a table alias.
func hotSnapshotColumns(alias string) string {
	return alias + `.id, ` + alias + `.wallet_id, ` + alias + `.amount, ` + alias + `.currency, ` +
		alias + `.entry_type, ` + alias + `.status, ` + alias + `.reference_id, ` +
		alias + `.description, ` + alias + `.initiator_kind, ` + alias + `.initiator_id, ` +
		alias + `.ip, ` + alias + `.user_agent, ` + alias + `.held_at, ` + alias + `.confirmed_at`
}

func scanIDs(rows pgx.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// scanWarmEntry maps a warm row including its tier attributes.
func scanWarmEntry(row pgx.Row) (*entities.Entry, error) {
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
		isLedgerEntry bool
		snapshotDate  *time.Time
	)
	err := row.Scan(&id, &walletID, &amount, &code, &entryType, &status, &referenceID,
		&description, &initiatorKind, &initiatorID, &ip, &userAgent,
		&heldAt, &confirmedAt, &isLedgerEntry, &snapshotDate)
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
		isLedgerEntry, snapshotDate,
	), nil
}
