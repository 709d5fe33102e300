package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/domain/entities"
	domainerrors "github.com/fintrellis/ledgercore/internal/domain/errors"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
)

var _ ports.WalletStore = (*WalletRepository)(nil)

// WalletRepository implements WalletStore. Wallet rows are insert-only;
// balances live in the entry tables.
type WalletRepository struct {
	pool *pgxpool.Pool
}

// NewWalletRepository creates the repository.
func NewWalletRepository(pool *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{pool: pool}
}

const walletColumns = `id, wallet_type, owner_id, owner_kind, currency, description, created_at`

// Save inserts the wallet and assigns its dense id.
func (r *WalletRepository) Save(ctx context.Context, wallet *entities.Wallet) error {
	q := queryEngine(ctx, r.pool)
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO wallets (wallet_type, owner_id, owner_kind, currency, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		wallet.Type(), wallet.OwnerID(), wallet.OwnerKind(), wallet.Currency().Code(),
		wallet.Description(), wallet.CreatedAt(),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err, "") {
			return domainerrors.ErrIdempotencyConflict
		}
		return fmt.Errorf("insert wallet: %w", err)
	}
	wallet.SetID(id)
	return nil
}

// FindByID loads a wallet.
func (r *WalletRepository) FindByID(ctx context.Context, id int64) (*entities.Wallet, error) {
	return r.findOne(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id)
}

// FindByIDForUpdate loads a wallet under its row lock.
func (r *WalletRepository) FindByIDForUpdate(ctx context.Context, id int64) (*entities.Wallet, error) {
	return r.findOne(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id)
}

// FindByOwner locates the wallet of an external owner in one currency.
func (r *WalletRepository) FindByOwner(ctx context.Context, ownerID string, ownerKind entities.OwnerKind, currency valueobjects.Currency) (*entities.Wallet, error) {
	return r.findOne(ctx, `
		SELECT `+walletColumns+` FROM wallets
		WHERE owner_id = $1 AND owner_kind = $2 AND currency = $3`,
		ownerID, ownerKind, currency.Code())
}

// FindSystem locates a system singleton.
func (r *WalletRepository) FindSystem(ctx context.Context, walletType entities.WalletType, description string, currency valueobjects.Currency) (*entities.Wallet, error) {
	return r.findOne(ctx, `
		SELECT `+walletColumns+` FROM wallets
		WHERE wallet_type = $1 AND description = $2 AND currency = $3 AND owner_id IS NULL`,
		walletType, description, currency.Code())
}

// List returns wallets matching the filter, newest first.
func (r *WalletRepository) List(ctx context.Context, filter ports.WalletFilter, offset, limit int) ([]*entities.Wallet, error) {
	q := queryEngine(ctx, r.pool)
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE 1=1`
	args := []any{}
	if filter.Type != nil {
		args = append(args, *filter.Type)
		query += fmt.Sprintf(" AND wallet_type = $%d", len(args))
	}
	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		query += fmt.Sprintf(" AND owner_id = $%d", len(args))
	}
	if filter.Currency != nil {
		args = append(args, filter.Currency.Code())
		query += fmt.Sprintf(" AND currency = $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []*entities.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

func (r *WalletRepository) findOne(ctx context.Context, query string, args ...any) (*entities.Wallet, error) {
	q := queryEngine(ctx, r.pool)
	w, err := scanWallet(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainerrors.ErrWalletNotFound
		}
		return nil, fmt.Errorf("query wallet: %w", err)
	}
	return w, nil
}

// scanWallet maps one row to the entity.
func scanWallet(row pgx.Row) (*entities.Wallet, error) {
	var (
		id          int64
		walletType  string
		ownerID     *string
		ownerKind   string
		code        string
		description string
		createdAt   time.Time
	)
	if err := row.Scan(&id, &walletType, &ownerID, &ownerKind, &code, &description, &createdAt); err != nil {
		return nil, err
	}
	currency, err := valueobjects.NewCurrency(code)
	if err != nil {
		return nil, err
	}
	return entities.ReconstructWallet(
		id,
		entities.WalletType(walletType),
		ownerID,
		entities.OwnerKind(ownerKind),
		currency,
		description,
		createdAt,
	), nil
}
