package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/wholesale-store/internal/database"
	"github.com/safar/wholesale-store/internal/models"
	"github.com/shopspring/decimal"
)

const walletColumns = `id, user_id, balance, created_at, updated_at, version`

func scanWallet(row rowScanner) (*models.Wallet, error) {
	w := &models.Wallet{}
	err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.CreatedAt, &w.UpdatedAt, &w.Version)
	return w, err
}

// GetWallet returns the user's wallet, creating an empty one for accounts
// that predate wallets.
func GetWallet(ctx context.Context, db database.Querier, userID int64) (*models.Wallet, error) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO wallets (user_id, balance, created_at, updated_at, version)
		VALUES ($1, 0, NOW(), NOW(), 1)
		ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("ensure wallet: %w", err)
	}

	w, err := scanWallet(db.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrWalletNotFound
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

func lockWallet(ctx context.Context, tx *sql.Tx, userID int64) (*models.Wallet, error) {
	if _, err := GetWallet(ctx, tx, userID); err != nil {
		return nil, err
	}
	w, err := scanWallet(tx.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	return w, nil
}

// postWalletEntry moves the balance by amount in the given direction and
// appends the ledger row. Debits never take the balance below zero.
func postWalletEntry(ctx context.Context, tx *sql.Tx, userID int64, kind string, amount decimal.Decimal, reference, description string) (*models.WalletTransaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	w, err := lockWallet(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	balance := w.Balance.Add(amount)
	if kind == models.WalletDebit {
		if w.Balance.LessThan(amount) {
			return nil, database.ErrInsufficientFunds
		}
		balance = w.Balance.Sub(amount)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE wallets SET balance = $1, updated_at = NOW(), version = version + 1
		WHERE id = $2 AND version = $3`, balance, w.ID, w.Version)
	if err != nil {
		return nil, fmt.Errorf("update wallet balance: %w", err)
	}
	if err := expectOneRow(result, database.ErrOptimisticLockFailed); err != nil {
		return nil, err
	}

	entry := &models.WalletTransaction{}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO wallet_transactions (wallet_id, type, amount, balance_after, reference, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, wallet_id, type, amount, balance_after, reference, description, created_at`,
		w.ID, kind, amount, balance, reference, description).Scan(
		&entry.ID, &entry.WalletID, &entry.Type, &entry.Amount, &entry.BalanceAfter,
		&entry.Reference, &entry.Description, &entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("record wallet transaction: %w", err)
	}
	return entry, nil
}

func debitWallet(ctx context.Context, tx *sql.Tx, userID int64, amount decimal.Decimal, reference, description string) (*models.WalletTransaction, error) {
	return postWalletEntry(ctx, tx, userID, models.WalletDebit, amount, reference, description)
}

func creditWallet(ctx context.Context, tx *sql.Tx, userID int64, amount decimal.Decimal, reference, description string) (*models.WalletTransaction, error) {
	return postWalletEntry(ctx, tx, userID, models.WalletCredit, amount, reference, description)
}

// TopUpWallet credits the wallet from one of the user's saved cards.
func TopUpWallet(ctx context.Context, db *sql.DB, userID, cardID int64, amount, maxTopUp decimal.Decimal) (*models.Wallet, *models.WalletTransaction, error) {
	if !amount.IsPositive() {
		return nil, nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if maxTopUp.IsPositive() && amount.GreaterThan(maxTopUp) {
		return nil, nil, fmt.Errorf("%w: amount exceeds top-up limit of %s", ErrValidation, maxTopUp.StringFixed(2))
	}
	amount = amount.Round(2)

	var wallet *models.Wallet
	var entry *models.WalletTransaction
	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		card, err := GetCard(ctx, tx, userID, cardID)
		if err != nil {
			return err
		}

		entry, err = creditWallet(ctx, tx, userID, amount, card.Token,
			fmt.Sprintf("Top-up from %s ending %s", card.Brand, card.Last4))
		if err != nil {
			return err
		}

		wallet, err = GetWallet(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return wallet, entry, nil
}

func ListWalletTransactions(ctx context.Context, db *sql.DB, userID int64, cursor string, limit int) (*CursorPage, error) {
	limit = clampLimit(limit)
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT t.id, t.wallet_id, t.type, t.amount, t.balance_after, t.reference, t.description, t.created_at
		FROM wallet_transactions t
		JOIN wallets w ON w.id = t.wallet_id
		WHERE w.user_id = $1
		  AND (t.created_at, t.id) < ($2, $3)
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT $4`, userID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list wallet transactions: %w", err)
	}
	defer rows.Close()

	entries := []models.WalletTransaction{}
	for rows.Next() {
		var e models.WalletTransaction
		if err := rows.Scan(&e.ID, &e.WalletID, &e.Type, &e.Amount, &e.BalanceAfter,
			&e.Reference, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan wallet transaction: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}

	var next string
	if hasMore {
		last := entries[len(entries)-1]
		next = EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	return &CursorPage{Items: entries, NextCursor: next, HasMore: hasMore}, nil
}
