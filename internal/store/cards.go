package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/safar/wholesale-store/internal/database"
	"github.com/safar/wholesale-store/internal/models"
)

type CardParams struct {
	Number     string
	HolderName string
	ExpMonth   int
	ExpYear    int
	IsDefault  bool
}

// ValidLuhn reports whether digits passes the Luhn checksum.
func ValidLuhn(digits string) bool {
	if len(digits) < 12 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		c := digits[i]
		if c < '0' || c > '9' {
			return false
		}
		n := int(c - '0')
		if double {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		double = !double
	}
	return sum%10 == 0
}

func CardBrand(digits string) string {
	switch {
	case strings.HasPrefix(digits, "4"):
		return "visa"
	case len(digits) >= 2 && digits[0] == '5' && digits[1] >= '1' && digits[1] <= '5':
		return "mastercard"
	case strings.HasPrefix(digits, "2"):
		return "mastercard"
	case strings.HasPrefix(digits, "34"), strings.HasPrefix(digits, "37"):
		return "amex"
	case strings.HasPrefix(digits, "6"):
		return "discover"
	}
	return "card"
}

func cardExpired(month, year int, now time.Time) bool {
	// cards are valid through the last day of the expiry month
	return year < now.Year() || (year == now.Year() && month < int(now.Month()))
}

func normalizeCardNumber(n string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(n)
}

const cardColumns = `id, user_id, brand, last4, holder_name, exp_month, exp_year, token, is_default, created_at`

func scanCard(row rowScanner) (*models.PaymentCard, error) {
	c := &models.PaymentCard{}
	err := row.Scan(&c.ID, &c.UserID, &c.Brand, &c.Last4, &c.HolderName, &c.ExpMonth, &c.ExpYear,
		&c.Token, &c.IsDefault, &c.CreatedAt)
	return c, err
}

// CreateCard stores a card reference. Only the last four digits and an
// opaque token are kept.
func CreateCard(ctx context.Context, db *sql.DB, userID int64, p CardParams, now time.Time) (*models.PaymentCard, error) {
	number := normalizeCardNumber(p.Number)
	if !ValidLuhn(number) {
		return nil, fmt.Errorf("%w: invalid card number", ErrValidation)
	}
	if p.ExpMonth < 1 || p.ExpMonth > 12 || cardExpired(p.ExpMonth, p.ExpYear, now) {
		return nil, fmt.Errorf("%w: card is expired", ErrValidation)
	}
	if strings.TrimSpace(p.HolderName) == "" {
		return nil, fmt.Errorf("%w: holder name is required", ErrValidation)
	}

	var card *models.PaymentCard
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM payment_cards WHERE user_id = $1`, userID).Scan(&count); err != nil {
			return fmt.Errorf("count cards: %w", err)
		}

		isDefault := p.IsDefault || count == 0
		if isDefault {
			if _, err := tx.ExecContext(ctx,
				`UPDATE payment_cards SET is_default = FALSE WHERE user_id = $1`, userID); err != nil {
				return fmt.Errorf("clear default card: %w", err)
			}
		}

		var err error
		card, err = scanCard(tx.QueryRowContext(ctx, `
			INSERT INTO payment_cards (user_id, brand, last4, holder_name, exp_month, exp_year, token, is_default, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
			RETURNING `+cardColumns,
			userID, CardBrand(number), number[len(number)-4:], strings.TrimSpace(p.HolderName),
			p.ExpMonth, p.ExpYear, "tok_"+uuid.NewString(), isDefault))
		if err != nil {
			return fmt.Errorf("create card: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

func GetCard(ctx context.Context, db database.Querier, userID, id int64) (*models.PaymentCard, error) {
	card, err := scanCard(db.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM payment_cards WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCardNotFound
		}
		return nil, fmt.Errorf("get card: %w", err)
	}
	return card, nil
}

func ListCards(ctx context.Context, db *sql.DB, userID int64) ([]models.PaymentCard, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+cardColumns+` FROM payment_cards
		WHERE user_id = $1
		ORDER BY is_default DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	cards := []models.PaymentCard{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return cards, nil
}

func SetDefaultCard(ctx context.Context, db *sql.DB, userID, id int64) error {
	return database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if _, err := GetCard(ctx, tx, userID, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE payment_cards SET is_default = (id = $1) WHERE user_id = $2`, id, userID)
		if err != nil {
			return fmt.Errorf("set default card: %w", err)
		}
		return nil
	})
}

func DeleteCard(ctx context.Context, db *sql.DB, userID, id int64) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM payment_cards WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	return expectOneRow(result, database.ErrCardNotFound)
}
