package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/safar/wholesale-store/internal/database"
	"github.com/safar/wholesale-store/internal/models"
)

type AddressParams struct {
	Label      string
	Recipient  string
	Phone      string
	Line1      string
	Line2      string
	City       string
	Region     string
	PostalCode string
	IsDefault  bool
}

const addressColumns = `id, user_id, label, recipient, phone, line1, line2, city, region, postal_code, is_default, created_at, updated_at`

func scanAddress(row rowScanner) (*models.Address, error) {
	a := &models.Address{}
	err := row.Scan(&a.ID, &a.UserID, &a.Label, &a.Recipient, &a.Phone, &a.Line1, &a.Line2,
		&a.City, &a.Region, &a.PostalCode, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// FormatAddress renders the address as the snapshot stored on orders.
func FormatAddress(a *models.Address) string {
	parts := []string{a.Recipient, a.Phone, a.Line1}
	if a.Line2 != "" {
		parts = append(parts, a.Line2)
	}
	city := a.City
	if a.Region != "" {
		city += ", " + a.Region
	}
	if a.PostalCode != "" {
		city += " " + a.PostalCode
	}
	parts = append(parts, city)
	return strings.Join(parts, "\n")
}

// CreateAddress stores a new address. The first address a user adds becomes
// their default.
func CreateAddress(ctx context.Context, db *sql.DB, userID int64, p AddressParams) (*models.Address, error) {
	var address *models.Address
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM addresses WHERE user_id = $1`, userID).Scan(&count); err != nil {
			return fmt.Errorf("count addresses: %w", err)
		}

		isDefault := p.IsDefault || count == 0
		if isDefault {
			if err := clearDefaultAddress(ctx, tx, userID); err != nil {
				return err
			}
		}

		var err error
		address, err = scanAddress(tx.QueryRowContext(ctx, `
			INSERT INTO addresses (user_id, label, recipient, phone, line1, line2, city, region, postal_code, is_default, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
			RETURNING `+addressColumns,
			userID, p.Label, p.Recipient, p.Phone, p.Line1, p.Line2, p.City, p.Region, p.PostalCode, isDefault))
		if err != nil {
			return fmt.Errorf("create address: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return address, nil
}

func clearDefaultAddress(ctx context.Context, tx *sql.Tx, userID int64) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE addresses SET is_default = FALSE, updated_at = NOW() WHERE user_id = $1 AND is_default`,
		userID); err != nil {
		return fmt.Errorf("clear default address: %w", err)
	}
	return nil
}

func GetAddress(ctx context.Context, db database.Querier, userID, id int64) (*models.Address, error) {
	address, err := scanAddress(db.QueryRowContext(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrAddressNotFound
		}
		return nil, fmt.Errorf("get address: %w", err)
	}
	return address, nil
}

func ListAddresses(ctx context.Context, db *sql.DB, userID int64) ([]models.Address, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+addressColumns+`
		FROM addresses
		WHERE user_id = $1
		ORDER BY is_default DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	addresses := []models.Address{}
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addresses = append(addresses, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return addresses, nil
}

func UpdateAddress(ctx context.Context, db *sql.DB, userID, id int64, p AddressParams) (*models.Address, error) {
	var address *models.Address
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		current, err := GetAddress(ctx, tx, userID, id)
		if err != nil {
			return err
		}

		isDefault := current.IsDefault || p.IsDefault
		if p.IsDefault && !current.IsDefault {
			if err := clearDefaultAddress(ctx, tx, userID); err != nil {
				return err
			}
		}

		address, err = scanAddress(tx.QueryRowContext(ctx, `
			UPDATE addresses
			SET label = $1, recipient = $2, phone = $3, line1 = $4, line2 = $5, city = $6,
			    region = $7, postal_code = $8, is_default = $9, updated_at = NOW()
			WHERE id = $10 AND user_id = $11
			RETURNING `+addressColumns,
			p.Label, p.Recipient, p.Phone, p.Line1, p.Line2, p.City, p.Region, p.PostalCode, isDefault, id, userID))
		if err != nil {
			return fmt.Errorf("update address: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return address, nil
}

func SetDefaultAddress(ctx context.Context, db *sql.DB, userID, id int64) error {
	return database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if _, err := GetAddress(ctx, tx, userID, id); err != nil {
			return err
		}
		if err := clearDefaultAddress(ctx, tx, userID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE addresses SET is_default = TRUE, updated_at = NOW() WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("set default address: %w", err)
		}
		return nil
	})
}

// DeleteAddress removes the address and promotes the newest remaining one
// to default if the deleted address was the default.
func DeleteAddress(ctx context.Context, db *sql.DB, userID, id int64) error {
	return database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		current, err := GetAddress(ctx, tx, userID, id)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM addresses WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete address: %w", err)
		}

		if current.IsDefault {
			_, err := tx.ExecContext(ctx, `
				UPDATE addresses SET is_default = TRUE, updated_at = NOW()
				WHERE id = (SELECT id FROM addresses WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1)`,
				userID)
			if err != nil {
				return fmt.Errorf("promote default address: %w", err)
			}
		}
		return nil
	})
}
