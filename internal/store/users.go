package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/safar/wholesale-store/internal/database"
	"github.com/safar/wholesale-store/internal/models"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

type CreateUserParams struct {
	Phone        string
	Email        string
	Name         string
	BusinessName string
	PasswordHash string
	Role         string
}

type UpdateProfileParams struct {
	Name         *string
	Email        *string
	BusinessName *string
}

const userColumns = `id, phone, email, name, business_name, role, password_hash, created_at, updated_at, version`

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var email sql.NullString
	err := row.Scan(
		&user.ID,
		&user.Phone,
		&email,
		&user.Name,
		&user.BusinessName,
		&user.Role,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
	)
	if err != nil {
		return nil, err
	}
	if email.Valid {
		user.Email = &email.String
	}
	return user, nil
}

func nullableString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateUser inserts the user and their empty wallet atomically.
func CreateUser(ctx context.Context, db *sql.DB, p CreateUserParams) (*models.User, error) {
	if p.Role == "" {
		p.Role = models.RoleCustomer
	}

	var user *models.User
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		user, err = scanUser(tx.QueryRowContext(ctx, `
			INSERT INTO users (phone, email, name, business_name, password_hash, role, created_at, updated_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW(), 1)
			RETURNING `+userColumns,
			strings.TrimSpace(p.Phone), nullableString(strings.ToLower(p.Email)), strings.TrimSpace(p.Name),
			strings.TrimSpace(p.BusinessName), p.PasswordHash, p.Role))
		if err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("%w: phone or email already registered", database.ErrDuplicate)
			}
			return fmt.Errorf("create user: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO wallets (user_id, balance, created_at, updated_at, version) VALUES ($1, 0, NOW(), NOW(), 1)`,
			user.ID); err != nil {
			return fmt.Errorf("create wallet: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

func GetUser(ctx context.Context, db database.Querier, id int64) (*models.User, error) {
	user, err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// GetUserByLogin looks a user up by phone number or, when login contains
// an @, by email.
func GetUserByLogin(ctx context.Context, db database.Querier, login string) (*models.User, error) {
	login = strings.TrimSpace(login)
	query := `SELECT ` + userColumns + ` FROM users WHERE phone = $1`
	if strings.Contains(login, "@") {
		login = strings.ToLower(login)
		query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	}

	user, err := scanUser(db.QueryRowContext(ctx, query, login))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by login: %w", err)
	}
	return user, nil
}

func UpdateProfile(ctx context.Context, db *sql.DB, id int64, p UpdateProfileParams) (*models.User, error) {
	current, err := GetUser(ctx, db, id)
	if err != nil {
		return nil, err
	}

	name := current.Name
	if p.Name != nil && strings.TrimSpace(*p.Name) != "" {
		name = strings.TrimSpace(*p.Name)
	}
	email := sql.NullString{}
	if current.Email != nil {
		email = sql.NullString{String: *current.Email, Valid: true}
	}
	if p.Email != nil {
		email = nullableString(strings.ToLower(*p.Email))
	}
	business := current.BusinessName
	if p.BusinessName != nil {
		business = strings.TrimSpace(*p.BusinessName)
	}

	user, err := scanUser(db.QueryRowContext(ctx, `
		UPDATE users
		SET name = $1, email = $2, business_name = $3, updated_at = NOW(), version = version + 1
		WHERE id = $4
		RETURNING `+userColumns,
		name, email, business, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrUserNotFound
		}
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: email already registered", database.ErrDuplicate)
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}

func UpdatePasswordHash(ctx context.Context, db *sql.DB, id int64, hash string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE users SET password_hash = $1, updated_at = NOW(), version = version + 1 WHERE id = $2`,
		hash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return expectOneRow(result, database.ErrUserNotFound)
}

// DeleteUser removes the account; addresses, cart, wallet and orders cascade.
func DeleteUser(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return expectOneRow(result, database.ErrUserNotFound)
}

func SetUserRole(ctx context.Context, db *sql.DB, id int64, role string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE users SET role = $1, updated_at = NOW(), version = version + 1 WHERE id = $2`, role, id)
	if err != nil {
		return fmt.Errorf("set user role: %w", err)
	}
	return expectOneRow(result, database.ErrUserNotFound)
}

func ListUsers(ctx context.Context, db *sql.DB, p PageRequest) (*OffsetPage, error) {
	p = p.Normalize()

	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`, p.PageSize, p.Offset())
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(users, total, p), nil
}

func expectOneRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
