package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/wholesale-store/internal/database"
	"github.com/safar/wholesale-store/internal/models"
)

type SupplierParams struct {
	Name        string
	ContactName string
	Phone       string
	Email       string
	Address     string
}

const supplierColumns = `id, name, contact_name, phone, email, address, created_at, updated_at`

func scanSupplier(row rowScanner) (*models.Supplier, error) {
	s := &models.Supplier{}
	err := row.Scan(&s.ID, &s.Name, &s.ContactName, &s.Phone, &s.Email, &s.Address, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func CreateSupplier(ctx context.Context, db *sql.DB, p SupplierParams) (*models.Supplier, error) {
	s, err := scanSupplier(db.QueryRowContext(ctx, `
		INSERT INTO suppliers (name, contact_name, phone, email, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING `+supplierColumns, p.Name, p.ContactName, p.Phone, p.Email, p.Address))
	if err != nil {
		return nil, fmt.Errorf("create supplier: %w", err)
	}
	return s, nil
}

func UpdateSupplier(ctx context.Context, db *sql.DB, id int64, p SupplierParams) (*models.Supplier, error) {
	s, err := scanSupplier(db.QueryRowContext(ctx, `
		UPDATE suppliers
		SET name = $1, contact_name = $2, phone = $3, email = $4, address = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING `+supplierColumns, p.Name, p.ContactName, p.Phone, p.Email, p.Address, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrSupplierNotFound
		}
		return nil, fmt.Errorf("update supplier: %w", err)
	}
	return s, nil
}

func GetSupplier(ctx context.Context, db *sql.DB, id int64) (*models.Supplier, error) {
	s, err := scanSupplier(db.QueryRowContext(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrSupplierNotFound
		}
		return nil, fmt.Errorf("get supplier: %w", err)
	}
	return s, nil
}

func ListSuppliers(ctx context.Context, db *sql.DB, p PageRequest) (*OffsetPage, error) {
	p = p.Normalize()

	var total int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM suppliers`).Scan(&total); err != nil {
		return nil, fmt.Errorf("count suppliers: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+supplierColumns+` FROM suppliers
		ORDER BY name, id
		LIMIT $1 OFFSET $2`, p.PageSize, p.Offset())
	if err != nil {
		return nil, fmt.Errorf("list suppliers: %w", err)
	}
	defer rows.Close()

	suppliers := []models.Supplier{}
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, fmt.Errorf("scan supplier: %w", err)
		}
		suppliers = append(suppliers, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return newOffsetPage(suppliers, total, p), nil
}

func DeleteSupplier(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM suppliers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete supplier: %w", err)
	}
	return expectOneRow(result, database.ErrSupplierNotFound)
}
