package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/safar/wholesale-store/internal/database"
	"github.com/safar/wholesale-store/internal/models"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

func Slugify(s string) string {
	s = nonSlugChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
	return strings.Trim(s, "-")
}

type CategoryParams struct {
	ParentID  *int64
	Name      string
	Slug      string
	ImageURL  string
	SortOrder int
}

const categoryColumns = `id, parent_id, name, slug, image_url, sort_order, created_at, updated_at`

func scanCategory(row rowScanner) (*models.Category, error) {
	c := &models.Category{}
	var parentID sql.NullInt64
	if err := row.Scan(&c.ID, &parentID, &c.Name, &c.Slug, &c.ImageURL, &c.SortOrder, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if parentID.Valid {
		c.ParentID = &parentID.Int64
	}
	return c, nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil || *id == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func catalogWriteError(what string, err error, notFound error) error {
	switch {
	case err == sql.ErrNoRows:
		return notFound
	case database.IsUniqueViolation(err):
		return fmt.Errorf("%w: %s slug already in use", database.ErrDuplicate, what)
	case database.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: referenced parent does not exist", database.ErrCategoryNotFound)
	}
	return fmt.Errorf("write %s: %w", what, err)
}

func CreateCategory(ctx context.Context, db *sql.DB, p CategoryParams) (*models.Category, error) {
	if p.Slug == "" {
		p.Slug = Slugify(p.Name)
	}
	c, err := scanCategory(db.QueryRowContext(ctx, `
		INSERT INTO categories (parent_id, name, slug, image_url, sort_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING `+categoryColumns,
		nullableID(p.ParentID), p.Name, p.Slug, p.ImageURL, p.SortOrder))
	if err != nil {
		return nil, catalogWriteError("category", err, database.ErrCategoryNotFound)
	}
	return c, nil
}

func UpdateCategory(ctx context.Context, db *sql.DB, id int64, p CategoryParams) (*models.Category, error) {
	if p.Slug == "" {
		p.Slug = Slugify(p.Name)
	}
	if p.ParentID != nil && *p.ParentID == id {
		return nil, fmt.Errorf("%w: category cannot be its own parent", database.ErrCategoryNotFound)
	}
	c, err := scanCategory(db.QueryRowContext(ctx, `
		UPDATE categories
		SET parent_id = $1, name = $2, slug = $3, image_url = $4, sort_order = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING `+categoryColumns,
		nullableID(p.ParentID), p.Name, p.Slug, p.ImageURL, p.SortOrder, id))
	if err != nil {
		return nil, catalogWriteError("category", err, database.ErrCategoryNotFound)
	}
	return c, nil
}

func GetCategory(ctx context.Context, db database.Querier, id int64) (*models.Category, error) {
	c, err := scanCategory(db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

// ListCategories returns categories ordered for display. A nil parentID
// returns every category; a pointer to 0 returns only top-level ones.
func ListCategories(ctx context.Context, db *sql.DB, parentID *int64) ([]models.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories`
	var args []interface{}
	if parentID != nil {
		if *parentID == 0 {
			query += ` WHERE parent_id IS NULL`
		} else {
			query += ` WHERE parent_id = $1`
			args = append(args, *parentID)
		}
	}
	query += ` ORDER BY sort_order, name`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return categories, nil
}

func DeleteCategory(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return expectOneRow(result, database.ErrCategoryNotFound)
}

type BrandParams struct {
	Name    string
	Slug    string
	LogoURL string
}

const brandColumns = `id, name, slug, logo_url, created_at, updated_at`

func scanBrand(row rowScanner) (*models.Brand, error) {
	b := &models.Brand{}
	err := row.Scan(&b.ID, &b.Name, &b.Slug, &b.LogoURL, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func CreateBrand(ctx context.Context, db *sql.DB, p BrandParams) (*models.Brand, error) {
	if p.Slug == "" {
		p.Slug = Slugify(p.Name)
	}
	b, err := scanBrand(db.QueryRowContext(ctx, `
		INSERT INTO brands (name, slug, logo_url, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING `+brandColumns, p.Name, p.Slug, p.LogoURL))
	if err != nil {
		return nil, catalogWriteError("brand", err, database.ErrBrandNotFound)
	}
	return b, nil
}

func UpdateBrand(ctx context.Context, db *sql.DB, id int64, p BrandParams) (*models.Brand, error) {
	if p.Slug == "" {
		p.Slug = Slugify(p.Name)
	}
	b, err := scanBrand(db.QueryRowContext(ctx, `
		UPDATE brands SET name = $1, slug = $2, logo_url = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING `+brandColumns, p.Name, p.Slug, p.LogoURL, id))
	if err != nil {
		return nil, catalogWriteError("brand", err, database.ErrBrandNotFound)
	}
	return b, nil
}

func GetBrand(ctx context.Context, db *sql.DB, id int64) (*models.Brand, error) {
	b, err := scanBrand(db.QueryRowContext(ctx, `SELECT `+brandColumns+` FROM brands WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrBrandNotFound
		}
		return nil, fmt.Errorf("get brand: %w", err)
	}
	return b, nil
}

func ListBrands(ctx context.Context, db *sql.DB) ([]models.Brand, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+brandColumns+` FROM brands ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list brands: %w", err)
	}
	defer rows.Close()

	brands := []models.Brand{}
	for rows.Next() {
		b, err := scanBrand(rows)
		if err != nil {
			return nil, fmt.Errorf("scan brand: %w", err)
		}
		brands = append(brands, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return brands, nil
}

func DeleteBrand(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM brands WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete brand: %w", err)
	}
	return expectOneRow(result, database.ErrBrandNotFound)
}
