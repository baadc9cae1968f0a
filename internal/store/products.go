package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/safar/wholesale-store/internal/database"
	"github.com/safar/wholesale-store/internal/models"
	"github.com/safar/wholesale-store/internal/pricing"
	"github.com/shopspring/decimal"
)

type ProductParams struct {
	SKU           string
	Name          string
	Description   string
	CategoryID    *int64
	BrandID       *int64
	SupplierID    *int64
	Price         decimal.Decimal
	Unit          string
	MinOrderQty   int
	StockQuantity int
	ImageURL      string
	IsActive      bool
	PriceTiers    []models.PriceTier
}

func (p *ProductParams) normalize() error {
	p.SKU = strings.TrimSpace(p.SKU)
	p.Name = strings.TrimSpace(p.Name)
	if p.SKU == "" || p.Name == "" {
		return fmt.Errorf("%w: sku and name are required", ErrValidation)
	}
	if !p.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive", ErrValidation)
	}
	if p.MinOrderQty < 1 {
		p.MinOrderQty = 1
	}
	if p.StockQuantity < 0 {
		return fmt.Errorf("%w: stock cannot be negative", ErrValidation)
	}
	if p.Unit == "" {
		p.Unit = "piece"
	}
	if err := pricing.ValidateTiers(p.Price, p.PriceTiers); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

type ProductFilter struct {
	CategoryID      *int64
	BrandID         *int64
	SupplierID      *int64
	Query           string
	Sort            string
	IncludeInactive bool
}

const (
	SortNewest    = "newest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortName      = "name"
)

var productOrderBy = map[string]string{
	SortNewest:    "created_at DESC, id DESC",
	SortPriceAsc:  "price ASC, id ASC",
	SortPriceDesc: "price DESC, id DESC",
	SortName:      "name ASC, id ASC",
}

const productColumns = `id, sku, name, description, category_id, brand_id, supplier_id, price, unit,
	min_order_qty, stock_quantity, image_url, is_active, created_at, updated_at, version`

func scanProduct(row rowScanner) (*models.Product, error) {
	product := &models.Product{PriceTiers: []models.PriceTier{}}
	var categoryID, brandID, supplierID sql.NullInt64
	err := row.Scan(
		&product.ID,
		&product.SKU,
		&product.Name,
		&product.Description,
		&categoryID,
		&brandID,
		&supplierID,
		&product.Price,
		&product.Unit,
		&product.MinOrderQty,
		&product.StockQuantity,
		&product.ImageURL,
		&product.IsActive,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
	if err != nil {
		return nil, err
	}
	if categoryID.Valid {
		product.CategoryID = &categoryID.Int64
	}
	if brandID.Valid {
		product.BrandID = &brandID.Int64
	}
	if supplierID.Valid {
		product.SupplierID = &supplierID.Int64
	}
	return product, nil
}

func productWriteError(err error) error {
	switch {
	case database.IsUniqueViolation(err):
		return fmt.Errorf("%w: sku already in use", database.ErrDuplicate)
	case database.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: unknown category, brand or supplier", ErrValidation)
	}
	return err
}

func CreateProduct(ctx context.Context, db *sql.DB, p ProductParams) (*models.Product, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}

	var product *models.Product
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		product, err = scanProduct(tx.QueryRowContext(ctx, `
			INSERT INTO products (sku, name, description, category_id, brand_id, supplier_id, price, unit,
			                      min_order_qty, stock_quantity, image_url, is_active, created_at, updated_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW(), 1)
			RETURNING `+productColumns,
			p.SKU, p.Name, p.Description, nullableID(p.CategoryID), nullableID(p.BrandID), nullableID(p.SupplierID),
			p.Price, p.Unit, p.MinOrderQty, p.StockQuantity, p.ImageURL, p.IsActive))
		if err != nil {
			return fmt.Errorf("create product: %w", productWriteError(err))
		}

		if err := insertTiers(ctx, tx, product.ID, p.PriceTiers); err != nil {
			return err
		}
		product.PriceTiers = sortedTiers(p.PriceTiers)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return product, nil
}

func sortedTiers(tiers []models.PriceTier) []models.PriceTier {
	out := append([]models.PriceTier{}, tiers...)
	pricing.SortTiers(out)
	return out
}

func insertTiers(ctx context.Context, tx *sql.Tx, productID int64, tiers []models.PriceTier) error {
	for _, t := range tiers {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO product_price_tiers (product_id, min_quantity, unit_price) VALUES ($1, $2, $3)`,
			productID, t.MinQuantity, t.UnitPrice); err != nil {
			return fmt.Errorf("insert price tier: %w", err)
		}
	}
	return nil
}

// loadTiers fetches the price tiers of many products in one round trip.
func loadTiers(ctx context.Context, db database.Querier, productIDs []int64) (map[int64][]models.PriceTier, error) {
	tiers := make(map[int64][]models.PriceTier, len(productIDs))
	if len(productIDs) == 0 {
		return tiers, nil
	}

	rows, err := db.QueryContext(ctx, `
		SELECT product_id, min_quantity, unit_price
		FROM product_price_tiers
		WHERE product_id = ANY($1)
		ORDER BY product_id, min_quantity`, pq.Array(productIDs))
	if err != nil {
		return nil, fmt.Errorf("load price tiers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var productID int64
		var t models.PriceTier
		if err := rows.Scan(&productID, &t.MinQuantity, &t.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan price tier: %w", err)
		}
		tiers[productID] = append(tiers[productID], t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return tiers, nil
}

func attachTiers(ctx context.Context, db database.Querier, products []models.Product) error {
	ids := make([]int64, len(products))
	for i := range products {
		ids[i] = products[i].ID
	}
	tiers, err := loadTiers(ctx, db, ids)
	if err != nil {
		return err
	}
	for i := range products {
		if t, ok := tiers[products[i].ID]; ok {
			products[i].PriceTiers = t
		}
	}
	return nil
}

func GetProduct(ctx context.Context, db database.Querier, id int64) (*models.Product, error) {
	product, err := scanProduct(db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	tiers, err := loadTiers(ctx, db, []int64{id})
	if err != nil {
		return nil, err
	}
	if t, ok := tiers[id]; ok {
		product.PriceTiers = t
	}
	return product, nil
}

func buildProductWhere(f ProductFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if !f.IncludeInactive {
		conds = append(conds, "is_active")
	}
	if f.CategoryID != nil {
		add("category_id = $%d", *f.CategoryID)
	}
	if f.BrandID != nil {
		add("brand_id = $%d", *f.BrandID)
	}
	if f.SupplierID != nil {
		add("supplier_id = $%d", *f.SupplierID)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR sku ILIKE $%d)", n, n))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ListProducts returns one page of the catalogue with tiers attached.
func ListProducts(ctx context.Context, db *sql.DB, f ProductFilter, p PageRequest) (*OffsetPage, error) {
	p = p.Normalize()
	where, args := buildProductWhere(f)

	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	orderBy, ok := productOrderBy[f.Sort]
	if !ok {
		orderBy = productOrderBy[SortNewest]
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM products%s ORDER BY %s LIMIT $%d OFFSET $%d`,
		productColumns, where, orderBy, n+1, n+2)
	rows, err := db.QueryContext(ctx, query, append(args, p.PageSize, p.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if err := attachTiers(ctx, db, products); err != nil {
		return nil, err
	}

	return newOffsetPage(products, total, p), nil
}

// UpdateProduct overwrites product fields and tiers when version matches.
func UpdateProduct(ctx context.Context, db *sql.DB, id int64, version int, p ProductParams) (*models.Product, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}

	var product *models.Product
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		product, err = scanProduct(tx.QueryRowContext(ctx, `
			UPDATE products
			SET sku = $1, name = $2, description = $3, category_id = $4, brand_id = $5, supplier_id = $6,
			    price = $7, unit = $8, min_order_qty = $9, stock_quantity = $10, image_url = $11,
			    is_active = $12, updated_at = NOW(), version = version + 1
			WHERE id = $13 AND version = $14
			RETURNING `+productColumns,
			p.SKU, p.Name, p.Description, nullableID(p.CategoryID), nullableID(p.BrandID), nullableID(p.SupplierID),
			p.Price, p.Unit, p.MinOrderQty, p.StockQuantity, p.ImageURL, p.IsActive, id, version))
		if err != nil {
			if err == sql.ErrNoRows {
				return versionMismatchOrMissing(ctx, tx, "products", id, database.ErrProductNotFound)
			}
			return fmt.Errorf("update product: %w", productWriteError(err))
		}

		if err := replaceTiers(ctx, tx, id, p.PriceTiers); err != nil {
			return err
		}
		product.PriceTiers = sortedTiers(p.PriceTiers)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

func versionMismatchOrMissing(ctx context.Context, q database.Querier, table string, id int64, notFound error) error {
	var exists bool
	if err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check %s exists: %w", table, err)
	}
	if !exists {
		return notFound
	}
	return database.ErrOptimisticLockFailed
}

func replaceTiers(ctx context.Context, tx *sql.Tx, productID int64, tiers []models.PriceTier) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM product_price_tiers WHERE product_id = $1`, productID); err != nil {
		return fmt.Errorf("delete price tiers: %w", err)
	}
	return insertTiers(ctx, tx, productID, tiers)
}

func ReplacePriceTiers(ctx context.Context, db *sql.DB, productID int64, tiers []models.PriceTier) (*models.Product, error) {
	var product *models.Product
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		product, err = GetProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		if err := pricing.ValidateTiers(product.Price, tiers); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if err := replaceTiers(ctx, tx, productID, tiers); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE products SET updated_at = NOW(), version = version + 1 WHERE id = $1`, productID); err != nil {
			return fmt.Errorf("touch product: %w", err)
		}
		product.PriceTiers = sortedTiers(tiers)
		product.Version++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// AdjustStock adds delta (which may be negative) to the stock level.
func AdjustStock(ctx context.Context, db *sql.DB, productID int64, delta int) (*models.Product, error) {
	product, err := scanProduct(db.QueryRowContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + $1, updated_at = NOW(), version = version + 1
		WHERE id = $2 AND stock_quantity + $1 >= 0
		RETURNING `+productColumns, delta, productID))
	if err != nil {
		if err == sql.ErrNoRows {
			if _, getErr := GetProduct(ctx, db, productID); getErr != nil {
				return nil, getErr
			}
			return nil, database.ErrInsufficientStock
		}
		return nil, fmt.Errorf("adjust stock: %w", err)
	}
	return product, nil
}

func SetProductActive(ctx context.Context, db *sql.DB, productID int64, active bool) error {
	result, err := db.ExecContext(ctx,
		`UPDATE products SET is_active = $1, updated_at = NOW(), version = version + 1 WHERE id = $2`,
		active, productID)
	if err != nil {
		return fmt.Errorf("set product active: %w", err)
	}
	return expectOneRow(result, database.ErrProductNotFound)
}

// lockProductsNoWait row-locks the given products for the rest of tx. A
// concurrent holder surfaces as ErrLockTimeout so WithRetry backs off.
func lockProductsNoWait(ctx context.Context, tx *sql.Tx, ids []int64) (map[int64]*models.Product, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE NOWAIT`, pq.Array(ids))
	if err != nil {
		if database.IsLockNotAvailable(err) {
			return nil, database.ErrLockTimeout
		}
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()

	products := make(map[int64]*models.Product, len(ids))
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products[product.ID] = product
	}
	if err := rows.Err(); err != nil {
		if database.IsLockNotAvailable(err) {
			return nil, database.ErrLockTimeout
		}
		return nil, fmt.Errorf("rows error: %w", err)
	}

	tiers, err := loadTiers(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	for id, t := range tiers {
		if p, ok := products[id]; ok {
			p.PriceTiers = t
		}
	}
	return products, nil
}

func DecrementStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity - $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock_quantity >= $1`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	return expectOneRow(result, database.ErrInsufficientStock)
}

func IncrementStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE products SET stock_quantity = stock_quantity + $1, updated_at = NOW() WHERE id = $2`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	return nil
}
