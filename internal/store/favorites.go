package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/wholesale-store/internal/database"
	"github.com/safar/wholesale-store/internal/models"
)

// AddFavorite is idempotent.
func AddFavorite(ctx context.Context, db *sql.DB, userID, productID int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO favorites (user_id, product_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, product_id) DO NOTHING`, userID, productID)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return database.ErrProductNotFound
		}
		return fmt.Errorf("add favorite: %w", err)
	}
	return nil
}

func RemoveFavorite(ctx context.Context, db *sql.DB, userID, productID int64) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM favorites WHERE user_id = $1 AND product_id = $2`, userID, productID)
	if err != nil {
		return fmt.Errorf("remove favorite: %w", err)
	}
	return expectOneRow(result, database.ErrProductNotFound)
}

func ListFavorites(ctx context.Context, db *sql.DB, userID int64) ([]models.Favorite, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT f.created_at, `+prefixed("p", productColumns)+`
		FROM favorites f
		JOIN products p ON p.id = f.product_id
		WHERE f.user_id = $1
		ORDER BY f.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	var favorites []models.Favorite
	var products []models.Product
	for rows.Next() {
		var fav models.Favorite
		product, err := scanProduct(prefixScanner{rows: rows, first: &fav.CreatedAt})
		if err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		favorites = append(favorites, fav)
		products = append(products, *product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if err := attachTiers(ctx, db, products); err != nil {
		return nil, err
	}

	out := make([]models.Favorite, len(favorites))
	for i := range favorites {
		out[i] = models.Favorite{Product: products[i], CreatedAt: favorites[i].CreatedAt}
	}
	return out, nil
}

// FavoriteProductIDs returns the set of products the user has favorited.
func FavoriteProductIDs(ctx context.Context, db *sql.DB, userID int64) (map[int64]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT product_id FROM favorites WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("favorite ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan favorite id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}
