package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/safar/wholesale-store/internal/database"
	"github.com/safar/wholesale-store/internal/models"
	"github.com/safar/wholesale-store/internal/store"
	"github.com/shopspring/decimal"
)

func (s *Server) listCategories(c *gin.Context) {
	parentID, ok := optionalIDQuery(c, "parent_id")
	if !ok {
		return
	}
	categories, err := store.ListCategories(c.Request.Context(), s.db, parentID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": categories})
}

func (s *Server) getCategory(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	category, err := store.GetCategory(c.Request.Context(), s.db, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (s *Server) listBrands(c *gin.Context) {
	brands, err := store.ListBrands(c.Request.Context(), s.db)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": brands})
}

func (s *Server) getBrand(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	brand, err := store.GetBrand(c.Request.Context(), s.db, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, brand)
}

// productFilter reads catalogue filters from the query string.
func productFilter(c *gin.Context) (store.ProductFilter, bool) {
	var f store.ProductFilter
	var ok bool
	if f.CategoryID, ok = optionalIDQuery(c, "category_id"); !ok {
		return f, false
	}
	if f.BrandID, ok = optionalIDQuery(c, "brand_id"); !ok {
		return f, false
	}
	if f.SupplierID, ok = optionalIDQuery(c, "supplier_id"); !ok {
		return f, false
	}
	f.Query = strings.TrimSpace(c.Query("q"))
	f.Sort = c.Query("sort")
	return f, true
}

func (s *Server) listProducts(c *gin.Context) {
	f, ok := productFilter(c)
	if !ok {
		return
	}
	page, err := store.ListProducts(c.Request.Context(), s.db, f, pageRequest(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) getProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	product, err := store.GetProduct(c.Request.Context(), s.db, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if !product.IsActive {
		s.respondError(c, database.ErrProductNotFound)
		return
	}
	c.JSON(http.StatusOK, product)
}

type categoryRequest struct {
	ParentID  *int64 `json:"parent_id"`
	Name      string `json:"name" binding:"required"`
	Slug      string `json:"slug"`
	ImageURL  string `json:"image_url"`
	SortOrder int    `json:"sort_order"`
}

func (r categoryRequest) params() store.CategoryParams {
	return store.CategoryParams{
		ParentID:  r.ParentID,
		Name:      strings.TrimSpace(r.Name),
		Slug:      r.Slug,
		ImageURL:  r.ImageURL,
		SortOrder: r.SortOrder,
	}
}

func (s *Server) adminCreateCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	category, err := store.CreateCategory(c.Request.Context(), s.db, req.params())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (s *Server) adminUpdateCategory(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	category, err := store.UpdateCategory(c.Request.Context(), s.db, id, req.params())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (s *Server) adminDeleteCategory(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := store.DeleteCategory(c.Request.Context(), s.db, id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type brandRequest struct {
	Name    string `json:"name" binding:"required"`
	Slug    string `json:"slug"`
	LogoURL string `json:"logo_url"`
}

func (s *Server) adminCreateBrand(c *gin.Context) {
	var req brandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	brand, err := store.CreateBrand(c.Request.Context(), s.db, store.BrandParams{
		Name: strings.TrimSpace(req.Name), Slug: req.Slug, LogoURL: req.LogoURL,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, brand)
}

func (s *Server) adminUpdateBrand(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req brandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	brand, err := store.UpdateBrand(c.Request.Context(), s.db, id, store.BrandParams{
		Name: strings.TrimSpace(req.Name), Slug: req.Slug, LogoURL: req.LogoURL,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, brand)
}

func (s *Server) adminDeleteBrand(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := store.DeleteBrand(c.Request.Context(), s.db, id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type productRequest struct {
	SKU           string             `json:"sku" binding:"required"`
	Name          string             `json:"name" binding:"required"`
	Description   string             `json:"description"`
	CategoryID    *int64             `json:"category_id"`
	BrandID       *int64             `json:"brand_id"`
	SupplierID    *int64             `json:"supplier_id"`
	Price         decimal.Decimal    `json:"price"`
	Unit          string             `json:"unit"`
	MinOrderQty   int                `json:"min_order_qty"`
	StockQuantity int                `json:"stock_quantity"`
	ImageURL      string             `json:"image_url"`
	IsActive      *bool              `json:"is_active"`
	PriceTiers    []models.PriceTier `json:"price_tiers"`
	Version       int                `json:"version"`
}

func (r productRequest) params() store.ProductParams {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return store.ProductParams{
		SKU:           r.SKU,
		Name:          r.Name,
		Description:   r.Description,
		CategoryID:    r.CategoryID,
		BrandID:       r.BrandID,
		SupplierID:    r.SupplierID,
		Price:         r.Price,
		Unit:          r.Unit,
		MinOrderQty:   r.MinOrderQty,
		StockQuantity: r.StockQuantity,
		ImageURL:      r.ImageURL,
		IsActive:      active,
		PriceTiers:    r.PriceTiers,
	}
}

func (s *Server) adminListProducts(c *gin.Context) {
	f, ok := productFilter(c)
	if !ok {
		return
	}
	f.IncludeInactive = true
	page, err := store.ListProducts(c.Request.Context(), s.db, f, pageRequest(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) adminCreateProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	product, err := store.CreateProduct(c.Request.Context(), s.db, req.params())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (s *Server) adminUpdateProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Version < 1 {
		badRequest(c, "version is required")
		return
	}
	product, err := store.UpdateProduct(c.Request.Context(), s.db, id, req.Version, req.params())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

type tiersRequest struct {
	PriceTiers []models.PriceTier `json:"price_tiers"`
}

func (s *Server) adminReplaceTiers(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req tiersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	product, err := store.ReplacePriceTiers(c.Request.Context(), s.db, id, req.PriceTiers)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

type stockRequest struct {
	Delta int `json:"delta" binding:"required"`
}

func (s *Server) adminAdjustStock(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req stockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	product, err := store.AdjustStock(c.Request.Context(), s.db, id, req.Delta)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

type activeRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

func (s *Server) adminSetProductActive(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req activeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := store.SetProductActive(c.Request.Context(), s.db, id, *req.IsActive); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
