package main

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MikeMC777/bikerhub/internal/httpx"
	"github.com/MikeMC777/bikerhub/internal/logger"
	"github.com/MikeMC777/bikerhub/internal/product"
)

const highlightLimit = 10

func parseQuery(c *gin.Context) (product.Query, error) {
	page, limit := pageParams(c)
	q := product.Query{
		Q:            c.Query("search"),
		Category:     c.Query("category"),
		Brand:        c.Query("brand"),
		Condition:    c.Query("condition"),
		Availability: c.Query("availability"),
		SellerID:     c.Query("seller"),
		SortBy:       c.DefaultQuery("sortBy", "createdAt"),
		SortOrder:    c.DefaultQuery("sortOrder", "desc"),
		Page:         page,
		Limit:        limit,
	}
	if q.Q == "" {
		q.Q = c.Query("q")
	}
	for key, dst := range map[string]**decimal.Decimal{"minPrice": &q.MinPrice, "maxPrice": &q.MaxPrice} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil || d.IsNegative() {
			return q, httpx.BadRequest(key + " must be a non-negative number")
		}
		*dst = &d
	}
	return q, nil
}

func listProductsHandler(repo product.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := parseQuery(c)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		items, total, err := repo.List(c.Request.Context(), q)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.Paginated(c, items, httpx.NewPagination(q.Page, q.Limit, total))
	}
}

func highlightedHandler(repo product.Repository, h product.Highlight) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(highlightLimit)))
		items, err := repo.Highlighted(c.Request.Context(), h, limit)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "", items)
	}
}

// getProductHandler accepts either the product id or its slug.
func getProductHandler(repo product.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ref := c.Param("id")

		var (
			p   *product.Product
			err error
		)
		if _, perr := uuid.Parse(ref); perr == nil {
			p, err = repo.GetByID(ctx, ref)
		} else {
			p, err = repo.GetBySlug(ctx, ref)
		}
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		if err := repo.IncrementViews(ctx, p.ID); err != nil {
			logger.FromContext(ctx).Warn("increment product views", zap.String("product_id", p.ID), zap.Error(err))
		} else {
			p.ViewCount++
		}
		httpx.OK(c, "", p)
	}
}

func createProductHandler(repo product.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in product.CreateProductRequest
		if err := c.ShouldBindJSON(&in); err != nil {
			httpx.Fail(c, err)
			return
		}
		if err := in.Validate(); err != nil {
			httpx.Fail(c, err)
			return
		}
		p := in.ToProduct(uuid.NewString(), httpx.CurrentPrincipal(c).UserID)
		if err := repo.Create(c.Request.Context(), p); err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.Created(c, "Product created successfully", p)
	}
}

// ownedProduct loads the product and checks the caller may modify it.
func ownedProduct(c *gin.Context, repo product.Repository) (*product.Product, bool) {
	p, err := repo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpx.Fail(c, err)
		return nil, false
	}
	if err := httpx.OwnerOrAdmin(c, p.SellerID); err != nil {
		httpx.Fail(c, err)
		return nil, false
	}
	return p, true
}

func updateProductHandler(repo product.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in product.UpdateProductRequest
		if err := c.ShouldBindJSON(&in); err != nil {
			httpx.Fail(c, err)
			return
		}
		if err := in.Validate(); err != nil {
			httpx.Fail(c, err)
			return
		}
		p, ok := ownedProduct(c, repo)
		if !ok {
			return
		}
		in.Apply(p)
		if err := repo.Update(c.Request.Context(), p); err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "Product updated successfully", p)
	}
}

func deleteProductHandler(repo product.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := ownedProduct(c, repo)
		if !ok {
			return
		}
		deleted, err := repo.Delete(c.Request.Context(), p.ID)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		if !deleted {
			httpx.Fail(c, product.ErrNotFound)
			return
		}
		httpx.OK(c, "Product deleted successfully", nil)
	}
}

func updateStockHandler(repo product.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in product.StockUpdateRequest
		if err := c.ShouldBindJSON(&in); err != nil {
			httpx.Fail(c, err)
			return
		}
		p, ok := ownedProduct(c, repo)
		if !ok {
			return
		}
		updated, err := repo.UpdateStock(c.Request.Context(), p.ID, in.Quantity, in.Operation)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "Stock updated successfully", updated)
	}
}

func lowStockHandler(repo product.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		items, err := repo.LowStock(c.Request.Context(), limit)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "", items)
	}
}
