package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hemidirasim/sahibparfum-sub001/internal/service"
)

// ListProducts handles GET /api/products
func (h *Handlers) ListProducts(c *gin.Context) {
	filter, err := service.ParseProductFilter(c.Request.URL.Query())
	if err != nil {
		handleError(c, err)
		return
	}

	page, err := h.catalog.ListProducts(c.Request.Context(), filter)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// GetProduct handles GET /api/products/:slug
func (h *Handlers) GetProduct(c *gin.Context) {
	product, err := h.catalog.GetProduct(c.Request.Context(), c.Param("slug"))
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, product)
}

// ListCategories handles GET /api/categories
func (h *Handlers) ListCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"categories": categories})
}
