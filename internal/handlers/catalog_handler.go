package handlers

import (
	"net/http"

	"helpcy/internal/observability"
	"helpcy/internal/services"
	contextutils "helpcy/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// CategoryView is one catalog entry on the wire
type CategoryView struct {
	Name          string   `json:"name"`
	Subcategories []string `json:"subcategories"`
}

// CatalogHandler exposes the read-only category taxonomy
type CatalogHandler struct {
	catalog services.CatalogServiceInterface
	logger  *observability.Logger
}

// NewCatalogHandler creates a CatalogHandler
func NewCatalogHandler(catalog services.CatalogServiceInterface, logger *observability.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger}
}

// GetCategories handles GET /api/categories
func (h *CatalogHandler) GetCategories(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_categories")
	defer observability.FinishSpan(span, nil)

	names := h.catalog.AllCategories()
	categories := make([]CategoryView, 0, len(names))
	for _, name := range names {
		categories = append(categories, CategoryView{Name: name, Subcategories: h.catalog.SubcategoriesOf(name)})
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

// GetSubcategories handles GET /api/categories/subcategories?category=
func (h *CatalogHandler) GetSubcategories(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_subcategories")
	defer observability.FinishSpan(span, nil)

	category := c.Query("category")
	span.SetAttributes(attribute.String("catalog.category", category))
	if category == "" {
		HandleValidationError(c, "category", category, "category is required")
		return
	}
	if !h.catalog.HasCategory(category) {
		h.logger.Debug(ctx, "Unknown category requested", map[string]interface{}{"category": category})
		HandleAppError(c, contextutils.NewAppError(contextutils.ErrorCodeRecordNotFound, contextutils.SeverityInfo, "category not found", category))
		return
	}
	c.JSON(http.StatusOK, CategoryView{Name: category, Subcategories: h.catalog.SubcategoriesOf(category)})
}
