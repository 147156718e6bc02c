package handler

import (
	"github.com/acme-corp/module-registry-api/pkg/registry/helpers/util"
	"github.com/acme-corp/module-registry-api/pkg/registry/middleware"
	"github.com/acme-corp/module-registry-api/pkg/registry/models"
	"github.com/acme-corp/module-registry-api/pkg/registry/services"
	"github.com/gin-gonic/gin"
)

// PackagesAPIController binds HTTP requests to the package and query
// services, threading the authenticated actor into every call.
type PackagesAPIController struct {
	Packages *services.PackageService
	Queries  *services.QueryService
}

// NewPackagesAPIController creates a new controller
func NewPackagesAPIController(p *services.PackageService, q *services.QueryService) *PackagesAPIController {
	return &PackagesAPIController{Packages: p, Queries: q}
}

// CreatePackage handles POST /package
func (c *PackagesAPIController) CreatePackage(ctx *gin.Context, body *models.PackageInput) (*models.Package, error) {
	return c.Packages.CreatePackage(ctx.Request.Context(), middleware.Actor(ctx), body)
}

// RetrievePackage handles GET /package/:id
func (c *PackagesAPIController) RetrievePackage(ctx *gin.Context, params *models.PackageParams) (*models.Package, error) {
	return c.Packages.RetrievePackage(ctx.Request.Context(), middleware.Actor(ctx), params.ID)
}

// UpdatePackage handles PUT /package/:id
func (c *PackagesAPIController) UpdatePackage(ctx *gin.Context, body *models.UpdatePackageInput) error {
	return c.Packages.UpdatePackage(ctx.Request.Context(), middleware.Actor(ctx), body.ID, &body.PackageInput)
}

// DeletePackage handles DELETE /package/:id
func (c *PackagesAPIController) DeletePackage(ctx *gin.Context, params *models.PackageParams) error {
	return c.Packages.DeletePackage(ctx.Request.Context(), params.ID)
}

// RatePackage handles GET /package/:id/rate
func (c *PackagesAPIController) RatePackage(ctx *gin.Context, params *models.PackageParams) (*models.RatingRecord, error) {
	return c.Packages.RatePackage(ctx.Request.Context(), middleware.Actor(ctx), params.ID)
}

// PackageHistory handles GET /package/byName/:name
func (c *PackagesAPIController) PackageHistory(ctx *gin.Context, params *models.PackageNameParams) ([]models.AuditEntry, error) {
	history, err := c.Packages.PackageHistory(ctx.Request.Context(), params.Name)
	if err != nil {
		return nil, err
	}
	return util.HistoryView(history), nil
}

// DeletePackageByName handles DELETE /package/byName/:name
func (c *PackagesAPIController) DeletePackageByName(ctx *gin.Context, params *models.PackageNameParams) error {
	return c.Packages.DeletePackageByName(ctx.Request.Context(), params.Name)
}

// QueryPackages handles POST /packages
func (c *PackagesAPIController) QueryPackages(ctx *gin.Context, body *models.QueryPackagesParams) ([]models.PackageMetadata, error) {
	results, next, err := c.Queries.ResolveBatch(ctx.Request.Context(), body.Queries, body.Offset)
	if err != nil {
		return nil, err
	}
	util.SetOffsetHeader(ctx.Header, next)
	if results == nil {
		results = []models.PackageMetadata{}
	}
	return results, nil
}

// Reset handles DELETE /reset
func (c *PackagesAPIController) Reset(ctx *gin.Context) error {
	return c.Packages.Reset(ctx.Request.Context())
}
