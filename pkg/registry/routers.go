package registry

import (
	"github.com/acme-corp/module-registry-api/pkg/registry/handler"
	"github.com/acme-corp/module-registry-api/pkg/registry/middleware"
	"github.com/gin-gonic/gin"
	"github.com/loopfz/gadgeto/tonic"
	"github.com/wI2L/fizz"
	"github.com/wI2L/fizz/openapi"
)

var (
	apiVersionHeader = fizz.Header(
		"API-Version",
		"The API version of the response",
		"",
	)

	notFoundResponse = fizz.Response(
		"404",
		"Not Found",
		nil,
		nil,
		nil,
	)
)

func NewRouter(apiVersion string, controller *handler.PackagesAPIController) *fizz.Fizz {
	g := gin.Default()
	g.Use(APIVersionMiddleware(apiVersion))
	f := fizz.NewFromEngine(g)

	f.Generator().SetServers([]*openapi.Server{
		{
			URL:         "https://registry.acme-corp.dev/v1",
			Description: "Production",
		},
	})

	gen := f.Generator()
	gen.API().Components.Headers["API-Version"] = &openapi.HeaderOrRef{
		Header: &openapi.Header{
			Description: "The API version of the response",
			Schema: &openapi.SchemaOrRef{
				Schema: &openapi.Schema{
					Type: "string",
				},
			},
		},
	}

	info := &openapi.Info{
		Title:       "ACME Module Registry API v1",
		Description: "Registry for software packages ingested by upload or source reference",
		Version:     apiVersion,
		Contact: &openapi.Contact{
			Name:  "ACME registry team",
			Email: "registry@acme-corp.dev",
			URL:   "https://registry.acme-corp.dev",
		},
	}

	root := f.Group("/v1", "Registry v1", "Module registry V1 routes")

	read := root.Group("", "Read", "Read-only endpoints", middleware.RequireAccess("packages:read"))
	read.GET("/package/:id",
		[]fizz.OperationOption{
			fizz.Summary("Retrieve a package (gate-script packages run their download check)"),
			apiVersionHeader,
			notFoundResponse,
		},
		tonic.Handler(controller.RetrievePackage, 200),
	)

	read.GET("/package/:id/rate",
		[]fizz.OperationOption{
			fizz.Summary("Rate a package against its source URL"),
			apiVersionHeader,
			notFoundResponse,
		},
		tonic.Handler(controller.RatePackage, 200),
	)

	read.GET("/package/byName/:name",
		[]fizz.OperationOption{
			fizz.Summary("Audit history across all versions of a name"),
			apiVersionHeader,
			notFoundResponse,
		},
		tonic.Handler(controller.PackageHistory, 200),
	)

	// Catalog queries are reads carried in a POST body.
	read.POST("/packages",
		[]fizz.OperationOption{
			fizz.Summary("Resolve a batch of catalog queries with pagination"),
			apiVersionHeader,
		},
		tonic.Handler(controller.QueryPackages, 200),
	)

	write := root.Group("", "Write", "Package lifecycle endpoints", middleware.RequireAccess("packages:write"))
	write.POST("/package",
		[]fizz.OperationOption{
			fizz.Summary("Create a package from an upload or a source reference"),
			apiVersionHeader,
		},
		tonic.Handler(controller.CreatePackage, 201),
	)

	write.PUT("/package/:id",
		[]fizz.OperationOption{
			fizz.Summary("Replace a package's content (name and version must match)"),
			apiVersionHeader,
			notFoundResponse,
		},
		tonic.Handler(controller.UpdatePackage, 200),
	)

	write.DELETE("/package/:id",
		[]fizz.OperationOption{
			fizz.Summary("Delete a package and its audit trail"),
			apiVersionHeader,
			notFoundResponse,
		},
		tonic.Handler(controller.DeletePackage, 200),
	)

	write.DELETE("/package/byName/:name",
		[]fizz.OperationOption{
			fizz.Summary("Delete every version sharing a name"),
			apiVersionHeader,
			notFoundResponse,
		},
		tonic.Handler(controller.DeletePackageByName, 200),
	)

	write.DELETE("/reset",
		[]fizz.OperationOption{
			fizz.Summary("Reset the registry to its default state"),
			apiVersionHeader,
		},
		tonic.Handler(controller.Reset, 200),
	)

	f.GET("/v1/openapi.json", []fizz.OperationOption{}, f.OpenAPI(info, "json"))

	return f
}

type apiVersionWriter struct {
	gin.ResponseWriter
	version string
}

func (w *apiVersionWriter) WriteHeader(code int) {
	if code >= 200 && code < 300 {
		w.Header().Set("API-Version", w.version)
	}
	w.ResponseWriter.WriteHeader(code)
}

func APIVersionMiddleware(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer = &apiVersionWriter{c.Writer, version}
		c.Next()
	}
}
