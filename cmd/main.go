package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"reflect"
	"strings"

	registry "github.com/acme-corp/module-registry-api/pkg/registry"
	"github.com/acme-corp/module-registry-api/pkg/registry/database"
	"github.com/acme-corp/module-registry-api/pkg/registry/handler"
	problem "github.com/acme-corp/module-registry-api/pkg/registry/helpers/problem"
	util "github.com/acme-corp/module-registry-api/pkg/registry/helpers/util"
	"github.com/acme-corp/module-registry-api/pkg/registry/models"
	"github.com/acme-corp/module-registry-api/pkg/registry/repositories"
	"github.com/acme-corp/module-registry-api/pkg/registry/services"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/loopfz/gadgeto/tonic"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/acme-corp/module-registry-api/pkg/gate"
	"github.com/acme-corp/module-registry-api/pkg/jobs"
	"github.com/acme-corp/module-registry-api/pkg/rating"
	"github.com/acme-corp/module-registry-api/pkg/sources"
)

func invalidParamsFromBinding(err error, sample any) []problem.InvalidParam {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []problem.InvalidParam{{Name: "body", Reason: err.Error()}}
	}

	t := reflect.TypeOf(sample)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	out := make([]problem.InvalidParam, 0, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		// StructField -> json tag
		if f, ok := t.FieldByName(fe.StructField()); ok {
			if tag := f.Tag.Get("json"); tag != "" && tag != "-" {
				name = strings.Split(tag, ",")[0]
			}
		}
		out = append(out, problem.InvalidParam{
			Name:   name,
			Reason: humanReason(fe),
		})
	}
	return out
}

func humanReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "url":
		return "must be a valid URL"
	default:
		return fe.Error()
	}
}

func init() {
	tonic.SetErrorHook(func(c *gin.Context, err error) (int, interface{}) {
		// 1) Bind/validate errors → 400 with the offending params
		var be tonic.BindError
		if errors.As(err, &be) || isValidationErr(err) {
			invalids := invalidParamsFromBinding(err, models.PackageInput{})
			apiErr := problem.NewBadRequest("body", "Invalid input", invalids...)
			c.Header("Content-Type", "application/problem+json")
			return apiErr.Status, apiErr
		}

		// 2) Our own APIError → pass-through
		if apiErr, ok := err.(problem.APIError); ok {
			c.Header("Content-Type", "application/problem+json")
			return apiErr.Status, apiErr
		}

		// 3) Everything else → 500
		internal := problem.NewInternalServerError(err.Error())
		c.Header("Content-Type", "application/problem+json")
		return internal.Status, internal
	})
}

func isValidationErr(err error) bool {
	var verrs validator.ValidationErrors
	return errors.As(err, &verrs)
}

func main() {
	_ = godotenv.Load()

	version, err := util.LoadOASVersion("./api/openapi.json")
	if err != nil {
		log.Fatalf("failed to load OAS version: %v", err)
	}

	dbcon := "postgres://" +
		os.Getenv("DB_USERNAME") + ":" +
		os.Getenv("DB_PASSWORD") + "@" +
		os.Getenv("DB_HOSTNAME") + "/" +
		os.Getenv("DB_DBNAME") + "?search_path=" +
		os.Getenv("DB_SCHEMA")
	db, err := database.Connect(dbcon)
	if err != nil {
		log.Fatalf("[ERROR] no database connection: %v", err)
	}

	repo := repositories.NewPackageRepository(db)
	if err := repo.EnsureDefaultUser(context.Background()); err != nil {
		log.Fatalf("[ERROR] failed to create default user: %v", err)
	}

	cfg := services.Config{
		RatingGateEnabled: os.Getenv("RATING_GATE_ENABLED") != "false",
	}
	packageService := services.NewPackageService(
		repo,
		sources.NewHTTPResolver(os.Getenv("GITHUB_TOKEN")),
		rating.NewEngine(os.Getenv("RATING_CLI")),
		gate.NewRunner(os.Getenv("GATE_INTERPRETER")),
		cfg,
	)
	queryService := services.NewQueryService(repo)
	controller := handler.NewPackagesAPIController(packageService, queryService)
	jobs.ScheduleDailyRating(context.Background(), packageService)

	// Start server
	router := registry.NewRouter(version, controller)

	log.Println("Server is running on port 1337")
	log.Fatal(http.ListenAndServe(":1337", router))
}
