package registry_test

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	registry "github.com/acme-corp/module-registry-api/pkg/registry"
	"github.com/acme-corp/module-registry-api/pkg/gate"
	"github.com/acme-corp/module-registry-api/pkg/rating"
	"github.com/acme-corp/module-registry-api/pkg/registry/handler"
	problem "github.com/acme-corp/module-registry-api/pkg/registry/helpers/problem"
	"github.com/acme-corp/module-registry-api/pkg/registry/models"
	"github.com/acme-corp/module-registry-api/pkg/registry/repositories"
	"github.com/acme-corp/module-registry-api/pkg/registry/services"
	"github.com/acme-corp/module-registry-api/pkg/registry/testutil"
	"github.com/acme-corp/module-registry-api/pkg/sources"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v4"
	"github.com/loopfz/gadgeto/tonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var errorHookOnce sync.Once

func setupErrorHook() {
	errorHookOnce.Do(func() {
		tonic.SetErrorHook(func(c *gin.Context, err error) (int, interface{}) {
			var be tonic.BindError
			if errors.As(err, &be) || isValidationErr(err) {
				invalids := invalidParamsFromBinding(err, models.PackageInput{})
				apiErr := problem.NewBadRequest("body", "Invalid input", invalids...)
				c.Header("Content-Type", "application/problem+json")
				return apiErr.Status, apiErr
			}

			if apiErr, ok := err.(problem.APIError); ok {
				c.Header("Content-Type", "application/problem+json")
				return apiErr.Status, apiErr
			}

			internal := problem.NewInternalServerError(err.Error())
			c.Header("Content-Type", "application/problem+json")
			return internal.Status, internal
		})
	})
}

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
		if f, ok := t.FieldByName(fe.StructField()); ok {
			if tag := f.Tag.Get("json"); tag != "" && tag != "-" {
				name = strings.Split(tag, ",")[0]
			}
		}
		out = append(out, problem.InvalidParam{Name: name, Reason: fe.Error()})
	}
	return out
}

func isValidationErr(err error) bool {
	var verrs validator.ValidationErrors
	return errors.As(err, &verrs)
}

type integrationEnv struct {
	serverURL string
	repo      repositories.PackageRepository
	client    *http.Client
}

// passingScorer is a stand-in scoring CLI that approves everything.
func passingScorer(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scorer")
	script := "#!/bin/sh\n" +
		`echo '{"NET_SCORE":"0.9","BUS_FACTOR_SCORE":"0.9","CORRECTNESS_SCORE":"0.9","RAMP_UP_SCORE":"0.9",` +
		`"RESPONSIVE_MAINTAINER_SCORE":"0.9","LICENSE_SCORE":"0.9","VERSION_SCORE":"0.9","CODE_REVIEWED_PERCENTAGE":"0.9"}'` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o700))
	return path
}

func newIntegrationEnv(t *testing.T) *integrationEnv {
	t.Helper()

	gin.SetMode(gin.TestMode)
	setupErrorHook()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.PackageMetadata{},
		&models.PackageData{},
		&models.PackageRecord{},
		&models.AuditEntry{},
		&models.RatingRecord{},
		&models.User{},
	))

	repo := repositories.NewPackageRepository(db)
	svc := services.NewPackageService(
		repo,
		sources.NewHTTPResolver(""),
		rating.NewEngine(passingScorer(t)),
		gate.NewRunner("/bin/sh"),
		services.Config{RatingGateEnabled: true},
	)
	controller := handler.NewPackagesAPIController(svc, services.NewQueryService(repo))
	router := registry.NewRouter("test-version", controller)

	server := testutil.NewTestServer(t, router)

	return &integrationEnv{
		serverURL: server.URL,
		repo:      repo,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func bearerToken(t *testing.T, scope, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"scope": scope,
		"sub":   subject,
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func (e *integrationEnv) doJSON(t *testing.T, method, path, token string, payload any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(payload))
	}
	req, err := http.NewRequest(method, e.serverURL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.client.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var out T
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	err = json.Unmarshal(data, &out)
	require.NoErrorf(t, err, "body=%s", string(data))
	return out
}

func archiveWith(t *testing.T, manifest string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("package.json")
	require.NoError(t, err)
	_, err = w.Write([]byte(manifest))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestPackageLifecycle(t *testing.T) {
	env := newIntegrationEnv(t)
	read := bearerToken(t, "packages:read", "alice")
	write := bearerToken(t, "packages:read packages:write", "alice")

	content := archiveWith(t, `{"name":"widget","version":"1.0.0","homepage":"https://github.com/acme/widget"}`)
	var packageID string

	t.Run("upload package", func(t *testing.T) {
		resp := env.doJSON(t, http.MethodPost, "/v1/package", write, models.PackageInput{
			Content:    content,
			GateScript: "exit 0",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		require.Equal(t, "test-version", resp.Header.Get("API-Version"))

		pkg := decodeBody[models.Package](t, resp)
		assert.Equal(t, "widget", pkg.Metadata.Name)
		assert.Equal(t, "1.0.0", pkg.Metadata.Version)
		require.NotEmpty(t, pkg.Metadata.ID)
		packageID = pkg.Metadata.ID
	})

	t.Run("duplicate upload conflicts", func(t *testing.T) {
		resp := env.doJSON(t, http.MethodPost, "/v1/package", write, models.PackageInput{Content: content})
		defer resp.Body.Close()
		require.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("retrieve runs gate script and audits", func(t *testing.T) {
		resp := env.doJSON(t, http.MethodGet, "/v1/package/"+packageID, read, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		pkg := decodeBody[models.Package](t, resp)
		assert.Equal(t, content, pkg.Data.Content)
	})

	t.Run("rate persists a record", func(t *testing.T) {
		resp := env.doJSON(t, http.MethodGet, "/v1/package/"+packageID+"/rate", read, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		record := decodeBody[models.RatingRecord](t, resp)
		assert.InDelta(t, 0.9, record.NetScore, 1e-9)
	})

	t.Run("history lists create, download and rate", func(t *testing.T) {
		resp := env.doJSON(t, http.MethodGet, "/v1/package/byName/widget", read, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		history := decodeBody[[]models.AuditEntry](t, resp)
		require.Len(t, history, 3)
		assert.Equal(t, models.ActionCreate, history[0].Action)
		assert.Equal(t, models.ActionDownload, history[1].Action)
		assert.Equal(t, models.ActionRate, history[2].Action)
		assert.Equal(t, "alice", history[0].Actor)
	})

	t.Run("update with matching manifest", func(t *testing.T) {
		replacement := archiveWith(t, `{"name":"widget","version":"1.0.0","homepage":"https://github.com/acme/widget","description":"v2"}`)
		resp := env.doJSON(t, http.MethodPut, "/v1/package/"+packageID, write, models.PackageInput{Content: replacement})
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("update with mismatching manifest fails", func(t *testing.T) {
		other := archiveWith(t, `{"name":"other","version":"9.9.9"}`)
		resp := env.doJSON(t, http.MethodPut, "/v1/package/"+packageID, write, models.PackageInput{Content: other})
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("query catalog", func(t *testing.T) {
		resp := env.doJSON(t, http.MethodPost, "/v1/packages", read, models.QueryPackagesParams{
			Queries: []models.PackageQuery{{Name: "*"}},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, resp.Header.Get("offset"))
		results := decodeBody[[]models.PackageMetadata](t, resp)
		require.Len(t, results, 1)
		assert.Equal(t, "widget", results[0].Name)
	})

	t.Run("delete by name", func(t *testing.T) {
		resp := env.doJSON(t, http.MethodDelete, "/v1/package/byName/widget", write, nil)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		lookup := env.doJSON(t, http.MethodGet, "/v1/package/"+packageID, read, nil)
		defer lookup.Body.Close()
		require.Equal(t, http.StatusNotFound, lookup.StatusCode)
	})

	t.Run("reset restores default state", func(t *testing.T) {
		resp := env.doJSON(t, http.MethodDelete, "/v1/reset", write, nil)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestQueryPagination(t *testing.T) {
	env := newIntegrationEnv(t)
	read := bearerToken(t, "packages:read", "alice")
	write := bearerToken(t, "packages:write", "alice")

	for i := 0; i < 12; i++ {
		manifest := archiveWith(t, `{"name":"pkg-`+string(rune('a'+i))+`","version":"1.0.0"}`)
		resp := env.doJSON(t, http.MethodPost, "/v1/package", write, models.PackageInput{Content: manifest})
		resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := env.doJSON(t, http.MethodPost, "/v1/packages", read, models.QueryPackagesParams{
		Queries: []models.PackageQuery{{Name: "*"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "10", resp.Header.Get("offset"))
	page1 := decodeBody[[]models.PackageMetadata](t, resp)
	require.Len(t, page1, 10)

	resp = env.doJSON(t, http.MethodPost, "/v1/packages?offset=10", read, models.QueryPackagesParams{
		Queries: []models.PackageQuery{{Name: "*"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("offset"))
	page2 := decodeBody[[]models.PackageMetadata](t, resp)
	require.Len(t, page2, 2)
}

func TestAuthBoundaries(t *testing.T) {
	env := newIntegrationEnv(t)

	t.Run("missing auth", func(t *testing.T) {
		resp := env.doJSON(t, http.MethodPost, "/v1/packages", "", models.QueryPackagesParams{
			Queries: []models.PackageQuery{{Name: "*"}},
		})
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("read scope cannot write", func(t *testing.T) {
		readOnly := bearerToken(t, "packages:read", "alice")
		resp := env.doJSON(t, http.MethodDelete, "/v1/reset", readOnly, nil)
		defer resp.Body.Close()
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("api key grants read only", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, env.serverURL+"/v1/reset", nil)
		require.NoError(t, err)
		req.Header.Set("x-api-key", "gateway-key")
		resp, err := env.client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}
