package services

import (
	"context"
	"fmt"

	problem "github.com/acme-corp/module-registry-api/pkg/registry/helpers/problem"
	"github.com/acme-corp/module-registry-api/pkg/registry/models"
	"github.com/acme-corp/module-registry-api/pkg/registry/repositories"
)

const (
	// PageSize is the fixed result page of a query batch.
	PageSize = 10
	// MaxResults is the hard cap; exceeding it fails the whole batch.
	MaxResults = 100
)

// QueryService resolves ordered batches of name/version specifiers into
// capped, paginated metadata pages with a continuation cursor. Read-only.
type QueryService struct {
	repo repositories.PackageRepository
}

func NewQueryService(repo repositories.PackageRepository) *QueryService {
	return &QueryService{repo: repo}
}

// ResolveBatch processes the specifiers in order, accumulating matches.
// The offset cursor skips already-served items from the front of the
// accumulator, carrying any remainder into the next specifier. The
// returned cursor, when present, means: repeat the same batch with it.
func (s *QueryService) ResolveBatch(ctx context.Context, queries []models.PackageQuery, offset int) ([]models.PackageMetadata, *int, error) {
	if offset < 0 {
		offset = 0
	}
	skip := offset
	acc := []models.PackageMetadata{}
	overflowed := false

	i := 0
	for ; i < len(queries); i++ {
		q := queries[i]
		if q.Name == "" {
			return nil, nil, problem.NewBadRequest("queries",
				fmt.Sprintf("query %d misses a Name", i),
				problem.InvalidParam{Name: "Name", Reason: "is required"})
		}

		matches, err := s.repo.QueryMetadata(ctx, q.Name, q.Version)
		if err != nil {
			return nil, nil, problem.NewInternalServerError(err.Error())
		}
		acc = append(acc, matches...)

		if skip > 0 {
			n := skip
			if n > len(acc) {
				n = len(acc)
			}
			acc = acc[n:]
			skip -= n
		}

		if len(acc) > MaxResults {
			return nil, nil, problem.NewTooManyResults(
				fmt.Sprintf("batch matched more than %d packages", MaxResults))
		}

		if len(acc) == PageSize {
			i++
			break
		}
		if len(acc) > PageSize {
			overflowed = true
			i++
			break
		}
	}

	if len(acc) > PageSize {
		acc = acc[:PageSize]
	}
	if overflowed || i < len(queries) {
		next := offset + PageSize
		return acc, &next, nil
	}
	return acc, nil, nil
}
