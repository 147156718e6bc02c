// Package sources resolves reference URLs (GitHub direct, npm index
// indirection) to an owner/repo pair and fetches manifests and content
// snapshots from the hosting provider's API.
package sources

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrInvalidSourceURL means the URL names neither a supported hosting
	// domain nor a supported package-index domain.
	ErrInvalidSourceURL = errors.New("invalid source url")
	// ErrUpstreamFetch covers any transport or parse failure against the
	// provider or index APIs.
	ErrUpstreamFetch = errors.New("upstream fetch failed")
)

const (
	hostingDomain = "github.com"
	indexDomain   = "www.npmjs.com"

	defaultAPIBase   = "https://api.github.com"
	defaultIndexBase = "https://registry.npmjs.org"
)

// Resolver is the Source Resolver contract consumed by the ingestion
// orchestrator.
type Resolver interface {
	Supported(rawURL string) bool
	Resolve(ctx context.Context, rawURL string) (owner, repo string, err error)
	FetchManifest(ctx context.Context, owner, repo string) (name, version string, err error)
	FetchSnapshot(ctx context.Context, owner, repo string) ([]byte, error)
}

// HTTPResolver talks to the real GitHub and npm registry APIs.
type HTTPResolver struct {
	Client    *http.Client
	Token     string
	APIBase   string // GitHub API, overridable in tests
	IndexBase string // npm registry API, overridable in tests
}

// NewHTTPResolver builds a resolver with the given bearer credential.
func NewHTTPResolver(token string) *HTTPResolver {
	return &HTTPResolver{
		Client:    &http.Client{Timeout: 30 * time.Second},
		Token:     token,
		APIBase:   defaultAPIBase,
		IndexBase: defaultIndexBase,
	}
}

// Supported reports whether the URL contains a recognized hosting or
// package-index domain segment.
func (r *HTTPResolver) Supported(rawURL string) bool {
	segments := strings.Split(rawURL, "/")
	for _, s := range segments {
		if s == hostingDomain || s == indexDomain {
			return true
		}
	}
	return false
}

// Resolve determines the owner/repo pair behind a reference URL. Direct
// hosting URLs carry owner and repo as the third and fourth path
// segments; package-index URLs carry the package name as the fourth
// segment and require a registry lookup for the upstream repository URL.
func (r *HTTPResolver) Resolve(ctx context.Context, rawURL string) (string, string, error) {
	segments := strings.Split(rawURL, "/")
	for i, s := range segments {
		switch s {
		case hostingDomain:
			if len(segments) < i+3 {
				return "", "", fmt.Errorf("%w: %q misses owner/repo segments", ErrInvalidSourceURL, rawURL)
			}
			return segments[i+1], segments[i+2], nil
		case indexDomain:
			if len(segments) < i+3 {
				return "", "", fmt.Errorf("%w: %q misses a package segment", ErrInvalidSourceURL, rawURL)
			}
			return r.lookupIndex(ctx, segments[i+2])
		}
	}
	return "", "", fmt.Errorf("%w: %q", ErrInvalidSourceURL, rawURL)
}

// lookupIndex asks the package index for the upstream repository URL of a
// package name and extracts owner/repo from its path, stripping any
// trailing .git extension from the repo segment.
func (r *HTTPResolver) lookupIndex(ctx context.Context, name string) (string, string, error) {
	var body struct {
		Repository struct {
			URL string `json:"url"`
		} `json:"repository"`
	}
	if err := r.getJSON(ctx, r.IndexBase+"/"+name, &body); err != nil {
		return "", "", err
	}
	parts := strings.Split(body.Repository.URL, "/")
	if len(parts) < 5 {
		return "", "", fmt.Errorf("%w: index returned unusable repository url %q", ErrUpstreamFetch, body.Repository.URL)
	}
	owner := parts[3]
	repo := strings.Split(parts[4], ".git")[0]
	return owner, repo, nil
}

// FetchManifest reads the repository's package.json through the content
// API. A missing name falls back to "owner/repo" and a missing version to
// "1.0.0" — deliberately different from the upload-mode fallbacks.
func (r *HTTPResolver) FetchManifest(ctx context.Context, owner, repo string) (string, string, error) {
	var body struct {
		Content string `json:"content"`
	}
	u := fmt.Sprintf("%s/repos/%s/%s/contents/package.json", r.APIBase, owner, repo)
	if err := r.getJSON(ctx, u, &body); err != nil {
		return "", "", err
	}

	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(body.Content, "\n", ""))
	if err != nil {
		return "", "", fmt.Errorf("%w: content not base64: %v", ErrUpstreamFetch, err)
	}
	var manifest struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return "", "", fmt.Errorf("%w: manifest not parseable: %v", ErrUpstreamFetch, err)
	}

	name := manifest.Name
	if name == "" {
		name = owner + "/" + repo
	}
	version := manifest.Version
	if version == "" {
		version = "1.0.0"
	}
	return name, version, nil
}

// FetchSnapshot downloads the repository's archive snapshot.
func (r *HTTPResolver) FetchSnapshot(ctx context.Context, owner, repo string) ([]byte, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/zipball/master", r.APIBase, owner, repo)
	resp, err := r.get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}
	log.Printf("[sources] fetched snapshot %s/%s (%d bytes)", owner, repo, len(content))
	return content, nil
}

func (r *HTTPResolver) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}
	if r.Token != "" {
		req.Header.Set("Authorization", "Token "+r.Token)
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s returned %d", ErrUpstreamFetch, url, resp.StatusCode)
	}
	return resp, nil
}

func (r *HTTPResolver) getJSON(ctx context.Context, url string, dst any) error {
	resp, err := r.get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %s returned unparseable body: %v", ErrUpstreamFetch, url, err)
	}
	return nil
}
