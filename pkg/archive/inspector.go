// Package archive locates and reads the manifest inside an uploaded
// package archive.
package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

var (
	// ErrMalformedArchive means the bytes could not be decoded as a zip.
	ErrMalformedArchive = errors.New("malformed archive")
	// ErrManifestNotFound means no readable manifest exists anywhere in
	// the archive tree.
	ErrManifestNotFound = errors.New("no package.json in module")
)

const manifestName = "package.json"

// Manifest holds the fields declared by a package.json. Empty fields were
// absent; the caller applies its own fallback policy.
type Manifest struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Homepage string `json:"homepage"`
}

// LocateManifest decodes archiveBytes as a zip, finds a package.json
// anywhere in the tree (the shallowest match wins, so a vendored module's
// manifest never shadows the root one) and returns its declared fields.
func LocateManifest(archiveBytes []byte) (*Manifest, error) {
	zr, err := zip.NewReader(bytes.NewReader(archiveBytes), int64(len(archiveBytes)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedArchive, err)
	}

	var candidate *zip.File
	depth := -1
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || path.Base(f.Name) != manifestName {
			continue
		}
		d := strings.Count(f.Name, "/")
		if depth == -1 || d < depth {
			candidate = f
			depth = d
		}
	}
	if candidate == nil {
		return nil, ErrManifestNotFound
	}

	rc, err := candidate.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedArchive, err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedArchive, err)
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		// Present but unreadable counts as not found, matching the
		// ingestion contract.
		return nil, fmt.Errorf("%w: %v", ErrManifestNotFound, err)
	}
	return &m, nil
}
