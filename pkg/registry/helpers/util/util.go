package util

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/acme-corp/module-registry-api/pkg/registry/models"
)

// SetOffsetHeader writes the continuation cursor of a query batch; absent
// cursor means the batch is fully consumed.
func SetOffsetHeader(setHeader func(string, string), next *int) {
	if next != nil {
		setHeader("offset", fmt.Sprintf("%d", *next))
	}
}

// HistoryView shapes audit entries for the byName endpoint; an empty
// history serializes as [] rather than null.
func HistoryView(entries []models.AuditEntry) []models.AuditEntry {
	if entries == nil {
		return []models.AuditEntry{}
	}
	return entries
}

type openAPIInfo struct {
	Info struct {
		Version string `json:"version"`
	} `json:"info"`
}

// LoadOASVersion reads the served OpenAPI document's version field.
func LoadOASVersion(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("could not open OAS file: %w", err)
	}
	defer f.Close()

	var oas openAPIInfo
	if err := json.NewDecoder(f).Decode(&oas); err != nil {
		return "", fmt.Errorf("could not parse OAS: %w", err)
	}

	if oas.Info.Version == "" {
		return "", fmt.Errorf("version missing from OAS")
	}

	return oas.Info.Version, nil
}
