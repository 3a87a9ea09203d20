// Package storage archives raw upload bytes before processing so every batch
// can be audited and reprocessed from the original file.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/channelpulse/channelpulse-saas/platform/go/tenant"
)

// Archive persists the original upload for one batch and returns its location.
type Archive interface {
	Save(ctx context.Context, tc tenant.Context, batchID uuid.UUID, filename string, content []byte) (string, error)
}

// LocalArchive writes uploads under a staging directory, one subdirectory per
// tenant subdomain. Suitable for single-node deployments and tests.
type LocalArchive struct {
	baseDir string
}

// NewLocalArchive ensures the staging directory exists.
func NewLocalArchive(baseDir string) (*LocalArchive, error) {
	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		return nil, fmt.Errorf("staging directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	return &LocalArchive{baseDir: baseDir}, nil
}

// Save stores content at <baseDir>/<subdomain>/<batchID><ext>. The original
// filename contributes only its extension; the batch id keys the archive so
// hostile filenames cannot traverse out of the tenant directory.
func (a *LocalArchive) Save(_ context.Context, tc tenant.Context, batchID uuid.UUID, filename string, content []byte) (string, error) {
	if tc.Subdomain == "" {
		return "", fmt.Errorf("tenant context is not resolved")
	}
	if batchID == uuid.Nil {
		return "", fmt.Errorf("batch id is required")
	}

	dir := filepath.Join(a.baseDir, tc.Subdomain)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create tenant archive dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	path := filepath.Join(dir, batchID.String()+ext)
	if err := os.WriteFile(path, content, 0o640); err != nil {
		return "", fmt.Errorf("archive upload: %w", err)
	}

	return path, nil
}
