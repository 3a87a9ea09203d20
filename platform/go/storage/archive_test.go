package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/channelpulse/channelpulse-saas/platform/go/tenant"
)

func TestLocalArchiveSave(t *testing.T) {
	dir := t.TempDir()
	archive, err := NewLocalArchive(dir)
	require.NoError(t, err)

	tc := tenant.Context{ID: uuid.New(), Subdomain: "acme"}
	batchID := uuid.New()

	path, err := archive.Save(context.Background(), tc, batchID, "report-2026-01.xlsx", []byte("bytes"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "acme", batchID.String()+".xlsx"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte("bytes"), content)
}

func TestLocalArchiveSaveIgnoresHostileFilenames(t *testing.T) {
	dir := t.TempDir()
	archive, err := NewLocalArchive(dir)
	require.NoError(t, err)

	tc := tenant.Context{ID: uuid.New(), Subdomain: "acme"}
	batchID := uuid.New()

	path, err := archive.Save(context.Background(), tc, batchID, "../../etc/passwd", []byte("x"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(path, filepath.Join(dir, "acme")+string(filepath.Separator)))
}

func TestLocalArchiveRequiresResolvedTenant(t *testing.T) {
	archive, err := NewLocalArchive(t.TempDir())
	require.NoError(t, err)

	_, err = archive.Save(context.Background(), tenant.Context{}, uuid.New(), "a.csv", nil)
	require.Error(t, err)
}
