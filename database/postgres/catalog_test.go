package postgres

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// An empty catalog file is a valid deployment state and must not fail the
// seed pass. On a fresh database this walks the empty-seed path end to end;
// on a populated one seeding is a no-op either way.
func TestSeedCatalogEmptyFiles(t *testing.T) {
	db := connectTestDatabase(t)

	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "personas.json"), []byte("[]"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "questions.json"), []byte("[]"), 0o644))

	require.NoError(t, db.SeedCatalog(context.Background(), dataDir))
}
