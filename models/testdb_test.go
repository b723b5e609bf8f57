package models_test

import (
	"path/filepath"
	"testing"

	"bitbucket.org/mmdatafocus/fieldservice_sync/config"
	"bitbucket.org/mmdatafocus/fieldservice_sync/models"
)

// setupTestDB points the device store at a per-test temp file and migrates
// it. The global DB handle is swapped, so tests must not run in parallel.
func setupTestDB(t *testing.T) {
	t.Helper()
	t.Setenv("FIELDSYNC_DB_PATH", filepath.Join(t.TempDir(), "fieldsync_test.db"))
	config.ConnectDatabaseWithRetry()
	models.MigrateTable()
}
