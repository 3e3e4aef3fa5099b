package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omen-systems/omen/internal/domain"
)

func writeDay(t *testing.T, base string, day time.Time, n int) {
	t.Helper()
	w := NewWriter(base)
	for i := 0; i < n; i++ {
		_, err := w.Write(testEvent("OMEN-LC", day))
		require.NoError(t, err)
	}
}

func TestLifecycle_AutoSealAfterGrace(t *testing.T) {
	base := t.TempDir()
	day := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	writeDay(t, base, day, 2)

	lc := NewLifecycle(base, DefaultLifecycleConfig())

	// Inside the 24h+6h window: nothing seals
	lc.now = func() time.Time { return day.Add(20 * time.Hour) }
	report := lc.Run()
	assert.Empty(t, report.Sealed)
	assert.False(t, IsSealed(filepath.Join(base, "2026-03-10")))

	// Past the window: the partition seals
	lc.now = func() time.Time { return day.Truncate(24 * time.Hour).Add(31 * time.Hour) }
	report = lc.Run()
	assert.Equal(t, []string{"2026-03-10"}, report.Sealed)
	assert.True(t, IsSealed(filepath.Join(base, "2026-03-10")))
	assert.Empty(t, report.Errors)
}

func TestLifecycle_CompressVerifiesBeforeReplacing(t *testing.T) {
	base := t.TempDir()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	writeDay(t, base, day, 3)

	config := DefaultLifecycleConfig()
	lc := NewLifecycle(base, config)
	lc.now = func() time.Time { return day.Add(10 * 24 * time.Hour) }

	report := lc.Run()
	assert.Equal(t, []string{"2026-03-01"}, report.Sealed)
	assert.Equal(t, []string{"2026-03-01"}, report.Compressed)

	dir := filepath.Join(base, "2026-03-01")
	_, err := os.Stat(filepath.Join(dir, "signals-001.wal"))
	assert.True(t, os.IsNotExist(err), "original segment should be replaced")
	_, err = os.Stat(filepath.Join(dir, "signals-001.wal.gz"))
	assert.NoError(t, err)

	// Compressed segments read identically
	events, err := NewReader(base).ReadPartition("2026-03-01", true, false)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "OMEN-LC", events[0].SignalID)
}

func TestLifecycle_ArchiveMovesSealedPartition(t *testing.T) {
	base := t.TempDir()
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	writeDay(t, base, day, 1)

	lc := NewLifecycle(base, DefaultLifecycleConfig())
	lc.now = func() time.Time { return day.Add(40 * 24 * time.Hour) }

	report := lc.Run()
	assert.Contains(t, report.Sealed, "2026-01-05")
	assert.Contains(t, report.Archived, "2026-01-05")
	assert.Empty(t, report.Errors)

	_, err := os.Stat(filepath.Join(base, "2026-01-05"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(base, archiveDir, "2026-01-05.tar.gz"))
	assert.NoError(t, err)

	partitions, err := ListPartitions(base)
	require.NoError(t, err)
	assert.Empty(t, partitions)
}

func TestLifecycle_DeleteDisabledByDefault(t *testing.T) {
	base := t.TempDir()
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	writeDay(t, base, day, 1)

	lc := NewLifecycle(base, DefaultLifecycleConfig())
	lc.now = func() time.Time { return day.Add(400 * 24 * time.Hour) }

	report := lc.Run()
	assert.Empty(t, report.Deleted)
	_, err := os.Stat(filepath.Join(base, archiveDir, "2025-06-01.tar.gz"))
	assert.NoError(t, err, "archived, not deleted")
}

func TestLifecycle_DeleteRemovesExpiredArchives(t *testing.T) {
	base := t.TempDir()
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	writeDay(t, base, day, 1)

	config := DefaultLifecycleConfig()
	config.DeleteAfterDays = 90
	lc := NewLifecycle(base, config)
	lc.now = func() time.Time { return day.Add(40 * 24 * time.Hour) }

	// First pass: seal + compress + archive, still inside delete horizon
	report := lc.Run()
	assert.Contains(t, report.Archived, "2025-06-01")
	assert.Empty(t, report.Deleted)

	// Past the horizon the archive goes away
	lc.now = func() time.Time { return day.Add(120 * 24 * time.Hour) }
	report = lc.Run()
	assert.Equal(t, []string{"2025-06-01"}, report.Deleted)

	_, err := os.Stat(filepath.Join(base, archiveDir, "2025-06-01.tar.gz"))
	assert.True(t, os.IsNotExist(err))
}

func TestLifecycle_ErrorsIsolatedPerPartition(t *testing.T) {
	base := t.TempDir()
	dayA := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	dayB := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	writeDay(t, base, dayA, 1)
	writeDay(t, base, dayB, 1)

	// Make partition A unwritable so its manifest write fails
	dirA := filepath.Join(base, "2026-03-01")
	require.NoError(t, os.Chmod(dirA, 0o555))
	t.Cleanup(func() { os.Chmod(dirA, 0o755) })

	lc := NewLifecycle(base, DefaultLifecycleConfig())
	lc.now = func() time.Time { return dayB.Add(5 * 24 * time.Hour) }

	report := lc.Run()
	assert.NotEmpty(t, report.Errors)
	assert.Contains(t, report.Sealed, "2026-03-02", "healthy partition still processed")
	assert.NotContains(t, report.Sealed, "2026-03-01")
}

func TestLifecycle_LatePartitionSealHorizon(t *testing.T) {
	base := t.TempDir()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	w := NewWriter(base)
	_, err := w.Write(testEvent("OMEN-D", day))
	require.NoError(t, err)
	require.NoError(t, w.SealPartition("2026-03-10"))
	_, err = w.Write(testEvent("OMEN-D-LATE", day))
	require.NoError(t, err)

	lc := NewLifecycle(base, DefaultLifecycleConfig())

	// Inside the late horizon of 3 days
	lc.now = func() time.Time { return day.Add(2 * 24 * time.Hour) }
	report := lc.Run()
	assert.NotContains(t, report.Sealed, "2026-03-10-late")

	lc.now = func() time.Time { return day.Add(4 * 24 * time.Hour) }
	report = lc.Run()
	assert.Contains(t, report.Sealed, "2026-03-10-late")

	m, err := ReadManifest(filepath.Join(base, "2026-03-10-late"))
	require.NoError(t, err)
	assert.True(t, m.IsLatePartition)
}

func TestLifecycle_ReportSerializes(t *testing.T) {
	report := LifecycleReport{Sealed: []string{"2026-03-10"}}
	data, err := domain.CanonicalJSON(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), "2026-03-10")
}
