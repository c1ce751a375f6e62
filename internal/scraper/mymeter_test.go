package scraper

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForDownloadPrefersUsageExport(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.csv"), []byte("a,b\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Usage_Export.csv"), []byte("a,b\n"), 0644))

	path, err := waitForDownload(dir, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Usage_Export.csv"), path)
}

func TestWaitForDownloadFallsBackToAnyCSV(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "export.csv"), []byte("a,b\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "export.crdownload"), []byte("partial"), 0644))

	path, err := waitForDownload(dir, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "export.csv"), path)
}

func TestWaitForDownloadTimesOut(t *testing.T) {
	_, err := waitForDownload(t.TempDir(), 2*time.Second)
	assert.Error(t, err)
}

func TestWaitForDownloadPicksUpLateUsageExport(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.csv"), []byte("a,b\n"), 0644))

	// A usage-named export landing while the generic file is being
	// settled must win over the earlier generic name.
	go func() {
		time.Sleep(1500 * time.Millisecond)
		os.WriteFile(filepath.Join(dir, "usage_late.csv"), []byte("a,b\n"), 0644)
	}()

	path, err := waitForDownload(dir, 20*time.Second)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "usage_late.csv"), path)
}

func TestFindDownloadedCSV(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.csv"), []byte("a,b\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "usage.csv"), []byte("a,b\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "partial.crdownload"), []byte("x"), 0644))

	usageCSV, anyCSV, err := findDownloadedCSV(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "usage.csv"), usageCSV)
	assert.Equal(t, filepath.Join(dir, "report.csv"), anyCSV)
}

func TestScreenshotPathNamesByLabelAndTime(t *testing.T) {
	now := time.Unix(1700000000, 0)
	path := screenshotPath("screenshots", "login_failed", now)
	assert.Equal(t, filepath.Join("screenshots", "login_failed_1700000000.png"), path)

	later := screenshotPath("screenshots", "login_failed", now.Add(time.Second))
	assert.NotEqual(t, path, later)
}

func TestAuthErrorMessage(t *testing.T) {
	err := &AuthError{Message: "invalid password"}
	assert.Equal(t, "authentication failed: invalid password", err.Error())
}
