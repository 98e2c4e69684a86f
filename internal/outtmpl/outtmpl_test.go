package outtmpl

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatSubstitutesAndSanitizes(t *testing.T) {
	f := Fields{
		ChannelID:   "12345",
		ChannelName: "some/chan",
		Title:       `a "title" with <bad> chars`,
		Ext:         "ts",
		Now:         time.Date(2026, 3, 4, 15, 4, 5, 0, time.UTC),
	}
	got := Format("%(channel_id)s %(date)s %(time)s %(title)s.%(ext)s", f)
	require.Equal(t, `12345 2026-03-04 150405 a _title_ with _bad_ chars.ts`, got)
}

func TestFormatLeadingDashGetsUnderscorePrefix(t *testing.T) {
	f := Fields{Title: "-dash-title", Ext: "ts", Now: time.Now()}
	got := Format("%(title)s.%(ext)s", f)
	require.True(t, got[0] == '_' && got[1] == '-')
}

func TestPrepareDisambiguatesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "out.ts")

	first, err := Prepare(tmpl, Fields{Now: time.Now()})
	require.NoError(t, err)
	require.Equal(t, tmpl, first)
	require.NoError(t, os.WriteFile(first, []byte("x"), 0o644))

	second, err := Prepare(tmpl, Fields{Now: time.Now()})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "out.1.ts"), second)
	require.NoError(t, os.WriteFile(second, []byte("x"), 0o644))

	third, err := Prepare(tmpl, Fields{Now: time.Now()})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "out.2.ts"), third)
}

func TestPrepareCreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "nested", "deep", "out.ts")

	path, err := Prepare(tmpl, Fields{Now: time.Now()})
	require.NoError(t, err)
	require.Equal(t, tmpl, path)

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	require.True(t, info.IsDir())
}
