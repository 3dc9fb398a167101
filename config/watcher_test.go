package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func watcherLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

func TestWatcherReportsConfigChanges(t *testing.T) {
	dir := t.TempDir()
	reloads := make(chan string, 16)

	w, err := NewWatcher([]string{dir}, time.Millisecond, func(file string) {
		reloads <- file
	}, watcherLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName),
		[]byte("version: \"1.0\"\n"), 0600))

	select {
	case file := <-reloads:
		require.Equal(t, ConfigFileName, file)
	case <-time.After(5 * time.Second):
		t.Fatal("config change never reported")
	}
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	reloads := make(chan string, 16)

	w, err := NewWatcher([]string{dir}, time.Millisecond, func(file string) {
		reloads <- file
	}, watcherLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"),
		[]byte("scratch"), 0600))

	select {
	case file := <-reloads:
		t.Fatalf("unexpected reload for %s", file)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherMissingDirIsNonFatal(t *testing.T) {
	w, err := NewWatcher([]string{filepath.Join(t.TempDir(), "missing"), ""},
		0, nil, watcherLogger())
	require.NoError(t, err)
	require.NoError(t, w.Close())
}
