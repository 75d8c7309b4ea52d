package relaylog

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTempLogger(t *testing.T) (*Logger, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "debug_log.txt")
	logger, err := NewLogger(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = logger.Close() })

	return logger, path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestOneLinePerPayload(t *testing.T) {
	logger, path := newTempLogger(t)

	logger.Received("req-1", []byte(`{"input_data":"hi"}`))
	logger.Upstream("req-1", []byte(`{"message":"hello"}`))

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], `req-1 Received JSON: {"input_data":"hi"}`)
	require.Contains(t, lines[1], `req-1 Upstream Response: {"message":"hello"}`)
}

func TestAppendNeverTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug_log.txt")
	require.NoError(t, os.WriteFile(path, []byte("previous run\n"), 0644))

	logger, err := NewLogger(path)
	require.NoError(t, err)
	logger.Received("req-2", []byte(`{}`))
	require.NoError(t, logger.Close())

	// Reopening appends after the existing content.
	logger, err = NewLogger(path)
	require.NoError(t, err)
	logger.Upstream("req-2", []byte(`{}`))
	require.NoError(t, logger.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 3)
	require.Equal(t, "previous run", lines[0])
}

func TestMultilinePayloadStaysOneEntry(t *testing.T) {
	logger, path := newTempLogger(t)

	payload := "{\n  \"message\": \"a\\\\b\"\n}"
	logger.Upstream("req-3", []byte(payload))

	require.Len(t, readLines(t, path), 1)

	entries, err := ReadLastEntries(path, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, payload, entries[0].Payload)
	require.Equal(t, LabelUpstream, entries[0].Label)
	require.Equal(t, "req-3", entries[0].RequestID)
}

func TestMissingRequestIDUsesPlaceholder(t *testing.T) {
	logger, path := newTempLogger(t)

	logger.Received("", []byte(`{"input_data":"x"}`))

	lines := readLines(t, path)
	require.Contains(t, lines[0], " - Received JSON: ")

	entries, err := ReadLastEntries(path, 1)
	require.NoError(t, err)
	require.Empty(t, entries[0].RequestID)
}

func TestWriteAfterCloseFailsOpen(t *testing.T) {
	logger, _ := newTempLogger(t)
	require.NoError(t, logger.Close())

	require.NotPanics(t, func() {
		logger.Received("req-4", []byte(`{}`))
	})

	var nilLogger *Logger
	require.NotPanics(t, func() {
		nilLogger.Upstream("req-4", []byte(`{}`))
	})
}

func TestConcurrentWritesKeepLinesIntact(t *testing.T) {
	logger, path := newTempLogger(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Received("req", []byte(`{"input_data":"same"}`))
			logger.Upstream("req", []byte(`{"message":"same"}`))
		}()
	}
	wg.Wait()

	entries, err := ReadLastEntries(path, 0)
	require.NoError(t, err)
	require.Len(t, entries, 100)
}

func TestReadLastEntries(t *testing.T) {
	logger, path := newTempLogger(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := 0
	logger.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for _, id := range []string{"a", "b", "c"} {
		logger.Received(id, []byte(`{"input_data":"`+id+`"}`))
		logger.Upstream(id, []byte(`{"message":"`+id+`"}`))
	}

	// Junk lines are skipped.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, _ = f.WriteString("not an entry\n")
	require.NoError(t, f.Close())

	entries, err := ReadLastEntries(path, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "c", entries[0].RequestID)
	require.Equal(t, LabelReceived, entries[0].Label)
	require.Equal(t, LabelUpstream, entries[1].Label)
	require.Equal(t, base.Add(6*time.Second), entries[1].Timestamp)
}

func TestReadMissingFile(t *testing.T) {
	entries, err := ReadLastEntries(filepath.Join(t.TempDir(), "absent.txt"), 5)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestReadSkipsOverlongEntry(t *testing.T) {
	logger, path := newTempLogger(t)

	logger.Received("big", []byte(`{"input_data":"x"}`))
	logger.Upstream("big", []byte(`{"message":"`+strings.Repeat("m", maxLineBytes+1024)+`"}`))
	logger.Received("small", []byte(`{"input_data":"y"}`))
	logger.Upstream("small", []byte(`{"message":"y"}`))

	entries, err := ReadLastEntries(path, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "big", entries[0].RequestID)
	require.Equal(t, "small", entries[1].RequestID)
	require.Equal(t, `{"message":"y"}`, entries[2].Payload)
}

func TestEachLineLimit(t *testing.T) {
	in := "short\n" + strings.Repeat("z", 40) + "\nlast"

	var got []string
	err := eachLine(strings.NewReader(in), 16, func(line []byte) {
		got = append(got, string(line))
	})
	require.NoError(t, err)
	require.Equal(t, []string{"short", "last"}, got)
}

func TestLineLayout(t *testing.T) {
	logger, path := newTempLogger(t)
	logger.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 8, time.FixedZone("X", 3600)) }

	logger.Upstream("req-9", []byte(`{"message":"ok"}`))

	lines := readLines(t, path)
	require.Equal(t, []string{`2026-03-04T04:06:07.000000008Z req-9 Upstream Response: {"message":"ok"}`}, lines)
}
