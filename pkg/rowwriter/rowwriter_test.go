package rowwriter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	apperrors "github.com/yourorg/rowstream-kit/pkg/errors"
	"github.com/yourorg/rowstream-kit/pkg/logging"
	"github.com/yourorg/rowstream-kit/pkg/sink"
)

type gatedWriter struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	entered chan struct{}
	release chan struct{}
}

func newGatedWriter() *gatedWriter {
	return &gatedWriter{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}, 16),
	}
}

func (g *gatedWriter) Write(p []byte) (int, error) {
	g.entered <- struct{}{}
	<-g.release
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.buf.Write(p)
}

func (g *gatedWriter) String() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.buf.String()
}

func TestWriter_ExactOutput(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "people.csv")

	w, err := Open(path, []string{"No", "Name", "Gender"}, Options{})
	require.NoError(t, err)

	require.NoError(t, w.WriteRow(ctx, Row{1, "John", "Male"}))
	require.NoError(t, w.WriteRow(ctx, Row{2, "Doe", "Male"}))
	require.NoError(t, w.Close(ctx))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "No,Name,Gender\n1,John,Male\n2,Doe,Male\n", string(content))
	assert.Equal(t, int64(2), w.Rows())
}

func TestWriter_HeaderOnly(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "empty.csv")

	w, err := Open(path, []string{"a", "b"}, Options{})
	require.NoError(t, err)
	require.NoError(t, w.Close(ctx))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(content))
}

func TestWriter_TruncatesExistingFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("old data\n", 100)), 0o644))

	w, err := Open(path, []string{"x"}, Options{})
	require.NoError(t, err)
	require.NoError(t, w.WriteStrings(ctx, []string{"new"}))
	require.NoError(t, w.Close(ctx))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x\nnew\n", string(content))
}

func TestWriter_CustomDelimiterAndValues(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer

	w := NewWriter(&out, []string{"id", "score", "ok", "note"}, Options{Delimiter: ';'})
	require.NoError(t, w.WriteRow(ctx, Row{int64(7), 2.5, true, nil}))
	require.NoError(t, w.WriteRow(ctx, Row{uint8(0), -1.0, false, "plain"}))
	require.NoError(t, w.Close(ctx))

	assert.Equal(t, "id;score;ok;note\n7;2.5;true;\n0;-1;false;plain\n", out.String())
}

func TestWriter_RowsDoNotNeedToMatchHeader(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer

	w := NewWriter(&out, []string{"a", "b", "c"}, Options{})
	require.NoError(t, w.WriteRow(ctx, Row{"only"}))
	require.NoError(t, w.WriteRow(ctx, Row{1, 2, 3, 4}))
	require.NoError(t, w.WriteRow(ctx, Row{}))
	require.NoError(t, w.Close(ctx))

	assert.Equal(t, "a,b,c\nonly\n1,2,3,4\n\n", out.String())
}

func TestWriter_PreservesOrderUnderBackpressure(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ordered.csv")

	w, err := Open(path, []string{"n", "label"}, Options{HighWaterMark: 32})
	require.NoError(t, err)

	const rows = 20000
	var want strings.Builder
	want.WriteString("n,label\n")
	for i := 0; i < rows; i++ {
		require.NoError(t, w.WriteRow(ctx, Row{i, fmt.Sprintf("row no %d", i)}))
		fmt.Fprintf(&want, "%d,row no %d\n", i, i)
	}
	require.NoError(t, w.Close(ctx))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want.String(), string(content))
	assert.Equal(t, int64(rows), w.Rows())
	assert.Equal(t, 0, w.sink.ListenerCount())
}

func TestWriter_MemoryBoundedByHighWaterMark(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	const hwm = 64

	w := NewWriter(&out, []string{"col 1", "col 2", "col 3"}, Options{HighWaterMark: hwm})
	longest := 0
	for i := 0; i < 10000; i++ {
		row := Row{"col no 1", "col no 2", i}
		line := fmt.Sprintf("col no 1,col no 2,%d\n", i)
		if len(line) > longest {
			longest = len(line)
		}
		require.NoError(t, w.WriteRow(ctx, row))
	}
	require.NoError(t, w.Close(ctx))

	stats := w.Stats()
	assert.Less(t, stats.PeakPending, hwm+longest+1)
	assert.Equal(t, int64(out.Len()), stats.BytesFlushed)
	assert.Equal(t, 0, w.sink.ListenerCount())
}

func TestWriter_WriteAfterClose(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer

	w := NewWriter(&out, []string{"a"}, Options{})
	require.NoError(t, w.Close(ctx))

	err := w.WriteRow(ctx, Row{"late"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrorCodeMisuse))

	err = w.Close(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrorCodeMisuse))

	assert.Equal(t, "a\n", out.String())
}

func TestWriter_OverlappingWritesAreRejected(t *testing.T) {
	ctx := context.Background()
	out := newGatedWriter()

	w := NewWriter(out, []string{"h"}, Options{HighWaterMark: 4})
	// The flusher picks up the header and blocks inside the destination.
	<-out.entered

	first := make(chan error, 1)
	go func() {
		first <- w.WriteRow(ctx, Row{"abcd"})
	}()
	require.Eventually(t, func() bool {
		return w.sink.ListenerCount(sink.EventDrain) == 1
	}, 5*time.Second, time.Millisecond)

	err := w.WriteRow(ctx, Row{"second"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrorCodeMisuse))

	err = w.Close(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrorCodeMisuse))

	out.release <- struct{}{}
	select {
	case err := <-first:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("first write never completed")
	}

	out.release <- struct{}{}
	require.NoError(t, w.Close(ctx))
	assert.Equal(t, "h\nabcd\n", out.String())
	assert.Equal(t, int64(1), w.Rows())
}

func TestWriter_ContextCancelledWhileWaiting(t *testing.T) {
	out := newGatedWriter()
	w := NewWriter(out, []string{"h"}, Options{HighWaterMark: 2})
	<-out.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := w.WriteRow(ctx, Row{"abc"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, w.sink.ListenerCount())

	// The writer is usable again once the in-flight write returned.
	out.release <- struct{}{}
	out.release <- struct{}{}
	require.NoError(t, w.Close(context.Background()))
	assert.Equal(t, "h\nabc\n", out.String())
}

func TestOpen_Unavailable(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "no", "such", "dir", "out.csv"), []string{"a"}, Options{})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrorCodeSinkUnavailable))
}

func TestWriter_LogsClose(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := logging.NewZapLogger(zap.New(core))

	var out bytes.Buffer
	w := NewWriter(&out, []string{"a"}, Options{Logger: logger})
	require.NoError(t, w.WriteRow(context.Background(), Row{1}))
	require.NoError(t, w.Close(context.Background()))

	entries := logs.FilterMessage("Row writer closed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].ContextMap()["rows"])
}
