package test

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yourorg/rowstream-kit/pkg/convert"
	apperrors "github.com/yourorg/rowstream-kit/pkg/errors"
	"github.com/yourorg/rowstream-kit/pkg/logging"
	"github.com/yourorg/rowstream-kit/pkg/publish"
	"github.com/yourorg/rowstream-kit/pkg/rowwriter"
	"github.com/yourorg/rowstream-kit/pkg/xlsx"
)

// TestIntegration_WriteConvertPublish covers the full flow:
// 1. Stream rows to a delimited file under backpressure
// 2. Convert the file into a spreadsheet
// 3. Publish the spreadsheet and read it back
func TestIntegration_WriteConvertPublish(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := filepath.Join(dir, "people.csv")
	dst := filepath.Join(dir, "people.xlsx")

	core, logs := observer.New(zap.DebugLevel)
	logger := logging.NewZapLogger(zap.New(core))

	const rows = 5000
	w, err := rowwriter.Open(src, []string{"No", "Name", "Score"}, rowwriter.Options{
		HighWaterMark: 256,
		Logger:        logger,
	})
	require.NoError(t, err)
	for i := 1; i <= rows; i++ {
		require.NoError(t, w.WriteRow(ctx, rowwriter.Row{i, fmt.Sprintf("person %d", i), float64(i) / 4}))
	}
	require.NoError(t, w.Close(ctx))
	assert.Less(t, w.Stats().PeakPending, 512)

	ok, err := convert.New(convert.Options{HighWaterMark: 1024, Logger: logger}).ToSpreadsheet(ctx, src, dst)
	require.NoError(t, err)
	require.True(t, ok)

	pub := publish.NewMemoryPublisher()
	url, err := pub.Publish(ctx, dst, "reports/people.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "memory://reports/people.xlsx", url)

	// Read the published copy back, not the local one.
	r, err := pub.Get("reports/people.xlsx")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	roundTrip := filepath.Join(dir, "downloaded.xlsx")
	require.NoError(t, os.WriteFile(roundTrip, data, 0o644))

	count := 0
	err = xlsx.EachRow(roundTrip, func(i int, cells []string) error {
		if i == 0 {
			assert.Equal(t, []string{"No", "Name", "Score"}, cells)
		} else {
			want := []string{fmt.Sprint(i), fmt.Sprintf("person %d", i), fmt.Sprint(float64(i) / 4)}
			if !assert.Equal(t, want, cells) {
				return fmt.Errorf("row %d mismatch", i)
			}
		}
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, rows+1, count)

	assert.Len(t, logs.FilterMessage("Row writer closed").All(), 1)
	assert.Len(t, logs.FilterMessage("Conversion completed").All(), 1)
}

// TestIntegration_FailuresAreClassified checks that each failure surfaces with its kind.
func TestIntegration_FailuresAreClassified(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, err := rowwriter.Open(filepath.Join(dir, "nope", "out.csv"), []string{"a"}, rowwriter.Options{})
	assert.Equal(t, apperrors.ErrorCodeSinkUnavailable, apperrors.CodeOf(err))

	ok, err := convert.ToSpreadsheet(ctx, filepath.Join(dir, "missing.csv"), filepath.Join(dir, "out.xlsx"))
	assert.False(t, ok)
	assert.Equal(t, apperrors.ErrorCodeSourceReadFailure, apperrors.CodeOf(err))

	w, err := rowwriter.Open(filepath.Join(dir, "closed.csv"), []string{"a"}, rowwriter.Options{})
	require.NoError(t, err)
	require.NoError(t, w.Close(ctx))
	assert.Equal(t, apperrors.ErrorCodeMisuse, apperrors.CodeOf(w.WriteRow(ctx, rowwriter.Row{1})))
}
