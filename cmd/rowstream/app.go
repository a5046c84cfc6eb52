package main

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/yourorg/rowstream-kit/pkg/config"
	"github.com/yourorg/rowstream-kit/pkg/convert"
	apperrors "github.com/yourorg/rowstream-kit/pkg/errors"
	"github.com/yourorg/rowstream-kit/pkg/logging"
	"github.com/yourorg/rowstream-kit/pkg/publish"
	"github.com/yourorg/rowstream-kit/pkg/rowwriter"
)

// App wires configuration, logging and the publisher into the commands.
type App struct {
	config    *config.Config
	logger    logging.Logger
	publisher publish.Publisher
}

// NewApp builds an App. publisher may be nil, in which case one is built from
// the blob settings; without a storage account the App cannot publish.
func NewApp(cfg *config.Config, logger logging.Logger, publisher publish.Publisher) (*App, error) {
	app := &App{config: cfg, logger: logger, publisher: publisher}
	if publisher != nil || cfg.BlobStorageAccountName == "" {
		return app, nil
	}

	p, err := publish.NewAzureBlobPublisher(publish.AzureBlobConfig{
		AccountName:        cfg.BlobStorageAccountName,
		AccountKey:         cfg.BlobStorageAccountKey,
		UseManagedIdentity: cfg.BlobUseManagedIdentity,
		Container:          cfg.BlobContainer,
		BlockSize:          int64(cfg.BlobBlockSizeBytes),
		Concurrency:        cfg.BlobConcurrency,
	}, logger)
	if err != nil {
		return nil, err
	}
	app.publisher = p
	return app, nil
}

func (a *App) progressInterval() time.Duration {
	return time.Duration(a.config.ProgressIntervalSeconds) * time.Second
}

// Generate writes a synthetic fixture: a header "col 1".."col N" followed by
// rows whose cells read "col no 1".."col no N".
func (a *App) Generate(ctx context.Context, out string, rows, cols int) error {
	if rows < 0 || cols <= 0 {
		return fmt.Errorf("rows must be >= 0 and cols > 0, got rows=%d cols=%d", rows, cols)
	}

	logger := a.logger.With(
		logging.NewField("operation", "generate"),
		logging.NewField("out", out),
	)

	header := make([]string, cols)
	cells := make([]string, cols)
	for i := 0; i < cols; i++ {
		header[i] = fmt.Sprintf("col %d", i+1)
		cells[i] = fmt.Sprintf("col no %d", i+1)
	}

	w, err := rowwriter.Open(out, header, rowwriter.Options{
		Delimiter:     a.config.DelimiterByte(),
		HighWaterMark: a.config.HighWaterMarkBytes,
		SyncOnClose:   a.config.SyncOnClose,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	closed := false
	defer func() {
		if !closed {
			_ = w.Close(ctx)
		}
	}()

	started := time.Now()
	every := rate.Sometimes{Interval: a.progressInterval()}
	for r := 0; r < rows; r++ {
		if err := w.WriteStrings(ctx, cells); err != nil {
			return err
		}
		every.Do(func() {
			logger.Info("Generate progress", logging.NewField("rows", r+1), logging.NewField("of", rows))
		})
	}
	closed = true
	if err := w.Close(ctx); err != nil {
		return err
	}

	logger.Info("Fixture generated",
		logging.NewField("rows", rows),
		logging.NewField("cols", cols),
		logging.NewField("duration_ms", time.Since(started).Milliseconds()),
	)
	return nil
}

// Convert turns src into a spreadsheet at dst and, when name is set,
// publishes it. It returns the published URL, if any.
func (a *App) Convert(ctx context.Context, src, dst, name string) (string, error) {
	if name != "" && a.publisher == nil {
		return "", apperrors.NewConfigError("cannot publish: no blob storage account configured (set ROWSTREAM_BLOB_STORAGE_ACCOUNT_NAME)")
	}

	c := convert.New(convert.Options{
		Delimiter:        a.config.DelimiterByte(),
		YieldEvery:       a.config.YieldEveryRows,
		MaxLineBytes:     a.config.MaxLineBytes,
		HighWaterMark:    a.config.HighWaterMarkBytes,
		SyncOnFinish:     a.config.SyncOnClose,
		ProgressInterval: a.progressInterval(),
		Logger:           a.logger,
	})

	ok, err := c.ToSpreadsheet(ctx, src, dst)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperrors.NewInternalError(fmt.Sprintf("conversion of %s did not complete", src))
	}

	if name == "" {
		return "", nil
	}
	return a.publisher.Publish(ctx, dst, name)
}
