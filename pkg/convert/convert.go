// Package convert turns a delimited text file into a spreadsheet document.
//
// A conversion reads the source one line at a time, appends each line as a
// worksheet row, and streams the encoded document into the destination through
// a backpressure sink. Neither the source nor the document is held in memory as
// a whole. Every YieldEvery rows the job checks its context, yields the
// processor and reports progress.
package convert

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/yourorg/rowstream-kit/pkg/csvutil"
	apperrors "github.com/yourorg/rowstream-kit/pkg/errors"
	"github.com/yourorg/rowstream-kit/pkg/logging"
	"github.com/yourorg/rowstream-kit/pkg/sink"
	"github.com/yourorg/rowstream-kit/pkg/xlsx"
)

// DefaultYieldEvery is the number of rows between cooperative yields.
const DefaultYieldEvery = 100

// DefaultProgressInterval is the minimum time between progress log lines.
const DefaultProgressInterval = 5 * time.Second

// EncoderFactory starts a spreadsheet document whose bytes go to w.
type EncoderFactory func(w io.Writer) (xlsx.Encoder, error)

// Progress describes a running conversion.
type Progress struct {
	JobID      string
	Rows       int64
	BytesRead  int64
	TotalBytes int64
	Elapsed    time.Duration
}

// Percent returns the share of the source consumed, or 0 if its size is unknown.
func (p Progress) Percent() int {
	if p.TotalBytes <= 0 {
		return 0
	}
	return int(p.BytesRead * 100 / p.TotalBytes)
}

// Options configures a Converter. The zero value is usable.
type Options struct {
	// Delimiter separates fields in the source. Defaults to ','.
	Delimiter byte
	// YieldEvery is the number of rows between yields and context checks.
	YieldEvery int
	// MaxLineBytes bounds a single source line.
	MaxLineBytes int
	// HighWaterMark is the destination sink's backpressure threshold.
	HighWaterMark int
	// SyncOnFinish fsyncs the destination before the conversion succeeds.
	SyncOnFinish bool
	// SheetName names the worksheet. Ignored when NewEncoder is set.
	SheetName string
	// NewEncoder replaces the default excelize encoder.
	NewEncoder EncoderFactory
	// OnProgress, when set, is called every YieldEvery rows and once at the end.
	OnProgress func(Progress)
	// ProgressInterval throttles progress logging.
	ProgressInterval time.Duration
	Logger           logging.Logger
}

func (o Options) withDefaults() Options {
	if o.Delimiter == 0 {
		o.Delimiter = csvutil.Comma
	}
	if o.YieldEvery <= 0 {
		o.YieldEvery = DefaultYieldEvery
	}
	if o.MaxLineBytes <= 0 {
		o.MaxLineBytes = csvutil.DefaultMaxLineBytes
	}
	if o.HighWaterMark <= 0 {
		o.HighWaterMark = sink.DefaultHighWaterMark
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = DefaultProgressInterval
	}
	if o.NewEncoder == nil {
		sheet := o.SheetName
		o.NewEncoder = func(w io.Writer) (xlsx.Encoder, error) {
			return xlsx.NewStreamEncoder(w, xlsx.Options{SheetName: sheet})
		}
	}
	o.Logger = logging.OrNop(o.Logger)
	return o
}

// Converter runs conversions with fixed options. It is safe for concurrent
// use; every call is an independent job.
type Converter struct {
	opts Options
}

// New returns a Converter.
func New(opts Options) *Converter {
	return &Converter{opts: opts.withDefaults()}
}

// ToSpreadsheet converts src with default options.
func ToSpreadsheet(ctx context.Context, src, dst string) (bool, error) {
	return New(Options{}).ToSpreadsheet(ctx, src, dst)
}

// ToSpreadsheet reads src line by line and writes a spreadsheet to dst, one
// worksheet row per line. dst is created or truncated.
//
// It returns true only once the document is fully encoded and the destination
// is flushed and closed. On failure it returns false and the error; dst may be
// left partially written.
func (c *Converter) ToSpreadsheet(ctx context.Context, src, dst string) (bool, error) {
	j := &job{
		id:     uuid.New().String(),
		src:    src,
		dst:    dst,
		opts:   c.opts,
		logger: c.opts.Logger,
		every:  &rate.Sometimes{First: 1, Interval: c.opts.ProgressInterval},
	}
	j.logger = j.logger.With(
		logging.NewField("job_id", j.id),
		logging.NewField("src", src),
		logging.NewField("dst", dst),
	)

	if err := j.run(ctx); err != nil {
		j.logger.Error("Conversion failed",
			logging.NewField("rows", j.rows),
			logging.NewField("error", err),
		)
		return false, err
	}
	return true, nil
}

type job struct {
	id     string
	src    string
	dst    string
	opts   Options
	logger logging.Logger
	every  *rate.Sometimes

	started time.Time
	rows    int64
	total   int64
	reader  *csvutil.Reader
}

func (j *job) run(ctx context.Context) error {
	j.started = time.Now()

	in, err := os.Open(j.src)
	if err != nil {
		return apperrors.NewSourceReadError(fmt.Sprintf("cannot open source %s", j.src), err)
	}
	defer in.Close()
	if info, err := in.Stat(); err == nil {
		j.total = info.Size()
	}

	out, err := sink.Create(j.dst, sink.Options{
		HighWaterMark: j.opts.HighWaterMark,
		SyncOnFinish:  j.opts.SyncOnFinish,
		Logger:        j.logger,
	})
	if err != nil {
		return err
	}

	enc, err := j.opts.NewEncoder(sink.NewWriter(ctx, out))
	if err != nil {
		err = apperrors.NewEncodeError("cannot start spreadsheet", err)
		out.Destroy(err)
		return err
	}

	j.logger.Info("Conversion started", logging.NewField("source_bytes", j.total))

	j.reader = csvutil.NewReader(in, csvutil.ReaderConfig{
		Comma:        j.opts.Delimiter,
		MaxLineBytes: j.opts.MaxLineBytes,
		ReuseRecord:  true,
	})
	if err := j.copyRows(ctx, enc); err != nil {
		out.Destroy(err)
		abort(enc)
		return err
	}

	if err := enc.Close(); err != nil {
		if apperrors.CodeOf(err) == "" {
			err = apperrors.NewEncodeError("cannot finalize spreadsheet", err)
		}
		out.Destroy(err)
		return err
	}

	if err := out.End(); err != nil {
		return err
	}
	if err := out.Await(ctx, sink.EventFinish); err != nil {
		out.Destroy(err)
		return err
	}

	j.report()
	stats := out.Stats()
	j.logger.Info("Conversion completed",
		logging.NewField("rows", j.rows),
		logging.NewField("bytes_written", stats.BytesFlushed),
		logging.NewField("duration_ms", time.Since(j.started).Milliseconds()),
	)
	return nil
}

func (j *job) copyRows(ctx context.Context, enc xlsx.Encoder) error {
	for {
		record, err := j.reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return apperrors.NewSourceReadError(fmt.Sprintf("cannot read %s", j.src), err).
				WithDetails(map[string]interface{}{"line": j.reader.Line() + 1})
		}

		if err := enc.AppendRow(record); err != nil {
			if apperrors.CodeOf(err) != "" {
				return err
			}
			return apperrors.NewEncodeError(fmt.Sprintf("cannot encode line %d", j.reader.Line()), err).
				WithDetails(map[string]interface{}{"line": j.reader.Line()})
		}
		j.rows++

		if j.rows%int64(j.opts.YieldEvery) == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			runtime.Gosched()
			j.report()
		}
	}
}

func (j *job) report() {
	p := Progress{
		JobID:      j.id,
		Rows:       j.rows,
		BytesRead:  j.bytesRead(),
		TotalBytes: j.total,
		Elapsed:    time.Since(j.started),
	}
	if j.opts.OnProgress != nil {
		j.opts.OnProgress(p)
	}
	j.every.Do(func() {
		j.logger.Info("Conversion progress",
			logging.NewField("rows", p.Rows),
			logging.NewField("percent", p.Percent()),
		)
	})
}

func (j *job) bytesRead() int64 {
	if j.reader == nil {
		return 0
	}
	return j.reader.BytesRead()
}

// abort releases encoder resources after a failure. The sink is already
// destroyed, so an encoder without Abort fails fast in Close.
func abort(enc xlsx.Encoder) {
	if a, ok := enc.(interface{ Abort() }); ok {
		a.Abort()
		return
	}
	_ = enc.Close()
}
