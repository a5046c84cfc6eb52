// Package rowwriter writes delimited rows to a file incrementally.
//
// A Writer binds one header to one output sink. The header is queued when the
// Writer is opened; every WriteRow serializes one row and returns once the sink
// has accepted it, suspending while the sink reports backpressure. Close flushes
// and releases the sink. Memory stays bounded by the sink's high-water mark no
// matter how many rows are written.
//
//	w, err := rowwriter.Open("out.csv", []string{"No", "Name", "Gender"}, rowwriter.Options{})
//	if err != nil {
//	    return err
//	}
//	for _, row := range rows {
//	    if err := w.WriteRow(ctx, row); err != nil {
//	        return err
//	    }
//	}
//	return w.Close(ctx)
//
// A Writer is meant for a single goroutine: overlapping WriteRow calls, writes
// after Close and a second Close all fail with a MISUSE error.
package rowwriter

import (
	"context"
	"io"
	"runtime"
	"sync/atomic"

	"github.com/yourorg/rowstream-kit/pkg/csvutil"
	apperrors "github.com/yourorg/rowstream-kit/pkg/errors"
	"github.com/yourorg/rowstream-kit/pkg/logging"
	"github.com/yourorg/rowstream-kit/pkg/sink"
)

// Row is one record: scalar values (text or numeric) in column order.
type Row []any

// Options configures a Writer.
type Options struct {
	// Delimiter separates fields. Defaults to ','.
	Delimiter byte
	// HighWaterMark is the sink backpressure threshold in bytes.
	HighWaterMark int
	// SyncOnClose fsyncs the file before Close reports success.
	SyncOnClose bool
	Logger      logging.Logger
}

func (o Options) withDefaults() Options {
	if o.Delimiter == 0 {
		o.Delimiter = csvutil.Comma
	}
	if o.HighWaterMark <= 0 {
		o.HighWaterMark = sink.DefaultHighWaterMark
	}
	o.Logger = logging.OrNop(o.Logger)
	return o
}

func (o Options) sinkOptions() sink.Options {
	return sink.Options{
		HighWaterMark: o.HighWaterMark,
		SyncOnFinish:  o.SyncOnClose,
		Logger:        o.Logger,
	}
}

// Writer is a single writer session.
type Writer struct {
	sink    *sink.Sink
	header  []string
	opts    Options
	logger  logging.Logger
	line    []byte
	rows    int64
	writing atomic.Bool
	closed  atomic.Bool
}

// Open creates or truncates path and queues header as its first line.
// Header write failures surface from a later WriteRow or Close.
func Open(path string, header []string, opts Options) (*Writer, error) {
	opts = opts.withDefaults()
	s, err := sink.Create(path, opts.sinkOptions())
	if err != nil {
		opts.Logger.Error("Failed to open row writer", logging.NewField("path", path), logging.NewField("error", err))
		return nil, err
	}
	opts.Logger = opts.Logger.With(logging.NewField("path", path))
	return start(s, header, opts), nil
}

// NewWriter starts a session on an arbitrary writer. w is closed by Close when
// it implements io.Closer.
func NewWriter(w io.Writer, header []string, opts Options) *Writer {
	opts = opts.withDefaults()
	return start(sink.New(w, opts.sinkOptions()), header, opts)
}

func start(s *sink.Sink, header []string, opts Options) *Writer {
	w := &Writer{
		sink:   s,
		header: append([]string(nil), header...),
		opts:   opts,
		logger: opts.Logger,
	}

	// The header is queued without waiting; whatever the sink reports
	// applies to the first WriteRow or Close.
	w.line = csvutil.AppendRow(w.line[:0], w.header, opts.Delimiter)
	if _, err := s.Write(w.line); err != nil {
		w.logger.Warn("Header write rejected", logging.NewField("error", err))
	}

	w.logger.Debug("Row writer opened", logging.NewField("columns", len(w.header)))
	return w
}

// Header returns the column names the session was opened with.
func (w *Writer) Header() []string {
	return append([]string(nil), w.header...)
}

// Rows returns the number of data rows accepted so far.
func (w *Writer) Rows() int64 {
	return atomic.LoadInt64(&w.rows)
}

// Stats returns the underlying sink's counters.
func (w *Writer) Stats() sink.Stats {
	return w.sink.Stats()
}

// WriteRow serializes row and hands it to the sink. Fields are joined in order
// with the delimiter; the row's length is not checked against the header and
// field values are not escaped.
//
// When the sink is under its high-water mark WriteRow yields the processor once
// and returns. Otherwise it waits for the sink to drain, for the sink to fail,
// or for ctx to end.
func (w *Writer) WriteRow(ctx context.Context, row Row) error {
	return w.write(ctx, func(dst []byte) []byte {
		return csvutil.AppendValues(dst, row, w.opts.Delimiter)
	})
}

// WriteStrings is WriteRow for rows that are already text.
func (w *Writer) WriteStrings(ctx context.Context, fields []string) error {
	return w.write(ctx, func(dst []byte) []byte {
		return csvutil.AppendRow(dst, fields, w.opts.Delimiter)
	})
}

func (w *Writer) write(ctx context.Context, serialize func([]byte) []byte) error {
	if !w.writing.CompareAndSwap(false, true) {
		return apperrors.NewMisuseError("row write already in flight")
	}
	defer w.writing.Store(false)

	if w.closed.Load() {
		return apperrors.NewMisuseError("write after close")
	}

	w.line = serialize(w.line[:0])
	ok, err := w.sink.Write(w.line)
	if err != nil {
		return err
	}
	atomic.AddInt64(&w.rows, 1)

	if ok {
		runtime.Gosched()
		return nil
	}
	return w.sink.Await(ctx, sink.EventDrain)
}

// Close ends the session and waits until every queued byte is flushed and the
// file is closed, or the sink fails. Close may be called once.
func (w *Writer) Close(ctx context.Context) error {
	if w.writing.Load() {
		return apperrors.NewMisuseError("close while a row write is in flight")
	}
	if !w.closed.CompareAndSwap(false, true) {
		return apperrors.NewMisuseError("writer already closed")
	}

	if err := w.sink.End(); err != nil {
		w.logger.Error("Row writer failed", logging.NewField("rows", w.Rows()), logging.NewField("error", err))
		return err
	}
	if err := w.sink.Await(ctx, sink.EventFinish); err != nil {
		w.logger.Error("Row writer failed", logging.NewField("rows", w.Rows()), logging.NewField("error", err))
		return err
	}

	stats := w.sink.Stats()
	w.logger.Info("Row writer closed",
		logging.NewField("rows", w.Rows()),
		logging.NewField("bytes", stats.BytesFlushed),
		logging.NewField("peak_pending_bytes", stats.PeakPending),
	)
	return nil
}
