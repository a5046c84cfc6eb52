package sink

import (
	"context"
)

// Writer adapts a Sink to io.Writer. Write blocks on backpressure until the
// sink drains, so code that only knows io.Writer still respects the high-water mark.
type Writer struct {
	ctx  context.Context
	sink *Sink
}

// NewWriter returns an io.Writer over s. ctx bounds every wait for drain.
func NewWriter(ctx context.Context, s *Sink) *Writer {
	return &Writer{ctx: ctx, sink: s}
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	ok, err := w.sink.Write(p)
	if err != nil {
		return 0, err
	}
	if !ok {
		if err := w.sink.Await(w.ctx, EventDrain); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}
