package csvutil

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxLineBytes caps a single source line.
const DefaultMaxLineBytes = 16 * 1024 * 1024

// ErrLineTooLong is returned when a line exceeds ReaderConfig.MaxLineBytes.
var ErrLineTooLong = errors.New("csvutil: line too long")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReaderConfig configures a Reader.
type ReaderConfig struct {
	Comma        byte
	MaxLineBytes int

	// ReuseRecord lets Read return a slice that is overwritten by the next call.
	ReuseRecord bool
}

// DefaultReaderConfig returns a default reader configuration.
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		Comma:        Comma,
		MaxLineBytes: DefaultMaxLineBytes,
	}
}

// Reader reads a row-oriented text file one line at a time.
//
// Each line is split on Comma with no quote handling, a trailing "\r" is
// dropped, and a UTF-8 BOM at the start of the input is skipped. An empty
// line yields a record with one empty field so that lines map 1:1 to records.
// Memory use is bounded by the longest line, never by the number of lines.
type Reader struct {
	config  ReaderConfig
	counter *CountingReader
	br      *bufio.Reader
	line    int64
	started bool
	buf     []byte
	record  []string
}

// NewReader creates a new Reader.
func NewReader(r io.Reader, config ReaderConfig) *Reader {
	if config.Comma == 0 {
		config.Comma = Comma
	}
	if config.MaxLineBytes <= 0 {
		config.MaxLineBytes = DefaultMaxLineBytes
	}
	counter := NewCountingReader(r, 0)
	return &Reader{
		config:  config,
		counter: counter,
		br:      bufio.NewReaderSize(counter, 64*1024),
	}
}

// Read returns the next record. It returns io.EOF once the input is exhausted.
// A final line without a terminator is returned as a regular record.
func (r *Reader) Read() ([]string, error) {
	line, err := r.readLine()
	if err != nil {
		return nil, err
	}
	r.line++

	if !r.started {
		r.started = true
		line = bytes.TrimPrefix(line, utf8BOM)
	}

	record := r.record[:0]
	if !r.config.ReuseRecord {
		record = nil
	}
	record = splitFields(record, string(line), r.config.Comma)
	if r.config.ReuseRecord {
		r.record = record
	}
	return record, nil
}

// Line returns the 1-based number of the last line returned by Read.
func (r *Reader) Line() int64 {
	return r.line
}

// BytesRead returns the number of bytes consumed from the underlying reader.
func (r *Reader) BytesRead() int64 {
	return r.counter.BytesRead
}

// readLine returns the next line without its terminator. The returned slice
// is only valid until the next call.
func (r *Reader) readLine() ([]byte, error) {
	r.buf = r.buf[:0]
	for {
		chunk, err := r.br.ReadSlice(Newline)
		if len(r.buf)+len(chunk) > r.config.MaxLineBytes+1 {
			return nil, fmt.Errorf("line %d: %w (limit %d bytes)", r.line+1, ErrLineTooLong, r.config.MaxLineBytes)
		}

		switch {
		case err == nil:
			line := chunk
			if len(r.buf) > 0 {
				r.buf = append(r.buf, chunk...)
				line = r.buf
			}
			return trimTerminator(line), nil
		case errors.Is(err, bufio.ErrBufferFull):
			r.buf = append(r.buf, chunk...)
		case errors.Is(err, io.EOF):
			r.buf = append(r.buf, chunk...)
			if len(r.buf) == 0 {
				return nil, io.EOF
			}
			return trimTerminator(r.buf), nil
		default:
			return nil, fmt.Errorf("line %d: %w", r.line+1, err)
		}
	}
}

func trimTerminator(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte{Newline})
	return bytes.TrimSuffix(line, []byte{'\r'})
}

func splitFields(dst []string, line string, comma byte) []string {
	start := 0
	for i := 0; i < len(line); i++ {
		if line[i] == comma {
			dst = append(dst, line[start:i])
			start = i + 1
		}
	}
	return append(dst, line[start:])
}

// CountingReader wraps an io.Reader to track bytes read.
// Used for progress reporting during streaming conversions.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
	Total     int64 // If known (0 if unknown)
}

// NewCountingReader creates a counting reader with optional total size.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{
		reader: r,
		Total:  total,
	}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}

// Progress returns the read progress as a percentage (0-100).
// Returns 0 if total is unknown.
func (r *CountingReader) Progress() int {
	if r.Total <= 0 {
		return 0
	}
	return int(r.BytesRead * 100 / r.Total)
}
