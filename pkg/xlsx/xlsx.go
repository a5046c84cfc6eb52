// Package xlsx encodes rows into an Office Open XML spreadsheet.
//
// The encoder appends rows to a single worksheet in order and writes the
// finished document to an io.Writer on Close. Rows are streamed through
// excelize's StreamWriter, which spills to a temporary file once its buffer
// grows large, so the encoder's memory does not grow with the row count.
package xlsx

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// DefaultSheetName is the worksheet rows are written to.
const DefaultSheetName = "Sheet1"

// MaxRows is the number of rows a worksheet can hold.
const MaxRows = excelize.TotalRows

// MaxColumns is the number of columns a worksheet can hold.
const MaxColumns = excelize.MaxColumns

// MaxCellChars is the number of characters a cell can hold.
const MaxCellChars = excelize.TotalCellChars

var (
	// ErrTooManyRows is returned by AppendRow once the worksheet is full.
	ErrTooManyRows = errors.New("xlsx: too many rows")
	// ErrTooManyColumns is returned by AppendRow for rows wider than a worksheet.
	ErrTooManyColumns = errors.New("xlsx: too many columns")
	// ErrCellTooLong is returned by AppendRow for a field a cell cannot hold
	// without truncation.
	ErrCellTooLong = errors.New("xlsx: cell too long")
	// ErrClosed is returned by calls on a closed encoder.
	ErrClosed = errors.New("xlsx: encoder closed")
)

// Encoder appends rows to a spreadsheet document and finalizes it on Close.
type Encoder interface {
	AppendRow(fields []string) error
	Close() error
}

// Options configures a StreamEncoder.
type Options struct {
	SheetName string
}

// StreamEncoder is an Encoder backed by excelize.
type StreamEncoder struct {
	w      io.Writer
	file   *excelize.File
	stream *excelize.StreamWriter
	rows   int
	cells  []interface{}
	closed bool
}

// NewStreamEncoder starts a document whose bytes go to w when Close is called.
func NewStreamEncoder(w io.Writer, opts Options) (*StreamEncoder, error) {
	sheet := opts.SheetName
	if sheet == "" {
		sheet = DefaultSheetName
	}

	f := excelize.NewFile()
	if sheet != DefaultSheetName {
		if err := f.SetSheetName(DefaultSheetName, sheet); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("rename sheet: %w", err)
		}
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open stream writer: %w", err)
	}

	return &StreamEncoder{w: w, file: f, stream: sw}, nil
}

// Rows returns the number of rows appended.
func (e *StreamEncoder) Rows() int {
	return e.rows
}

// AppendRow writes fields as the next worksheet row, one text cell per field.
func (e *StreamEncoder) AppendRow(fields []string) error {
	if e.closed {
		return ErrClosed
	}
	if e.rows >= MaxRows {
		return ErrTooManyRows
	}
	if len(fields) > MaxColumns {
		return fmt.Errorf("%w: %d", ErrTooManyColumns, len(fields))
	}

	for i, f := range fields {
		if len(f) > MaxCellChars && utf8.RuneCountInString(f) > MaxCellChars {
			return fmt.Errorf("%w: row %d column %d has %d characters (limit %d)",
				ErrCellTooLong, e.rows+1, i+1, utf8.RuneCountInString(f), MaxCellChars)
		}
	}

	cell, err := excelize.CoordinatesToCellName(1, e.rows+1)
	if err != nil {
		return err
	}

	e.cells = e.cells[:0]
	for _, f := range fields {
		e.cells = append(e.cells, f)
	}
	if err := e.stream.SetRow(cell, e.cells); err != nil {
		return fmt.Errorf("row %d: %w", e.rows+1, err)
	}
	e.rows++
	return nil
}

// Close finalizes the worksheet, writes the document to the destination
// writer and releases temporary storage. It does not close the destination.
func (e *StreamEncoder) Close() error {
	if e.closed {
		return ErrClosed
	}
	e.closed = true
	defer e.file.Close()

	if err := e.stream.Flush(); err != nil {
		return fmt.Errorf("flush worksheet: %w", err)
	}
	if _, err := e.file.WriteTo(e.w); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

// Abort releases temporary storage without writing anything.
func (e *StreamEncoder) Abort() {
	if e.closed {
		return
	}
	e.closed = true
	_ = e.file.Close()
}
