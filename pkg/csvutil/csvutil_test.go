package csvutil

import (
	"errors"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendRow(t *testing.T) {
	assert.Equal(t, "No,Name,Gender\n", FormatRow([]string{"No", "Name", "Gender"}, Comma))
	assert.Equal(t, "a;b\n", FormatRow([]string{"a", "b"}, ';'))
	assert.Equal(t, "\n", FormatRow(nil, Comma))
	assert.Equal(t, ",\n", FormatRow([]string{"", ""}, Comma))

	// No escaping: embedded delimiters pass through untouched.
	assert.Equal(t, "a,b,c\n", FormatRow([]string{"a,b", "c"}, Comma))
}

func TestAppendValues(t *testing.T) {
	tests := []struct {
		name   string
		values []any
		want   string
	}{
		{name: "mixed scalars", values: []any{1, "John", "Male"}, want: "1,John,Male\n"},
		{name: "integers", values: []any{int8(-8), int16(16), int32(32), int64(-64), uint(1), uint8(8), uint16(16), uint32(32), uint64(64)}, want: "-8,16,32,-64,1,8,16,32,64\n"},
		{name: "floats", values: []any{1.5, float64(1000000), float32(0.25), 1e21}, want: "1.5,1000000,0.25,1e+21\n"},
		{name: "special floats", values: []any{math.NaN(), math.Inf(1)}, want: "NaN,+Inf\n"},
		{name: "bool and nil", values: []any{true, nil, false}, want: "true,,false\n"},
		{name: "bytes", values: []any{[]byte("raw")}, want: "raw\n"},
		{name: "stringer", values: []any{time.Duration(1500) * time.Millisecond}, want: "1.5s\n"},
		{name: "error", values: []any{errors.New("boom")}, want: "boom\n"},
		{name: "fallback", values: []any{[]int{1, 2}}, want: "[1 2]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(AppendValues(nil, tt.values, Comma)))
		})
	}
}

func readAll(t *testing.T, r *Reader) [][]string {
	t.Helper()
	var records [][]string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return records
		}
		require.NoError(t, err)
		records = append(records, record)
	}
}

func TestReader_Read(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  [][]string
	}{
		{
			name:  "header and rows",
			input: "No,Name,Gender\n1,John,Male\n2,Doe,Male\n",
			want:  [][]string{{"No", "Name", "Gender"}, {"1", "John", "Male"}, {"2", "Doe", "Male"}},
		},
		{
			name:  "missing final terminator",
			input: "a,b\nc,d",
			want:  [][]string{{"a", "b"}, {"c", "d"}},
		},
		{
			name:  "crlf",
			input: "a,b\r\nc,d\r\n",
			want:  [][]string{{"a", "b"}, {"c", "d"}},
		},
		{
			name:  "bom skipped",
			input: "\xEF\xBB\xBFa,b\n",
			want:  [][]string{{"a", "b"}},
		},
		{
			name:  "blank line keeps its row",
			input: "a\n\nb\n",
			want:  [][]string{{"a"}, {""}, {"b"}},
		},
		{
			name:  "quotes are literal",
			input: "\"x,y\",z\n",
			want:  [][]string{{"\"x", "y\"", "z"}},
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(strings.NewReader(tt.input), DefaultReaderConfig())
			assert.Equal(t, tt.want, readAll(t, r))
			assert.Equal(t, int64(len(tt.input)), r.BytesRead())
		})
	}
}

func TestReader_LongLines(t *testing.T) {
	long := strings.Repeat("x", 200*1024)
	r := NewReader(strings.NewReader(long+",y\nshort\n"), DefaultReaderConfig())

	records := readAll(t, r)
	require.Len(t, records, 2)
	assert.Equal(t, []string{long, "y"}, records[0])
	assert.Equal(t, int64(2), r.Line())
}

func TestReader_LineTooLong(t *testing.T) {
	r := NewReader(strings.NewReader("ok\n"+strings.Repeat("x", 100)+"\n"), ReaderConfig{MaxLineBytes: 10})

	record, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, record)

	_, err = r.Read()
	assert.ErrorIs(t, err, ErrLineTooLong)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReader_ReuseRecord(t *testing.T) {
	r := NewReader(strings.NewReader("a,b\nc,d\n"), ReaderConfig{Comma: ',', ReuseRecord: true})

	first, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, first)

	second, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, second)
	assert.Equal(t, []string{"c", "d"}, first, "reused backing array")
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}

func TestReader_PropagatesReadErrors(t *testing.T) {
	r := NewReader(failingReader{}, DefaultReaderConfig())
	_, err := r.Read()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestCountingReader_Progress(t *testing.T) {
	cr := NewCountingReader(strings.NewReader("0123456789"), 10)
	buf := make([]byte, 5)
	_, err := cr.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 50, cr.Progress())

	assert.Equal(t, 0, NewCountingReader(strings.NewReader(""), 0).Progress())
}
