package csvutil

import (
	"fmt"
	"math"
	"strconv"
)

// Comma is the default field delimiter.
const Comma = ','

// Newline terminates every row.
const Newline = '\n'

// AppendRow appends fields joined by delim plus a trailing newline to dst.
// Fields are written verbatim: delimiters or newlines inside a field are not escaped.
func AppendRow(dst []byte, fields []string, delim byte) []byte {
	for i, field := range fields {
		if i > 0 {
			dst = append(dst, delim)
		}
		dst = append(dst, field...)
	}
	return append(dst, Newline)
}

// AppendValues is AppendRow for scalar values of mixed types.
func AppendValues(dst []byte, values []any, delim byte) []byte {
	for i, v := range values {
		if i > 0 {
			dst = append(dst, delim)
		}
		dst = AppendValue(dst, v)
	}
	return append(dst, Newline)
}

// FormatRow returns the serialized line for fields.
func FormatRow(fields []string, delim byte) string {
	return string(AppendRow(nil, fields, delim))
}

// AppendValue appends the text form of a scalar cell value. nil becomes an empty field.
func AppendValue(dst []byte, v any) []byte {
	switch val := v.(type) {
	case nil:
		return dst
	case string:
		return append(dst, val...)
	case []byte:
		return append(dst, val...)
	case int:
		return strconv.AppendInt(dst, int64(val), 10)
	case int8:
		return strconv.AppendInt(dst, int64(val), 10)
	case int16:
		return strconv.AppendInt(dst, int64(val), 10)
	case int32:
		return strconv.AppendInt(dst, int64(val), 10)
	case int64:
		return strconv.AppendInt(dst, val, 10)
	case uint:
		return strconv.AppendUint(dst, uint64(val), 10)
	case uint8:
		return strconv.AppendUint(dst, uint64(val), 10)
	case uint16:
		return strconv.AppendUint(dst, uint64(val), 10)
	case uint32:
		return strconv.AppendUint(dst, uint64(val), 10)
	case uint64:
		return strconv.AppendUint(dst, val, 10)
	case float32:
		return appendFloat(dst, float64(val), 32)
	case float64:
		return appendFloat(dst, val, 64)
	case bool:
		return strconv.AppendBool(dst, val)
	case fmt.Stringer:
		return append(dst, val.String()...)
	case error:
		return append(dst, val.Error()...)
	default:
		return fmt.Append(dst, val)
	}
}

// appendFloat prints plain decimal notation for ordinary magnitudes (1 -> "1",
// 1.5 -> "1.5", 1e6 -> "1000000") and exponent notation only for huge values.
func appendFloat(dst []byte, f float64, bitSize int) []byte {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= 1e21 {
		return strconv.AppendFloat(dst, f, 'g', -1, bitSize)
	}
	return strconv.AppendFloat(dst, f, 'f', -1, bitSize)
}
