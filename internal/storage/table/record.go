package table

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ridgedb/ridgedb/internal/values"
)

// encodeRecord lays out column values in declared order with a leading
// null-bitmap (spec.md §4.5 "Record layout"). Each non-null value is framed
// as a one-byte Kind tag followed by a type-specific payload.
func encodeRecord(cols []ColumnDef, row values.Row) []byte {
	n := len(cols)
	bitmapBytes := (n + 7) / 8
	bitmap := make([]byte, bitmapBytes)
	var payload []byte
	for i, v := range row.Values {
		if v.IsNull() {
			bitmap[i/8] |= 1 << uint(i%8)
			continue
		}
		payload = append(payload, encodeValue(v)...)
	}
	buf := make([]byte, 0, bitmapBytes+len(payload))
	buf = append(buf, bitmap...)
	buf = append(buf, payload...)
	return buf
}

func encodeValue(v values.Value) []byte {
	switch v.Kind {
	case values.KindInt:
		buf := make([]byte, 9)
		buf[0] = byte(values.KindInt)
		binary.BigEndian.PutUint64(buf[1:], uint64(v.I))
		return buf
	case values.KindDouble:
		buf := make([]byte, 9)
		buf[0] = byte(values.KindDouble)
		binary.BigEndian.PutUint64(buf[1:], math.Float64bits(v.D))
		return buf
	case values.KindString:
		s := []byte(v.S)
		buf := make([]byte, 5+len(s))
		buf[0] = byte(values.KindString)
		binary.BigEndian.PutUint32(buf[1:5], uint32(len(s)))
		copy(buf[5:], s)
		return buf
	default:
		return []byte{byte(values.KindNull)}
	}
}

// decodeRecord is the inverse of encodeRecord, given the column count.
func decodeRecord(cols []ColumnDef, data []byte) (values.Row, error) {
	n := len(cols)
	bitmapBytes := (n + 7) / 8
	if len(data) < bitmapBytes {
		return values.Row{}, fmt.Errorf("table: record too short for null bitmap")
	}
	bitmap := data[:bitmapBytes]
	rest := data[bitmapBytes:]
	out := make([]values.Value, n)
	for i := 0; i < n; i++ {
		if bitmap[i/8]&(1<<uint(i%8)) != 0 {
			out[i] = values.Null()
			continue
		}
		v, consumed, err := decodeValue(rest)
		if err != nil {
			return values.Row{}, err
		}
		out[i] = v
		rest = rest[consumed:]
	}
	return values.Row{Values: out}, nil
}

func decodeValue(data []byte) (values.Value, int, error) {
	if len(data) < 1 {
		return values.Value{}, 0, fmt.Errorf("table: empty value frame")
	}
	kind := values.Kind(data[0])
	switch kind {
	case values.KindInt:
		if len(data) < 9 {
			return values.Value{}, 0, fmt.Errorf("table: truncated int value")
		}
		i := int64(binary.BigEndian.Uint64(data[1:9]))
		return values.Int(i), 9, nil
	case values.KindDouble:
		if len(data) < 9 {
			return values.Value{}, 0, fmt.Errorf("table: truncated double value")
		}
		d := math.Float64frombits(binary.BigEndian.Uint64(data[1:9]))
		return values.Double(d), 9, nil
	case values.KindString:
		if len(data) < 5 {
			return values.Value{}, 0, fmt.Errorf("table: truncated string length")
		}
		l := binary.BigEndian.Uint32(data[1:5])
		if len(data) < 5+int(l) {
			return values.Value{}, 0, fmt.Errorf("table: truncated string payload")
		}
		s := string(data[5 : 5+l])
		return values.Str(s), 5 + int(l), nil
	default:
		return values.Null(), 1, nil
	}
}
