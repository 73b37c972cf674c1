package bitmart

import (
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/shopspring/decimal"
)

// safeValue returns the scalar at key as text. Strings are unescaped,
// numbers and booleans are returned verbatim.
func safeValue(data []byte, keys ...string) (string, bool) {
	v, typ, _, err := jsonparser.Get(data, keys...)
	if err != nil {
		return "", false
	}
	switch typ {
	case jsonparser.String:
		s, err := jsonparser.ParseString(v)
		if err != nil {
			return "", false
		}
		return s, true
	case jsonparser.Number, jsonparser.Boolean:
		return string(v), true
	default:
		return "", false
	}
}

func safeString(data []byte, keys ...string) string {
	s, _ := safeValue(data, keys...)
	return s
}

func safeStringLower(data []byte, keys ...string) string {
	return strings.ToLower(safeString(data, keys...))
}

// safeDecimal parses the value at key, zero when missing or malformed
func safeDecimal(data []byte, keys ...string) decimal.Decimal {
	s, ok := safeValue(data, keys...)
	if !ok || s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// safeInteger accepts integers encoded as numbers or strings, truncating a
// fractional part
func safeInteger(data []byte, keys ...string) (int64, bool) {
	s, ok := safeValue(data, keys...)
	if !ok {
		return 0, false
	}
	return parseInteger(s)
}

func parseInteger(s string) (int64, bool) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return d.IntPart(), true
}

// arrayValues returns the elements of a flat JSON array as text
func arrayValues(data []byte, keys ...string) ([]string, error) {
	var out []string
	var parseErr error
	_, err := jsonparser.ArrayEach(data, func(v []byte, typ jsonparser.ValueType, _ int, _ error) {
		switch typ {
		case jsonparser.String:
			s, err := jsonparser.ParseString(v)
			if err != nil {
				parseErr = err
				return
			}
			out = append(out, s)
		default:
			out = append(out, string(v))
		}
	}, keys...)
	if err != nil {
		return nil, err
	}
	return out, parseErr
}

// eachRecord calls fn for every object in the frame's data array. A data
// field that is missing or not an array holds no records.
func eachRecord(raw []byte, fn func(record []byte) error) error {
	data, typ, _, err := jsonparser.Get(raw, "data")
	if err != nil || typ != jsonparser.Array {
		return nil
	}
	var firstErr error
	_, err = jsonparser.ArrayEach(data, func(v []byte, typ jsonparser.ValueType, _ int, _ error) {
		if typ != jsonparser.Object || firstErr != nil {
			return
		}
		firstErr = fn(v)
	})
	if err != nil {
		return err
	}
	return firstErr
}

// timeframeMillis returns the length of a unified timeframe such as 1m, 4h
// or 1M in milliseconds
func timeframeMillis(timeframe string) (int64, bool) {
	if len(timeframe) < 2 {
		return 0, false
	}
	amount, err := strconv.ParseInt(timeframe[:len(timeframe)-1], 10, 64)
	if err != nil || amount <= 0 {
		return 0, false
	}
	var unit int64
	switch timeframe[len(timeframe)-1] {
	case 's':
		unit = 1
	case 'm':
		unit = 60
	case 'h':
		unit = 60 * 60
	case 'd':
		unit = 24 * 60 * 60
	case 'w':
		unit = 7 * 24 * 60 * 60
	case 'M':
		unit = 30 * 24 * 60 * 60
	case 'y':
		unit = 365 * 24 * 60 * 60
	default:
		return 0, false
	}
	return amount * unit * 1000, true
}
