package sqlite

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/custodia-labs/searchsync/internal/core/domain"
)

const (
	dateLayout = "2006-01-02"

	// datetimeLayout is fixed width so that text order is time order.
	datetimeLayout = "2006-01-02 15:04:05.000000000"
)

// encodeValue converts a Go value into the column representation of kind.
func encodeValue(kind domain.ColumnKind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch {
	case kind.IsInteger():
		return toInt64(v)
	case kind.IsBool():
		switch b := v.(type) {
		case bool:
			return boolToInt(b), nil
		default:
			n, err := toInt64(v)
			if err != nil {
				return nil, err
			}
			return boolToInt(n != 0), nil
		}
	case kind.IsFloat():
		return toFloat64(v)
	case kind == domain.ColumnDate:
		t, err := toTime(v)
		if err != nil {
			return nil, err
		}
		return t.Format(dateLayout), nil
	case kind == domain.ColumnDateTime:
		t, err := toTime(v)
		if err != nil {
			return nil, err
		}
		return t.UTC().Format(datetimeLayout), nil
	case kind == domain.ColumnJSON:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding json value: %w", err)
		}
		return string(data), nil
	default:
		switch t := v.(type) {
		case string:
			return t, nil
		case fmt.Stringer:
			return t.String(), nil
		default:
			return fmt.Sprint(v), nil
		}
	}
}

// decodeValue revives a scanned column value.
func decodeValue(kind domain.ColumnKind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch {
	case kind.IsInteger():
		return toInt64(v)
	case kind.IsBool():
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		return n != 0, nil
	case kind.IsFloat():
		return toFloat64(v)
	case kind == domain.ColumnDate:
		s, _ := v.(string)
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, fmt.Errorf("parsing date %q: %w", s, err)
		}
		return t, nil
	case kind == domain.ColumnDateTime:
		s, _ := v.(string)
		t, err := time.Parse(datetimeLayout, s)
		if err != nil {
			return nil, fmt.Errorf("parsing datetime %q: %w", s, err)
		}
		return t, nil
	case kind == domain.ColumnJSON:
		s, _ := v.(string)
		var out any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, fmt.Errorf("decoding json value: %w", err)
		}
		return out, nil
	default:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil //nolint:gosec // ids fit in int64
	case uint32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case bool:
		return boolToInt(n), nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an integer", domain.ErrInvalidInput, n)
		}
		return i, nil
	}
	return 0, fmt.Errorf("%w: %T is not an integer", domain.ErrInvalidInput, v)
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", domain.ErrInvalidInput, n)
		}
		return f, nil
	}
	i, err := toInt64(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %T is not a number", domain.ErrInvalidInput, v)
	}
	return float64(i), nil
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		if parsed, ok := domain.ParseTime(t); ok {
			return parsed, nil
		}
		return time.Time{}, fmt.Errorf("%w: %q is not a time", domain.ErrInvalidInput, t)
	}
	return time.Time{}, fmt.Errorf("%w: %T is not a time", domain.ErrInvalidInput, v)
}

// boolToInt converts a boolean to an integer for SQLite storage.
func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
