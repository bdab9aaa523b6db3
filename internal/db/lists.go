package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
)

// FloatList is stored as a JSON array. NaN entries (no value for that ply)
// are written as null and read back as NaN.
type FloatList []float64

func (l FloatList) Value() (driver.Value, error) {
	raw := make([]*float64, len(l))
	for i := range l {
		if math.IsNaN(l[i]) {
			continue
		}
		v := l[i]
		raw[i] = &v
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *FloatList) Scan(src any) error {
	data, err := listBytes(src)
	if err != nil {
		return err
	}
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("scan float list: %w", err)
	}
	out := make(FloatList, len(raw))
	for i, v := range raw {
		if v == nil {
			out[i] = math.NaN()
		} else {
			out[i] = *v
		}
	}
	*l = out
	return nil
}

type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src any) error {
	data, err := listBytes(src)
	if err != nil {
		return err
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("scan string list: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	*l = out
	return nil
}

func listBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return []byte("[]"), nil
	case string:
		if v == "" {
			return []byte("[]"), nil
		}
		return []byte(v), nil
	case []byte:
		if len(v) == 0 {
			return []byte("[]"), nil
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported list column type %T", src)
	}
}
