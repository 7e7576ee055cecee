package indicator

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Value is an indicator reading that may be absent. The zero Value is absent.
type Value struct {
	v     float64
	valid bool
}

// Some wraps a present reading.
func Some(v float64) Value {
	return Value{v: v, valid: true}
}

// None returns an absent reading.
func None() Value {
	return Value{}
}

// Get returns the reading and whether it is present.
func (x Value) Get() (float64, bool) {
	return x.v, x.valid
}

// Valid reports whether the reading is present.
func (x Value) Valid() bool {
	return x.valid
}

// Ptr returns nil for an absent reading.
func (x Value) Ptr() *float64 {
	if !x.valid {
		return nil
	}
	v := x.v
	return &v
}

func (x Value) String() string {
	if !x.valid {
		return "n/a"
	}
	return strconv.FormatFloat(x.v, 'f', 4, 64)
}

// MarshalJSON encodes an absent reading as null.
func (x Value) MarshalJSON() ([]byte, error) {
	if !x.valid {
		return []byte("null"), nil
	}
	return json.Marshal(x.v)
}

// UnmarshalJSON accepts a number or null.
func (x *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*x = None()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*x = Some(v)
	return nil
}
