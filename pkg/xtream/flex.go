package xtream

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

var jsonNull = []byte("null")

// FlexInt handles JSON numbers that may be strings or integers.
// Unparseable values decode to zero.
type FlexInt int64

// Int returns the integer value.
func (f FlexInt) Int() int64 {
	return int64(f)
}

// UnmarshalJSON handles both string and number JSON values.
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	*f = 0

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			*f = FlexInt(i)
		} else if fl, err := n.Float64(); err == nil {
			*f = FlexInt(int64(fl))
		}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil && s != "" {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			*f = FlexInt(i)
		}
	}
	return nil
}

// FlexFloat handles JSON numbers that may be strings or floats.
// Unparseable values decode to zero.
type FlexFloat float64

// Float returns the float value.
func (f FlexFloat) Float() float64 {
	return float64(f)
}

// UnmarshalJSON handles both string and number JSON values.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	*f = 0

	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexFloat(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil && s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			*f = FlexFloat(v)
		}
	}
	return nil
}

// FlexString handles JSON values that may be strings, numbers or booleans.
type FlexString string

// String returns the string value.
func (f FlexString) String() string {
	return string(f)
}

// UnmarshalJSON handles string, number and boolean JSON values.
// Objects and arrays decode to the empty string.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	*f = ""

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexString(n.String())
		return nil
	}

	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = FlexString(strconv.FormatBool(b))
	}
	return nil
}

// FlexStrings handles a JSON array of strings that some providers send as a
// single string.
type FlexStrings []string

// UnmarshalJSON accepts an array of strings/numbers or a single string.
func (f *FlexStrings) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		*f = nil
		return nil
	}

	var items []FlexString
	if err := json.Unmarshal(data, &items); err == nil {
		out := make(FlexStrings, 0, len(items))
		for _, item := range items {
			out = append(out, item.String())
		}
		*f = out
		return nil
	}

	var single FlexString
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	if single == "" {
		*f = FlexStrings{}
		return nil
	}
	*f = FlexStrings{single.String()}
	return nil
}

// OptInt is an integer field that providers may omit. Valid is false when
// the field is absent, null, an empty string or anything that does not
// parse as a number.
type OptInt struct {
	Value int64
	Valid bool
}

// Get returns the value and whether it was present.
func (o OptInt) Get() (int64, bool) {
	return o.Value, o.Valid
}

// UnmarshalJSON accepts numbers and numeric strings.
func (o *OptInt) UnmarshalJSON(data []byte) error {
	*o = OptInt{}
	if i, ok := parseNumber(data); ok {
		if v, err := strconv.ParseInt(i, 10, 64); err == nil {
			*o = OptInt{Value: v, Valid: true}
		} else if f, err := strconv.ParseFloat(i, 64); err == nil {
			*o = OptInt{Value: int64(f), Valid: true}
		}
	}
	return nil
}

// OptFloat is a float field that providers may omit. Valid follows the
// same rules as OptInt.
type OptFloat struct {
	Value float64
	Valid bool
}

// Get returns the value and whether it was present.
func (o OptFloat) Get() (float64, bool) {
	return o.Value, o.Valid
}

// UnmarshalJSON accepts numbers and numeric strings.
func (o *OptFloat) UnmarshalJSON(data []byte) error {
	*o = OptFloat{}
	if s, ok := parseNumber(data); ok {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			*o = OptFloat{Value: v, Valid: true}
		}
	}
	return nil
}

// OptString is a descriptive text field that providers may omit. Strings and
// numbers are kept; null, booleans, objects and arrays leave it unset.
type OptString struct {
	Value string
	Valid bool
}

// String returns the value, or "" when unset.
func (o OptString) String() string {
	return o.Value
}

// UnmarshalJSON accepts strings and numbers.
func (o *OptString) UnmarshalJSON(data []byte) error {
	*o = OptString{}
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*o = OptString{Value: s, Valid: true}
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*o = OptString{Value: n.String(), Valid: true}
	}
	return nil
}

// parseNumber returns the text of a JSON number or of a string holding one.
// Empty strings and other JSON types report false.
func parseNumber(data []byte) (string, bool) {
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		return "", false
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		return n.String(), true
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}
