package book

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PageKey identifies a page within a Document. Sources report either an
// integer page number or a string key; numeric strings are treated as the
// same page as the integer they spell, while the original form is kept for
// display.
type PageKey struct {
	raw     string
	num     int
	numeric bool
	text    bool
}

// IntKey returns a numeric page key.
func IntKey(n int) PageKey {
	return PageKey{raw: strconv.Itoa(n), num: n, numeric: true}
}

// StringKey returns a string page key. Numeric strings sort as integers.
func StringKey(s string) PageKey {
	s = strings.TrimSpace(s)
	k := PageKey{raw: s, text: true}
	if n, err := strconv.Atoi(s); err == nil {
		k.num = n
		k.numeric = true
	}
	return k
}

// IsZero reports whether k is the zero key.
func (k PageKey) IsZero() bool { return k.raw == "" }

// Int returns the numeric value of k, if any.
func (k PageKey) Int() (int, bool) { return k.num, k.numeric }

// String returns the key as it was reported by its source.
func (k PageKey) String() string { return k.raw }

// ID is the identity used for uniqueness: 3 and "3" share an ID.
func (k PageKey) ID() string {
	if k.numeric {
		return strconv.Itoa(k.num)
	}
	return "s:" + k.raw
}

// Less orders numeric keys ascending before non-numeric keys, which are
// ordered lexically.
func (k PageKey) Less(o PageKey) bool {
	switch {
	case k.numeric && o.numeric:
		if k.num != o.num {
			return k.num < o.num
		}
		return !k.text && o.text
	case k.numeric:
		return true
	case o.numeric:
		return false
	default:
		return k.raw < o.raw
	}
}

// MarshalJSON writes integer keys as JSON numbers and string keys as JSON
// strings.
func (k PageKey) MarshalJSON() ([]byte, error) {
	if k.numeric && !k.text {
		return []byte(strconv.Itoa(k.num)), nil
	}
	return json.Marshal(k.raw)
}

// UnmarshalJSON accepts a JSON number or string.
func (k *PageKey) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case float64:
		if n, ok := FloatKey(t); ok {
			*k = n
		} else {
			*k = StringKey(strings.TrimSpace(string(data)))
		}
	case string:
		*k = StringKey(t)
	case nil:
		*k = PageKey{}
	default:
		return fmt.Errorf("page key: unsupported JSON value %s", string(data))
	}
	return nil
}

// FloatKey converts a decoded JSON number into an integer key. Fractions
// and values outside the int32 range are not page numbers.
func FloatKey(f float64) (PageKey, bool) {
	if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return PageKey{}, false
	}
	return IntKey(int(f)), true
}
