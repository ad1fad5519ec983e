package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies one of the supported value types for configuration fields
// and measurement type hints.
type Kind int

// Supported kinds. Measurement field hints are restricted to the primitive
// kinds (KindBool, KindFloat, KindInt, KindString); KindArray and KindHash
// appear only in entry and backend field tables.
const (
	KindArray Kind = iota
	KindBool
	KindFloat
	KindHash
	KindInt
	KindString
)

// kindNames maps kinds to their configuration-file spelling.
var kindNames = map[Kind]string{
	KindArray:  "array",
	KindBool:   "bool",
	KindFloat:  "float",
	KindHash:   "hash",
	KindInt:    "int",
	KindString: "string",
}

// String returns the configuration-file spelling of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind converts a type-hint string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "array":
		return KindArray, nil
	case "bool":
		return KindBool, nil
	case "float":
		return KindFloat, nil
	case "hash":
		return KindHash, nil
	case "int":
		return KindInt, nil
	case "string":
		return KindString, nil
	}
	return 0, fmt.Errorf("%w: unknown type hint %q", ErrConversion, s)
}

// ParsePrimitiveKind converts a type-hint string into a Kind, accepting only
// the primitive kinds allowed in measurement sections.
func ParsePrimitiveKind(s string) (Kind, error) {
	switch s {
	case "bool":
		return KindBool, nil
	case "float":
		return KindFloat, nil
	case "int":
		return KindInt, nil
	case "string":
		return KindString, nil
	}
	return 0, fmt.Errorf("%w: invalid measurement type hint %q", ErrConversion, s)
}

// parseBool recognises the boolean literal forms. The second return value
// reports whether the input was a boolean at all; an unrecognised value is
// not an error here, it only signals "not boolean" to the caller.
func parseBool(value string) (parsed, ok bool) {
	switch strings.ToLower(value) {
	case "yes", "1", "true":
		return true, true
	case "no", "0", "false":
		return false, true
	}
	return false, false
}

// parseHash splits a space-separated series of key=value tokens into a map.
// Each token splits on its first '='; a token without one fails the whole
// conversion.
func parseHash(value string) (map[string]string, error) {
	pairs := make(map[string]string)
	for _, token := range strings.Fields(value) {
		k, v, found := strings.Cut(token, "=")
		if !found {
			return nil, fmt.Errorf("%w: invalid option %q for key-value pair: %s",
				ErrConversion, token, value)
		}
		pairs[k] = strings.TrimSpace(v)
	}
	return pairs, nil
}

// CoerceHinted converts a raw text value to the type named by hint. Unlike
// CoerceInferred, any failure is an error.
//
// Conversions by kind:
//   - array: whitespace-split into a sequence of strings
//   - hash: whitespace-split, then each token split on its first '='
//   - int: truncated through float parsing when a decimal point is present
//   - bool: yes/1/true and no/0/false, case-insensitive
//   - float: parsed directly
//   - string: identity
func CoerceHinted(value string, hint Kind) (any, error) {
	value = strings.TrimSpace(value)
	switch hint {
	case KindArray:
		fields := strings.Fields(value)
		if fields == nil {
			fields = []string{}
		}
		return fields, nil
	case KindHash:
		return parseHash(value)
	case KindInt:
		if strings.Contains(value, ".") {
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not an int", ErrConversion, value)
			}
			return int64(f), nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an int", ErrConversion, value)
		}
		return n, nil
	case KindBool:
		b, ok := parseBool(value)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a bool", ErrConversion, value)
		}
		return b, nil
	case KindFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a float", ErrConversion, value)
		}
		return f, nil
	case KindString:
		return value, nil
	}
	return nil, fmt.Errorf("%w: unsupported type hint %v", ErrConversion, hint)
}

// CoerceInferred converts a raw text value without a type hint. Inference
// tries a boolean literal first, then a number (float when a decimal point
// is present, integer otherwise). When nothing matches, the original value
// is returned unchanged rather than an error; this asymmetry with
// CoerceHinted is deliberate and callers rely on it.
func CoerceInferred(value string) any {
	value = strings.TrimSpace(value)
	if b, ok := parseBool(value); ok {
		return b
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return value
	}
	if strings.Contains(value, ".") {
		return f
	}
	// Integral truncation mirrors the int path; values that cannot be held
	// in an int64 fall back to the original string.
	if math.IsNaN(f) || math.IsInf(f, 0) ||
		f < math.MinInt64 || f >= math.MaxInt64 {
		return value
	}
	return int64(f)
}

// DefaultValue returns the zero value for the given kind.
func DefaultValue(hint Kind) (any, error) {
	switch hint {
	case KindArray:
		return []string{}, nil
	case KindHash:
		return map[string]string{}, nil
	case KindInt:
		return int64(0), nil
	case KindBool:
		return false, nil
	case KindFloat:
		return float64(0), nil
	case KindString:
		return "", nil
	}
	return nil, fmt.Errorf("%w: unsupported type hint %v", ErrConversion, hint)
}
