package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"slices"
	"strconv"
	"strings"
)

// Separators used between members, items and key/value pairs.
const (
	ItemSeparator = ", "
	KeySeparator  = ": "
)

// Options tunes the canonical encoder.
type Options struct {
	// ASCII escapes every non-ASCII character as \uXXXX (surrogate pairs
	// above the BMP). Verifiers that serialize with ensure_ascii semantics
	// need this; the default writes raw UTF-8.
	ASCII bool
}

// Canonicalize returns the canonical bytes of v with default options.
func Canonicalize(v any) ([]byte, error) {
	return CanonicalizeWith(v, Options{})
}

// CanonicalizeWith returns the canonical bytes of v.
//
// v is expected to be a JSON value tree built from nil, bool, string,
// json.Number, integer and float kinds, []any and map[string]any. Any
// other type is first normalised through encoding/json.
func CanonicalizeWith(v any, opts Options) ([]byte, error) {
	e := &encoder{opts: opts}
	if err := e.encode(v, "$"); err != nil {
		return nil, err
	}

	return e.buf.Bytes(), nil
}

// Decode parses data into a JSON value tree suitable for Canonicalize.
// Numbers are kept as json.Number so their literal text survives.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after value", ErrInvalidJSON)
	}

	return v, nil
}

type encoder struct {
	buf  bytes.Buffer
	opts Options
}

func (e *encoder) encode(v any, path string) error {
	switch val := v.(type) {
	case nil:
		e.buf.WriteString("null")
	case bool:
		if val {
			e.buf.WriteString("true")
		} else {
			e.buf.WriteString("false")
		}
	case string:
		return e.writeString(val, path)
	case json.Number:
		return e.writeNumber(string(val), path)
	case float64:
		return e.writeFloat(val, 64, path)
	case float32:
		return e.writeFloat(float64(val), 32, path)
	case int:
		e.buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int8:
		e.buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int16:
		e.buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int32:
		e.buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		e.buf.WriteString(strconv.FormatInt(val, 10))
	case uint:
		e.buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint8:
		e.buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint16:
		e.buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint32:
		e.buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint64:
		e.buf.WriteString(strconv.FormatUint(val, 10))
	case []any:
		return e.writeArray(val, path)
	case map[string]any:
		return e.writeObject(val, path)
	case json.RawMessage:
		decoded, err := Decode(val)
		if err != nil {
			return fmt.Errorf("%w: %v at %s", ErrCanonicalization, err, path)
		}
		return e.encode(decoded, path)
	default:
		normalised, err := normalise(val)
		if err != nil {
			return fmt.Errorf("%w: %v at %s", ErrCanonicalization, err, path)
		}
		return e.encode(normalised, path)
	}

	return nil
}

func (e *encoder) writeArray(items []any, path string) error {
	e.buf.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			e.buf.WriteString(ItemSeparator)
		}

		if err := e.encode(item, path+"["+strconv.Itoa(i)+"]"); err != nil {
			return err
		}
	}
	e.buf.WriteByte(']')

	return nil
}

func (e *encoder) writeObject(obj map[string]any, path string) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	// Byte order of UTF-8 equals code point order.
	slices.Sort(keys)

	e.buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			e.buf.WriteString(ItemSeparator)
		}

		if err := e.writeString(k, path); err != nil {
			return err
		}
		e.buf.WriteString(KeySeparator)

		if err := e.encode(obj[k], path+"."+k); err != nil {
			return err
		}
	}
	e.buf.WriteByte('}')

	return nil
}

// writeNumber renders a JSON number literal in normal form so that 1.50
// and 1.5, or 1e2 and 100, produce the same bytes. Integer literals stay
// exact at any size.
func (e *encoder) writeNumber(s string, path string) error {
	if !isNumber(s) {
		return fmt.Errorf("%w: invalid number %q at %s", ErrCanonicalization, s, path)
	}

	if !strings.ContainsAny(s, ".eE") {
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return fmt.Errorf("%w: invalid number %q at %s", ErrCanonicalization, s, path)
		}
		e.buf.WriteString(n.String())
		return nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("%w: number %q out of range at %s", ErrCanonicalization, s, path)
	}

	return e.writeFloat(f, 64, path)
}

// writeFloat renders f the way ECMAScript Number#toString does: plain
// decimal for magnitudes in [1e-6, 1e21), exponent form otherwise.
func (e *encoder) writeFloat(f float64, bits int, path string) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("%w: non-finite number at %s", ErrCanonicalization, path)
	}

	if f == 0 {
		e.buf.WriteByte('0')
		return nil
	}

	format := byte('f')
	abs := math.Abs(f)
	if bits == 64 && (abs < 1e-6 || abs >= 1e21) ||
		bits == 32 && (float32(abs) < 1e-6 || float32(abs) >= 1e21) {
		format = 'e'
	}

	b := strconv.AppendFloat(nil, f, format, -1, bits)
	if format == 'e' {
		// e-07 -> e-7
		n := len(b)
		if n >= 4 && b[n-4] == 'e' && b[n-3] == '-' && b[n-2] == '0' {
			b[n-2] = b[n-1]
			b = b[:n-1]
		}
	}

	e.buf.Write(b)

	return nil
}

// normalise converts arbitrary Go values into a plain JSON value tree.
func normalise(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	return Decode(raw)
}

// isNumber reports whether s matches the JSON number grammar.
func isNumber(s string) bool {
	i := 0
	if i < len(s) && s[i] == '-' {
		i++
	}

	switch {
	case i < len(s) && s[i] == '0':
		i++
	case i < len(s) && s[i] >= '1' && s[i] <= '9':
		for i < len(s) && isDigit(s[i]) {
			i++
		}
	default:
		return false
	}

	if i < len(s) && s[i] == '.' {
		i++
		if i >= len(s) || !isDigit(s[i]) {
			return false
		}
		for i < len(s) && isDigit(s[i]) {
			i++
		}
	}

	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		if i >= len(s) || !isDigit(s[i]) {
			return false
		}
		for i < len(s) && isDigit(s[i]) {
			i++
		}
	}

	return i == len(s)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
