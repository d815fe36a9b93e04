// Package canonicaljson encodes values as RFC 8785 (JCS) canonical JSON.
//
// Verification reports are written through this package so the same inputs
// always produce the same bytes, which keeps CI diffs and golden files stable.
package canonicaljson

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var api = jsoniter.Config{UseNumber: true}.Froze()

// Marshal returns the canonical encoding of v.
//
// v may be raw JSON ([]byte or json.RawMessage) or any value jsoniter can
// marshal. Object members are ordered by UTF-16 code units, arrays keep
// their order, numbers use the ECMAScript shortest form and output carries
// no insignificant whitespace.
func Marshal(v any) ([]byte, error) {
	generic, err := toGeneric(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encode(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write encodes v canonically to w followed by a newline.
func Write(w io.Writer, v any) error {
	b, err := Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

func toGeneric(v any) (any, error) {
	var raw []byte
	switch x := v.(type) {
	case json.RawMessage:
		raw = x
	case []byte:
		raw = x
	default:
		b, err := api.Marshal(v)
		if err != nil {
			return nil, errors.Wrap(err, "canonicaljson: marshal")
		}
		raw = b
	}

	iter := api.BorrowIterator(raw)
	defer api.ReturnIterator(iter)
	out := iter.Read()
	if iter.Error != nil {
		return nil, errors.Wrap(iter.Error, "canonicaljson: invalid JSON")
	}
	iter.WhatIsNext()
	if iter.Error != io.EOF {
		return nil, errors.New("canonicaljson: invalid JSON: trailing data")
	}
	return out, nil
}

func encode(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(x))
	case string:
		encodeString(buf, x)
	case json.Number:
		f, err := strconv.ParseFloat(string(x), 64)
		if err != nil {
			return errors.Wrapf(err, "canonicaljson: number %q", string(x))
		}
		s, err := formatNumber(f)
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case float64:
		s, err := formatNumber(x)
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case []any:
		buf.WriteByte('[')
		for i, item := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		return encodeObject(buf, x)
	default:
		return errors.Errorf("canonicaljson: unsupported value of type %T", v)
	}
	return nil
}

func encodeObject(buf *bytes.Buffer, obj map[string]any) error {
	type member struct {
		name  string
		units []uint16
	}
	members := make([]member, 0, len(obj))
	for k := range obj {
		members = append(members, member{name: k, units: utf16.Encode([]rune(k))})
	}
	sort.Slice(members, func(i, j int) bool {
		return lessUTF16(members[i].units, members[j].units)
	})

	buf.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodeString(buf, m.name)
		buf.WriteByte(':')
		if err := encode(buf, obj[m.name]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func lessUTF16(a, b []uint16) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// encodeString follows RFC 8785 §3.2.2.2: the five shorthand escapes,
// \u00xx for other control characters, everything else verbatim.
func encodeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			buf.WriteString(`\\`)
		case '"':
			buf.WriteString(`\"`)
		case '\b':
			buf.WriteString(`\b`)
		case '\t':
			buf.WriteString(`\t`)
		case '\n':
			buf.WriteString(`\n`)
		case '\f':
			buf.WriteString(`\f`)
		case '\r':
			buf.WriteString(`\r`)
		default:
			if r <= 0x1f {
				buf.WriteString(`\u00`)
				buf.WriteString(hex.EncodeToString([]byte{byte(r)}))
				continue
			}
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
}

func formatNumber(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", errors.New("canonicaljson: NaN and Infinity are not valid JSON numbers")
	}
	if f == 0 {
		return "0", nil
	}
	if abs := math.Abs(f); abs >= 1e21 || abs < 1e-6 {
		return trimExponent(strconv.FormatFloat(f, 'e', -1, 64)), nil
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

// trimExponent rewrites Go's "1e-07" as ECMAScript's "1e-7".
func trimExponent(s string) string {
	i := strings.IndexByte(s, 'e')
	if i < 0 || i+2 >= len(s) {
		return s
	}
	mantissa, sign, exp := s[:i+1], s[i+1], strings.TrimLeft(s[i+2:], "0")
	if exp == "" {
		exp = "0"
	}
	return mantissa + string(sign) + exp
}
