package collapsecheck

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Format is the syntax of a schema document on disk.
type Format int

const (
	// FormatJSON is RFC 8259 JSON; numbers decode as json.Number.
	FormatJSON Format = iota
	// FormatYAML is YAML 1.2; mappings decode with string keys.
	FormatYAML
)

// String returns the lower-case format name.
func (f Format) String() string {
	if f == FormatYAML {
		return "yaml"
	}
	return "json"
}

// FormatForPath picks the document syntax from the file extension.
// Anything that is not .yaml or .yml is read as JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Numbers are kept as json.Number so integer annotations survive intact.
var jsonAPI = jsoniter.Config{
	UseNumber:              true,
	ValidateJsonRawMessage: true,
}.Froze()

// Decode parses data into generic values (map[string]any, []any, scalars).
func Decode(data []byte, f Format) (any, error) {
	if f == FormatYAML {
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, errors.Wrap(err, "invalid YAML")
		}
		return stringKeys(v), nil
	}

	if !utf8.Valid(data) {
		return nil, errors.New("invalid JSON: invalid UTF-8")
	}

	// The Decoder API reports a truncated document as success, so read
	// through an Iterator and treat io.EOF inside the value as an error.
	iter := jsonAPI.BorrowIterator(data)
	defer jsonAPI.ReturnIterator(iter)

	v := iter.Read()
	if iter.Error != nil {
		return nil, errors.Wrap(iter.Error, "invalid JSON")
	}
	iter.WhatIsNext()
	if iter.Error != io.EOF {
		return nil, errors.New("invalid JSON: trailing data")
	}
	// The iterator accepts some non-conforming numbers such as 01.
	if !json.Valid(data) {
		return nil, errors.New("invalid JSON: syntax error")
	}
	return v, nil
}

// stringKeys rewrites mappings decoded with non-string keys (yaml.v3 yields
// map[any]any for keys such as 200) into map[string]any, recursively.
func stringKeys(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, child := range x {
			x[k] = stringKeys(child)
		}
		return x
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, child := range x {
			out[fmt.Sprint(k)] = stringKeys(child)
		}
		return out
	case []any:
		for i, child := range x {
			x[i] = stringKeys(child)
		}
		return x
	default:
		return v
	}
}

// Loader reads schema documents from a file system.
type Loader struct {
	fs       afero.Fs
	keywords Keywords
	logger   log.Logger
}

// NewLoader returns a Loader reading from fs. A nil fs reads the OS file
// system; a nil logger discards log output.
func NewLoader(fs afero.Fs, kw Keywords, logger log.Logger) *Loader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Loader{fs: fs, keywords: kw, logger: logger}
}

// Load reads, decodes and parses the document at path.
func (l *Loader) Load(path string) (*Document, error) {
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}

	format := FormatForPath(path)
	root, err := Decode(data, format)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}

	doc, err := ParseDocument(root, l.keywords)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	doc.Source = path

	level.Debug(l.logger).Log("msg", "loaded schema document", "path", path, "format", format, "definitions", doc.Len(), "collapsed_annotation", doc.Collapsed != nil, "extensions", len(doc.Extensions), "other_members", len(doc.Unknown))
	return doc, nil
}
