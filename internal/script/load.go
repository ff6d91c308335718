package script

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/pubsub/internal/errors"
)

// Format identifies a script encoding.
type Format string

// Supported script encodings. JSON is decoded by the YAML parser.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFor returns the encoding implied by path's extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", errors.Wrapf(errors.ErrUnsupportedFormat, "%s", path)
	}
}

// Parse decodes a script. Unknown fields are rejected.
func Parse(format Format, data []byte) (*Script, error) {
	var s Script
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil && err != io.EOF {
			return nil, errors.NewValidationError("cannot decode script").WithCause(err)
		}
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
		if err := dec.Decode(&s); err != nil {
			return nil, errors.NewValidationError("cannot decode script").WithCause(err)
		}
	default:
		return nil, errors.Wrapf(errors.ErrUnsupportedFormat, "%q", format)
	}
	return &s, nil
}

// Loader reads scripts from a filesystem.
type Loader struct {
	fs afero.Fs
}

// NewLoader returns a Loader reading from fs, or from the OS filesystem when
// fs is nil.
func NewLoader(fs afero.Fs) *Loader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Loader{fs: fs}
}

// Load reads, decodes and validates the script at path. A script without a
// name is named after its file.
func (l *Loader) Load(path string) (*Script, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read script %s", path)
	}

	s, err := Parse(format, data)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	s.Path = path
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if err := Validate(s); err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return s, nil
}
