package track

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a track description file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

var ErrUnknownFormat = errors.New("unknown track file format")

// FormatFromPath derives the file format from the extension of path.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", errors.Wrap(ErrUnknownFormat, path)
	}
}

// DecodeData parses a track description without sampling it.
func DecodeData(r io.Reader, format Format) (Data, error) {
	var data Data
	raw, err := io.ReadAll(r)
	if err != nil {
		return data, errors.Wrap(err, "reading track description")
	}
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&data); err != nil {
			return data, errors.Wrap(err, "decoding json track")
		}
	case FormatYAML:
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return data, errors.Wrap(err, "decoding yaml track")
		}
	default:
		return data, errors.Wrapf(ErrUnknownFormat, "%q", format)
	}
	return data, nil
}

// Decode parses and samples a track description.
func Decode(r io.Reader, format Format, metersPerPixel float64) (*Track, error) {
	data, err := DecodeData(r, format)
	if err != nil {
		return nil, err
	}
	t, err := New(data, metersPerPixel)
	if err != nil {
		return nil, errors.Wrapf(err, "track %q", data.Name)
	}
	return t, nil
}

// Load reads and samples the track description at path. Tracks without a
// name are named after their file.
func Load(path string, metersPerPixel float64) (*Track, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening track file")
	}
	defer f.Close()

	data, err := DecodeData(f, format)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	if data.Name == "" {
		data.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	t, err := New(data, metersPerPixel)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return t, nil
}
