// Package config loads runtime.Options from TOML or YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/sbl8/arraycore/runtime"
)

// Format names a configuration encoding.
type Format string

const (
	TOML Format = "toml"
	YAML Format = "yaml"
)

// file mirrors runtime.Options. Pointer fields distinguish an absent key
// from an explicit zero.
type file struct {
	InlineMaxBytes      *int  `toml:"inline_max_bytes" yaml:"inline_max_bytes"`
	CacheAlignThreshold *int  `toml:"cache_align_threshold" yaml:"cache_align_threshold"`
	MallocThreshold     *int  `toml:"malloc_threshold" yaml:"malloc_threshold"`
	MaxSizeClass        *int  `toml:"max_size_class" yaml:"max_size_class"`
	SmallAlign          *int  `toml:"small_align" yaml:"small_align"`
	CacheAlign          *int  `toml:"cache_align" yaml:"cache_align"`
	UseMmap             *bool `toml:"use_mmap" yaml:"use_mmap"`
}

// FormatOf picks the encoding from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return TOML, nil
	case ".yaml", ".yml":
		return YAML, nil
	}
	return "", fmt.Errorf("config %s: unknown extension %q", path, filepath.Ext(path))
}

// Load reads path and overlays it on runtime.DefaultOptions.
func Load(path string) (runtime.Options, error) {
	format, err := FormatOf(path)
	if err != nil {
		return runtime.Options{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return runtime.Options{}, fmt.Errorf("config: %w", err)
	}
	opts, err := Parse(data, format)
	if err != nil {
		return runtime.Options{}, fmt.Errorf("config %s: %w", path, err)
	}
	return opts, nil
}

// Parse decodes data in the given format, overlays it on
// runtime.DefaultOptions and validates the result. Unknown keys are errors.
func Parse(data []byte, format Format) (runtime.Options, error) {
	var f file
	switch format {
	case TOML:
		md, err := toml.Decode(string(data), &f)
		if err != nil {
			return runtime.Options{}, err
		}
		if undec := md.Undecoded(); len(undec) > 0 {
			return runtime.Options{}, fmt.Errorf("unknown key %q", undec[0].String())
		}
	case YAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			return runtime.Options{}, err
		}
	default:
		return runtime.Options{}, fmt.Errorf("unsupported format %q", format)
	}

	opts := runtime.DefaultOptions()
	f.apply(&opts)
	if err := opts.Validate(); err != nil {
		return runtime.Options{}, err
	}
	return opts, nil
}

func (f *file) apply(o *runtime.Options) {
	setInt(&o.InlineMaxBytes, f.InlineMaxBytes)
	setInt(&o.CacheAlignThreshold, f.CacheAlignThreshold)
	setInt(&o.MallocThreshold, f.MallocThreshold)
	setInt(&o.MaxSizeClass, f.MaxSizeClass)
	setInt(&o.SmallAlign, f.SmallAlign)
	setInt(&o.CacheAlign, f.CacheAlign)
	if f.UseMmap != nil {
		o.UseMmap = *f.UseMmap
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
