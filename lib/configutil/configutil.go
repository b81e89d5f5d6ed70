// Package configutil reads json5 configuration files with optional
// local overrides, so checked-in defaults and per-machine credentials
// can live side by side.
package configutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// ReadConfig reads `name` (which must carry a file extension) and, when
// present, merges `<name>.local.<ext>` over it. Returns os.ErrNotExist
// when neither file exists.
func ReadConfig[T any](name string) (T, error) {
	var out T

	found := false
	base, err := readInto(name, &out)
	if err != nil {
		return out, err
	}
	found = found || base

	dir := filepath.Dir(name)
	stem, ext, ok := strings.Cut(filepath.Base(name), ".")
	if !ok {
		return out, fmt.Errorf("config name %q has no extension", name)
	}
	localName := filepath.Join(dir, fmt.Sprintf("%s.local.%s", stem, ext))

	var local T
	hasLocal, err := readInto(localName, &local)
	if err != nil {
		return out, err
	}
	if hasLocal {
		if err := mergo.Merge(&out, local, mergo.WithOverride); err != nil {
			return out, err
		}
		slog.Info("merging config with local overrides", "local", localName)
		found = true
	}

	if !found {
		return out, os.ErrNotExist
	}
	return out, nil
}

// ReadRecursively walks up from the working directory until it finds a
// configuration file matching name.
func ReadRecursively[T any](name string) (T, error) {
	var zero T

	current, err := os.Getwd()
	if err != nil {
		return zero, err
	}
	for {
		config, err := ReadConfig[T](filepath.Join(current, name))
		if !os.IsNotExist(err) {
			return config, err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return zero, os.ErrNotExist
		}
		current = parent
	}
}

func readInto(path string, out any) (bool, error) {
	contents, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(contents) == 0 {
		return false, nil
	}
	return true, json5.Unmarshal(contents, out)
}
