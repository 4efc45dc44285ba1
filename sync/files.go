package sync

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

//go:embed defaults.yaml
var embeddedDefaults []byte

type ConfigFile struct {
	Name   string
	Reader io.Reader
	Length int
}

// DefaultsConfigFile returns the embedded defaults every config is layered on.
func DefaultsConfigFile() ConfigFile {
	return ConfigFile{
		Name:   "defaults.yaml",
		Reader: bytes.NewReader(embeddedDefaults),
		Length: len(embeddedDefaults),
	}
}

// MustFindConfigFile reads a config file from fs.
// A missing file is reported as a configuration error.
func MustFindConfigFile(fs billy.Filesystem, name string) (ConfigFile, error) {
	var result ConfigFile
	b, err := util.ReadFile(fs, name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return result, newError(CodeInvalidConfig, "config", fmt.Errorf("configuration file not found: %s", name))
		}
		return result, newError(CodeInvalidConfig, "config", fmt.Errorf("failed to read configuration file %s: %w", name, err))
	}
	result.Name = name
	result.Reader = bytes.NewReader(b)
	result.Length = len(b)
	return result, nil
}

// fileExists reports whether name exists in fs.
func fileExists(fs billy.Filesystem, name string) (bool, error) {
	_, err := fs.Stat(name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}
