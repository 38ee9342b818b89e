package app

import (
	"net/url"
	"os"

	"github.com/pkg/errors"
)

// LoadFile reads the file referenced by a config value, which is either a
// plain filesystem path or a file:// URL
func LoadFile(location string) ([]byte, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid file location %s", location)
	}

	switch u.Scheme {
	case "", "file":
	default:
		return nil, errors.Errorf("unsupported file scheme %q", u.Scheme)
	}

	path := u.Path
	if len(path) == 0 {
		path = u.Opaque
	}
	if len(path) == 0 {
		return nil, errors.New("file path is empty")
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return contents, nil
}
