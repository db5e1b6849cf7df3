//go:build windows

package cli

import "errors"

// AcquirePIDFile is only supported where flock(2) is available.
func AcquirePIDFile(path string) (release func(), err error) {
	if path == "" {
		return func() {}, nil
	}
	return nil, errors.New("--pid-file is not supported on windows")
}
