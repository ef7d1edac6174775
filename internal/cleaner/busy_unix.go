//go:build !windows

package cleaner

import (
	"errors"
	"syscall"
)

// isBusy reports errors caused by a file held by another process.
func isBusy(err error) bool {
	return errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.ETXTBSY)
}
