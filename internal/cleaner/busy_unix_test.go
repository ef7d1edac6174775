//go:build !windows

package cleaner

import "syscall"

var busyErrno = syscall.EBUSY
