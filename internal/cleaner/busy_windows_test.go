//go:build windows

package cleaner

var busyErrno = errSharingViolation
