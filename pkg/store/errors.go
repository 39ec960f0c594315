// pkg/store/errors.go

package store

import (
	"context"
	stderrors "errors"
	"syscall"

	"github.com/pkg/errors"
)

// Error kinds mirror the errno a character device would report for the
// same condition. Match them with errors.Is; the concrete values may be
// wrapped with call-site context.
var (
	ErrNoSpace         = errors.New("no space left on device")
	ErrFault           = errors.New("bad transfer")
	ErrBusy            = errors.New("device busy")
	ErrInterrupted     = errors.New("interrupted")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Errno maps an error from the store or device layer to the errno
// reported through the FUSE binding. Unknown errors become EIO.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var eno syscall.Errno
	if stderrors.As(err, &eno) {
		return eno
	}
	switch {
	case stderrors.Is(err, ErrNoSpace):
		return syscall.ENOSPC
	case stderrors.Is(err, ErrFault):
		return syscall.EFAULT
	case stderrors.Is(err, ErrBusy):
		return syscall.EBUSY
	case stderrors.Is(err, ErrInterrupted):
		return syscall.EINTR
	case stderrors.Is(err, ErrInvalidArgument):
		return syscall.EINVAL
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return syscall.EINTR
	default:
		return syscall.EIO
	}
}
