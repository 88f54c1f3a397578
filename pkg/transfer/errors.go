package transfer

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"syscall"

	"github.com/pkg/sftp"

	"github.com/sdejongh/syncplan/pkg/models"
)

// ErrChecksumMismatch is returned when the destination digest differs after a copy
var ErrChecksumMismatch = errors.New("checksum mismatch after copy")

// errAborted stops the remaining entries once the destination is considered dead
var errAborted = errors.New("too many consecutive destination errors")

var transientErrors = []error{
	syscall.EPIPE,
	syscall.ETIMEDOUT,
	syscall.ECONNREFUSED,
	syscall.EHOSTDOWN,
	syscall.EHOSTUNREACH,
	syscall.ECONNABORTED,
	syscall.EAGAIN,
	syscall.ECONNRESET,
	io.ErrUnexpectedEOF,
	sftp.ErrSSHFxConnectionLost,
	context.DeadlineExceeded,
}

// IsTransient reports whether err is expected to go away on retry
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, fs.ErrPermission) || errors.Is(err, ErrChecksumMismatch) {
		return false
	}
	for _, target := range transientErrors {
		if errors.Is(err, target) {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) && temp.Temporary() {
		return true
	}
	return false
}

// isDestinationError reports failures of the destination as a whole, which
// count towards aborting the rest of the plan
func isDestinationError(err error) bool {
	var destErr *models.DestinationError
	if errors.As(err, &destErr) {
		return true
	}
	return errors.Is(err, syscall.ENOSPC) ||
		errors.Is(err, syscall.EROFS) ||
		errors.Is(err, sftp.ErrSSHFxNoConnection) ||
		errors.Is(err, sftp.ErrSSHFxConnectionLost)
}
