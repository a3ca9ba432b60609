package hreq

import (
	"io"
	"os"
	"syscall"

	"github.com/pkg/errors"
)

type (
	// BodyError is implemented by error kinds produced by this package.
	BodyError interface {
		BodyError() string
	}

	// ErrIo wraps transport level failures surfaced by a body source.
	ErrIo string
)

const (
	// ErrWouldBlock may be returned by a synchronous source to signal that a
	// read would block. Doing so violates the BodyFromReader contract and
	// makes the body reader panic; use BodyFromAsyncReader instead.
	ErrWouldBlock = ErrIo(`Read would block`)
)

func (e ErrIo) BodyError() string {
	return `I/O error`
}

func (e ErrIo) Error() string {
	return e.BodyError() + `: ` + string(e)
}

// IsTimeout reports whether err is a read deadline expiry.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	cause := errors.Cause(err)
	if errors.Is(cause, os.ErrDeadlineExceeded) || errors.Is(cause, syscall.ETIMEDOUT) {
		return true
	}
	if to, ok := cause.(interface{ Timeout() bool }); ok {
		return to.Timeout()
	}
	return false
}

// IsRetryable classifies failures after which re-issuing the whole request
// is considered safe by the retry layer above this package.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	cause := errors.Cause(err)
	for _, errno := range []syscall.Errno{
		syscall.EPIPE,
		syscall.ECONNABORTED,
		syscall.ECONNRESET,
		syscall.EINTR,
	} {
		if errors.Is(cause, errno) {
			return true
		}
	}
	return errors.Is(cause, io.ErrUnexpectedEOF)
}

func isWouldBlock(err error) bool {
	cause := errors.Cause(err)
	return errors.Is(cause, ErrWouldBlock) ||
		errors.Is(cause, syscall.EAGAIN) ||
		errors.Is(cause, syscall.EWOULDBLOCK)
}
