package expreplay

import "errors"

// ExpReplayError implements errors unique to an experience replay
// buffer. Op names the operation that failed.
type ExpReplayError struct {
	Op  string
	Err error
}

// Error satisifes the error interface
func (e *ExpReplayError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error so that errors.Is can match the
// sentinel errors of this package
func (e *ExpReplayError) Unwrap() error {
	return e.Err
}

// ErrInvalidArgument is reported when an operation is given an argument
// it cannot accept: a nil experience, a non-positive capacity or batch
// size, mismatched batch and error lengths, and so on. It signals a
// programming error and should not be retried.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrEmptyBuffer is reported when sampling from a buffer that holds no
// experience.
var ErrEmptyBuffer = errors.New("buffer empty")

// newError returns an *ExpReplayError for operation op wrapping err
func newError(op string, err error) error {
	return &ExpReplayError{Op: op, Err: err}
}

// invalid returns an *ExpReplayError for operation op that wraps
// ErrInvalidArgument with a description of the offending argument
func invalid(op, msg string) error {
	return &ExpReplayError{Op: op, Err: &argumentError{msg: msg}}
}

// argumentError describes why an argument was rejected while still
// matching ErrInvalidArgument
type argumentError struct {
	msg string
}

func (a *argumentError) Error() string {
	return ErrInvalidArgument.Error() + ": " + a.msg
}

func (a *argumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// IsInvalidArgument returns whether or not an error reports that an
// operation was given an invalid argument.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsEmptyBuffer returns whether or not an error reports that a
// replay buffer is empty.
func IsEmptyBuffer(err error) bool {
	return errors.Is(err, ErrEmptyBuffer)
}
