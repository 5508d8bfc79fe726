package errors

import (
	"errors"
	"fmt"
)

const (
	// SuccessCode declares that the processing was successful and no
	// error is returned.
	SuccessCode = 0

	// All unclassified errors that do not provide a code are clubbed
	// under an internal error code and a generic message instead of
	// detailed error string.
	internalCode uint32 = 1
	internalLog         = "internal error"
)

// Info returns the error code and the message that can be shown to a client.
// Any error that does not provide Code information is categorized as error
// with code 1.
// When not running in a debug mode all messages of errors that do not provide
// Code information are replaced with generic "internal error".
func Info(err error, debug bool) (uint32, string) {
	if isNilErr(err) {
		return SuccessCode, ""
	}

	// Only non-internal errors information can be exposed. Any error that
	// does not explicitly expose its state by providing a code must be
	// silenced.
	if code := errCode(err); code != internalCode {
		if debug {
			// Try to trigger full information formatting. This
			// might produce a stacktrace.
			return code, fmt.Sprintf("%+v", err)
		}
		return code, err.Error()
	}

	if debug {
		return internalCode, fmt.Sprintf("%+v", err)
	}
	return internalCode, internalLog
}

type coder interface {
	Code() uint32
}

// errCode test if given error contains a code and returns the value of
// it if available. This function is testing for the causer interface as well
// and unwraps the error.
func errCode(err error) uint32 {
	if isNilErr(err) {
		return SuccessCode
	}

	for {
		if c, ok := err.(coder); ok {
			return c.Code()
		}

		if c, ok := err.(causer); ok {
			err = c.Cause()
		} else {
			return internalCode
		}
	}
}

// Redact replace all errors that do not initialize with a registered error
// with a generic internal error instance. This function is supposed to hide
// implementation details errors and leave only those that the framework
// originates.
//
// This is a no-operation function when running in debug mode.
func Redact(err error, debug bool) error {
	if debug {
		return err
	}
	if ErrPanic.Is(err) {
		return errors.New(internalLog)
	}
	if errCode(err) == internalCode {
		return errors.New(internalLog)
	}
	return err
}
