package errors

import (
	"fmt"
	"strings"
)

// Append clubs together all provided errors. Nil values are ignored.
//
// If given error implements Unpack() []error method, it is flattened so that
// the returned collection contains all errors directly.
func Append(errs ...error) error {
	var res multiErr
	for _, e := range errs {
		if isNilErr(e) {
			continue
		}
		if u, ok := e.(unpacker); ok {
			res = append(res, u.Unpack()...)
		} else {
			res = append(res, e)
		}
	}
	switch len(res) {
	case 0:
		return nil
	case 1:
		return res[0]
	default:
		return res
	}
}

// multiErr represents a collection of errors. It reports the code of the
// first error it holds, consistent with a fail-fast approach.
type multiErr []error

func (errs multiErr) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d errors: %s", len(errs), strings.Join(msgs, "; "))
}

// Unpack returns all errors of this collection.
func (errs multiErr) Unpack() []error {
	return errs
}

// Code returns the code of the first error in the collection.
func (errs multiErr) Code() uint32 {
	return errCode(errs[0])
}
