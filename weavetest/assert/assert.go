// Package assert provides the small set of test assertions used across
// the ledger packages. Failures stop the test immediately.
package assert

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/iov-one/weave-escrow/errors"
)

// Tester is the subset of testing.TB the assertions need.
type Tester interface {
	Helper()
	Fatal(...interface{})
	Fatalf(string, ...interface{})
}

// Nil fails the test if value is not nil.
func Nil(t Tester, value interface{}) {
	t.Helper()
	if !isNil(value) {
		// %+v prints the stack of wrapped errors.
		t.Fatalf("want a nil value, got %+v", value)
	}
}

func isNil(value interface{}) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return v.IsNil()
	}
	return false
}

// Equal fails the test if want and got are not deeply equal.
func Equal(t Tester, want, got interface{}) {
	t.Helper()
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("values not equal\nwant %T %v\n got %T %v", want, want, got, got)
	}
}

// EqualBytes compares two byte slices, treating nil and empty as equal.
func EqualBytes(t Tester, want, got []byte) {
	t.Helper()
	if !bytes.Equal(want, got) {
		t.Fatalf("bytes not equal\nwant %X\n got %X", want, got)
	}
}

// Panics fails the test unless fn panics.
func Panics(t Tester, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatal("panic expected")
		}
	}()
	fn()
}

// IsErr fails the test unless got matches want. A nil want only matches
// a nil got.
func IsErr(t Tester, want, got error) {
	t.Helper()
	if want == got {
		return
	}
	if want, ok := want.(interface{ Is(error) bool }); ok && want.Is(got) {
		return
	}
	t.Fatalf("want %q, got %+v", want, got)
}

// FieldError checks that err carries exactly one error for fieldName and
// that it matches want. Pass a nil want to assert that the field is clean.
func FieldError(t testing.TB, err error, fieldName string, want *errors.Error) {
	t.Helper()

	errs := errors.FieldErrors(err, fieldName)
	if want == nil {
		if len(errs) != 0 {
			t.Fatalf("want no error for %q, got %q", fieldName, errs)
		}
		return
	}
	switch len(errs) {
	case 0:
		t.Fatalf("no error for %q", fieldName)
	case 1:
		if !want.Is(errs[0]) {
			t.Fatalf("want %q for %q, got %q", want, fieldName, errs[0])
		}
	default:
		t.Fatalf("want one error for %q, got %d: %q", fieldName, len(errs), errs)
	}
}
