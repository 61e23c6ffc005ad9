package test

import (
	"reflect"
	"strings"
	"testing"
)

func MustBe(t *testing.T, thing1, thing2 interface{}, context ...string) {
	t.Helper()
	var ctx string
	if len(context) == 0 {
		ctx = ""
	} else {
		ctx = context[0] + ": "
	}
	if !reflect.DeepEqual(thing1, thing2) {
		t.Fatalf("%v'%#v' != '%#v'", ctx, thing1, thing2)
	}
}

func ErrNil(t *testing.T, err error, ctx string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%v: %v", ctx, err)
	}
}

// ErrContains fails unless err is non-nil and its message contains sub.
func ErrContains(t *testing.T, err error, sub string) {
	t.Helper()
	if err == nil {
		t.Fatalf("nil err, expected %s", sub)
	}
	if !strings.Contains(err.Error(), sub) {
		t.Fatalf("unmatched errs exp/got\n%s\n%v", sub, err)
	}
}
