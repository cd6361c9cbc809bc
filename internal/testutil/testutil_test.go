package testutil

import (
	"errors"
	"math"
	"testing"
)

// recorder captures failures instead of failing the enclosing test.
type recorder struct {
	testing.TB
	failed bool
}

func (r *recorder) Helper()                       {}
func (r *recorder) Errorf(string, ...interface{}) { r.failed = true }
func (r *recorder) Fatalf(string, ...interface{}) { r.failed = true }
func (r *recorder) Fatal(...interface{})          { r.failed = true }

func TestAssertNoError(t *testing.T) {
	t.Parallel()
	AssertNoError(t, nil)

	r := &recorder{TB: t}
	AssertNoError(r, errors.New("boom"))
	if !r.failed {
		t.Error("AssertNoError did not fail on a non-nil error")
	}
}

func TestAssertError(t *testing.T) {
	t.Parallel()
	AssertError(t, errors.New("boom"))

	r := &recorder{TB: t}
	AssertError(r, nil)
	if !r.failed {
		t.Error("AssertError did not fail on nil")
	}
}

func TestAssertClose(t *testing.T) {
	t.Parallel()
	AssertClose(t, "ttc", 0.4000000001, 0.4, 1e-6)

	r := &recorder{TB: t}
	AssertClose(r, "ttc", 0.5, 0.4, 1e-6)
	if !r.failed {
		t.Error("AssertClose accepted a value outside tolerance")
	}

	r = &recorder{TB: t}
	AssertClose(r, "ttc", math.NaN(), 0.4, 1e-6)
	if !r.failed {
		t.Error("AssertClose accepted NaN")
	}
}

func TestAssertNaN(t *testing.T) {
	t.Parallel()
	AssertNaN(t, "estimate", math.NaN())

	r := &recorder{TB: t}
	AssertNaN(r, "estimate", 1.0)
	if !r.failed {
		t.Error("AssertNaN accepted a finite value")
	}
}
