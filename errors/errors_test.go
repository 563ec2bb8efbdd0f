package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestError(t *testing.T) {
	err := &Error{
		Err:     ErrConflict,
		Message: "quota exceeded",
		Detail:  "52 GB / 50 GB",
	}

	errStr := err.Error()
	if errStr != "quota exceeded: 52 GB / 50 GB" {
		t.Errorf("unexpected error string %q", errStr)
	}

	if !errors.Is(err, ErrConflict) {
		t.Error("expected error to unwrap to ErrConflict")
	}
}

func TestError_NoDetail(t *testing.T) {
	err := &Error{Err: ErrNotFound, Message: "job abc not found"}

	if err.Error() != "job abc not found" {
		t.Errorf("unexpected error string %q", err.Error())
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"not found", NotFound("file %d not found", 7), ErrNotFound},
		{"validation", Validation("empty segment text"), ErrValidation},
		{"conflict", Conflict("duplicate hash"), ErrConflict},
		{"integrity", Integrity("pending -> completed"), ErrIntegrity},
		{"internal", Internal(errors.New("disk full"), "copy failed"), ErrInternal},
		{"busy", Busy(errors.New("database is locked"), "commit"), ErrBusy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("expected %v to match %v", tt.err, tt.want)
			}
		})
	}
}

func TestInternal_NilCause(t *testing.T) {
	if err := Internal(nil, "should be nil"); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestInternal_PreservesClassified(t *testing.T) {
	inner := Conflict("quota exceeded")
	wrapped := Internal(inner, "upload failed")

	if !errors.Is(wrapped, ErrConflict) {
		t.Error("expected conflict kind to survive Internal wrapping")
	}
	if errors.Is(wrapped, ErrInternal) {
		t.Error("expected classified error not to be re-tagged internal")
	}
}

func TestInternal_WrappedChain(t *testing.T) {
	inner := NotFound("version 9 not found")
	outer := Internal(fmt.Errorf("get transcript: %w", inner), "read failed")

	if !errors.Is(outer, ErrNotFound) {
		t.Error("expected not-found kind to survive fmt wrapping")
	}
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		pred func(error) bool
		want bool
	}{
		{"not found matches", NotFound("x"), IsNotFound, true},
		{"not found mismatch", Conflict("x"), IsNotFound, false},
		{"validation matches", Validation("x"), IsValidation, true},
		{"conflict matches", Conflict("x"), IsConflict, true},
		{"integrity matches", Integrity("x"), IsIntegrity, true},
		{"internal matches", Internal(errors.New("x"), "y"), IsInternal, true},
		{"busy matches", Busy(nil, "x"), IsBusy, true},
		{"nil error", nil, IsConflict, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pred(tt.err); got != tt.want {
				t.Errorf("predicate = %v, want %v", got, tt.want)
			}
		})
	}
}
