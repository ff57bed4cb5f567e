package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationError_IsAndMessage(t *testing.T) {
	t.Parallel()

	var v ValidationError
	if v.OrNil() != nil {
		t.Fatalf("empty validation error must collapse to nil")
	}

	v.Add("name", "required")
	v.Add("frequency", "must be between 1 and 3650")
	v.Add("name", "ignored")

	err := fmt.Errorf("create connection: %w", v.OrNil())
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("want *ValidationError in chain")
	}
	if ve.Fields["name"] != "required" {
		t.Fatalf("first message must win, got %q", ve.Fields["name"])
	}
	want := "validation failed: frequency: must be between 1 and 3650; name: required"
	if ve.Error() != want {
		t.Fatalf("message mismatch:\n got %q\nwant %q", ve.Error(), want)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("must not match unrelated sentinel")
	}
}
