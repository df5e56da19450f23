package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "WithoutCause",
			err:  New(ErrCodeCyclicFeatures, "feature %q references itself", "tls"),
			want: `CYCLIC_FEATURE_GRAPH: feature "tls" references itself`,
		},
		{
			name: "WithCause",
			err:  Wrap(ErrCodeManifestIO, errors.New("permission denied"), "rewriting manifest in %s", "/tmp/x"),
			want: "MANIFEST_IO: rewriting manifest in /tmp/x: permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := New(ErrCodePathTraversal, "entry escapes staging root")

	if !Is(err, ErrCodePathTraversal) {
		t.Error("Is() = false for matching code")
	}
	if Is(err, ErrCodeSuspiciousContent) {
		t.Error("Is() = true for non-matching code")
	}
	if Is(errors.New("plain"), ErrCodePathTraversal) {
		t.Error("Is() = true for plain error")
	}

	// Codes survive fmt wrapping.
	wrapped := fmt.Errorf("extract: %w", err)
	if !Is(wrapped, ErrCodePathTraversal) {
		t.Error("Is() = false after fmt.Errorf wrapping")
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(New(ErrCodeUnresolvedFeature, "x")); got != ErrCodeUnresolvedFeature {
		t.Errorf("GetCode() = %q, want %q", got, ErrCodeUnresolvedFeature)
	}
	if got := GetCode(errors.New("plain")); got != "" {
		t.Errorf("GetCode() = %q for plain error, want empty", got)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(ErrCodeManifestIO, cause, "writing Cargo.toml")
	if !errors.Is(err, cause) {
		t.Error("errors.Is() cannot reach wrapped cause")
	}
}

func TestUserMessage(t *testing.T) {
	err := New(ErrCodeMalformedArchive, "archive has 2 top-level entries")
	if got := UserMessage(err); got != "archive has 2 top-level entries" {
		t.Errorf("UserMessage() = %q", got)
	}
	if got := UserMessage(errors.New("plain")); got != "plain" {
		t.Errorf("UserMessage() = %q for plain error", got)
	}
}
