package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		code string
		want int
	}{
		{CodeInvalidInput, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeForbidden, http.StatusForbidden},
		{CodeResourceNotReady, http.StatusConflict},
		{CodeConflict, http.StatusConflict},
		{CodeUpstreamTimeout, http.StatusGatewayTimeout},
		{CodeUpstreamFailure, http.StatusBadGateway},
		{CodeInternal, http.StatusInternalServerError},
		{"made_up", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := (&Error{Code: tc.code}).Status(); got != tc.want {
			t.Fatalf("Status(%q): want=%d got=%d", tc.code, tc.want, got)
		}
	}
}

func TestFromUnwrapsThroughChain(t *testing.T) {
	inner := Newf(CodeTooLarge, "upload too big")
	wrapped := fmt.Errorf("handling upload: %w", inner)

	got := From(wrapped)
	if got.Code != CodeTooLarge {
		t.Fatalf("code: want=%q got=%q", CodeTooLarge, got.Code)
	}
}

func TestFromFallsBackToInternal(t *testing.T) {
	got := From(errors.New("plain failure"))
	if got.Code != CodeInternal {
		t.Fatalf("code: want=%q got=%q", CodeInternal, got.Code)
	}
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("outer: %w", Newf(CodeNoChapter, "no chapter"))
	if !Is(err, CodeNoChapter) {
		t.Fatalf("Is should match through wrapping")
	}
	if Is(err, CodeForbidden) {
		t.Fatalf("Is matched the wrong code")
	}
	if Is(errors.New("plain"), CodeInternal) {
		t.Fatalf("plain errors carry no code")
	}
}

func TestRetryable(t *testing.T) {
	for _, code := range []string{CodeUpstreamTimeout, CodeUpstreamFailure, CodeStorageFailure} {
		if !Retryable(Newf(code, "transient")) {
			t.Fatalf("%s should be retryable", code)
		}
	}
	for _, code := range []string{CodeInvalidInput, CodeNotFound, CodeConflict, CodeInternal} {
		if Retryable(Newf(code, "permanent")) {
			t.Fatalf("%s should not be retryable", code)
		}
	}
	if Retryable(errors.New("plain")) {
		t.Fatalf("plain errors are not retryable")
	}
}
