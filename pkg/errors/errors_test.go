package errors_test

import (
	"errors"
	"strings"
	"testing"

	pkgerrors "agentbox/pkg/errors"
)

func TestNewCarriesCodeAndMessage(t *testing.T) {
	err := pkgerrors.New(pkgerrors.HelperNotFound)
	if got := pkgerrors.GetCode(err); got != pkgerrors.HelperNotFound {
		t.Fatalf("unexpected code: %v", got)
	}
	if err.Error() != pkgerrors.HelperNotFound.Message() {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	if err.Stack == "" {
		t.Fatalf("expected stack capture")
	}
}

func TestWrapPreservesUnderlying(t *testing.T) {
	base := errors.New("disk exploded")
	err := pkgerrors.Wrap(base, pkgerrors.SandboxFailure)
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to unwrap to base")
	}
	if got := pkgerrors.GetCode(err); got != pkgerrors.SandboxFailure {
		t.Fatalf("unexpected code: %v", got)
	}
	if pkgerrors.Wrap(nil, pkgerrors.SandboxFailure) != nil {
		t.Fatalf("expected nil wrap of nil")
	}
}

func TestWrapfFormatsMessage(t *testing.T) {
	base := errors.New("no such file")
	err := pkgerrors.Wrapf(base, pkgerrors.ProvisionFailed, "install launcher %s failed", "x")
	if err.Error() != "install launcher x failed" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}

func TestWithOutputAppendsDiagnostic(t *testing.T) {
	err := pkgerrors.New(pkgerrors.ChildExitNonzero).WithOutput("  Traceback: boom  ")
	if !strings.Contains(err.Error(), "Traceback: boom") {
		t.Fatalf("expected output in message, got %s", err.Error())
	}
	if err.Details["output"] != "Traceback: boom" {
		t.Fatalf("expected trimmed output detail, got %v", err.Details["output"])
	}
	plain := pkgerrors.New(pkgerrors.ChildExitNonzero)
	if plain.WithOutput("   ").Error() != pkgerrors.ChildExitNonzero.Message() {
		t.Fatalf("blank output must not change the message")
	}
}

func TestGetCodeDefaults(t *testing.T) {
	if got := pkgerrors.GetCode(nil); got != pkgerrors.Success {
		t.Fatalf("nil should map to Success, got %v", got)
	}
	if got := pkgerrors.GetCode(errors.New("plain")); got != pkgerrors.Internal {
		t.Fatalf("foreign error should map to Internal, got %v", got)
	}
}

func TestSandboxFamily(t *testing.T) {
	cases := []struct {
		name string
		code pkgerrors.ErrorCode
		want bool
	}{
		{name: "pipeline failure", code: pkgerrors.SandboxFailure, want: true},
		{name: "child exception", code: pkgerrors.ChildException, want: true},
		{name: "resource limit", code: pkgerrors.ResourceLimitExceeded, want: true},
		{name: "security violation", code: pkgerrors.SecurityViolation, want: true},
		{name: "unsupported host", code: pkgerrors.UnsupportedHost, want: true},
		{name: "validation", code: pkgerrors.ValidationFailed, want: false},
		{name: "internal", code: pkgerrors.Internal, want: false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.code.InSandboxFamily(); got != tc.want {
				t.Fatalf("InSandboxFamily(%d) = %v, want %v", tc.code, got, tc.want)
			}
			err := pkgerrors.New(tc.code)
			if got := pkgerrors.IsSandboxError(err); got != tc.want {
				t.Fatalf("IsSandboxError = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestConvenienceConstructors(t *testing.T) {
	err := pkgerrors.ValidationError("isolation", "unknown mode")
	if !pkgerrors.Is(err, pkgerrors.ValidationFailed) {
		t.Fatalf("expected ValidationFailed")
	}
	if err.Details["field"] != "isolation" {
		t.Fatalf("expected field detail, got %v", err.Details["field"])
	}

	helperErr := pkgerrors.HelperNotFoundError("bwrap")
	if !strings.Contains(helperErr.Error(), "bwrap is not installed") {
		t.Fatalf("unexpected helper message: %s", helperErr.Error())
	}

	secErr := pkgerrors.SecurityViolationError("/etc/shadow")
	if !pkgerrors.IsSecurityViolation(secErr) {
		t.Fatalf("expected security violation")
	}
	if secErr.Details["path"] != "/etc/shadow" {
		t.Fatalf("expected path detail, got %v", secErr.Details["path"])
	}

	limitErr := pkgerrors.ResourceLimitError("memory floor %d", 42)
	if !pkgerrors.IsResourceLimit(limitErr) {
		t.Fatalf("expected resource limit error")
	}
}
