package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Code:    ErrNotFound,
		Status:  404,
		Message: "prompt not found: p1",
	}

	expected := "NOT_FOUND: prompt not found: p1"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_ErrorWithCause(t *testing.T) {
	err := NewStoreFailure("list prompts", fmt.Errorf("disk I/O error"))

	expected := "STORE_FAILURE: list prompts failed: disk I/O error"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("title is required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "title is required" {
		t.Errorf("Message = %q, want %q", err.Message, "title is required")
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("collection", "c1")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Message != "collection not found: c1" {
		t.Errorf("Message = %q, want %q", err.Message, "collection not found: c1")
	}
	if err.Details["kind"] != "collection" {
		t.Errorf("Details[kind] = %v, want %q", err.Details["kind"], "collection")
	}
	if err.Details["id"] != "c1" {
		t.Errorf("Details[id] = %v, want %q", err.Details["id"], "c1")
	}
}

func TestNewFileNotFound(t *testing.T) {
	err := NewFileNotFound("/tmp/x.json")

	if err.Code != ErrFileNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrFileNotFound)
	}
	if err.Details["path"] != "/tmp/x.json" {
		t.Errorf("Details[path] = %v, want %q", err.Details["path"], "/tmp/x.json")
	}
}

func TestNewConflict(t *testing.T) {
	err := NewConflict("tag already exists")

	if err.Code != ErrConflict {
		t.Errorf("Code = %q, want %q", err.Code, ErrConflict)
	}
	if err.Status != 409 {
		t.Errorf("Status = %d, want 409", err.Status)
	}
}

func TestNewNotConfigured(t *testing.T) {
	err := NewNotConfigured("remote database is not configured")

	if err.Code != ErrNotConfigured {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotConfigured)
	}
	if err.Status != 412 {
		t.Errorf("Status = %d, want 412", err.Status)
	}
}

func TestNewMalformedImport(t *testing.T) {
	err := NewMalformedImport("prompt p1 references unknown collection c9")

	if err.Code != ErrMalformedImport {
		t.Errorf("Code = %q, want %q", err.Code, ErrMalformedImport)
	}
	if err.Status != 422 {
		t.Errorf("Status = %d, want 422", err.Status)
	}
}

func TestNewCancelled(t *testing.T) {
	err := NewCancelled("sync")

	if err.Code != ErrCancelled {
		t.Errorf("Code = %q, want %q", err.Code, ErrCancelled)
	}
	if err.Message != "sync cancelled" {
		t.Errorf("Message = %q, want %q", err.Message, "sync cancelled")
	}
}

func TestNewInternal(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"with error", fmt.Errorf("boom"), "boom"},
		{"nil error", nil, "internal error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := NewInternal(tc.err)
			if err.Code != ErrInternal {
				t.Errorf("Code = %q, want %q", err.Code, ErrInternal)
			}
			if err.Message != tc.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tc.wantMsg)
			}
		})
	}
}

func TestNewStoreFailure_Unwrap(t *testing.T) {
	cause := fmt.Errorf("database is locked")
	err := NewStoreFailure("add prompt", cause)

	if err.Status != 500 {
		t.Errorf("Status = %d, want 500", err.Status)
	}
	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}

func TestNewRemoteFailure(t *testing.T) {
	err := NewRemoteFailure("update prompt", 400, "22P02", "invalid input syntax")

	if err.Code != ErrRemoteFailure {
		t.Errorf("Code = %q, want %q", err.Code, ErrRemoteFailure)
	}
	if err.Status != 502 {
		t.Errorf("Status = %d, want 502", err.Status)
	}
	if err.Message != "update prompt: invalid input syntax" {
		t.Errorf("Message = %q, want %q", err.Message, "update prompt: invalid input syntax")
	}
	if err.Details["remote_status"] != 400 {
		t.Errorf("Details[remote_status] = %v, want 400", err.Details["remote_status"])
	}
	if err.Details["remote_code"] != "22P02" {
		t.Errorf("Details[remote_code] = %v, want %q", err.Details["remote_code"], "22P02")
	}
}

func TestNewRemoteFailure_EmptyMessage(t *testing.T) {
	err := NewRemoteFailure("list tags", 503, "", "")

	want := "list tags: remote service returned status 503"
	if err.Message != want {
		t.Errorf("Message = %q, want %q", err.Message, want)
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"matching code", NewNotFound("prompt", "x"), ErrNotFound, true},
		{"different code", NewNotFound("prompt", "x"), ErrConflict, false},
		{"wrapped", fmt.Errorf("context: %w", NewConflict("dup")), ErrConflict, true},
		{"plain error", fmt.Errorf("plain"), ErrInternal, false},
		{"nil", nil, ErrInternal, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Is(tc.err, tc.code); got != tc.want {
				t.Errorf("Is() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAs(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewMalformedImport("bad"))

	e, ok := As(wrapped)
	if !ok {
		t.Fatal("expected As to find *Error")
	}
	if e.Code != ErrMalformedImport {
		t.Errorf("Code = %q, want %q", e.Code, ErrMalformedImport)
	}

	if _, ok := As(fmt.Errorf("plain")); ok {
		t.Error("expected As to return false for a plain error")
	}
}
