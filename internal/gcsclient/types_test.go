package gcsclient

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/api/googleapi"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrObjectNotExist, true},
		{ErrBucketNotExist, true},
		{fmt.Errorf("wrapped: %w", ErrObjectNotExist), true},
		{&googleapi.Error{Code: 404}, true},
		{fmt.Errorf("wrapped: %w", &googleapi.Error{Code: 404}), true},
		{&googleapi.Error{Code: 403}, false},
		{errors.New("other"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsNotFound(tt.err); got != tt.want {
			t.Errorf("IsNotFound(%v): expected %v, got %v", tt.err, tt.want, got)
		}
	}
}

func TestIsForbiddenAndConflict(t *testing.T) {
	if !IsForbidden(&googleapi.Error{Code: 403}) {
		t.Error("Expected 403 to be forbidden")
	}
	if IsForbidden(&googleapi.Error{Code: 404}) {
		t.Error("Expected 404 not to be forbidden")
	}
	if !IsConflict(fmt.Errorf("delete: %w", &googleapi.Error{Code: 409})) {
		t.Error("Expected wrapped 409 to be a conflict")
	}
	if IsConflict(nil) {
		t.Error("Expected nil not to be a conflict")
	}
}

func TestProject_Active(t *testing.T) {
	active := &Project{ID: "p", LifecycleState: "ACTIVE"}
	if !active.Active() {
		t.Error("Expected ACTIVE project to be active")
	}
	for _, state := range []string{"DELETE_REQUESTED", "DELETE_IN_PROGRESS", ""} {
		p := &Project{ID: "p", LifecycleState: state}
		if p.Active() {
			t.Errorf("Expected %q project not to be active", state)
		}
	}
}
