// Package backends defines the contract shared by remote AI generation providers.
package backends

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Name identifies a registered backend implementation.
type Name string

const Kie Name = "kie"

// TaskState is the normalized provider task state.
type TaskState string

const (
	TaskPending    TaskState = "pending"
	TaskProcessing TaskState = "processing"
	TaskCompleted  TaskState = "completed"
	TaskFailed     TaskState = "failed"
)

// Options are the generation options forwarded to the provider.
type Options struct {
	AspectRatio string
	Mode        string
	CallbackURL string
}

type CreateTaskResult struct {
	TaskID string
}

type TaskStatus struct {
	State     TaskState
	OutputURL string
	Error     string
	Raw       json.RawMessage
}

// Backend submits generation tasks and reports their state.
type Backend interface {
	Name() Name
	CreateTask(ctx context.Context, prompt, model string, opts Options) (CreateTaskResult, error)
	GetTaskStatus(ctx context.Context, taskID string) (TaskStatus, error)
}

var (
	// ErrRateLimited marks provider throttling; callers back off instead of failing the user.
	ErrRateLimited = errors.New("backend rate limited")
	// ErrMalformedResponse marks a provider payload that does not match the contract.
	ErrMalformedResponse = errors.New("malformed backend response")
	ErrUnknownBackend    = errors.New("unknown backend")
	ErrNotConfigured     = errors.New("backend not configured")
)

// Error is returned by every backend call that fails.
type Error struct {
	Backend    Name
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: status %d: %s", e.Backend, e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Backend, e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err is a provider throttling response.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
