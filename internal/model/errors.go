package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Input errors are fatal to the job and never retried.
var (
	ErrUnreadable      = errors.New("file unreadable")
	ErrCorrupted       = errors.New("file corrupted")
	ErrEncrypted       = errors.New("file is password protected")
	ErrNoPages         = errors.New("document has no pages")
	ErrUnsupportedType = errors.New("unsupported file type")
)

// Processing errors. Page-level ones are usually replaced by a fallback.
var (
	ErrRender                = errors.New("render failed")
	ErrEncode                = errors.New("encode failed")
	ErrWrite                 = errors.New("write failed")
	ErrUnsupportedColorSpace = errors.New("unsupported color space")
	ErrPage                  = errors.New("page processing failed")
	ErrNoOutputPages         = errors.New("no output pages")
)

// Resource errors.
var (
	ErrMemoryPressure = errors.New("not enough memory")
	ErrCancelled      = errors.New("cancelled")
)

// ErrorKind is the taxonomy class of an error.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInput
	KindProcessing
	KindResource
)

func (k ErrorKind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindProcessing:
		return "processing"
	case KindResource:
		return "resource"
	}
	return "unknown"
}

// JobError attaches a taxonomy class, the failing operation and optionally a page.
type JobError struct {
	Kind ErrorKind
	Op   string
	Page int // -1 when not page-specific
	Err  error
}

func (e *JobError) Error() string {
	if e.Page >= 0 {
		return fmt.Sprintf("%s %s page %d: %v", e.Kind, e.Op, e.Page, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

func InputError(op string, err error) error {
	return &JobError{Kind: KindInput, Op: op, Page: -1, Err: err}
}

func ProcessingError(op string, err error) error {
	return &JobError{Kind: KindProcessing, Op: op, Page: -1, Err: err}
}

func PageError(op string, page int, err error) error {
	return &JobError{Kind: KindProcessing, Op: op, Page: page, Err: err}
}

func ResourceError(op string, err error) error {
	return &JobError{Kind: KindResource, Op: op, Page: -1, Err: err}
}

// KindOf classifies err. Context cancellation and deadlines are resource errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var je *JobError
	if errors.As(err, &je) {
		return je.Kind
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrCancelled), errors.Is(err, ErrMemoryPressure):
		return KindResource
	case errors.Is(err, ErrUnreadable), errors.Is(err, ErrCorrupted), errors.Is(err, ErrEncrypted),
		errors.Is(err, ErrNoPages), errors.Is(err, ErrUnsupportedType):
		return KindInput
	case errors.Is(err, ErrRender), errors.Is(err, ErrEncode), errors.Is(err, ErrWrite),
		errors.Is(err, ErrUnsupportedColorSpace), errors.Is(err, ErrPage), errors.Is(err, ErrNoOutputPages):
		return KindProcessing
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "out of memory") || strings.Contains(msg, "cannot allocate") {
		return KindResource
	}
	return KindUnknown
}

// IsCancelled reports whether err stems from cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled)
}

// User-facing messages. Raw errors never reach these.
const (
	MsgDone             = "Done. Your file is smaller now."
	MsgAlreadyOptimized = "This file is already as small as it can get."
	MsgUnreadable       = "This file could not be opened."
	MsgEncrypted        = "This file is password protected."
	MsgUnsupported      = "This file type is not supported."
	MsgFailed           = "Something went wrong while shrinking this file."
	MsgNoMemory         = "There was not enough memory to finish."
	MsgCancelled        = "Shrinking was cancelled."
)

// UserMessage picks the one message shown for a terminal state.
func UserMessage(status Status, err error) string {
	switch status {
	case StatusSuccess:
		return MsgDone
	case StatusSkipped:
		return MsgAlreadyOptimized
	case StatusCancelled:
		return MsgCancelled
	}
	switch {
	case errors.Is(err, ErrEncrypted):
		return MsgEncrypted
	case errors.Is(err, ErrUnsupportedType):
		return MsgUnsupported
	case errors.Is(err, ErrMemoryPressure):
		return MsgNoMemory
	case KindOf(err) == KindInput:
		return MsgUnreadable
	}
	return MsgFailed
}
