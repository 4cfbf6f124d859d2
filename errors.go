package offscreen

import (
	"errors"
	"fmt"
)

// Kind classifies a rendering failure. None of the kinds is retried: a
// failure aborts the current run.
type Kind uint8

const (
	// KindResourceCreation covers device, pipeline, attachment and buffer
	// setup, including malformed mesh input detected at upload.
	KindResourceCreation Kind = iota + 1

	// KindUniformPacking means the packed uniform block exceeds a hardware
	// limit or violates its required alignment. Detected before submission.
	KindUniformPacking

	// KindRenderSubmission means the GPU queue rejected or faulted on a
	// submission, or the submission never completed.
	KindRenderSubmission

	// KindReadback means the copy from device to host memory failed or
	// returned data of the wrong size or format.
	KindReadback

	// KindOutput means a rendered frame could not be encoded or written.
	KindOutput
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrResourceCreation = errors.New("offscreen: resource creation failed")
	ErrUniformPacking   = errors.New("offscreen: uniform packing failed")
	ErrRenderSubmission = errors.New("offscreen: render submission failed")
	ErrReadback         = errors.New("offscreen: readback failed")
	ErrOutput           = errors.New("offscreen: frame output failed")
)

// ErrDestroyed is returned when a Renderer is used after Destroy.
var ErrDestroyed = errors.New("offscreen: renderer destroyed")

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindResourceCreation:
		return "resource creation"
	case KindUniformPacking:
		return "uniform packing"
	case KindRenderSubmission:
		return "render submission"
	case KindReadback:
		return "readback"
	case KindOutput:
		return "output"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindResourceCreation:
		return ErrResourceCreation
	case KindUniformPacking:
		return ErrUniformPacking
	case KindRenderSubmission:
		return ErrRenderSubmission
	case KindReadback:
		return ErrReadback
	case KindOutput:
		return ErrOutput
	default:
		return nil
	}
}

// Error is a classified rendering failure.
//
// Frame is the index of the frame being produced when the failure happened,
// or -1 when the failure is not tied to a frame (renderer creation).
type Error struct {
	Kind  Kind
	Op    string
	Frame int
	Err   error
}

// NewError returns an *Error of the given kind that is not tied to a frame.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Frame: -1, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := "offscreen: "
	if e.Frame >= 0 {
		msg += fmt.Sprintf("frame %d: ", e.Frame)
	}
	msg += e.Kind.String()
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return 0, false
	}
	return e.Kind, true
}

// FrameOf returns the frame index recorded in err's chain, or -1.
func FrameOf(err error) int {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return -1
		}
		if e.Frame >= 0 {
			return e.Frame
		}
		err = e.Err
	}
	return -1
}

// WithFrame returns err annotated with the frame index. An *Error is copied
// with its Frame set; any other error is wrapped as KindOutput.
func WithFrame(err error, frame int) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		c := *e
		c.Frame = frame
		return &c
	}
	return &Error{Kind: KindOutput, Frame: frame, Err: err}
}
