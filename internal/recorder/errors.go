package recorder

import (
	"fmt"

	"github.com/tphakala/voxrec/internal/errors"
)

const componentName = "recorder"

// Sentinel errors. Errors returned by this package wrap one of these and can
// be matched with errors.Is.
var (
	// ErrInvalidArgument reports malformed or missing control input. No state was changed.
	ErrInvalidArgument = errors.NewStd("invalid argument")
	// ErrStateConflict reports an operation not allowed in the current session state.
	ErrStateConflict = errors.NewStd("state conflict")
	// ErrCreateFailed reports that the output file could not be created.
	ErrCreateFailed = errors.NewStd("create failed")
	// ErrWriteFailed reports a failed append; the buffer was dropped.
	ErrWriteFailed = errors.NewStd("write failed")
	// ErrWriterClosed is returned for appends after Close.
	ErrWriterClosed = fmt.Errorf("%w: writer closed", ErrWriteFailed)
)

func invalidArgument(operation, format string, args ...any) error {
	return errors.New(fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))).
		Component(componentName).
		Category(errors.CategoryValidation).
		Context("operation", operation).
		Build()
}

func stateConflict(operation, msg string, state State) error {
	return errors.New(fmt.Errorf("%w: %s", ErrStateConflict, msg)).
		Component(componentName).
		Category(errors.CategoryConflict).
		Context("operation", operation).
		Context("state", state.String()).
		Build()
}
