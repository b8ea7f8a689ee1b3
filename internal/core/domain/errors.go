package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound    = errors.New("document not found")
	ErrJobNotFound         = errors.New("job not found")
	ErrResultNotReady      = errors.New("result not ready")
	ErrConfigNotFound      = errors.New("document type config not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrTemporary           = errors.New("temporary failure")
	ErrNormalization       = errors.New("normalization failed")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// NormalizationError reports raw text a normalizer could not parse.
type NormalizationError struct {
	Normalizer string
	Input      string
	Err        error
}

func (e *NormalizationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: cannot normalize %q", e.Normalizer, e.Input)
	}
	return fmt.Sprintf("%s: cannot normalize %q: %v", e.Normalizer, e.Input, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

func (e *NormalizationError) Is(target error) bool { return target == ErrNormalization }
