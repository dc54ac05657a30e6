package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrMalformedInput   = errors.New("malformed input")
	ErrGenerationFailed = errors.New("generation failed")
	ErrAssetResolution  = errors.New("asset resolution error")
	ErrEmptyArchive     = errors.New("empty archive")
	ErrStreamingSession = errors.New("streaming session error")
	ErrConfiguration    = errors.New("configuration error")
	ErrTimeout          = errors.New("timeout")
	ErrTransient        = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRecoverable reports whether err is isolated to a single asset, scene, or
// session. Recoverable failures are reported as result data and never abort a
// batch or an archive.
func IsRecoverable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrMalformedInput),
		errors.Is(err, ErrGenerationFailed),
		errors.Is(err, ErrAssetResolution),
		errors.Is(err, ErrStreamingSession):
		return true
	default:
		return false
	}
}

// Kind returns a short classification label for err, used in ledger rows and
// CLI output.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidParameter):
		return "invalid_parameter"
	case errors.Is(err, ErrMalformedInput):
		return "malformed_input"
	case errors.Is(err, ErrAssetResolution):
		return "asset_resolution"
	case errors.Is(err, ErrGenerationFailed):
		return "generation_failed"
	case errors.Is(err, ErrEmptyArchive):
		return "empty_archive"
	case errors.Is(err, ErrStreamingSession):
		return "streaming_session"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "transient"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
