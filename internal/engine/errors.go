package engine

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Sentinel error kinds. Match with errors.Is.
var (
	ErrMalformedModelOutput = errors.New("malformed model output")
	ErrDiscovery            = errors.New("video discovery failed")
	ErrUpstreamService      = errors.New("upstream service error")
	ErrEmptyResult          = errors.New("stage produced no items")
	ErrEmptyQuery           = errors.New("query is required")
	ErrFieldRewritten       = errors.New("pipeline state field already written")
)

// MalformedModelOutputError reports a language-model response that could not be
// decoded into the expected shape.
type MalformedModelOutputError struct {
	Stage string
	Raw   string
	Err   error
}

func (e *MalformedModelOutputError) Error() string {
	return fmt.Sprintf("%s: malformed model output: %v", e.Stage, e.Err)
}

func (e *MalformedModelOutputError) Unwrap() error { return e.Err }

func (e *MalformedModelOutputError) Is(target error) bool {
	return target == ErrMalformedModelOutput
}

// UpstreamServiceError reports a failed call to the video platform.
// StatusCode is 0 when the request never produced a response.
type UpstreamServiceError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamServiceError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s: %d %s: %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op + ": upstream service error"
}

func (e *UpstreamServiceError) Unwrap() error { return e.Err }

func (e *UpstreamServiceError) Is(target error) bool {
	return target == ErrUpstreamService
}

// DiscoveryError wraps the failure of the search stage.
type DiscoveryError struct {
	Niche string
	Err   error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover videos for %q: %v", e.Niche, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

func (e *DiscoveryError) Is(target error) bool {
	return target == ErrDiscovery
}
