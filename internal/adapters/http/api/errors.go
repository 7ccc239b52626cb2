package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/sitstraight/internal/adapters/repository"
	"github.com/okian/sitstraight/internal/domain/pose"
	"github.com/okian/sitstraight/internal/extractor"
	"github.com/okian/sitstraight/internal/imaging"
	"github.com/okian/sitstraight/internal/live"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrBackpressure = errors.New("backpressure")
	ErrNoData       = errors.New("no data yet")
	ErrBodyTooLarge = errors.New("request body too large")
)

// Error codes returned in errorResponse.Code.
const (
	codeBadRequest          = "bad_request"
	codeDecodeError         = "decode_error"
	codeFrameTooLarge       = "frame_too_large"
	codeBodyTooLarge        = "body_too_large"
	codeIncompleteLandmarks = "incomplete_landmarks"
	codeBackpressure        = "backpressure"
	codeRateLimited         = "rate_limited"
	codeNotFound            = "not_found"
	codeBusy                = "extractor_busy"
	codeUnavailable         = "unavailable"
	codeTimeout             = "timeout"
	codeClientClosed        = "client_closed_request"
	codeInternal            = "internal_error"
)

// statusClientClosedRequest is the nginx convention for a request the client
// abandoned before the response was ready.
const statusClientClosedRequest = 499

// classify maps a domain error onto an HTTP status and error code.
func classify(err error) (int, string) {
	var decodeErr *imaging.DecodeError
	switch {
	case errors.Is(err, imaging.ErrTooLarge), errors.Is(err, imaging.ErrTooManyPixels):
		return http.StatusRequestEntityTooLarge, codeFrameTooLarge
	case errors.Is(err, ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge, codeBodyTooLarge
	case errors.As(err, &decodeErr):
		return http.StatusBadRequest, codeDecodeError
	case errors.Is(err, pose.ErrIncompleteLandmarks):
		return http.StatusUnprocessableEntity, codeIncompleteLandmarks
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, pose.ErrMalformedLandmarks),
		errors.Is(err, pose.ErrUnknownLandmark),
		errors.Is(err, repository.ErrInvalidLimit),
		errors.Is(err, repository.ErrInvalidRange):
		return http.StatusBadRequest, codeBadRequest
	case errors.Is(err, ErrBackpressure):
		return http.StatusTooManyRequests, codeBackpressure
	case errors.Is(err, ErrNoData), errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, extractor.ErrBusy):
		return http.StatusServiceUnavailable, codeBusy
	case errors.Is(err, extractor.ErrUnavailable),
		errors.Is(err, extractor.ErrClosed),
		errors.Is(err, extractor.ErrNoFactory),
		errors.Is(err, live.ErrNoSource):
		return http.StatusServiceUnavailable, codeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, codeTimeout
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, codeClientClosed
	default:
		return http.StatusInternalServerError, codeInternal
	}
}
