package dispatch

import (
	"context"
	"errors"
	"fmt"
)

// SendResult is the normalized success result of one gateway dispatch
type SendResult struct {
	MessageID string
}

// SendError is the normalized failure result of one gateway dispatch.
// Retryable distinguishes transport-level failures (timeouts, 5xx) from
// permanent provider-side rejections.
type SendError struct {
	StatusCode int
	Code       int
	Message    string
	Retryable  bool
}

func (e *SendError) Error() string {
	return fmt.Sprintf("provider error %d (http %d): %s", e.Code, e.StatusCode, e.Message)
}

// ReengagementErrorCode is the provider error code returned when a free-form
// message is sent outside the 24-hour customer service window
const ReengagementErrorCode = 131047

// IsReengagementRequired reports whether the error is the 24-hour-window
// rejection, which is unrecoverable without a template message
func IsReengagementRequired(err error) bool {
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr.Code == ReengagementErrorCode
	}
	return false
}

// TemplateParams carries the substitution values for a template send
type TemplateParams struct {
	Name       string
	Language   string
	Parameters []string
}

// MediaPayload carries the media reference and caption for a media send.
// Either Link points at an externally hosted file, or Filename names a local
// attachment that the gateway resolves and serves itself.
type MediaPayload struct {
	Link     string
	Filename string
	Caption  string
	Kind     string // image, video, audio or document; detected when empty
}

// IMessageGateway is the outbound messaging provider contract. Each call is
// a single best-effort attempt; the gateway performs no retries and mutates
// no tracked entity.
type IMessageGateway interface {
	SendText(ctx context.Context, to string, body string) (*SendResult, error)
	SendTemplate(ctx context.Context, to string, params TemplateParams) (*SendResult, error)
	SendMedia(ctx context.Context, to string, payload MediaPayload) (*SendResult, error)
}
