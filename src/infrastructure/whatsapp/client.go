package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go-whatsapp-crm/src/domain/dispatch"
	logger "go-whatsapp-crm/src/infrastructure/logger"
	"go-whatsapp-crm/src/infrastructure/utils"

	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://graph.facebook.com/v18.0"

	// Each dispatch is a single best-effort attempt bounded by this timeout.
	requestTimeout = 30 * time.Second
)

// Client talks to the WhatsApp Cloud API messages endpoint. It holds no
// state beyond credentials and never mutates tracked entities; persistence
// of results is the caller's responsibility.
type Client struct {
	phoneNumberID string
	accessToken   string
	baseURL       string
	attachmentDir string
	mediaBaseURL  string
	httpClient    *http.Client
	Logger        *logger.Logger
}

// NewClient creates a WhatsApp Cloud API client. Local attachments live in
// ATTACHMENTS_DIR and are served under MEDIA_BASE_URL, the public URL of this
// application's attachment route.
func NewClient(phoneNumberID string, accessToken string, loggerInstance *logger.Logger) *Client {
	return &Client{
		phoneNumberID: phoneNumberID,
		accessToken:   accessToken,
		baseURL:       defaultBaseURL,
		attachmentDir: utils.GetEnv("ATTACHMENTS_DIR", "attachments"),
		mediaBaseURL:  utils.GetEnv("MEDIA_BASE_URL", ""),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		Logger: loggerInstance,
	}
}

// NewClientWithBaseURL creates a client against a non-default API host; used in tests
func NewClientWithBaseURL(phoneNumberID string, accessToken string, baseURL string, loggerInstance *logger.Logger) *Client {
	client := NewClient(phoneNumberID, accessToken, loggerInstance)
	client.baseURL = baseURL
	return client
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendText sends a free-form text message
func (c *Client) SendText(ctx context.Context, to string, body string) (*dispatch.SendResult, error) {
	payload, err := c.basePayload(to, "text")
	if err != nil {
		return nil, err
	}
	payload, err = sjson.Set(payload, "text.preview_url", false)
	if err != nil {
		return nil, err
	}
	payload, err = sjson.Set(payload, "text.body", body)
	if err != nil {
		return nil, err
	}

	return c.post(ctx, to, payload)
}

// SendTemplate sends a pre-approved template message
func (c *Client) SendTemplate(ctx context.Context, to string, params dispatch.TemplateParams) (*dispatch.SendResult, error) {
	payload, err := c.basePayload(to, "template")
	if err != nil {
		return nil, err
	}
	payload, err = sjson.Set(payload, "template.name", params.Name)
	if err != nil {
		return nil, err
	}

	language := params.Language
	if language == "" {
		language = "en_US"
	}
	payload, err = sjson.Set(payload, "template.language.code", language)
	if err != nil {
		return nil, err
	}

	if len(params.Parameters) > 0 {
		payload, err = sjson.Set(payload, "template.components.0.type", "body")
		if err != nil {
			return nil, err
		}
		for i, param := range params.Parameters {
			payload, err = sjson.Set(payload, fmt.Sprintf("template.components.0.parameters.%d", i), map[string]string{
				"type": "text",
				"text": param,
			})
			if err != nil {
				return nil, err
			}
		}
	}

	return c.post(ctx, to, payload)
}

// SendMedia sends a media message by link. A payload naming a local
// attachment gets its kind sniffed from the file contents and its link built
// from the public media base URL; otherwise the kind is detected from the
// link when not given explicitly.
func (c *Client) SendMedia(ctx context.Context, to string, media dispatch.MediaPayload) (*dispatch.SendResult, error) {
	kind := media.Kind
	link := media.Link

	if media.Filename != "" {
		detected, err := DetectMediaKindFromFile(c.attachmentDir, media.Filename)
		if err != nil {
			c.Logger.Warn("Couldn't read local attachment",
				zap.String("filename", media.Filename),
				zap.Error(err))
			return nil, &dispatch.SendError{
				Message:   fmt.Sprintf("unreadable attachment %q: %v", media.Filename, err),
				Retryable: false,
			}
		}
		if kind == "" {
			kind = detected
		}
		if link == "" {
			if c.mediaBaseURL == "" {
				return nil, &dispatch.SendError{
					Message:   "MEDIA_BASE_URL must be set to send local attachments",
					Retryable: false,
				}
			}
			link = strings.TrimSuffix(c.mediaBaseURL, "/") + "/" + media.Filename
		}
	}
	if kind == "" {
		kind = DetectMediaKind(link)
	}

	payload, err := c.basePayload(to, kind)
	if err != nil {
		return nil, err
	}
	payload, err = sjson.Set(payload, kind+".link", link)
	if err != nil {
		return nil, err
	}
	if media.Caption != "" && kind != "audio" {
		payload, err = sjson.Set(payload, kind+".caption", media.Caption)
		if err != nil {
			return nil, err
		}
	}

	return c.post(ctx, to, payload)
}

func (c *Client) basePayload(to string, messageType string) (string, error) {
	payload := `{"messaging_product":"whatsapp","recipient_type":"individual"}`
	payload, err := sjson.Set(payload, "to", to)
	if err != nil {
		return "", err
	}
	return sjson.Set(payload, "type", messageType)
}

func (c *Client) post(ctx context.Context, to string, payload string) (*dispatch.SendResult, error) {
	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and connection errors are transport failures, worth retrying
		return nil, &dispatch.SendError{
			Message:   err.Error(),
			Retryable: true,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &dispatch.SendError{
			StatusCode: resp.StatusCode,
			Message:    err.Error(),
			Retryable:  true,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.classifyError(resp.StatusCode, body)
	}

	var sr sendResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, &dispatch.SendError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("malformed provider response: %v", err),
			Retryable:  false,
		}
	}
	if len(sr.Messages) == 0 || sr.Messages[0].ID == "" {
		return nil, &dispatch.SendError{
			StatusCode: resp.StatusCode,
			Message:    "provider response missing message id",
			Retryable:  false,
		}
	}

	c.Logger.Info("Message dispatched to provider",
		zap.String("to", to),
		zap.String("providerMessageID", sr.Messages[0].ID))

	return &dispatch.SendResult{MessageID: sr.Messages[0].ID}, nil
}

func (c *Client) classifyError(statusCode int, body []byte) *dispatch.SendError {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Error.Message == "" {
		return &dispatch.SendError{
			StatusCode: statusCode,
			Message:    fmt.Sprintf("unexpected provider status %d body=%q", statusCode, string(body)),
			Retryable:  statusCode >= 500,
		}
	}

	c.Logger.Warn("Provider rejected message",
		zap.Int("statusCode", statusCode),
		zap.Int("errorCode", er.Error.Code),
		zap.String("errorType", er.Error.Type),
		zap.String("errorMessage", er.Error.Message))

	return &dispatch.SendError{
		StatusCode: statusCode,
		Code:       er.Error.Code,
		Message:    er.Error.Message,
		Retryable:  statusCode >= 500 || statusCode == http.StatusTooManyRequests,
	}
}
