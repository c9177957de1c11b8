package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

const (
	DefaultLineAPIBaseURL = "https://api.line.me"
	linePushPath          = "/v2/bot/message/push"
	lineMaxTextLength     = 5000
)

type lineTextMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type linePushRequest struct {
	To       string            `json:"to"`
	Messages []lineTextMessage `json:"messages"`
}

type lineErrorResponse struct {
	Message string `json:"message"`
}

// LineError is a non-2xx response from the Messaging API.
type LineError struct {
	StatusCode int
	Message    string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line push: status %d: %s", e.StatusCode, e.Message)
}

// LineClient pushes text messages through the LINE Messaging API.
type LineClient struct {
	client  *fasthttp.Client
	baseURL string
	token   string
	timeout time.Duration
}

// NewLineClient returns a client for the channel access token. An empty
// baseURL selects the public API.
func NewLineClient(baseURL, channelToken string) *LineClient {
	if baseURL == "" {
		baseURL = DefaultLineAPIBaseURL
	}
	return &LineClient{
		client: &fasthttp.Client{
			Name:                "vaxsched",
			MaxConnsPerHost:     16,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: time.Minute,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   channelToken,
		timeout: 10 * time.Second,
	}
}

// PushText sends one text message to userID. The context deadline, when
// set, bounds the request.
func (c *LineClient) PushText(ctx context.Context, userID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r := []rune(text); len(r) > lineMaxTextLength {
		text = string(r[:lineMaxTextLength])
	}
	body, err := json.Marshal(linePushRequest{
		To:       userID,
		Messages: []lineTextMessage{{Type: "text", Text: text}},
	})
	if err != nil {
		return fmt.Errorf("encode line push: %w", err)
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + linePushPath)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Line-Retry-Key", uuid.New().String())
	req.SetBody(body)

	if deadline, ok := ctx.Deadline(); ok {
		err = c.client.DoDeadline(req, resp, deadline)
	} else {
		err = c.client.DoTimeout(req, resp, c.timeout)
	}
	if err != nil {
		return fmt.Errorf("line push: %w", err)
	}

	if code := resp.StatusCode(); code < 200 || code >= 300 {
		var e lineErrorResponse
		if json.Unmarshal(resp.Body(), &e) != nil || e.Message == "" {
			e.Message = strings.TrimSpace(string(resp.Body()))
		}
		return &LineError{StatusCode: code, Message: e.Message}
	}
	return nil
}
