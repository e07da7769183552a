// Package netclient is the HTTP transport collaborator. Requests are
// dispatched asynchronously; the callback receives nil when the
// connection itself failed.
package netclient

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Request describes one outbound call.
type Request struct {
	URL            string
	Method         string
	Headers        map[string]string
	Body           []byte
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Response is the completed call's status and body.
type Response struct {
	StatusCode int
	Body       []byte
}

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_service.go -package=mocks . Service

// Service dispatches requests without blocking the caller. The
// callback runs on a worker goroutine, exactly once per request.
type Service interface {
	ConnectAsync(req Request, callback func(*Response))
}

// Client implements Service over net/http.
type Client struct {
	logger zerolog.Logger
}

// NewClient returns a ready transport.
func NewClient(logger zerolog.Logger) *Client {
	return &Client{logger: logger.With().Str("component", "netclient").Logger()}
}

// ConnectAsync sends the request on a new goroutine and invokes the
// callback with the result, or nil on transport failure.
func (c *Client) ConnectAsync(req Request, callback func(*Response)) {
	go func() {
		callback(c.connect(req))
	}()
}

func (c *Client) connect(req Request) *Response {
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: req.ConnectTimeout}).DialContext,
	}
	client := &http.Client{
		Transport: transport,
		Timeout:   req.ConnectTimeout + req.ReadTimeout,
	}

	httpReq, err := http.NewRequest(req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		c.logger.Warn().Err(err).Str("url", req.URL).Msg("failed to create request")
		return nil
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", req.URL).Msg("request failed")
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", req.URL).Msg("failed to read response body")
		return nil
	}
	return &Response{StatusCode: resp.StatusCode, Body: body}
}
