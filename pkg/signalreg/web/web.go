package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

const requestTimeout = 30 * time.Second

// HTTPReqOpt carries the optional parts of a service HTTP request.
type HTTPReqOpt struct {
	Body     []byte
	Username string
	Password string
	Agent    string
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

// SendHTTPRequest performs one JSON request against the configured base URL.
func SendHTTPRequest(ctx context.Context, client *http.Client, method, baseURL, path string, opt *HTTPReqOpt) (*http.Response, error) {
	if opt == nil {
		opt = &HTTPReqOpt{}
	}
	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, bytes.NewReader(opt.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if opt.Agent != "" {
		req.Header.Set("X-Signal-Agent", opt.Agent)
	}
	if opt.Username != "" {
		req.SetBasicAuth(opt.Username, opt.Password)
	}
	return client.Do(req)
}

// isTransient reports whether an error is worth one automatic retry.
func isTransient(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
