package futapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	http "github.com/bogdanfinn/fhttp"
	"go.uber.org/zap"
)

// PseudoHeaderOrder is the standard HTTP/2 pseudo-header order for all requests.
var PseudoHeaderOrder = []string{
	":method",
	":authority",
	":scheme",
	":path",
}

// readResponseBody decompresses and reads the full response body.
// Caller should defer resp.Body.Close() before calling this.
func readResponseBody(resp *http.Response) ([]byte, error) {
	body := http.DecompressBody(resp)
	defer body.Close()
	return io.ReadAll(body)
}

// page is a fully read response together with the URL it finally came from
// after redirects.
type page struct {
	StatusCode int
	URL        string
	Body       []byte
}

func (p *page) String() string {
	return string(p.Body)
}

func (p *page) ok() bool {
	return p.StatusCode >= 200 && p.StatusCode < 300
}

func (p *page) decode(v any) error {
	if err := json.Unmarshal(p.Body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return nil
}

// withQuery appends query values to rawURL.
func withQuery(rawURL string, query url.Values) string {
	if len(query) == 0 {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + query.Encode()
}

// fetch executes a request and reads its body. headers may be nil.
func fetch(ctx context.Context, client HTTPClient, logger *zap.Logger, method, rawURL string, headers *Headers, body io.Reader) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	if headers != nil {
		req.Header = headers.Header()
	}

	resp, err := client.Do(req)
	if err != nil {
		logger.Debug("request failed", zap.String("method", method), zap.String("path", req.URL.Path), zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	data, err := readResponseBody(resp)
	if err != nil {
		return nil, err
	}

	final := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	logger.Debug("request",
		zap.String("method", method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
	)
	return &page{StatusCode: resp.StatusCode, URL: final, Body: data}, nil
}

func fetchForm(ctx context.Context, client HTTPClient, logger *zap.Logger, rawURL string, headers *Headers, form url.Values) (*page, error) {
	h := headers.Clone()
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	return fetch(ctx, client, logger, http.MethodPost, rawURL, h, strings.NewReader(form.Encode()))
}

func fetchJSON(ctx context.Context, client HTTPClient, logger *zap.Logger, method, rawURL string, headers *Headers, payload any) (*page, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return fetch(ctx, client, logger, method, rawURL, headers, bytes.NewReader(data))
}
