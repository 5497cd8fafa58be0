package futapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"futapi/session"

	http "github.com/bogdanfinn/fhttp"
	"go.uber.org/zap"
)

// methodOverrideHeader must never reach the game backend from the pipeline.
const methodOverrideHeader = "X-HTTP-Method-Override"

// Call describes one request against the game backend. Path is relative to
// the game URL prefix.
type Call struct {
	Method string
	Path   string
	Params map[string]any
	// Delay is waited before the request is sent.
	Delay time.Duration
}

// target is a host plus the headers to send to it.
type target struct {
	host    string
	headers *Headers
}

// Pipeline sends calls using the host and headers a login left in the
// session store. Once the backend reports a trust condition (401, 429, 458)
// the pipeline refuses every further call.
type Pipeline struct {
	client    HTTPClient
	store     *session.Store
	endpoints Endpoints
	minDelay  time.Duration
	logger    *zap.Logger

	halted error
}

func NewPipeline(client HTTPClient, store *session.Store, endpoints Endpoints, minDelay time.Duration, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		client:    client,
		store:     store,
		endpoints: endpoints,
		minDelay:  minDelay,
		logger:    logger.Named("pipeline"),
	}
}

// Halted returns the fatal error that stopped the pipeline, if any.
func (p *Pipeline) Halted() error {
	return p.halted
}

// Execute sends call and returns the JSON body. A nil body with a nil error
// means the backend answered with no content.
func (p *Pipeline) Execute(ctx context.Context, call Call) (json.RawMessage, error) {
	if p.halted != nil {
		return nil, p.halted
	}
	t, err := p.sessionTarget()
	if err != nil {
		return nil, err
	}
	return p.execute(ctx, t, call)
}

// ExecuteInto is Execute followed by decoding into v. An empty body leaves v
// untouched.
func (p *Pipeline) ExecuteInto(ctx context.Context, call Call, v any) error {
	body, err := p.Execute(ctx, call)
	if err != nil {
		return err
	}
	return decodeBody(body, v)
}

func decodeBody(body json.RawMessage, v any) error {
	if len(body) == 0 || v == nil {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return nil
}

func (p *Pipeline) sessionTarget() (target, error) {
	headers, err := session.Get[*Headers](p.store, session.KeyHeaders)
	if err != nil {
		return target{}, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	host, err := session.Get[string](p.store, session.KeyHost)
	if err != nil {
		return target{}, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	return target{host: host, headers: headers}, nil
}

func (p *Pipeline) execute(ctx context.Context, t target, call Call) (json.RawMessage, error) {
	method := strings.ToUpper(call.Method)
	path := strings.TrimPrefix(call.Path, "/")
	rawURL := p.endpoints.hostURL(t.host, gameURL+"/"+path)

	headers := t.headers.Clone()
	headers.Del(methodOverrideHeader)

	var body io.Reader
	switch method {
	case http.MethodGet, http.MethodDelete:
		rawURL = withQuery(rawURL, encodeParams(call.Params))
	case http.MethodPost, http.MethodPut:
		params := call.Params
		if params == nil {
			params = map[string]any{}
		}
		data, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
		headers.Set("Content-Type", "application/json")
	default:
		return nil, fmt.Errorf("unsupported method %q", call.Method)
	}

	if delay := max(call.Delay, p.minDelay); delay > 0 {
		if err := sleepContext(ctx, delay); err != nil {
			return nil, err
		}
	}

	pg, err := fetch(ctx, p.client, p.logger, method, rawURL, headers, body)
	if err != nil {
		p.logger.Warn("call failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, &CallError{Method: method, Path: path, Err: err}
	}
	if !pg.ok() {
		return nil, p.classify(method, path, pg.StatusCode)
	}

	trimmed := bytes.TrimSpace(pg.Body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if !json.Valid(trimmed) {
		return nil, &CallError{Method: method, Path: path, StatusCode: pg.StatusCode, Err: ErrUnexpectedResponse}
	}
	return json.RawMessage(trimmed), nil
}

func (p *Pipeline) classify(method, path string, status int) error {
	var sentinel error
	switch status {
	case http.StatusUnauthorized:
		sentinel = ErrSessionExpired
	case http.StatusTooManyRequests:
		sentinel = ErrRateLimited
	case 458:
		sentinel = ErrCaptchaRequired
	default:
		p.logger.Warn("call failed", zap.String("method", method), zap.String("path", path), zap.Int("status", status))
		return &CallError{Method: method, Path: path, StatusCode: status}
	}

	p.halted = NewFatalError(fmt.Errorf("%s %s: %w", method, path, sentinel))
	p.logger.Error("backend refused the session, no further calls will be made",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
	)
	return p.halted
}

// encodeParams renders call parameters as a query string. Slices are joined
// with commas.
func encodeParams(params map[string]any) url.Values {
	values := url.Values{}
	for k, v := range params {
		switch tv := v.(type) {
		case nil:
			continue
		case string:
			values.Set(k, tv)
		case []string:
			values.Set(k, strings.Join(tv, ","))
		case []int64:
			parts := make([]string, len(tv))
			for i, n := range tv {
				parts[i] = fmt.Sprint(n)
			}
			values.Set(k, strings.Join(parts, ","))
		default:
			values.Set(k, fmt.Sprint(tv))
		}
	}
	return values
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isStatus reports whether err is a CallError with the given status.
func isStatus(err error, status int) bool {
	var ce *CallError
	return errors.As(err, &ce) && ce.StatusCode == status
}
