package futapi

import (
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"futapi/session"

	http "github.com/bogdanfinn/fhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordedCall struct {
	method string
	path   string
	query  string
	body   string
	header nethttp.Header
}

// backend answers every path under the game URL with the status and body
// registered for it.
type backend struct {
	srv *httptest.Server

	mu        sync.Mutex
	calls     []recordedCall
	responses map[string]func() (int, string)
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{responses: map[string]func() (int, string){}}
	b.srv = httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		body, _ := io.ReadAll(r.Body)
		path := strings.TrimPrefix(r.URL.Path, "/"+gameURL+"/")

		b.mu.Lock()
		b.calls = append(b.calls, recordedCall{
			method: r.Method,
			path:   path,
			query:  r.URL.RawQuery,
			body:   string(body),
			header: r.Header.Clone(),
		})
		respond, ok := b.responses[r.Method+" "+path]
		b.mu.Unlock()

		if !ok {
			writeJSON(w, nethttp.StatusOK, `{}`)
			return
		}
		status, payload := respond()
		writeJSON(w, status, payload)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) on(method, path string, status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses[method+" "+path] = func() (int, string) { return status, body }
}

func (b *backend) recorded() []recordedCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]recordedCall(nil), b.calls...)
}

func (b *backend) host() string {
	return strings.TrimPrefix(b.srv.URL, "http://")
}

// signedInStore mimics what a finished login leaves behind.
func signedInStore(host string) *session.Store {
	headers := NewHeaders()
	headers.Set("Accept", "application/json")
	headers.Set(sidHeader, testSID)
	headers.Set(methodOverrideHeader, "GET")

	store := session.New()
	store.SaveAll(map[string]any{
		session.KeyHeaders: headers,
		session.KeyHost:    host,
		session.KeyUserInfo: UserInfo{
			Email:    testEmail,
			MassInfo: json.RawMessage(massInfoBody),
			Credits:  100,
		},
	})
	return store
}

func newTestPipeline(t *testing.T, b *backend, minDelay time.Duration) *Pipeline {
	endpoints := Endpoints{Scheme: "http"}
	return NewPipeline(&http.Client{}, signedInStore(b.host()), endpoints, minDelay, zaptest.NewLogger(t))
}

func TestPipelineParamsPlacement(t *testing.T) {
	b := newBackend(t)
	p := newTestPipeline(t, b, 0)
	ctx := context.Background()

	_, err := p.Execute(ctx, Call{Method: "get", Path: "transfermarket", Params: map[string]any{"num": 21, "type": "player"}})
	require.NoError(t, err)
	_, err = p.Execute(ctx, Call{Method: http.MethodDelete, Path: "/item", Params: map[string]any{"itemIds": []int64{1, 2}}})
	require.NoError(t, err)
	_, err = p.Execute(ctx, Call{Method: http.MethodPut, Path: "trade/7/bid", Params: map[string]any{"bid": 150}})
	require.NoError(t, err)
	_, err = p.Execute(ctx, Call{Method: http.MethodPost, Path: "auctionhouse/relist"})
	require.NoError(t, err)

	calls := b.recorded()
	require.Len(t, calls, 4)

	assert.Equal(t, "GET", calls[0].method)
	assert.Equal(t, "transfermarket", calls[0].path)
	assert.Equal(t, "num=21&type=player", calls[0].query)
	assert.Empty(t, calls[0].body)

	assert.Equal(t, "DELETE", calls[1].method)
	assert.Equal(t, "itemIds=1%2C2", calls[1].query)

	assert.Equal(t, "PUT", calls[2].method)
	assert.Empty(t, calls[2].query)
	assert.JSONEq(t, `{"bid":150}`, calls[2].body)
	assert.Equal(t, "application/json", calls[2].header.Get("Content-Type"))

	assert.JSONEq(t, `{}`, calls[3].body)

	for _, c := range calls {
		assert.Empty(t, c.header.Get(methodOverrideHeader))
		assert.Equal(t, testSID, c.header.Get(sidHeader))
	}
}

func TestPipelineDoesNotMutateStoredHeaders(t *testing.T) {
	b := newBackend(t)
	p := newTestPipeline(t, b, 0)

	_, err := p.Execute(context.Background(), Call{Method: http.MethodPost, Path: "auctionhouse"})
	require.NoError(t, err)

	headers, err := session.Get[*Headers](p.store, session.KeyHeaders)
	require.NoError(t, err)
	assert.True(t, headers.Has(methodOverrideHeader))
	assert.False(t, headers.Has("Content-Type"))
}

func TestPipelineReturnsBody(t *testing.T) {
	b := newBackend(t)
	b.on("GET", "user/credits", 200, `{"credits":2500}`)
	b.on("DELETE", "trade/sold", 200, ``)
	b.on("PUT", "auctionhouse/relist", 200, `null`)
	p := newTestPipeline(t, b, 0)
	ctx := context.Background()

	var res creditsResponse
	require.NoError(t, p.ExecuteInto(ctx, Call{Method: "GET", Path: "user/credits"}, &res))
	assert.Equal(t, int64(2500), res.Credits)

	body, err := p.Execute(ctx, Call{Method: "DELETE", Path: "trade/sold"})
	require.NoError(t, err)
	assert.Nil(t, body)

	body, err = p.Execute(ctx, Call{Method: "PUT", Path: "auctionhouse/relist"})
	require.NoError(t, err)
	assert.Nil(t, body)
}

func TestPipelineHaltsOnTrustConditions(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{status: 401, want: ErrSessionExpired},
		{status: 429, want: ErrRateLimited},
		{status: 458, want: ErrCaptchaRequired},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			b := newBackend(t)
			b.on("GET", "tradepile", tt.status, `{}`)
			p := newTestPipeline(t, b, 0)
			ctx := context.Background()

			body, err := p.Execute(ctx, Call{Method: "GET", Path: "tradepile"})
			require.Nil(t, body)
			require.ErrorIs(t, err, tt.want)
			require.True(t, IsFatalError(err))
			require.Equal(t, err, p.Halted())

			// Later calls never reach the network.
			_, err2 := p.Execute(ctx, Call{Method: "GET", Path: "user/credits"})
			require.Same(t, err, err2)
			assert.Len(t, b.recorded(), 1)
		})
	}
}

func TestPipelineOtherFailuresAreCallErrors(t *testing.T) {
	b := newBackend(t)
	b.on("PUT", "trade/9/bid", 461, `{"reason":"outbid"}`)
	b.on("GET", "watchlist", 200, `<html>`)
	p := newTestPipeline(t, b, 0)
	ctx := context.Background()

	body, err := p.Execute(ctx, Call{Method: "PUT", Path: "trade/9/bid"})
	require.Nil(t, body)
	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, 461, callErr.StatusCode)
	assert.Equal(t, 461, StatusCode(err))
	assert.False(t, IsFatalError(err))
	assert.Nil(t, p.Halted())

	_, err = p.Execute(ctx, Call{Method: "GET", Path: "watchlist"})
	require.ErrorIs(t, err, ErrUnexpectedResponse)

	// Still usable after non-fatal failures.
	_, err = p.Execute(ctx, Call{Method: "GET", Path: "user/credits"})
	require.NoError(t, err)
}

func TestPipelineTransportFailure(t *testing.T) {
	b := newBackend(t)
	p := newTestPipeline(t, b, 0)
	b.srv.Close()

	body, err := p.Execute(context.Background(), Call{Method: "GET", Path: "user/credits"})
	require.Nil(t, body)
	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Zero(t, callErr.StatusCode)
	assert.False(t, IsFatalError(err))
}

func TestPipelineRequiresSession(t *testing.T) {
	p := NewPipeline(&http.Client{}, session.New(), Endpoints{Scheme: "http"}, 0, nil)

	_, err := p.Execute(context.Background(), Call{Method: "GET", Path: "user/credits"})
	require.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestPipelineDelayHonoursContext(t *testing.T) {
	b := newBackend(t)
	p := newTestPipeline(t, b, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.Execute(ctx, Call{Method: "GET", Path: "user/credits"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, b.recorded())
}

func TestPipelineWaitsCallDelay(t *testing.T) {
	b := newBackend(t)
	p := newTestPipeline(t, b, 0)

	start := time.Now()
	_, err := p.Execute(context.Background(), Call{Method: "GET", Path: "user/credits", Delay: 30 * time.Millisecond})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestEncodeParams(t *testing.T) {
	values := encodeParams(map[string]any{
		"tradeIds": []int64{10, 11},
		"pos":      []string{"ST", "CF"},
		"rare":     "SP",
		"skip":     nil,
		"num":      21,
	})
	assert.Equal(t, "num=21&pos=ST%2CCF&rare=SP&tradeIds=10%2C11", values.Encode())
}
