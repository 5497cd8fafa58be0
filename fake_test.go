package futapi

import (
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	http "github.com/bogdanfinn/fhttp"
	"github.com/bogdanfinn/fhttp/cookiejar"
	"github.com/stretchr/testify/require"
)

const (
	testEmail     = "player@example.com"
	testPassword  = "correct horse"
	testToken     = "QVQwOjIuMDozLjA6NjA6"
	testAuthCode  = "QUM6Y29kZQ"
	testNucleusID = "1000123456789"
	testPersonaID = 987654321
	testSID       = "5f2b3c1e-sid"
	testPhishing  = "770123456789"
)

const loginFailedPage = `<html><body>
<script>window.onload = function() { var state = {'successfulLogin': false}; }</script>
<div class="form-row">
  <p class="general-error">
    Your credentials are incorrect or have expired. Please try again or reset your password.
  </p>
</div>
</body></html>`

const pinScript = `var a={taxv:"1.1",tidt:"easku",gid:0,et:"client",pidt:"persona"};enums.SKU.FUT="FUT19WEB";APP_VERSION="19.1.5";`

const defaultPersonas = `{"userAccountInfo":{"personas":[
  {"personaId":111,"personaName":"console_only","userClubList":[{"year":"2019","skuAccessList":{"FFA19XBO":1}}]},
  {"personaId":222,"personaName":"older","userClubList":[{"year":"2019","skuAccessList":{"FFA19PS4":1}}]},
  {"personaId":987654321,"personaName":"webby","userState":null,"userClubList":[{"year":"2019","skuAccessList":{"FFA19PS4":1}}]}
]}}`

const massInfoBody = `{"userInfo":{"personaId":987654321},"pileSizeClientData":{"entries":[
  {"key":2,"value":30},{"key":4,"value":350},{"key":6,"value":50}
]}}`

// fakeFUT serves the accounts site, the identity gateway, the game backend
// and the pin collector from one test server.
type fakeFUT struct {
	t   *testing.T
	srv *httptest.Server

	mu      sync.Mutex
	hits    map[string]int
	headers map[string]nethttp.Header
	events  []map[string]any

	shortcut     bool
	verify       bool
	expectCode   string
	badToken     bool
	shardsStatus int
	personas     string
	authStatus   int
	authReason   string
	creditsCode  int
}

func newFakeFUT(t *testing.T) *fakeFUT {
	t.Helper()
	f := &fakeFUT{
		t:        t,
		hits:     map[string]int{},
		headers:  map[string]nethttp.Header{},
		personas: defaultPersonas,
	}

	mux := nethttp.NewServeMux()
	mux.HandleFunc("/connect/auth", f.connectAuth)
	mux.HandleFunc("/p/login", f.loginPage)
	mux.HandleFunc("/auth.html", f.html("<html>auth</html>"))
	mux.HandleFunc("/web-app/", f.html("<html>web app</html>"))
	mux.HandleFunc("/js/compiled_1.js", f.html(pinScript))
	mux.HandleFunc("/identity/pids/me", f.identity)
	mux.HandleFunc("/ut/shards/v2", f.shards)
	mux.HandleFunc("/ut/auth", f.auth)
	mux.HandleFunc("/pinEvents", f.pin)
	mux.HandleFunc("/ut/game/fifa19/user/accountinfo", f.jsonBody(func() string { return f.personas }))
	mux.HandleFunc("/ut/game/fifa19/usermassinfo", f.jsonBody(func() string { return massInfoBody }))
	mux.HandleFunc("/ut/game/fifa19/settings", f.jsonBody(func() string { return `{"configs":[]}` }))
	mux.HandleFunc("/ut/game/fifa19/user/credits", f.credits)

	f.srv = httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		f.mu.Lock()
		f.hits[r.Method+" "+r.URL.Path]++
		f.headers[r.URL.Path] = r.Header.Clone()
		f.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeFUT) host() string {
	return strings.TrimPrefix(f.srv.URL, "http://")
}

func (f *fakeFUT) callback() string {
	return f.srv.URL + "/auth.html"
}

func (f *fakeFUT) endpoints() Endpoints {
	u := f.srv.URL
	return Endpoints{
		Scheme:       "http",
		AccountsAuth: u + "/connect/auth",
		AuthCallback: f.callback(),
		WebApp:       u + "/web-app/",
		IdentityMe:   u + "/identity/pids/me",
		AuthHost:     f.host(),
		Origin:       u,
		PinURL:       u + "/pinEvents",
		PinScript:    u + "/js/compiled_1.js",
	}
}

func (f *fakeFUT) platform() Platform {
	return Platform{Name: "ps4", Host: f.host(), SKU: "FFA19PS4"}
}

// client follows redirects and keeps cookies like the browser client does.
func (f *fakeFUT) client() *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(f.t, err)
	return &http.Client{Jar: jar}
}

func (f *fakeFUT) hitCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[key]
}

func (f *fakeFUT) lastHeaders(path string) nethttp.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers[path]
}

func (f *fakeFUT) pinEvents() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.events...)
}

func writeJSON(w nethttp.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (f *fakeFUT) html(body string) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(body))
	}
}

func (f *fakeFUT) jsonBody(body func() string) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Header.Get(sidHeader) == "" && !strings.HasSuffix(r.URL.Path, "accountinfo") {
			writeJSON(w, nethttp.StatusUnauthorized, `{}`)
			return
		}
		writeJSON(w, nethttp.StatusOK, body())
	}
}

func (f *fakeFUT) redirect(w nethttp.ResponseWriter, location string) {
	w.Header().Set("Location", location)
	w.WriteHeader(nethttp.StatusFound)
}

func (f *fakeFUT) redirectToCallback(w nethttp.ResponseWriter) {
	if f.badToken {
		f.redirect(w, "/auth.html#error=access_denied")
		return
	}
	f.redirect(w, "/auth.html#access_token="+testToken+"&token_type=Bearer&expires_in=3600")
}

func (f *fakeFUT) connectAuth(w nethttp.ResponseWriter, r *nethttp.Request) {
	q := r.URL.Query()
	if q.Get("client_id") == "FOS-SERVER" {
		if q.Get("access_token") != testToken || q.Get("redirect_uri") != "nucleus:rest" {
			writeJSON(w, nethttp.StatusForbidden, `{"error":"invalid_token"}`)
			return
		}
		writeJSON(w, nethttp.StatusOK, `{"code":"`+testAuthCode+`"}`)
		return
	}

	if q.Get("client_id") != clientID || q.Get("redirect_uri") != f.callback() || q.Get("scope") != "basic.identity offline signin" {
		w.WriteHeader(nethttp.StatusBadRequest)
		return
	}
	if f.shortcut {
		f.redirect(w, "/auth.html")
		return
	}
	f.redirect(w, "/p/login?execution=e1s1")
}

func (f *fakeFUT) loginPage(w nethttp.ResponseWriter, r *nethttp.Request) {
	execution := r.URL.Query().Get("execution")

	if r.Method == nethttp.MethodGet {
		switch {
		case r.URL.Query().Get("_eventId") == "end" && f.verify:
			f.redirect(w, "/p/login?execution=e1s3")
		case r.URL.Query().Get("_eventId") == "end":
			f.redirectToCallback(w)
		case execution == "e1s3":
			f.html(`<html><title>Login Verification</title><form>Send code</form></html>`)(w, r)
		default:
			f.html(`<html><form id="login-form"></form></html>`)(w, r)
		}
		return
	}

	if err := r.ParseForm(); err != nil {
		w.WriteHeader(nethttp.StatusBadRequest)
		return
	}
	switch execution {
	case "e1s1":
		if r.PostForm.Get("email") != testEmail || r.PostForm.Get("password") != testPassword {
			f.html(loginFailedPage)(w, r)
			return
		}
		nethttp.SetCookie(w, &nethttp.Cookie{Name: "remid", Value: "r3m", Path: "/"})
		f.html(`<script>var redirectUri = '/p/login?execution=e1s1&_eventId=end';</script>`)(w, r)
	case "e1s3":
		if r.PostForm.Get("codeType") != "EMAIL" {
			w.WriteHeader(nethttp.StatusBadRequest)
			return
		}
		f.html(`<html><h1>Login Verification</h1><p>Enter your security code</p></html>`)(w, r)
	case "e1s4":
		if r.PostForm.Get("oneTimeCode") != f.expectCode || r.PostForm.Get("trustThisDevice") != "on" {
			w.WriteHeader(nethttp.StatusBadRequest)
			return
		}
		f.redirectToCallback(w)
	default:
		w.WriteHeader(nethttp.StatusNotFound)
	}
}

func (f *fakeFUT) identity(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Header.Get("Authorization") != "Bearer "+testToken {
		writeJSON(w, nethttp.StatusUnauthorized, `{}`)
		return
	}
	writeJSON(w, nethttp.StatusOK, `{"pid":{"externalRefValue":`+testNucleusID+`,"dob":"1990-01"}}`)
}

func (f *fakeFUT) shards(w nethttp.ResponseWriter, r *nethttp.Request) {
	if f.shardsStatus != 0 {
		writeJSON(w, f.shardsStatus, `{}`)
		return
	}
	writeJSON(w, nethttp.StatusOK, `{"shardInfo":[{"shardId":"2"}]}`)
}

func (f *fakeFUT) auth(w nethttp.ResponseWriter, r *nethttp.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, nethttp.StatusBadRequest, `{}`)
		return
	}
	if req.Identification.AuthCode != testAuthCode || req.NucleusPersonaID != testPersonaID || req.GameSKU != "FFA19PS4" {
		writeJSON(w, nethttp.StatusBadRequest, `{"reason":"bad request"}`)
		return
	}
	switch {
	case f.authStatus != 0:
		writeJSON(w, f.authStatus, `{}`)
	case f.authReason != "":
		writeJSON(w, nethttp.StatusForbidden, `{"reason":"`+f.authReason+`"}`)
	default:
		writeJSON(w, nethttp.StatusOK, `{"sid":"`+testSID+`","phishingToken":"`+testPhishing+`"}`)
	}
}

func (f *fakeFUT) pin(w nethttp.ResponseWriter, r *nethttp.Request) {
	var body struct {
		Events []map[string]any `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, nethttp.StatusBadRequest, `{"status":"error"}`)
		return
	}
	f.mu.Lock()
	f.events = append(f.events, body.Events...)
	f.mu.Unlock()
	writeJSON(w, nethttp.StatusOK, `{"status":"ok"}`)
}

func (f *fakeFUT) credits(w nethttp.ResponseWriter, r *nethttp.Request) {
	if f.creditsCode != 0 {
		writeJSON(w, f.creditsCode, `{}`)
		return
	}
	if r.Header.Get(sidHeader) != testSID {
		writeJSON(w, nethttp.StatusUnauthorized, `{}`)
		return
	}
	writeJSON(w, nethttp.StatusOK, `{"credits":1500}`)
}
