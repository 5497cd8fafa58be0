package futapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"futapi/session"

	http "github.com/bogdanfinn/fhttp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	nucleusHeader  = "Easw-Session-Data-Nucleus-Id"
	sidHeader      = "X-UT-SID"
	phishingHeader = "X-UT-PHISHING-TOKEN"

	defaultShardTimeout   = 5 * time.Second
	defaultPersonaTimeout = 5 * time.Second
)

// Credentials are the account details a login starts from.
type Credentials struct {
	Email    string
	Password string
	Secret   string
	// Code is an optional backup code offered when the device must be verified.
	Code     string
	Platform string
}

// Step is a stage of the login handshake.
type Step int

const (
	StepIdle Step = iota
	StepCheckState
	StepSubmitCredentials
	StepCheckDeviceState
	StepRequestVerificationCode
	StepSubmitVerificationCode
	StepExtractAccessToken
	StepFetchShards
	StepFetchPersonas
	StepAuthorize
	StepFetchUserInfo
	StepAuthenticated
)

var stepNames = map[Step]string{
	StepIdle:                    "idle",
	StepCheckState:              "check_state",
	StepSubmitCredentials:       "submit_credentials",
	StepCheckDeviceState:        "check_device_state",
	StepRequestVerificationCode: "request_verification_code",
	StepSubmitVerificationCode:  "submit_verification_code",
	StepExtractAccessToken:      "extract_access_token",
	StepFetchShards:             "fetch_shards",
	StepFetchPersonas:           "fetch_personas",
	StepAuthorize:               "authorize",
	StepFetchUserInfo:           "fetch_user_info",
	StepAuthenticated:           "authenticated",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "step(" + strconv.Itoa(int(s)) + ")"
}

// AuthInfo holds the tokens and identifiers a login produced.
type AuthInfo struct {
	AccessToken   string `json:"access_token"`
	TokenType     string `json:"token_type"`
	NucleusID     string `json:"nucleus_id"`
	PersonaID     int64  `json:"persona_id"`
	PhishingToken string `json:"phishing_token"`
	SessionID     string `json:"session_id"`
	DOB           string `json:"dob"`
}

// UserInfo is stored in the session under session.KeyUserInfo.
type UserInfo struct {
	Email    string          `json:"email"`
	MassInfo json.RawMessage `json:"__usermassinfo"`
	Settings json.RawMessage `json:"settings,omitempty"`
	Credits  int64           `json:"credits"`
	// Pile sizes as reported at login.
	TradepileSize int      `json:"tradepile_size"`
	WatchlistSize int      `json:"watchlist_size"`
	Auth          AuthInfo `json:"auth"`
}

// LoginResult describes how a login ended.
type LoginResult struct {
	// Shortcut is set when the accounts site already considered the browser
	// signed in and nothing else was done.
	Shortcut bool
	UserInfo *UserInfo
	Pin      *Pin
}

// AuthenticatorConfig configures one login attempt.
type AuthenticatorConfig struct {
	Credentials Credentials
	Platform    Platform
	Endpoints   Endpoints
	Profile     *BrowserProfile
	Codes       CodeProvider
	Store       *session.Store
	// Pipeline sends the closing keepalive. One is built when nil.
	Pipeline *Pipeline
	// Pin is reused instead of building a new one when set.
	Pin    *Pin
	Logger *zap.Logger

	ShardTimeout   time.Duration
	PersonaTimeout time.Duration
}

// Authenticator walks the login handshake. The session store is only
// written once every step has succeeded.
type Authenticator struct {
	client HTTPClient
	cfg    AuthenticatorConfig
	logger *zap.Logger

	step    Step
	headers *Headers

	code          string
	token         accessToken
	nucleusID     string
	dob           string
	personaID     int64
	sid           string
	phishingToken string
	pin           *Pin
}

func NewAuthenticator(client HTTPClient, cfg AuthenticatorConfig) *Authenticator {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Profile == nil {
		cfg.Profile = DefaultProfile
	}
	if cfg.Codes == nil {
		cfg.Codes = StaticCode
	}
	if cfg.Store == nil {
		cfg.Store = session.Default
	}
	if cfg.Pipeline == nil {
		cfg.Pipeline = NewPipeline(client, cfg.Store, cfg.Endpoints, 0, cfg.Logger)
	}
	if cfg.ShardTimeout == 0 {
		cfg.ShardTimeout = defaultShardTimeout
	}
	if cfg.PersonaTimeout == 0 {
		cfg.PersonaTimeout = defaultPersonaTimeout
	}

	return &Authenticator{
		client:  client,
		cfg:     cfg,
		logger:  cfg.Logger.Named("login"),
		headers: webHeaders(cfg.Profile),
		code:    cfg.Credentials.Code,
	}
}

// Step returns the last step the handshake entered.
func (a *Authenticator) Step() Step {
	return a.step
}

func (a *Authenticator) enter(step Step, msg string) {
	a.step = step
	a.logger.Info(msg, zap.String("step", fmt.Sprintf("%d/10", int(step))))
}

// Login runs the handshake from the start. Any error aborts it; headers and
// cookies mutated so far are not rolled back.
func (a *Authenticator) Login(ctx context.Context) (*LoginResult, error) {
	a.logger = a.cfg.Logger.Named("login").With(
		zap.String("attempt", uuid.New().String()[:8]),
		zap.String("platform", a.cfg.Platform.Name),
	)

	uri, err := a.checkState(ctx)
	if err != nil {
		return nil, fmt.Errorf("check state: %w", err)
	}
	if uri == a.cfg.Endpoints.AuthCallback {
		a.step = StepAuthenticated
		a.logger.Info("already signed in")
		return &LoginResult{Shortcut: true}, nil
	}

	callbackURI, err := a.submitCredentials(ctx, uri)
	if err != nil {
		return nil, err
	}
	if err := a.extractAccessToken(ctx, callbackURI); err != nil {
		return nil, err
	}
	if err := a.fetchShards(ctx); err != nil {
		return nil, err
	}
	if err := a.fetchPersonas(ctx); err != nil {
		return nil, err
	}
	if err := a.authorize(ctx); err != nil {
		return nil, err
	}
	info, err := a.fetchUserInfo(ctx)
	if err != nil {
		return nil, err
	}

	a.step = StepAuthenticated
	a.logger.Info("logged in", zap.Int64("persona", a.personaID), zap.Int64("credits", info.Credits))
	return &LoginResult{UserInfo: info, Pin: a.pin}, nil
}

func (a *Authenticator) get(ctx context.Context, rawURL string) (*page, error) {
	return fetch(ctx, a.client, a.logger, http.MethodGet, rawURL, a.headers, nil)
}

// checkState probes the authorize endpoint and returns where it redirected.
func (a *Authenticator) checkState(ctx context.Context) (string, error) {
	a.enter(StepCheckState, "checking current state")
	e := a.cfg.Endpoints

	query := url.Values{
		"prompt":        {"login"},
		"accessToken":   {"null"},
		"client_id":     {clientID},
		"response_type": {"token"},
		"display":       {"web2/login"},
		"locale":        {"en_US"},
		"redirect_uri":  {e.AuthCallback},
		"release_type":  {"prod"},
		"scope":         {"basic.identity offline signin"},
	}
	a.headers.Set("Referer", e.WebApp)

	pg, err := a.get(ctx, withQuery(e.AccountsAuth, query))
	if err != nil {
		return "", err
	}
	return pg.URL, nil
}

// submitCredentials posts the login form and follows the device and
// verification branches. It returns the URL carrying the access token.
func (a *Authenticator) submitCredentials(ctx context.Context, uri string) (string, error) {
	a.enter(StepSubmitCredentials, "sending credentials")

	form := url.Values{
		"email":              {a.cfg.Credentials.Email},
		"password":           {a.cfg.Credentials.Password},
		"country":            {"US"},
		"phoneNumber":        {""},
		"passwordForPhone":   {""},
		"gCaptchaResponse":   {""},
		"isPhoneNumberLogin": {"false"},
		"isIncompletePhone":  {""},
		"_rememberMe":        {"on"},
		"rememberMe":         {"on"},
		"_eventId":           {"submit"},
	}
	a.headers.Set("Referer", uri)

	pg, err := fetchForm(ctx, a.client, a.logger, uri, a.headers, form)
	if err != nil {
		return "", fmt.Errorf("submit credentials: %w", err)
	}

	switch classifyLogin(pg.String()) {
	case loginRejected:
		return "", &LoginError{Reason: loginFailureReason(pg.String())}
	case loginCaptcha:
		return "", fmt.Errorf("submit credentials: %w", ErrCaptchaRequired)
	case loginRedirect:
		return a.checkDeviceState(ctx, withQuery(pg.URL, url.Values{"_eventId": {"end"}}))
	default:
		return pg.URL, nil
	}
}

func (a *Authenticator) checkDeviceState(ctx context.Context, endURL string) (string, error) {
	a.enter(StepCheckDeviceState, "validating current device")

	pg, err := a.get(ctx, endURL)
	if err != nil {
		return "", fmt.Errorf("check device state: %w", err)
	}

	switch state := ClassifyPage(pg.String()); state {
	case FlowVerificationRequired:
		return a.requestVerificationCode(ctx, pg.URL)
	case FlowCaptchaRequired:
		return "", fmt.Errorf("check device state: %w", ErrCaptchaRequired)
	default:
		a.logger.Debug("device state", zap.Stringer("flow", state))
		return pg.URL, nil
	}
}

func (a *Authenticator) requestVerificationCode(ctx context.Context, uri string) (string, error) {
	a.enter(StepRequestVerificationCode, "requesting verification code")

	form := url.Values{
		"codeType": {"EMAIL"},
		"_eventId": {"submit"},
	}
	pg, err := fetchForm(ctx, a.client, a.logger, uri, a.headers, form)
	if err != nil {
		return "", fmt.Errorf("request verification code: %w", err)
	}

	if !asksForCode(pg.String()) {
		if hasCaptcha(pg.String()) {
			return "", fmt.Errorf("request verification code: %w", ErrCaptchaRequired)
		}
		return pg.URL, nil
	}
	return a.submitVerificationCode(ctx, uri)
}

func (a *Authenticator) submitVerificationCode(ctx context.Context, uri string) (string, error) {
	a.enter(StepSubmitVerificationCode, "sending verification code")

	code, err := a.cfg.Codes.VerificationCode(ctx, a.code)
	if err != nil {
		return "", fmt.Errorf("read verification code: %w", err)
	}
	if code = strings.TrimSpace(code); code == "" {
		return "", ErrMissingVerificationCode
	}
	a.code = code

	form := url.Values{
		"oneTimeCode":      {code},
		"_trustThisDevice": {"on"},
		"trustThisDevice":  {"on"},
		"_eventId":         {"submit"},
	}
	a.headers.Set("Referer", uri)

	// The code form lives one flow step further than the page that asked
	// for it.
	pg, err := fetchForm(ctx, a.client, a.logger, strings.Replace(uri, "s3", "s4", 1), a.headers, form)
	if err != nil {
		return "", fmt.Errorf("submit verification code: %w", err)
	}
	return pg.URL, nil
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type identityResponse struct {
	PID struct {
		ExternalRefValue flexString `json:"externalRefValue"`
		DOB              string     `json:"dob"`
	} `json:"pid"`
}

func (a *Authenticator) extractAccessToken(ctx context.Context, uri string) error {
	a.enter(StepExtractAccessToken, "getting access token")
	e := a.cfg.Endpoints

	token, err := extractAccessToken(e.AuthCallback, uri)
	if err != nil {
		return err
	}
	a.token = token

	if _, err := fetch(ctx, a.client, a.logger, http.MethodGet, e.WebApp, nil, nil); err != nil {
		return fmt.Errorf("load web app: %w", err)
	}

	a.headers.Set("Referer", e.WebApp)
	a.headers.Set("Accept", "application/json")
	a.headers.Set("Authorization", token.Type+" "+token.Token)

	pg, err := a.get(ctx, e.IdentityMe)
	if err != nil {
		return fmt.Errorf("fetch identity: %w", err)
	}
	if !pg.ok() {
		return fmt.Errorf("%w: identity returned status %d", ErrTokenExtraction, pg.StatusCode)
	}

	var me identityResponse
	if err := pg.decode(&me); err != nil {
		return fmt.Errorf("%w: %w", ErrTokenExtraction, err)
	}
	if me.PID.ExternalRefValue == "" {
		return fmt.Errorf("%w: identity has no nucleus id", ErrTokenExtraction)
	}
	a.nucleusID = string(me.PID.ExternalRefValue)
	a.dob = me.PID.DOB

	a.headers.Del("Authorization")
	a.headers.Set(nucleusHeader, a.nucleusID)
	return nil
}

func (a *Authenticator) fetchShards(ctx context.Context) error {
	a.enter(StepFetchShards, "login completed, getting shards")

	ctx, cancel := context.WithTimeout(ctx, a.cfg.ShardTimeout)
	defer cancel()

	pg, err := a.get(ctx, a.cfg.Endpoints.hostURL(a.cfg.Endpoints.AuthHost, "ut/shards/v2"))
	if err != nil {
		return NewFatalError(fmt.Errorf("%w: %w", ErrShardsUnavailable, err))
	}
	if !pg.ok() {
		return NewFatalError(fmt.Errorf("%w: status %d", ErrShardsUnavailable, pg.StatusCode))
	}
	return nil
}

type persona struct {
	PersonaID    int64  `json:"personaId"`
	PersonaName  string `json:"personaName"`
	UserState    string `json:"userState"`
	UserClubList []struct {
		SkuAccessList map[string]json.RawMessage `json:"skuAccessList"`
	} `json:"userClubList"`
}

// grants reports whether any of the persona's clubs opens sku.
func (p persona) grants(sku string) bool {
	for _, club := range p.UserClubList {
		raw, ok := club.SkuAccessList[sku]
		if !ok {
			continue
		}
		switch strings.TrimSpace(string(raw)) {
		case "", "null", "false", "0", `""`:
			continue
		}
		return true
	}
	return false
}

type accountInfoResponse struct {
	UserAccountInfo struct {
		Personas []persona `json:"personas"`
	} `json:"userAccountInfo"`
}

// selectPersona returns the last persona entitled to sku. Only that
// persona's state is checked.
func selectPersona(personas []persona, sku string) (persona, error) {
	var (
		chosen persona
		found  bool
	)
	for _, p := range personas {
		if p.grants(sku) {
			chosen, found = p, true
		}
	}
	if !found {
		return persona{}, fmt.Errorf("%w (sku %s)", ErrNoPersonaFound, sku)
	}
	if chosen.UserState == expiredUserState {
		return chosen, ErrExpiredAccess
	}
	return chosen, nil
}

func (a *Authenticator) fetchPersonas(ctx context.Context) error {
	a.enter(StepFetchPersonas, "getting personas")

	ctx, cancel := context.WithTimeout(ctx, a.cfg.PersonaTimeout)
	defer cancel()

	query := url.Values{
		"filterConsoleLogin":    {"true"},
		"returningUserGameYear": {returningUserGameYear},
		"sku":                   {webSKU},
	}
	rawURL := a.cfg.Endpoints.hostURL(a.cfg.Platform.Host, gameURL+"/user/accountinfo")

	pg, err := a.get(ctx, withQuery(rawURL, query))
	if err != nil {
		return fmt.Errorf("fetch personas: %w", err)
	}
	if !pg.ok() {
		return fmt.Errorf("fetch personas: %w: status %d", ErrUnexpectedResponse, pg.StatusCode)
	}

	var info accountInfoResponse
	if err := pg.decode(&info); err != nil {
		return fmt.Errorf("fetch personas: %w", err)
	}

	p, err := selectPersona(info.UserAccountInfo.Personas, a.cfg.Platform.SKU)
	if err != nil {
		return err
	}
	a.personaID = p.PersonaID
	a.logger.Debug("persona selected", zap.Int64("persona", p.PersonaID), zap.String("name", p.PersonaName))
	return nil
}

type authIdentification struct {
	AuthCode    string `json:"authCode"`
	RedirectURL string `json:"redirectUrl"`
}

type authRequest struct {
	IsReadOnly       bool               `json:"isReadOnly"`
	SKU              string             `json:"sku"`
	ClientVersion    int                `json:"clientVersion"`
	NucleusPersonaID int64              `json:"nucleusPersonaId"`
	GameSKU          string             `json:"gameSku"`
	Locale           string             `json:"locale"`
	Method           string             `json:"method"`
	PriorityLevel    int                `json:"priorityLevel"`
	Identification   authIdentification `json:"identification"`
}

type authResponse struct {
	SID           string `json:"sid"`
	PhishingToken string `json:"phishingToken"`
	Reason        string `json:"reason"`
}

func (a *Authenticator) authorize(ctx context.Context) error {
	a.enter(StepAuthorize, "getting authorization")
	e := a.cfg.Endpoints

	a.headers.Del(nucleusHeader)
	a.headers.Set("Origin", e.Origin)

	query := url.Values{
		"client_id":     {"FOS-SERVER"},
		"redirect_uri":  {"nucleus:rest"},
		"response_type": {"code"},
		"access_token":  {a.token.Token},
	}
	pg, err := a.get(ctx, withQuery(e.AccountsAuth, query))
	if err != nil {
		return fmt.Errorf("request auth code: %w", err)
	}
	var codeResp struct {
		Code string `json:"code"`
	}
	if err := pg.decode(&codeResp); err != nil || codeResp.Code == "" {
		return fmt.Errorf("%w: no auth code (status %d)", ErrTokenExtraction, pg.StatusCode)
	}

	a.headers.Set("Content-Type", "application/json")
	body := authRequest{
		SKU:              webSKU,
		ClientVersion:    clientVersion,
		NucleusPersonaID: a.personaID,
		GameSKU:          a.cfg.Platform.SKU,
		Locale:           "en-US",
		Method:           "authcode",
		PriorityLevel:    4,
		Identification: authIdentification{
			AuthCode:    codeResp.Code,
			RedirectURL: "nucleus:rest",
		},
	}
	pg, err = fetchJSON(ctx, a.client, a.logger, http.MethodPost, e.hostURL(a.cfg.Platform.Host, "ut/auth"), a.headers, body)
	if err != nil {
		return fmt.Errorf("authorize: %w", err)
	}

	switch pg.StatusCode {
	case http.StatusUnauthorized:
		return ErrLoggedInElsewhere
	case http.StatusInternalServerError:
		return ErrBackendUnavailable
	}

	var res authResponse
	if len(strings.TrimSpace(pg.String())) > 0 {
		if err := pg.decode(&res); err != nil && pg.ok() {
			return fmt.Errorf("authorize: %w", err)
		}
	}
	if res.Reason != "" {
		return newAuthorizationError(res.Reason)
	}
	if !pg.ok() {
		return newAuthorizationError(fmt.Sprintf("status %d", pg.StatusCode))
	}
	if res.SID == "" {
		return fmt.Errorf("%w: no session id", ErrTokenExtraction)
	}

	a.sid = res.SID
	a.headers.Set(sidHeader, a.sid)

	a.pin = a.cfg.Pin
	if a.pin == nil {
		a.pin = NewPin(PinConfig{
			SID:       a.sid,
			NucleusID: a.nucleusID,
			PersonaID: a.personaID,
			DOB:       a.dob,
			Platform:  a.cfg.Platform.Name,
			Endpoints: e,
			Logger:    a.cfg.Logger,
		})
		if err := a.pin.Init(ctx); err != nil {
			a.logger.Warn("pin init failed", zap.Error(err))
		}
	}
	a.pin.Emit(ctx, a.pin.Event("login", EventOpts{PageID: "success"}))

	a.headers.Set(nucleusHeader, a.nucleusID)
	a.phishingToken = res.PhishingToken
	a.headers.Set(phishingHeader, a.phishingToken)
	return nil
}

type massInfo struct {
	PileSizeClientData struct {
		Entries []struct {
			Key   int `json:"key"`
			Value int `json:"value"`
		} `json:"entries"`
	} `json:"pileSizeClientData"`
}

// pileSizes reads the tradepile and watchlist sizes. They sit at entries 0
// and 2 of pileSizeClientData; the entry keys are not consulted.
func pileSizes(raw json.RawMessage) (tradepile, watchlist int, err error) {
	var info massInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	entries := info.PileSizeClientData.Entries
	if len(entries) < 3 {
		return 0, 0, fmt.Errorf("%w: pileSizeClientData has %d entries", ErrUnexpectedResponse, len(entries))
	}
	return entries[0].Value, entries[2].Value, nil
}

type creditsResponse struct {
	Credits int64 `json:"credits"`
}

func (a *Authenticator) fetchUserInfo(ctx context.Context) (*UserInfo, error) {
	a.enter(StepFetchUserInfo, "getting user information")
	e := a.cfg.Endpoints
	host := a.cfg.Platform.Host

	mass, err := a.get(ctx, e.hostURL(host, gameURL+"/usermassinfo"))
	if err != nil {
		return nil, fmt.Errorf("fetch usermassinfo: %w", err)
	}
	if !mass.ok() {
		return nil, fmt.Errorf("fetch usermassinfo: %w: status %d", ErrUnexpectedResponse, mass.StatusCode)
	}

	query := url.Values{"": {strconv.FormatInt(time.Now().UnixMilli(), 10)}}
	settings, err := a.get(ctx, withQuery(e.hostURL(host, gameURL+"/settings"), query))
	if err != nil {
		return nil, fmt.Errorf("fetch settings: %w", err)
	}

	tradepile, watchlist, err := pileSizes(mass.Body)
	if err != nil {
		return nil, fmt.Errorf("read pile sizes: %w", err)
	}

	a.pin.Emit(ctx, a.pin.PageView("Hub - Home"))
	a.pin.Emit(ctx,
		a.pin.Event("connection", EventOpts{}),
		a.pin.Event("boot_end", EventOpts{EndReason: "normal"}),
	)

	credits, err := a.keepalive(ctx)
	if err != nil {
		return nil, err
	}

	info := &UserInfo{
		Email:         a.cfg.Credentials.Email,
		MassInfo:      json.RawMessage(mass.Body),
		Credits:       credits,
		TradepileSize: tradepile,
		WatchlistSize: watchlist,
		Auth: AuthInfo{
			AccessToken:   a.token.Token,
			TokenType:     a.token.Type,
			NucleusID:     a.nucleusID,
			PersonaID:     a.personaID,
			PhishingToken: a.phishingToken,
			SessionID:     a.sid,
			DOB:           a.dob,
		},
	}
	if settings.ok() && json.Valid(settings.Body) {
		info.Settings = json.RawMessage(settings.Body)
	}

	a.cfg.Store.SaveAll(map[string]any{
		session.KeyHeaders:  a.headers.Clone(),
		session.KeyHost:     host,
		session.KeyUserInfo: *info,
	})
	return info, nil
}

// keepalive reads the coin balance with the headers built so far. Only the
// fatal trust conditions fail the login.
func (a *Authenticator) keepalive(ctx context.Context) (int64, error) {
	body, err := a.cfg.Pipeline.execute(ctx, target{host: a.cfg.Platform.Host, headers: a.headers}, Call{
		Method: http.MethodGet,
		Path:   "user/credits",
	})
	if err != nil {
		if IsFatalError(err) {
			return 0, err
		}
		a.logger.Warn("keepalive failed", zap.Error(err))
		return 0, nil
	}

	var res creditsResponse
	if err := decodeBody(body, &res); err != nil {
		a.logger.Warn("keepalive returned an unexpected body", zap.Error(err))
		return 0, nil
	}
	return res.Credits, nil
}
