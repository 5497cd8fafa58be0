package futapi

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	pinTimeout = 10 * time.Second
	pinRelease = "prod"
	pinPlat    = "web"
	pinLocale  = "en_US"
)

// pinVars are the tracking identifiers the web app ships in its bundle.
var pinVars = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"taxv", regexp.MustCompile(`taxv:"(.+?)"`)},
	{"tidt", regexp.MustCompile(`tidt:"(.+?)"`)},
	{"sku", regexp.MustCompile(`enums\.SKU\.FUT="(.+?)"`)},
	{"gid", regexp.MustCompile(`gid:([0-9]+)`)},
	{"et", regexp.MustCompile(`et:"(.+?)"`)},
	{"pidt", regexp.MustCompile(`pidt:"(.+?)"`)},
	{"v", regexp.MustCompile(`APP_VERSION="(.+?)"`)},
}

// PinConfig identifies the account a Pin reports for.
type PinConfig struct {
	SID       string
	NucleusID string
	PersonaID int64
	DOB       string
	Platform  string
	Endpoints Endpoints
	Logger    *zap.Logger
	// HTTP overrides the resty client, mostly for tests.
	HTTP *resty.Client
}

// Event is one analytics record.
type Event map[string]any

// EventOpts are the optional per-event fields.
type EventOpts struct {
	PageID    string
	Status    string
	Source    string
	EndReason string
}

// Pin sends analytics events for one authenticated session. Every built
// event takes the next sequence number.
type Pin struct {
	cfg    PinConfig
	http   *resty.Client
	logger *zap.Logger
	now    func() time.Time

	s      int
	vars   map[string]string
	custom map[string]string
}

func NewPin(cfg PinConfig) *Pin {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	client := cfg.HTTP
	if client == nil {
		client = resty.New().SetTimeout(pinTimeout)
	}

	platform := cfg.Platform
	if len(platform) > 3 {
		platform = platform[:3]
	}

	return &Pin{
		cfg:    cfg,
		http:   client,
		logger: logger.Named("pin"),
		now:    time.Now,
		s:      2,
		vars:   map[string]string{},
		custom: map[string]string{
			"networkAccess": "G",
			"service_plat":  platform,
		},
	}
}

// Init reads the tracking identifiers from the web app bundle and sets the
// headers every send carries.
func (p *Pin) Init(ctx context.Context) error {
	res, err := p.http.R().SetContext(ctx).Get(p.cfg.Endpoints.PinScript)
	if err != nil {
		return fmt.Errorf("failed to fetch pin script: %w", err)
	}
	if res.IsError() {
		return fmt.Errorf("failed to fetch pin script: status %d", res.StatusCode())
	}

	script := res.String()
	for _, v := range pinVars {
		m := v.pattern.FindStringSubmatch(script)
		if m == nil {
			return fmt.Errorf("%w: pin variable %s not found", ErrUnexpectedResponse, v.name)
		}
		p.vars[v.name] = m[1]
	}

	p.http.SetHeaders(map[string]string{
		"Origin":            "https://www.easports.com",
		"Referer":           p.cfg.Endpoints.WebApp,
		"x-ea-game-id":      p.vars["sku"],
		"x-ea-game-id-type": p.vars["tidt"],
		"x-ea-taxv":         p.vars["taxv"],
	})
	return nil
}

// Sequence returns the number the next event will carry.
func (p *Pin) Sequence() int {
	return p.s
}

// Event builds the record named en.
func (p *Pin) Event(en string, opts EventOpts) Event {
	core := map[string]any{
		"s":        p.s,
		"pidt":     p.vars["pidt"],
		"pid":      p.cfg.PersonaID,
		"pidm":     map[string]any{"nucleus": p.cfg.NucleusID},
		"didm":     map[string]any{"uuid": "0"},
		"ts_event": p.timestamp(),
		"en":       en,
	}
	if p.cfg.DOB != "" {
		core["dob"] = p.cfg.DOB
	}

	ev := Event{"core": core}
	if opts.PageID != "" {
		ev["pgid"] = opts.PageID
	}
	if opts.Status != "" {
		ev["status"] = opts.Status
	}
	if opts.Source != "" {
		ev["source"] = opts.Source
	}
	if opts.EndReason != "" {
		ev["end_reason"] = opts.EndReason
	}

	switch en {
	case "login":
		ev["type"] = "utas"
		ev["userid"] = p.cfg.PersonaID
	case "page_view":
		ev["type"] = "menu"
	case "error":
		ev["server_type"] = "utas"
		ev["errid"] = "server_error"
		ev["type"] = "disconnect"
		ev["sid"] = p.cfg.SID
	}

	p.s++
	return ev
}

// PageView is shorthand for a page_view event.
func (p *Pin) PageView(page string) Event {
	return p.Event("page_view", EventOpts{PageID: page})
}

type pinAck struct {
	Status string `json:"status"`
}

// Send posts events in one batch. The collector must answer status "ok".
func (p *Pin) Send(ctx context.Context, events ...Event) error {
	body := map[string]any{
		"taxv":    p.vars["taxv"],
		"tidt":    p.vars["tidt"],
		"tid":     p.vars["sku"],
		"rel":     pinRelease,
		"v":       p.vars["v"],
		"ts_post": p.timestamp(),
		"sid":     p.cfg.SID,
		"gid":     p.vars["gid"],
		"plat":    pinPlat,
		"et":      p.vars["et"],
		"loc":     pinLocale,
		"is_sess": p.cfg.SID != "",
		"custom":  p.custom,
		"events":  events,
	}

	var ack pinAck
	res, err := p.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&ack).
		Post(p.cfg.Endpoints.PinURL)
	if err != nil {
		return fmt.Errorf("failed to send pin events: %w", err)
	}
	if res.IsError() || ack.Status != "ok" {
		return fmt.Errorf("%w (status %d, ack %q)", ErrBeaconAck, res.StatusCode(), ack.Status)
	}
	return nil
}

// Emit sends events and only logs failures. Safe on a nil Pin.
func (p *Pin) Emit(ctx context.Context, events ...Event) {
	if p == nil || len(events) == 0 {
		return
	}
	if err := p.Send(ctx, events...); err != nil {
		p.logger.Warn("pin events not delivered", zap.Int("events", len(events)), zap.Error(err))
	}
}

func (p *Pin) timestamp() string {
	return p.now().UTC().Format("2006-01-02T15:04:05.000Z")
}
