package futapi

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// clientID identifies the web app to the accounts service.
	clientID = "FIFA-19-WEBCLIENT"
	// webSKU is the SKU the web app presents; the platform SKU is separate.
	webSKU        = "FUT19WEB"
	clientVersion = 1

	// gameURL prefixes every pipeline path.
	gameURL = "ut/game/fifa19"

	returningUserGameYear = "2018"
	expiredUserState      = "RETURNING_USER_EXPIRED"
)

// Platform maps a console name to the backend host and SKU it logs into.
type Platform struct {
	Name string
	Host string
	SKU  string
}

var platforms = map[string]Platform{
	"pc":   {Name: "pc", Host: "utas.external.s2.fut.ea.com:443", SKU: "FFA19PCC"},
	"ps3":  {Name: "ps3", Host: "utas.external.s2.fut.ea.com:443", SKU: "FFA19PS3"},
	"ps4":  {Name: "ps4", Host: "utas.external.s2.fut.ea.com:443", SKU: "FFA19PS4"},
	"xbox": {Name: "xbox", Host: "utas.external.s3.fut.ea.com:443", SKU: "FFA19XBO"},
}

// ResolvePlatform returns the host/SKU pair for name.
func ResolvePlatform(name string) (Platform, error) {
	p, ok := platforms[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Platform{}, fmt.Errorf("%w %q (expected one of %s)", ErrUnknownPlatform, name, strings.Join(PlatformNames(), ", "))
	}
	return p, nil
}

// PlatformNames lists the supported platform names in sorted order.
func PlatformNames() []string {
	names := make([]string, 0, len(platforms))
	for name := range platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Endpoints holds every URL the handshake and beacon talk to. Tests point
// these at a local server.
type Endpoints struct {
	// Scheme used for the backend hosts (Platform.Host and AuthHost).
	Scheme       string
	AccountsAuth string
	AuthCallback string
	WebApp       string
	IdentityMe   string
	AuthHost     string
	Origin       string
	PinURL       string
	PinScript    string
}

// DefaultEndpoints returns the production endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Scheme:       "https",
		AccountsAuth: "https://accounts.ea.com/connect/auth",
		AuthCallback: "https://www.easports.com/fifa/ultimate-team/web-app/auth.html",
		WebApp:       "https://www.easports.com/fifa/ultimate-team/web-app/",
		IdentityMe:   "https://gateway.ea.com/proxy/identity/pids/me",
		AuthHost:     "utas.mob.v4.fut.ea.com:443",
		Origin:       "http://www.easports.com",
		PinURL:       "https://pin-river.data.ea.com/pinEvents",
		PinScript:    "https://www.easports.com/fifa/ultimate-team/web-app/js/compiled_1.js",
	}
}

func (e Endpoints) hostURL(host, path string) string {
	return fmt.Sprintf("%s://%s/%s", e.Scheme, host, strings.TrimPrefix(path, "/"))
}

// webHeaders seeds the handshake headers.
func webHeaders(profile *BrowserProfile) *Headers {
	h := NewHeaders()
	h.Set("User-Agent", profile.UserAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Encoding", "gzip,deflate,sdch, br")
	h.Set("Accept-Language", "en-US,en;q=0.8")
	h.Set("DNT", "1")
	return h
}
