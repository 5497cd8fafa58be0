package futapi

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// The accounts site only signals its state through page markup, so every
// branch of the handshake is decided by the markers below.
const (
	markerLoginFailed       = `'successfulLogin': false`
	markerRedirectPending   = `var redirectUri`
	markerLoginVerification = `Login Verification`
	markerEnterCode         = `Enter your security code`
)

var captchaMarkers = []string{
	"funcaptcha",
	"arkoselabs",
	"g-recaptcha",
	"captcha-container",
}

// FlowState is what a handshake page asks for next.
type FlowState int

const (
	FlowUnknown FlowState = iota
	FlowNormal
	FlowVerificationRequired
	FlowCaptchaRequired
)

func (s FlowState) String() string {
	switch s {
	case FlowNormal:
		return "normal"
	case FlowVerificationRequired:
		return "verification_required"
	case FlowCaptchaRequired:
		return "captcha_required"
	default:
		return "unknown"
	}
}

// ClassifyPage decides which branch a device-check or verification page
// leads to.
func ClassifyPage(body string) FlowState {
	if strings.Contains(body, markerLoginVerification) || strings.Contains(body, markerEnterCode) {
		return FlowVerificationRequired
	}
	if hasCaptcha(body) {
		return FlowCaptchaRequired
	}
	if strings.TrimSpace(body) == "" {
		return FlowUnknown
	}
	return FlowNormal
}

// asksForCode reports whether a verification page wants the mailed code.
func asksForCode(body string) bool {
	return strings.Contains(body, markerEnterCode)
}

func hasCaptcha(body string) bool {
	lower := strings.ToLower(body)
	for _, m := range captchaMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

type loginOutcome int

const (
	loginAccepted loginOutcome = iota
	loginRedirect
	loginRejected
	loginCaptcha
)

func classifyLogin(body string) loginOutcome {
	switch {
	case strings.Contains(body, markerLoginFailed):
		return loginRejected
	case strings.Contains(body, markerRedirectPending):
		return loginRedirect
	case hasCaptcha(body):
		return loginCaptcha
	default:
		return loginAccepted
	}
}

const unknownLoginReason = "unknown reason"

// loginFailureReason pulls the message out of the login page's
// general-error block.
func loginFailureReason(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return unknownLoginReason
	}

	text := doc.Find(".general-error").First().Text()
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return unknownLoginReason
}

// accessToken is the pair carried in the callback URL fragment.
type accessToken struct {
	Token string
	Type  string
}

func tokenPattern(callback string) *regexp.Regexp {
	return regexp.MustCompile(regexp.QuoteMeta(callback) + `#access_token=(.+?)&token_type=(.+?)&expires_in=[0-9]+`)
}

// extractAccessToken reads access_token and token_type from a callback URL.
func extractAccessToken(callback, uri string) (accessToken, error) {
	m := tokenPattern(callback).FindStringSubmatch(uri)
	if m == nil {
		return accessToken{}, fmt.Errorf("%w: no access token in %q", ErrTokenExtraction, uri)
	}
	return accessToken{Token: m[1], Type: m[2]}, nil
}
