package futapi

import (
	http "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
	"go.uber.org/zap"
)

// HTTPClient is the part of tls_client.HttpClient the handshake and the
// pipeline need. A plain *http.Client from fhttp also satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// BrowserProfile bundles a TLS client profile with its corresponding browser headers.
type BrowserProfile struct {
	TLSProfile profiles.ClientProfile
	UserAgent  string
	SecChUa    string
	Platform   string
	Mobile     string
}

const (
	Chrome133UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36"
	Chrome133SecChUa   = `"Not(A:Brand";v="99", "Google Chrome";v="133", "Chromium";v="133"`
)

// DefaultProfile is the browser profile used for new clients.
var DefaultProfile = &BrowserProfile{
	TLSProfile: profiles.Chrome_133,
	UserAgent:  Chrome133UserAgent,
	SecChUa:    Chrome133SecChUa,
	Platform:   `"Windows"`,
	Mobile:     "?0",
}

const clientTimeoutSeconds = 30

// NewClient builds a browser-fingerprinted client that follows redirects and
// stores cookies in jar.
func NewClient(logger *zap.Logger, proxyURL string, jar http.CookieJar) (tls_client.HttpClient, error) {
	return NewClientWithProfile(logger, proxyURL, jar, DefaultProfile.TLSProfile)
}

func NewClientWithProfile(logger *zap.Logger, proxyURL string, jar http.CookieJar, profile profiles.ClientProfile) (tls_client.HttpClient, error) {
	options := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(clientTimeoutSeconds),
		tls_client.WithClientProfile(profile),
		tls_client.WithRandomTLSExtensionOrder(),
	}
	if jar != nil {
		options = append(options, tls_client.WithCookieJar(jar))
	}
	if proxyURL != "" {
		options = append(options, tls_client.WithProxyUrl(proxyURL))
	}

	return tls_client.NewHttpClient(newTLSLogger(logger), options...)
}

// tlsLogger routes tls-client's printf-style logging into zap.
type tlsLogger struct {
	s *zap.SugaredLogger
}

func newTLSLogger(logger *zap.Logger) tls_client.Logger {
	if logger == nil {
		return tls_client.NewNoopLogger()
	}
	return tlsLogger{s: logger.Named("tls").Sugar()}
}

func (l tlsLogger) Debug(format string, args ...any) { l.s.Debugf(format, args...) }
func (l tlsLogger) Info(format string, args ...any)  { l.s.Infof(format, args...) }
func (l tlsLogger) Warn(format string, args ...any)  { l.s.Warnf(format, args...) }
func (l tlsLogger) Error(format string, args ...any) { l.s.Errorf(format, args...) }
