package commands

import (
	"context"
	"errors"
	"os"

	"futapi"

	"go.uber.org/zap"
)

var errNoGameSession = errors.New("the accounts site reports an existing sign-in but no game session was opened; remove the cookie file and sign in again")

// session signs in and requires a game session to have been opened.
func session(ctx context.Context) (*futapi.Client, error) {
	client, res, err := signIn(ctx)
	if err != nil {
		return nil, err
	}
	if res.Shortcut {
		return nil, errNoGameSession
	}
	return client, nil
}

// signIn logs in, retrying the whole handshake on transport failures. Each
// retry moves to the next proxy when a proxy list is configured.
func signIn(ctx context.Context) (*futapi.Client, *futapi.LoginResult, error) {
	var proxies *futapi.ProxyManager
	if cfg.ProxyFile != "" {
		var err error
		proxies, err = futapi.NewProxyManager(cfg.ProxyFile, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("loaded proxies", zap.Int("count", proxies.Count()))
	}

	opts := futapi.Options{
		Credentials: futapi.Credentials{
			Email:    cfg.Email,
			Password: cfg.Password,
			Secret:   cfg.Secret,
			Code:     cfg.Code,
			Platform: cfg.Platform,
		},
		CookieFile:   cfg.CookieFile,
		MinDelay:     cfg.MinDelay,
		CodeProvider: futapi.NewPromptCode(os.Stdin, os.Stderr),
		Logger:       logger,
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.LoginAttempts; attempt++ {
		if proxies != nil {
			proxy := pickProxy(proxies, attempt)
			opts.ProxyURL = proxy.URL
			logger.Info("using proxy", zap.String("proxy", proxy.Display), zap.Int("attempt", attempt))
		}

		client, err := futapi.New(opts)
		if err != nil {
			return nil, nil, err
		}

		res, err := client.Login(ctx)
		if err == nil {
			return client, res, nil
		}
		lastErr = err

		if futapi.IsFatalError(err) || !futapi.IsRetryableError(err) {
			return nil, nil, err
		}
		logger.Warn("login failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
	}
	return nil, nil, lastErr
}

// pickProxy starts from a random proxy and walks the list on retries.
func pickProxy(proxies *futapi.ProxyManager, attempt int) futapi.Proxy {
	if attempt == 1 {
		return proxies.Random()
	}
	return proxies.Rotate()
}
