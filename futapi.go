// Package futapi drives the FUT web app: it signs an account in through the
// accounts site and then talks to the game backend on its behalf.
package futapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"futapi/cookiestore"
	"futapi/session"

	"go.uber.org/zap"
)

// DefaultCookieFile is where cookies persist when Options.CookieFile is empty.
const DefaultCookieFile = "cookies.json"

// Options configures a Client.
type Options struct {
	Credentials Credentials
	// CookieFile persists the accounts site cookies between runs. Ignored
	// when HTTPClient is set.
	CookieFile string
	ProxyURL   string
	// Host replaces the platform's backend host.
	Host string
	// MinDelay is waited before every backend call.
	MinDelay time.Duration

	// Endpoints defaults to DefaultEndpoints when Scheme is empty.
	Endpoints    Endpoints
	Profile      *BrowserProfile
	CodeProvider CodeProvider
	Logger       *zap.Logger

	// HTTPClient replaces the browser client. It must keep cookies itself.
	HTTPClient HTTPClient
	// Store defaults to a fresh store owned by the client.
	Store *session.Store
}

// Client is a signed-in FUT account.
type Client struct {
	opts     Options
	platform Platform
	client   HTTPClient
	jar      *cookiestore.FileJar
	store    *session.Store
	pipeline *Pipeline
	pin      *Pin
	logger   *zap.Logger
}

func New(opts Options) (*Client, error) {
	platform, err := ResolvePlatform(opts.Credentials.Platform)
	if err != nil {
		return nil, err
	}

	if opts.Host != "" {
		platform.Host = opts.Host
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Endpoints.Scheme == "" {
		opts.Endpoints = DefaultEndpoints()
	}
	if opts.Profile == nil {
		opts.Profile = DefaultProfile
	}
	if opts.Store == nil {
		opts.Store = session.New()
	}

	c := &Client{
		opts:     opts,
		platform: platform,
		client:   opts.HTTPClient,
		store:    opts.Store,
		logger:   opts.Logger,
	}

	if c.client == nil {
		path := opts.CookieFile
		if path == "" {
			path = DefaultCookieFile
		}
		c.jar, err = cookiestore.Open(path)
		if err != nil {
			return nil, err
		}
		c.client, err = NewClientWithProfile(opts.Logger, opts.ProxyURL, c.jar, opts.Profile.TLSProfile)
		if err != nil {
			return nil, fmt.Errorf("failed to create http client: %w", err)
		}
	}

	c.pipeline = NewPipeline(c.client, c.store, opts.Endpoints, opts.MinDelay, opts.Logger)
	return c, nil
}

// Login runs the sign-in handshake. The first beacon it creates is kept for
// the life of the client.
func (c *Client) Login(ctx context.Context) (*LoginResult, error) {
	auth := NewAuthenticator(c.client, AuthenticatorConfig{
		Credentials: c.opts.Credentials,
		Platform:    c.platform,
		Endpoints:   c.opts.Endpoints,
		Profile:     c.opts.Profile,
		Codes:       c.opts.CodeProvider,
		Store:       c.store,
		Pipeline:    c.pipeline,
		Pin:         c.pin,
		Logger:      c.logger,
	})

	res, err := auth.Login(ctx)
	if c.jar != nil {
		if saveErr := c.jar.Save(); saveErr != nil {
			c.logger.Warn("failed to save cookies", zap.Error(saveErr))
		}
	}
	if err != nil {
		c.logger.Error("login failed", zap.Stringer("step", auth.Step()), zap.Error(err))
		return nil, err
	}

	if c.pin == nil && res.Pin != nil {
		c.pin = res.Pin
	}
	return res, nil
}

// Credits returns the coin balance last seen by the client.
func (c *Client) Credits() (int64, error) {
	info, err := session.Get[UserInfo](c.store, session.KeyUserInfo)
	if errors.Is(err, session.ErrNotFound) {
		return 0, ErrNotAuthenticated
	}
	if err != nil {
		return 0, err
	}
	return info.Credits, nil
}

// Execute sends a raw backend call through the client's pipeline.
func (c *Client) Execute(ctx context.Context, call Call) (json.RawMessage, error) {
	return c.pipeline.Execute(ctx, call)
}

func (c *Client) Platform() Platform { return c.platform }

func (c *Client) Store() *session.Store { return c.store }

// Pin returns the beacon, nil before the first full login.
func (c *Client) Pin() *Pin { return c.pin }

// Halted reports the fatal condition that stopped backend calls, if any.
func (c *Client) Halted() error { return c.pipeline.Halted() }
