// Package cookiestore keeps a cookie jar on disk so a login survives process
// restarts.
package cookiestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"github.com/bogdanfinn/fhttp/cookiejar"
)

// storedCookie is the on-disk form of one cookie.
type storedCookie struct {
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
	HostOnly bool      `json:"host_only,omitempty"`
}

func (c storedCookie) expired(now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

// FileJar is an http.CookieJar backed by a JSON file. Cookies are indexed by
// domain, then name.
type FileJar struct {
	path string
	jar  *cookiejar.Jar
	now  func() time.Time

	mu      sync.Mutex
	cookies map[string]map[string]storedCookie
	err     error
}

// Open loads the jar stored at path. A missing file is created holding an
// empty object; failure to create it is returned immediately.
func Open(path string) (*FileJar, error) {
	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	j := &FileJar{
		path:    path,
		jar:     inner,
		now:     time.Now,
		cookies: make(map[string]map[string]storedCookie),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
			return nil, fmt.Errorf("failed to create cookie file: %w", err)
		}
		return j, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cookie file: %w", err)
	}

	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &j.cookies); err != nil {
			return nil, fmt.Errorf("failed to parse cookie file %s: %w", path, err)
		}
		if j.cookies == nil {
			j.cookies = make(map[string]map[string]storedCookie)
		}
	}
	j.replay()
	return j, nil
}

func (j *FileJar) replay() {
	now := j.now()
	for domain, byName := range j.cookies {
		for name, sc := range byName {
			if sc.expired(now) {
				delete(byName, name)
				continue
			}
			scheme := "http"
			if sc.Secure {
				scheme = "https"
			}
			c := &http.Cookie{
				Name:     name,
				Value:    sc.Value,
				Path:     sc.Path,
				Expires:  sc.Expires,
				Secure:   sc.Secure,
				HttpOnly: sc.HttpOnly,
			}
			if !sc.HostOnly {
				c.Domain = domain
			}
			j.jar.SetCookies(&url.URL{Scheme: scheme, Host: domain, Path: "/"}, []*http.Cookie{c})
		}
		if len(byName) == 0 {
			delete(j.cookies, domain)
		}
	}
}

// SetCookies records cookies for u and rewrites the backing file.
func (j *FileJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.jar.SetCookies(u, cookies)

	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	for _, c := range cookies {
		domain, hostOnly := u.Hostname(), true
		if c.Domain != "" {
			domain, hostOnly = strings.TrimPrefix(strings.ToLower(c.Domain), "."), false
		}

		sc := storedCookie{
			Value:    c.Value,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
			HostOnly: hostOnly,
		}
		if c.MaxAge > 0 {
			sc.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}

		if c.MaxAge < 0 || sc.expired(now) {
			if byName, ok := j.cookies[domain]; ok {
				delete(byName, c.Name)
				if len(byName) == 0 {
					delete(j.cookies, domain)
				}
			}
			continue
		}

		if j.cookies[domain] == nil {
			j.cookies[domain] = make(map[string]storedCookie)
		}
		j.cookies[domain][c.Name] = sc
	}

	j.err = j.writeLocked()
}

func (j *FileJar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

// Save writes the current cookies to disk.
func (j *FileJar) Save() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.err = j.writeLocked()
	return j.err
}

// Err returns the error of the most recent write, if any.
func (j *FileJar) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Len reports how many cookies are stored.
func (j *FileJar) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := 0
	for _, byName := range j.cookies {
		n += len(byName)
	}
	return n
}

func (j *FileJar) writeLocked() error {
	data, err := json.MarshalIndent(j.cookies, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(j.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write cookie file: %w", err)
	}
	return nil
}
