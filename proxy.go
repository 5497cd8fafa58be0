package futapi

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"net/url"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Proxy is one entry of a proxy list.
type Proxy struct {
	// URL is normalized to http://[user:pass@]host:port.
	URL string
	// Display is host:port, safe to log.
	Display string
}

// ProxyManager hands out proxies for login attempts.
type ProxyManager struct {
	mu      sync.Mutex
	proxies []Proxy
	index   int
}

// parseProxyLine accepts host:port, host:port:user:pass and http(s) URLs
// with or without credentials.
func parseProxyLine(line string) (Proxy, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Proxy{}, false
	}

	if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
		parsed, err := url.Parse(line)
		if err != nil || parsed.Host == "" {
			return Proxy{}, false
		}
		u := url.URL{Scheme: "http", Host: parsed.Host, User: parsed.User}
		return Proxy{URL: u.String(), Display: parsed.Host}, true
	}

	parts := strings.Split(line, ":")
	switch len(parts) {
	case 2:
		hostPort := parts[0] + ":" + parts[1]
		return Proxy{URL: "http://" + hostPort, Display: hostPort}, true
	case 4:
		hostPort := parts[0] + ":" + parts[1]
		u := url.URL{Scheme: "http", Host: hostPort, User: url.UserPassword(parts[2], parts[3])}
		return Proxy{URL: u.String(), Display: hostPort}, true
	default:
		return Proxy{}, false
	}
}

// LoadProxies reads a proxy list, one entry per line. Blank lines and lines
// starting with # are skipped; malformed lines are logged and skipped.
func LoadProxies(r io.Reader, logger *zap.Logger) (*ProxyManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var proxies []Proxy
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p, ok := parseProxyLine(line)
		if !ok {
			logger.Warn("skipping malformed proxy", zap.Int("line", lineNum))
			continue
		}
		proxies = append(proxies, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading proxy list: %w", err)
	}
	if len(proxies) == 0 {
		return nil, fmt.Errorf("no valid proxies found")
	}
	return &ProxyManager{proxies: proxies}, nil
}

// NewProxyManager loads proxies from filename.
func NewProxyManager(filename string, logger *zap.Logger) (*ProxyManager, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open proxy file: %w", err)
	}
	defer file.Close()

	pm, err := LoadProxies(file, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return pm, nil
}

func (pm *ProxyManager) Current() Proxy {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.proxies[pm.index]
}

// Rotate advances to the next proxy and returns it.
func (pm *ProxyManager) Rotate() Proxy {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.index = (pm.index + 1) % len(pm.proxies)
	return pm.proxies[pm.index]
}

// Random jumps to a random proxy and returns it.
func (pm *ProxyManager) Random() Proxy {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.index = rand.Intn(len(pm.proxies))
	return pm.proxies[pm.index]
}

func (pm *ProxyManager) Count() int {
	return len(pm.proxies)
}
