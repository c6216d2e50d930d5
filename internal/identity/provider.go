// Package identity supplies the proxy and user-agent pools that outbound requests rotate through.
package identity

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/affiche/internal/cache"
	"github.com/JakeFAU/affiche/internal/movie"
)

const (
	// DefaultProxyListURL is the public proxy list provider.
	DefaultProxyListURL = "http://www.freeproxy-list.ru/api/proxy"
	// DefaultProxyToken is the provider's anonymous access token.
	DefaultProxyToken = "demo"

	proxiesOp    = "proxy_ip_list"
	userAgentsOp = "useragents_list"
)

var errNoSource = errors.New("no source configured")

// Config locates the identity sources. An empty field disables that pool.
type Config struct {
	ProxyListURL   string
	ProxyToken     string
	UserAgentsFile string
}

// Provider loads identity pools and memoizes them in the cache.
type Provider struct {
	cfg     Config
	fetcher movie.Fetcher
	cache   *cache.Cache
	logger  *zap.Logger
}

var _ movie.IdentitySource = (*Provider)(nil)

// New builds a Provider. The fetcher is used without identity shaping for the proxy list.
func New(cfg Config, fetcher movie.Fetcher, c *cache.Cache, logger *zap.Logger) *Provider {
	if cfg.ProxyToken == "" {
		cfg.ProxyToken = DefaultProxyToken
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{cfg: cfg, fetcher: fetcher, cache: c, logger: logger.Named("identity")}
}

// Proxies returns the current proxy pool as host:port entries. Failures yield an empty pool.
func (p *Provider) Proxies(ctx context.Context) []string {
	proxies, err := cache.Memoize(ctx, p.cache, proxiesOp, nil, p.loadProxies)
	if err != nil {
		if !errors.Is(err, errNoSource) {
			p.logger.Warn("proxy list unavailable", zap.String("url", p.cfg.ProxyListURL), zap.Error(err))
		}
		return nil
	}
	return proxies
}

// UserAgents returns the user-agent pool. Failures yield an empty pool.
func (p *Provider) UserAgents(ctx context.Context) []string {
	agents, err := cache.Memoize(ctx, p.cache, userAgentsOp, nil, p.loadUserAgents)
	if err != nil {
		if !errors.Is(err, errNoSource) {
			p.logger.Warn("user agent list unavailable", zap.String("file", p.cfg.UserAgentsFile), zap.Error(err))
		}
		return nil
	}
	return agents
}

// Pools loads both pools.
func (p *Provider) Pools(ctx context.Context) movie.Pools {
	pools := movie.Pools{Proxies: p.Proxies(ctx), UserAgents: p.UserAgents(ctx)}
	p.logger.Info("identity pools loaded",
		zap.Int("proxies", len(pools.Proxies)),
		zap.Int("user_agents", len(pools.UserAgents)),
	)
	return pools
}

func (p *Provider) loadProxies(ctx context.Context) ([]string, error) {
	if p.cfg.ProxyListURL == "" || p.fetcher == nil {
		return nil, errNoSource
	}
	resp, err := p.fetcher.Fetch(ctx, movie.FetchRequest{
		URL: p.cfg.ProxyListURL,
		Params: url.Values{
			"anonymity": {"false"},
			"token":     {p.cfg.ProxyToken},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch proxy list: %w", err)
	}
	return splitLines(string(resp.Body)), nil
}

func (p *Provider) loadUserAgents(context.Context) ([]string, error) {
	if p.cfg.UserAgentsFile == "" {
		return nil, errNoSource
	}
	raw, err := os.ReadFile(p.cfg.UserAgentsFile)
	if err != nil {
		return nil, fmt.Errorf("read user agents: %w", err)
	}
	return splitLines(string(raw)), nil
}

// Pick returns a uniformly random pool element, or "" when the pool is empty.
func Pick(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	return pool[rand.IntN(len(pool))]
}

func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
