package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/openfroyo/sous/pkg/engine"
)

const (
	// DefaultBaseURL is the public npm registry.
	DefaultBaseURL = "https://registry.npmjs.org"

	// DefaultTimeout bounds one metadata request.
	DefaultTimeout = 30 * time.Second

	// abbreviatedAccept asks for the abbreviated install metadata.
	abbreviatedAccept = "application/vnd.npm.install-v1+json; q=1.0, application/json; q=0.8, */*"

	maxAliasDepth = 4
)

// Options configures a Client.
type Options struct {
	// BaseURL is the registry root. Defaults to DefaultBaseURL.
	BaseURL string

	// Token is sent as a bearer token when set.
	Token string

	// HTTPClient overrides the HTTP client.
	HTTPClient *http.Client

	Logger zerolog.Logger
}

// packument is the subset of package metadata the client reads.
type packument struct {
	Name     string                     `json:"name"`
	DistTags map[string]string          `json:"dist-tags"`
	Versions map[string]json.RawMessage `json:"versions"`
}

// Client is an npm registry client with a metadata memo.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  zerolog.Logger

	group singleflight.Group
	mu    sync.RWMutex
	memo  map[string]*packument
}

var _ engine.Registry = (*Client)(nil)

// NewClient creates a registry client.
func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL: base,
		token:   opts.Token,
		http:    hc,
		logger:  opts.Logger.With().Str("component", "registry").Logger(),
		memo:    make(map[string]*packument),
	}
}

// Reset drops the memo so the next run sees fresh metadata.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memo = make(map[string]*packument)
}

// Resolve implements engine.Registry.
func (c *Client) Resolve(ctx context.Context, name, spec string) (*engine.Resolution, error) {
	return c.resolve(ctx, name, spec, 0)
}

func (c *Client) resolve(ctx context.Context, name, spec string, depth int) (*engine.Resolution, error) {
	spec = strings.TrimSpace(spec)
	if strings.HasPrefix(spec, "npm:") {
		if depth >= maxAliasDepth {
			return nil, engine.NewResolutionError("alias chain too deep", nil).
				WithCode(engine.ErrCodeInvalidDependency).
				WithDetail("dependency", name)
		}
		target, rng, err := ParseAlias(spec)
		if err != nil {
			return nil, err
		}
		return c.resolve(ctx, target, rng, depth+1)
	}
	if spec == "" {
		spec = "latest"
	}

	p, err := c.fetch(ctx, name)
	if err != nil {
		return nil, err
	}

	if version, ok := p.DistTags[spec]; ok {
		return &engine.Resolution{Name: name, Version: version}, nil
	}

	constraint, err := semver.NewConstraint(spec)
	if err != nil {
		return nil, engine.NewResolutionError(fmt.Sprintf("unknown dist-tag %q", spec), nil).
			WithCode(engine.ErrCodeNotFound).
			WithDetail("dependency", name)
	}

	var best *semver.Version
	for raw := range p.Versions {
		v, err := semver.NewVersion(raw)
		if err != nil {
			continue
		}
		if constraint.Check(v) && (best == nil || v.GreaterThan(best)) {
			best = v
		}
	}
	if best == nil {
		return nil, engine.NewResolutionError(fmt.Sprintf("no version of %s satisfies %s", name, spec), nil).
			WithCode(engine.ErrCodeNotFound).
			WithDetail("dependency", name)
	}
	return &engine.Resolution{Name: name, Version: best.Original()}, nil
}

// fetch returns memoized metadata, sharing one request between concurrent callers.
func (c *Client) fetch(ctx context.Context, name string) (*packument, error) {
	c.mu.RLock()
	p, ok := c.memo[name]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	v, err, _ := c.group.Do(name, func() (interface{}, error) {
		p, err := c.get(ctx, name)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.memo[name] = p
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*packument), nil
}

func (c *Client) get(ctx context.Context, name string) (*packument, error) {
	endpoint := c.baseURL + "/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", abbreviatedAccept)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, engine.NewResolutionError("registry request failed", err).
			WithCode(engine.ErrCodeDependencyFailed).
			WithDetail("dependency", name)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("package", name).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Fetched package metadata")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, engine.NewResolutionError(fmt.Sprintf("package %s not found", name), nil).
			WithCode(engine.ErrCodeNotFound).
			WithDetail("dependency", name)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, engine.NewResolutionError(fmt.Sprintf("registry returned %s", resp.Status), nil).
			WithCode(engine.ErrCodeDependencyFailed).
			WithDetail("dependency", name).
			WithDetail("body", strings.TrimSpace(string(body)))
	}

	var p packument
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, engine.NewResolutionError("invalid registry response", err).
			WithCode(engine.ErrCodeDependencyFailed).
			WithDetail("dependency", name)
	}
	if p.Name == "" {
		p.Name = name
	}
	return &p, nil
}

// ParseAlias splits "npm:<name>@<range>". The range may be empty; a scoped name
// keeps its leading "@".
func ParseAlias(spec string) (name, rng string, err error) {
	rest, ok := strings.CutPrefix(spec, "npm:")
	if !ok || rest == "" {
		return "", "", engine.NewResolutionError(fmt.Sprintf("invalid alias %q", spec), nil).
			WithCode(engine.ErrCodeInvalidDependency)
	}
	at := strings.LastIndex(rest, "@")
	if at <= 0 {
		return rest, "", nil
	}
	return rest[:at], rest[at+1:], nil
}
