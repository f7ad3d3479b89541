package ratelimit

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EndpointConfig is the token bucket for one route pattern. Path uses the
// mux's "{name}" wildcard syntax. Burst defaults to Limit when zero.
type EndpointConfig struct {
	Path   string
	Method string
	Limit  int
	Window time.Duration
	Burst  int
}

// DefaultEndpointConfigs returns the per-route limits. Routes that start or
// resume pipeline work are the scarcest; everything unlisted falls back to the
// default limit and /health is never limited.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		{Path: "/jobs", Method: "POST", Limit: 20, Window: time.Hour, Burst: 3},
		{Path: "/jobs/ws", Method: "GET", Limit: 20, Window: time.Hour, Burst: 3},
		{Path: "/jobs/{id}/retry", Method: "POST", Limit: 30, Window: time.Hour, Burst: 5},
		{Path: "/jobs/{id}/bootstrap", Method: "POST", Limit: 30, Window: time.Hour, Burst: 5},
		{Path: "/jobs/{id}/events", Method: "GET", Limit: 120, Window: time.Minute, Burst: 10},
	}
}

// LoadConfig reads RATE_LIMIT_* variables. RATE_LIMIT_ROUTES replaces or adds
// per-route entries on top of DefaultEndpointConfigs; see ParseRoutes.
func LoadConfig() *Config {
	env := envReader(os.Getenv)
	if !env.bool("RATE_LIMIT_ENABLED", true) {
		return &Config{Enabled: false}
	}

	routes := DefaultEndpointConfigs()
	if raw := env("RATE_LIMIT_ROUTES"); raw != "" {
		if extra, err := ParseRoutes(raw); err == nil {
			routes = mergeRoutes(routes, extra)
		}
	}

	return &Config{
		Enabled:         true,
		DefaultLimit:    env.int("RATE_LIMIT_DEFAULT_LIMIT", 1000),
		DefaultWindow:   env.duration("RATE_LIMIT_DEFAULT_WINDOW", time.Minute),
		CleanupInterval: env.duration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		Whitelist:       parseIPList(env("RATE_LIMIT_WHITELIST")),
		Blacklist:       parseIPList(env("RATE_LIMIT_BLACKLIST")),
		EndpointConfigs: routes,
	}
}

// ParseRoutes parses entries of the form "METHOD /path=limit/window[/burst]"
// separated by ";", for example "POST /jobs=5/1h/1;GET /jobs/{id}/events=60/1m".
func ParseRoutes(raw string) ([]EndpointConfig, error) {
	var out []EndpointConfig
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		route, limits, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("route %q: missing '='", entry)
		}
		method, path, ok := strings.Cut(strings.TrimSpace(route), " ")
		if !ok || !strings.HasPrefix(strings.TrimSpace(path), "/") {
			return nil, fmt.Errorf("route %q: want \"METHOD /path\"", route)
		}
		parts := strings.Split(strings.TrimSpace(limits), "/")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("route %q: want limit/window[/burst]", entry)
		}
		limit, err := strconv.Atoi(parts[0])
		if err != nil || limit < 0 {
			return nil, fmt.Errorf("route %q: bad limit %q", entry, parts[0])
		}
		window, err := time.ParseDuration(parts[1])
		if err != nil {
			return nil, fmt.Errorf("route %q: bad window: %w", entry, err)
		}
		ec := EndpointConfig{
			Path:   strings.TrimSpace(path),
			Method: strings.ToUpper(method),
			Limit:  limit,
			Window: window,
		}
		if len(parts) == 3 {
			if ec.Burst, err = strconv.Atoi(parts[2]); err != nil {
				return nil, fmt.Errorf("route %q: bad burst %q", entry, parts[2])
			}
		}
		out = append(out, ec)
	}
	return out, nil
}

// mergeRoutes overlays extra onto base, keyed by method and path.
func mergeRoutes(base, extra []EndpointConfig) []EndpointConfig {
	merged := append([]EndpointConfig(nil), base...)
	for _, e := range extra {
		replaced := false
		for i := range merged {
			if merged[i].Method == e.Method && merged[i].Path == e.Path {
				merged[i] = e
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, e)
		}
	}
	return merged
}

// envReader wraps a lookup so unparsable values fall back to their defaults.
type envReader func(string) string

func (e envReader) int(key string, def int) int {
	if v, err := strconv.Atoi(e(key)); err == nil {
		return v
	}
	return def
}

func (e envReader) bool(key string, def bool) bool {
	if v, err := strconv.ParseBool(e(key)); err == nil {
		return v
	}
	return def
}

func (e envReader) duration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(e(key)); err == nil {
		return v
	}
	return def
}

// parseIPList turns "a, b,c" into a set; blank entries are ignored.
func parseIPList(list string) map[string]bool {
	set := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			set[ip] = true
		}
	}
	return set
}
