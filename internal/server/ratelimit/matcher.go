package ratelimit

import "strings"

// unlimited is returned for routes that never consume tokens.
var unlimited = EndpointConfig{Path: "/health", Method: "GET"}

// MatchEndpoint finds the endpoint configuration for a request. Patterns use
// the same "{name}" wildcard syntax as the server mux; a wildcard matches
// exactly one non-empty segment. Literal patterns win over wildcard ones so
// "/jobs/ws" is not swallowed by "/jobs/{id}". Returns nil when nothing matches.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	if method == unlimited.Method && path == unlimited.Path {
		ec := unlimited
		return &ec
	}

	segs := splitPath(path)
	var best *EndpointConfig
	bestWild := -1
	for i := range configs {
		ec := &configs[i]
		if ec.Method != method {
			continue
		}
		wild, ok := matchSegments(splitPath(ec.Path), segs)
		if !ok {
			continue
		}
		if best == nil || wild < bestWild {
			best, bestWild = ec, wild
		}
	}
	return best
}

// matchSegments reports whether the request segments fit the pattern and how
// many wildcards were needed.
func matchSegments(pattern, segs []string) (int, bool) {
	if len(pattern) != len(segs) {
		return 0, false
	}
	wild := 0
	for i, p := range pattern {
		if isWildcard(p) {
			if segs[i] == "" {
				return 0, false
			}
			wild++
			continue
		}
		if p != segs[i] {
			return 0, false
		}
	}
	return wild, true
}

func isWildcard(seg string) bool {
	return len(seg) > 2 && seg[0] == '{' && seg[len(seg)-1] == '}'
}

func splitPath(p string) []string {
	return strings.Split(strings.Trim(p, "/"), "/")
}
