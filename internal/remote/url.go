package remote

import (
	"errors"
	"strings"
)

// ErrNoSegments is returned when JoinURL is called without any segments.
var ErrNoSegments = errors.New("invalid argument: need at least one path segment")

// JoinURL joins URL parts with exactly one slash between them. Parts that
// reduce to "." are dropped, except for the first one. The first part keeps
// its leading slashes and the last one keeps its trailing slashes.
func JoinURL(parts ...string) (string, error) {
	if len(parts) >= 2 {
		kept := make([]string, 0, len(parts))
		for i, p := range parts {
			if i == 0 || strings.Trim(p, "/") != "." {
				kept = append(kept, p)
			}
		}
		parts = kept
	}
	if len(parts) < 1 {
		return "", ErrNoSegments
	}
	if len(parts) == 1 {
		return parts[0], nil
	}

	segments := make([]string, 0, len(parts))
	segments = append(segments, strings.TrimRight(parts[0], "/"))
	for _, p := range parts[1 : len(parts)-1] {
		segments = append(segments, strings.Trim(p, "/"))
	}
	segments = append(segments, strings.TrimLeft(parts[len(parts)-1], "/"))

	joined := strings.Join(segments, "/")
	return strings.Join(strings.Split(joined, "/./"), "/"), nil
}
