package session

import (
	"net/url"
	"strings"
)

// Location is the coarse state a session URL reveals.
type Location string

const (
	LocationHome         Location = "HOME"
	LocationLogin        Location = "LOGIN"
	LocationIntervention Location = "INTERVENTION"
	LocationOther        Location = "OTHER"
)

// Classifier maps a URL to a Location.
type Classifier interface {
	Classify(rawURL string) Location
}

// PatternClassifier classifies by path only. An intervention marker matches a path
// segment it prefixes; login and home patterns match path prefixes on segment
// boundaries. Intervention wins over login, which wins over home.
type PatternClassifier struct {
	Home         []string
	Login        []string
	Intervention []string
}

// DefaultClassifier is used when no platform-specific rules are configured.
var DefaultClassifier = PatternClassifier{
	Home:         []string{"/", "/home", "/home.php", "/marketplace"},
	Login:        []string{"/login", "/welcome"},
	Intervention: []string{"checkpoint", "challenge", "two_step", "two_factor", "2fa", "consent", "recover"},
}

// ClassifyLocation classifies with DefaultClassifier.
func ClassifyLocation(rawURL string) Location {
	return DefaultClassifier.Classify(rawURL)
}

func (c PatternClassifier) Classify(rawURL string) Location {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || rawURL == "" {
		return LocationOther
	}
	path := strings.ToLower(u.Path)
	if path == "" {
		path = "/"
	}

	for _, marker := range c.Intervention {
		if matchSegment(path, strings.ToLower(marker)) {
			return LocationIntervention
		}
	}
	for _, marker := range c.Login {
		if matchPath(path, strings.ToLower(marker)) {
			return LocationLogin
		}
	}
	for _, pattern := range c.Home {
		if matchPath(path, strings.ToLower(pattern)) {
			return LocationHome
		}
	}
	return LocationOther
}

// matchSegment reports whether any segment of path starts with marker.
func matchSegment(path, marker string) bool {
	marker = strings.Trim(marker, "/")
	if marker == "" {
		return false
	}
	for _, seg := range strings.Split(path, "/") {
		if strings.HasPrefix(seg, marker) {
			return true
		}
	}
	return false
}

// matchPath matches "/" exactly and any other pattern as a path prefix on a segment boundary.
func matchPath(path, pattern string) bool {
	trimmed := strings.TrimSuffix(path, "/")
	if pattern == "/" {
		return trimmed == ""
	}
	pattern = strings.TrimSuffix(pattern, "/")
	return trimmed == pattern || strings.HasPrefix(trimmed, pattern+"/")
}
