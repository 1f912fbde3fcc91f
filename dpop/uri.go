package dpop

import (
	"errors"
	"net/url"
	"strings"
)

var errInvalidURI = errors.New("dpop: htu must be an absolute URI")

// NormalizeURI reduces an htu value to the form compared during
// verification: scheme and host lower-cased, default ports dropped, query
// and fragment removed, path kept as-is.
func NormalizeURI(raw string) (string, error) {
	if raw == "" {
		return "", errInvalidURI
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", errInvalidURI
	}

	scheme := strings.ToLower(parsed.Scheme)
	host := strings.ToLower(parsed.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port := parsed.Port(); port != "" {
		if !(scheme == "https" && port == "443") && !(scheme == "http" && port == "80") {
			host += ":" + port
		}
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path, nil
}
