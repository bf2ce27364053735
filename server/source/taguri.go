package source

import "strings"

// TagURI builds a stable, source-namespaced identifier for a native id,
// eg tag:instagram.com:1234.
func TagURI(domain, id string) string {
	if id == "" {
		return ""
	}
	return "tag:" + domain + ":" + id
}

// ParseTagURI returns the local id part of a tag URI, false when the string
// isn't one.
func ParseTagURI(uri string) (string, bool) {
	if !strings.HasPrefix(uri, "tag:") {
		return "", false
	}
	rest := uri[len("tag:"):]
	i := strings.Index(rest, ":")
	if i < 0 {
		return "", false
	}
	return rest[i+1:], true
}
