package httpapi

import "strings"

// normalizeBasePath canonicalizes a configured mount path: leading
// slash, no trailing slash, empty when the server mounts at root.
func normalizeBasePath(value string) string {
	path := strings.Trim(strings.TrimSpace(value), "/")
	if path == "" {
		return ""
	}
	return "/" + path
}

// buildBaseHref combines the external base URL and mount path into the
// href clients prepend to API routes. Always ends with a slash when
// non-empty.
func buildBaseHref(baseURL, basePath string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	href := base + normalizeBasePath(basePath)
	if href == "" {
		return ""
	}
	return ensureTrailingSlash(href)
}

func ensureTrailingSlash(value string) string {
	if value == "" || strings.HasSuffix(value, "/") {
		return value
	}
	return value + "/"
}
