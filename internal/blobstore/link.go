package blobstore

import "net/url"

// PublicLink returns the gateway URL serving token.
func PublicLink(baseURL, token string) string {
	return baseURL + "/file?" + url.Values{"file": {token}}.Encode()
}
