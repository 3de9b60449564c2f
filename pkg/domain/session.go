package domain

import "net/url"

// SessionKey scopes a client-chosen session id to the caller that owns it.
// The caller is escaped so that distinct (caller, session) pairs never share a key.
func SessionKey(caller, sessionID string) string {
	return url.PathEscape(caller) + "/" + sessionID
}
