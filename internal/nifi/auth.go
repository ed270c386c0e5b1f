package nifi

import "net/http"

// Authenticator decorates an outbound request with credentials.
type Authenticator interface {
	Authenticate(req *http.Request)
}

// TokenSource provides the bearer token currently in force.
type TokenSource interface {
	Token() string
}

type basicAuth struct {
	username string
	password string
}

// BasicAuth authenticates every request with static HTTP basic credentials.
func BasicAuth(username, password string) Authenticator {
	return basicAuth{username: username, password: password}
}

func (b basicAuth) Authenticate(req *http.Request) {
	req.SetBasicAuth(b.username, b.password)
}

type bearerAuth struct {
	src TokenSource
}

// BearerAuth authenticates every request with the token src currently holds.
// The token is read per request so a renewal takes effect immediately.
func BearerAuth(src TokenSource) Authenticator {
	return bearerAuth{src: src}
}

func (b bearerAuth) Authenticate(req *http.Request) {
	if tok := b.src.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
}
