package tokenstore

import "time"

// Credential is the access/refresh token pair issued by the fleet API.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"` // zero means no known expiry
}

// Expired reports whether the access token is past its expiry at now.
// A credential without an expiry never expires locally.
func (c *Credential) Expired(now time.Time) bool {
	if c == nil {
		return true
	}
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}
