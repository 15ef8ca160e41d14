package gateway

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const defaultAuthAttempts = 3

// AuthHandler verifies challenge-response authentication. Approvers
// prove knowledge of the shared secret by signing a random challenge
// with HMAC-SHA256; the secret itself never crosses the wire. The
// handler is pure verification: marking a session authenticated is the
// client registry's job.
type AuthHandler struct {
	sharedSecret string
	maxAttempts  int
}

// NewAuthHandler creates an authentication handler. maxAttempts <= 0
// selects the default limit of three failed signatures per connection.
func NewAuthHandler(sharedSecret string, maxAttempts int) *AuthHandler {
	if maxAttempts <= 0 {
		maxAttempts = defaultAuthAttempts
	}
	return &AuthHandler{sharedSecret: sharedSecret, maxAttempts: maxAttempts}
}

// GenerateChallenge generates a cryptographically random 32-byte challenge.
func (a *AuthHandler) GenerateChallenge() (string, error) {
	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		return "", fmt.Errorf("failed to generate challenge: %w", err)
	}
	return hex.EncodeToString(challenge), nil
}

// VerifySignature verifies an HMAC-SHA256 signature against a challenge.
func (a *AuthHandler) VerifySignature(challenge, signature string) bool {
	h := hmac.New(sha256.New, []byte(a.sharedSecret))
	h.Write([]byte(challenge))
	expected := hex.EncodeToString(h.Sum(nil))

	// Constant-time comparison
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// HandleAuthResponse checks one signed response against the client's
// outstanding challenge. The challenge is single use: it is cleared on
// success, and each failure counts toward the attempt limit.
func (a *AuthHandler) HandleAuthResponse(client *Client, signature string) AuthResult {
	if client.Challenge == "" {
		return AuthResult{
			Event:   "auth.failure",
			Message: "No challenge found",
		}
	}

	if !a.VerifySignature(client.Challenge, signature) {
		client.AuthAttempts++

		if client.AuthAttempts >= a.maxAttempts {
			return AuthResult{
				Event:   "auth.failure",
				Message: "Too many failed attempts",
			}
		}

		return AuthResult{
			Event:   "auth.failure",
			Message: "Invalid signature",
		}
	}

	client.AuthAttempts = 0
	client.Challenge = ""

	return AuthResult{
		Event:   "auth.success",
		Success: true,
	}
}

// AttemptsExhausted reports whether the client has burned through its
// signature attempts and must be disconnected.
func (a *AuthHandler) AttemptsExhausted(client *Client) bool {
	return client.AuthAttempts >= a.maxAttempts
}
