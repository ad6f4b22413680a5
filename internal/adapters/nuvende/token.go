package nuvende

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultTokenTTL is assumed when the login answer omits expires_in.
const DefaultTokenTTL int64 = 3600

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

// LoginResult is the decoded login answer.
type LoginResult struct {
	AccessToken string
	ExpiresIn   int64
}

// ParseLogin extracts the access token from a successful login response.
// expires_in falls back to DefaultTokenTTL when absent.
func ParseLogin(body []byte) (LoginResult, error) {
	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return LoginResult{}, fmt.Errorf("decode login response: %w", err)
	}
	if strings.TrimSpace(parsed.AccessToken) == "" {
		return LoginResult{}, fmt.Errorf("login response has no access_token")
	}
	result := LoginResult{AccessToken: parsed.AccessToken, ExpiresIn: DefaultTokenTTL}
	if parsed.ExpiresIn != "" {
		seconds, err := parsed.ExpiresIn.Float64()
		if err != nil {
			return LoginResult{}, fmt.Errorf("decode expires_in: %w", err)
		}
		result.ExpiresIn = int64(seconds)
	}
	return result, nil
}
