package credential

import (
	"errors"
	"fmt"
	"strings"
)

// TokenEnvKey is the environment variable holding the Intercom access token.
const TokenEnvKey = "INTERCOM_ACCESS_TOKEN"

// ErrNotConfigured is returned when no provider credential can be found.
var ErrNotConfigured = errors.New("INTERCOM_ACCESS_TOKEN is not configured")

// Source yields the provider access token. Implementations are consulted on
// every request, so a token added or removed at runtime takes effect
// immediately.
type Source interface {
	Token() (string, error)
}

type Env interface {
	Getenv(key string) string
}

// EnvSource reads the token from the process environment.
type EnvSource struct {
	Env Env
	Key string
}

func (s EnvSource) Token() (string, error) {
	key := s.Key
	if key == "" {
		key = TokenEnvKey
	}
	return s.Env.Getenv(key), nil
}

// Static is a fixed token, used by the CLI and tests.
type Static string

func (s Static) Token() (string, error) { return string(s), nil }

// Chain returns the first non-empty token of its sources.
type Chain []Source

func (c Chain) Token() (string, error) {
	for _, src := range c {
		if src == nil {
			continue
		}
		tok, err := src.Token()
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(tok) != "" {
			return tok, nil
		}
	}
	return "", nil
}

// Require resolves a token from src and fails with ErrNotConfigured when none
// is available.
func Require(src Source) (string, error) {
	if src == nil {
		return "", ErrNotConfigured
	}
	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return "", ErrNotConfigured
	}
	return tok, nil
}
