package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// ErrCredentialMissing is returned when the key file is absent or holds no token.
var ErrCredentialMissing = errors.New("credential missing")

// CredentialKind selects how the token is presented to the search API.
type CredentialKind int

const (
	// CredentialAPIKey sends the token as the `key` query parameter.
	CredentialAPIKey CredentialKind = iota
	// CredentialBearer sends the token as an OAuth2 bearer access token.
	CredentialBearer
)

func (k CredentialKind) String() string {
	switch k {
	case CredentialBearer:
		return "bearer"
	default:
		return "apikey"
	}
}

// ParseCredentialKind accepts "", "apikey", "key" or "bearer".
func ParseCredentialKind(s string) (CredentialKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "apikey", "key":
		return CredentialAPIKey, nil
	case "bearer", "oauth":
		return CredentialBearer, nil
	default:
		return CredentialAPIKey, fmt.Errorf("invalid YT_CREDENTIAL_KIND %q (want apikey|bearer)", s)
	}
}

// Credential is the opaque token read once at startup.
type Credential struct {
	Kind  CredentialKind
	Token string
}

// LoadCredential reads the key file at path. Trailing whitespace is stripped.
func LoadCredential(path string, kind CredentialKind) (Credential, error) {
	b, err := os.ReadFile(path) //nolint:gosec // G304: path is operator supplied
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Credential{}, fmt.Errorf("%w: %s not found", ErrCredentialMissing, path)
		}
		return Credential{}, fmt.Errorf("%w: read %s: %w", ErrCredentialMissing, path, err)
	}
	tok := strings.TrimRightFunc(string(b), func(r rune) bool { return r == '\n' || r == '\r' || r == ' ' || r == '\t' })
	if tok == "" {
		return Credential{}, fmt.Errorf("%w: %s is empty", ErrCredentialMissing, path)
	}
	return Credential{Kind: kind, Token: tok}, nil
}

// Masked returns the last few characters for log lines.
func (c Credential) Masked() string {
	if len(c.Token) > 6 {
		return "***" + c.Token[len(c.Token)-6:]
	}
	return "***"
}
