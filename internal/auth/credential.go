package auth

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrInvalidCredentialFormat = errors.New("invalid API credential format")
	ErrInvalidUsername         = errors.New("invalid username")
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9_.-]{0,63}$`)

// CredentialRule accepts API credentials made of a fixed literal prefix
// followed by URL-safe characters, with a fixed total length.
type CredentialRule struct {
	prefix  string
	length  int
	pattern *regexp.Regexp
}

func NewCredentialRule(prefix string, totalLength int) (*CredentialRule, error) {
	body := totalLength - len(prefix)
	if body <= 0 {
		return nil, fmt.Errorf("credential length %d must exceed prefix length %d", totalLength, len(prefix))
	}
	pattern, err := regexp.Compile(fmt.Sprintf(`^%s[A-Za-z0-9_-]{%d}$`, regexp.QuoteMeta(prefix), body))
	if err != nil {
		return nil, fmt.Errorf("failed to compile credential pattern: %w", err)
	}
	return &CredentialRule{prefix: prefix, length: totalLength, pattern: pattern}, nil
}

func (r *CredentialRule) Validate(credential string) error {
	if !r.pattern.MatchString(credential) {
		return fmt.Errorf("%w: expected %q prefix and %d characters", ErrInvalidCredentialFormat, r.prefix, r.length)
	}
	return nil
}

// ValidateUsername rejects names that are not safe as a single path element,
// since the username also names the user's index directory.
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) || username == "." || username == ".." {
		return ErrInvalidUsername
	}
	return nil
}
