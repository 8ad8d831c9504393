package session

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/matheus3301/chatd/internal/config"
)

// DefaultSessionName is used when neither flag, env nor config names one.
const DefaultSessionName = "main"

const maxNameLen = 64

// ErrInvalidName reports a session name outside [a-z0-9_-]{1,64}.
var ErrInvalidName = errors.New("invalid session name")

// ValidateName checks that name is usable as a directory under the chatd home.
func ValidateName(name string) error {
	if name == "" || len(name) > maxNameLen {
		return fmt.Errorf("%w %q: length must be 1..%d", ErrInvalidName, name, maxNameLen)
	}
	if i := strings.IndexFunc(name, func(r rune) bool { return !nameRune(r) }); i >= 0 {
		r, _ := utf8.DecodeRuneInString(name[i:])
		return fmt.Errorf("%w %q: unexpected %q at %d", ErrInvalidName, name, r, i)
	}
	return nil
}

func nameRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_'
}

// Resolve picks the session to operate on. The --session flag wins, then
// CHATD_DEFAULT_SESSION, then default_session from config.toml, then "main".
// An unreadable config file falls through to the default.
func Resolve(flagOverride string) (string, error) {
	name := flagOverride
	if name == "" {
		if cfg, err := config.Resolve(ConfigPath()); err == nil {
			name = cfg.DefaultSession
		}
	}
	if name == "" {
		name = DefaultSessionName
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}
