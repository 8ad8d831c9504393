package auth

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Credentials is the persisted identity and token pair of a session.
type Credentials struct {
	UserID       int64  `toml:"user_id"`
	Username     string `toml:"username"`
	Email        string `toml:"email"`
	AccessToken  string `toml:"access_token"`
	RefreshToken string `toml:"refresh_token"`
}

// loadCredentials reads path. A missing file yields nil, nil.
func loadCredentials(path string) (*Credentials, error) {
	var c Credentials
	_, err := toml.DecodeFile(path, &c)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if c.AccessToken == "" || c.UserID == 0 {
		return nil, nil
	}
	return &c, nil
}

func saveCredentials(path string, c *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(c)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
