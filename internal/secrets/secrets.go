// Package secrets retrieves one-shot credentials handed to the process at
// start-up.
package secrets

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrNotFound      = errors.New("secret not found")
	ErrInvalidSecret = errors.New("invalid secret")
	ErrInvalidName   = errors.New("invalid secret name")
)

// FileStore serves secrets stored as files under Dir/<owner>/<name>. A
// secret is erased after its first successful read.
type FileStore struct {
	Dir string
}

// NewFileStore creates a file-backed secret store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

// Fetch returns the secret and removes it from disk.
func (s *FileStore) Fetch(owner, name string) ([]byte, error) {
	if !validName(owner) || !validName(name) {
		return nil, fmt.Errorf("%w: %s/%s", ErrInvalidName, owner, name)
	}
	path := filepath.Join(s.Dir, owner, name)

	blob, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, owner, name)
		}
		return nil, fmt.Errorf("read secret: %w", err)
	}
	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("erase secret: %w", err)
	}
	return blob, nil
}

func validName(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

// DatabaseURLFromBlob converts a "username/password/host/database" credential
// blob into a Postgres connection URL. host may carry a port; 5432 is assumed
// otherwise.
func DatabaseURLFromBlob(blob []byte) (string, error) {
	parts := strings.Split(strings.TrimSpace(string(blob)), "/")
	if len(parts) != 4 {
		return "", fmt.Errorf("%w: expected username/password/host/database", ErrInvalidSecret)
	}
	user, password, host, database := parts[0], parts[1], parts[2], parts[3]
	if user == "" || host == "" || database == "" {
		return "", fmt.Errorf("%w: empty username, host or database", ErrInvalidSecret)
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "5432")
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(user, password),
		Host:   host,
		Path:   "/" + database,
	}
	return u.String(), nil
}
