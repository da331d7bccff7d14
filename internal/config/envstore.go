package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// EnvStore persists runtime settings changes back to the .env file, so an
// admin edit to the tracked-account list survives a restart.
type EnvStore struct {
	mu   sync.Mutex
	path string
}

func NewEnvStore(path string) *EnvStore {
	if path == "" {
		path = ".env"
	}
	return &EnvStore{path: path}
}

// SetTargetAccounts writes the account list back to the .env file,
// preserving any other keys already there.
func (e *EnvStore) SetTargetAccounts(accounts []string) error {
	return e.set("TARGET_ACCOUNTS", strings.Join(accounts, ","))
}

func (e *EnvStore) set(key, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	env := map[string]string{}
	if _, err := os.Stat(e.path); err == nil {
		loaded, err := godotenv.Read(e.path)
		if err != nil {
			return fmt.Errorf("read %s: %w", e.path, err)
		}
		env = loaded
	}

	env[key] = value
	if err := godotenv.Write(env, e.path); err != nil {
		return fmt.Errorf("write %s: %w", e.path, err)
	}
	return nil
}
