package session

import (
	"os"

	"github.com/matheus3301/parley/internal/config"
)

const DefaultSessionName = "main"

// EnvSession overrides the configured default session when set; handy for
// pointing a single shell at a secondary session.
const EnvSession = "PARLEY_SESSION"

// Resolve determines the active session name. Precedence: the --session
// flag, then PARLEY_SESSION, then default_session from config.toml, then
// "main".
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if env := os.Getenv(EnvSession); env != "" {
		return env
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}
