package session

import "testing"

func TestResolvePrecedence(t *testing.T) {
	t.Setenv("HOME", t.TempDir()) // no config.toml

	t.Setenv(EnvSession, "from-env")
	if got := Resolve("from-flag"); got != "from-flag" {
		t.Errorf("Resolve with flag = %q, want from-flag", got)
	}
	if got := Resolve(""); got != "from-env" {
		t.Errorf("Resolve with env = %q, want from-env", got)
	}

	t.Setenv(EnvSession, "")
	if got := Resolve(""); got != DefaultSessionName {
		t.Errorf("Resolve() = %q, want %q", got, DefaultSessionName)
	}
}
