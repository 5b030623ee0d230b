package session

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *CredentialStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.db")
	s, err := OpenCredentialStore(path)
	if err != nil {
		t.Fatalf("OpenCredentialStore() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCredentialsEmpty(t *testing.T) {
	s := openTestStore(t)

	c, err := s.Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if c != nil {
		t.Errorf("Get() on fresh store = %+v, want nil", c)
	}
	if got := s.AccessToken(); got != "" {
		t.Errorf("AccessToken() = %q, want empty", got)
	}
}

func TestCredentialsPutGet(t *testing.T) {
	s := openTestStore(t)

	if err := s.Put(Credentials{AccessToken: "at1", RefreshToken: "rt1"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	c, err := s.Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if c == nil || c.AccessToken != "at1" || c.RefreshToken != "rt1" {
		t.Errorf("Get() = %+v", c)
	}
	if got := s.AccessToken(); got != "at1" {
		t.Errorf("AccessToken() = %q, want at1", got)
	}
}

func TestCredentialsReplace(t *testing.T) {
	s := openTestStore(t)

	if err := s.Put(Credentials{AccessToken: "at1", RefreshToken: "rt1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(Credentials{AccessToken: "at2", RefreshToken: "rt2"}); err != nil {
		t.Fatalf("second Put() error = %v", err)
	}
	c, err := s.Get()
	if err != nil {
		t.Fatal(err)
	}
	if c.AccessToken != "at2" || c.RefreshToken != "rt2" {
		t.Errorf("Get() after replace = %+v", c)
	}
}

func TestCredentialsClear(t *testing.T) {
	s := openTestStore(t)

	if err := s.Put(Credentials{AccessToken: "at1", RefreshToken: "rt1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	c, err := s.Get()
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Errorf("Get() after Clear = %+v, want nil", c)
	}
}

func TestCredentialsReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.db")
	s, err := OpenCredentialStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(Credentials{AccessToken: "at1", RefreshToken: "rt1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// Migrations must be a no-op on reopen and data must survive.
	s, err = OpenCredentialStore(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	c, err := s.Get()
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.AccessToken != "at1" {
		t.Errorf("Get() after reopen = %+v", c)
	}
}
