package smtp

import (
	"testing"
)

func TestAuthenticator_Enabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		username string
		password string
		want     bool
	}{
		{name: "both set", username: "user", password: "pass", want: true},
		{name: "empty username", username: "", password: "pass", want: false},
		{name: "empty password", username: "user", password: "", want: false},
		{name: "both empty", username: "", password: "", want: false},
	}

	for _, tt := range tests {
		tt := tt // capture range variable (pre-Go 1.22 loop semantics)
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			auth := NewAuthenticator(tt.username, tt.password)
			if got := auth.Enabled(); got != tt.want {
				t.Errorf("Enabled(): got %v, want %v", got, tt.want)
			}
			if got := len(auth.Mechanisms()) > 0; got != tt.want {
				t.Errorf("Mechanisms advertised: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthenticator_Verify(t *testing.T) {
	t.Parallel()

	auth := NewAuthenticator("testuser", "testpass")

	tests := []struct {
		name     string
		username string
		password string
		wantErr  bool
	}{
		{name: "valid", username: "testuser", password: "testpass"},
		{name: "wrong password", username: "testuser", password: "wrong", wantErr: true},
		{name: "wrong username", username: "other", password: "testpass", wantErr: true},
		{name: "empty", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt // capture range variable (pre-Go 1.22 loop semantics)
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := auth.Verify(tt.username, tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("Verify(%q, %q): got error %v, wantErr %v", tt.username, tt.password, err, tt.wantErr)
			}
		})
	}
}

func TestAuthenticator_PlainServer(t *testing.T) {
	t.Parallel()

	auth := NewAuthenticator("testuser", "testpass")

	var authed string
	srv, err := auth.Server(mechPlain, func(u string) { authed = u })
	if err != nil {
		t.Fatalf("Server: %v", err)
	}

	// authzid\0authcid\0password; the authorization identity is ignored.
	_, done, err := srv.Next([]byte("admin\x00testuser\x00testpass"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !done {
		t.Error("expected PLAIN to finish in one step")
	}
	if authed != "testuser" {
		t.Errorf("authenticated user: got %q, want %q", authed, "testuser")
	}
}

func TestAuthenticator_PlainServer_WrongPassword(t *testing.T) {
	t.Parallel()

	auth := NewAuthenticator("testuser", "testpass")
	called := false
	srv, _ := auth.Server(mechPlain, func(string) { called = true })

	if _, _, err := srv.Next([]byte("\x00testuser\x00wrong")); err == nil {
		t.Error("expected error for wrong password")
	}
	if called {
		t.Error("onSuccess must not run on failure")
	}
}

func TestAuthenticator_LoginServer(t *testing.T) {
	t.Parallel()

	auth := NewAuthenticator("testuser", "testpass")

	t.Run("challenge flow", func(t *testing.T) {
		t.Parallel()
		var authed string
		srv, _ := auth.Server(mechLogin, func(u string) { authed = u })

		challenge, done, err := srv.Next(nil)
		if err != nil || done || string(challenge) != "Username:" {
			t.Fatalf("step 1: got (%q, %v, %v)", challenge, done, err)
		}
		challenge, done, err = srv.Next([]byte("testuser"))
		if err != nil || done || string(challenge) != "Password:" {
			t.Fatalf("step 2: got (%q, %v, %v)", challenge, done, err)
		}
		_, done, err = srv.Next([]byte("testpass"))
		if err != nil || !done {
			t.Fatalf("step 3: got (%v, %v)", done, err)
		}
		if authed != "testuser" {
			t.Errorf("authenticated user: got %q, want %q", authed, "testuser")
		}
	})

	t.Run("initial response", func(t *testing.T) {
		t.Parallel()
		srv, _ := auth.Server(mechLogin, func(string) {})

		challenge, done, err := srv.Next([]byte("testuser"))
		if err != nil || done || string(challenge) != "Password:" {
			t.Fatalf("step 1: got (%q, %v, %v)", challenge, done, err)
		}
		if _, _, err := srv.Next([]byte("wrong")); err == nil {
			t.Error("expected error for wrong password")
		}
	})
}

func TestAuthenticator_Server_Unsupported(t *testing.T) {
	t.Parallel()

	if _, err := NewAuthenticator("u", "p").Server("CRAM-MD5", func(string) {}); err == nil {
		t.Error("expected error for unsupported mechanism")
	}
	if _, err := NewAuthenticator("", "").Server(mechPlain, func(string) {}); err == nil {
		t.Error("expected error when authentication is disabled")
	}
}
