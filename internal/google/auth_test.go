package google

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/digitaldrywood/inventory/internal/inventory"
)

type memoryTokenStore struct {
	token *oauth2.Token
	saves int
}

func (s *memoryTokenStore) Load() (*oauth2.Token, error) {
	if s.token == nil {
		return nil, os.ErrNotExist
	}
	return s.token, nil
}

func (s *memoryTokenStore) Save(tok *oauth2.Token) error {
	s.token = tok
	s.saves++
	return nil
}

type failingTokenSource struct{}

func (failingTokenSource) Token() (*oauth2.Token, error) {
	return nil, &oauth2.RetrieveError{
		Response: &http.Response{StatusCode: http.StatusBadRequest},
		Body:     []byte(`{"error": "invalid_grant"}`),
	}
}

func noConsent(t *testing.T) ConsentFunc {
	return func(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
		t.Error("consent flow should not run")
		return nil, errors.New("unexpected consent")
	}
}

func newTokenServer(t *testing.T, calls *int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		if err := r.ParseForm(); err != nil {
			t.Errorf("invalid token request: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "fresh", "token_type": "Bearer", "expires_in": 3600, "refresh_token": "refresh"}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFileTokenStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".local", "token.json")
	store := NewFileTokenStore(path)

	if _, err := store.Load(); err == nil {
		t.Fatal("Load() on missing file should fail")
	}

	tok := &oauth2.Token{
		AccessToken:  "access",
		TokenType:    "Bearer",
		RefreshToken: "refresh",
		Expiry:       time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := store.Save(tok); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("token file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("token file mode = %o, want 600", perm)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.AccessToken != tok.AccessToken || got.RefreshToken != tok.RefreshToken || !got.Expiry.Equal(tok.Expiry) {
		t.Errorf("Load() = %+v, want %+v", got, tok)
	}
}

func TestAuth_UsesValidStoredToken(t *testing.T) {
	store := &memoryTokenStore{token: &oauth2.Token{
		AccessToken: "stored",
		Expiry:      time.Now().Add(time.Hour),
	}}
	auth := NewAuthWithConfig(&oauth2.Config{}, store, noConsent(t))

	src, err := auth.TokenSource(context.Background())
	if err != nil {
		t.Fatalf("TokenSource() error = %v", err)
	}
	tok, err := src.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok.AccessToken != "stored" {
		t.Errorf("Token() = %q, want stored", tok.AccessToken)
	}
	if store.saves != 0 {
		t.Errorf("unchanged token saved %d times", store.saves)
	}
}

func TestAuth_RefreshesAndPersistsExpiredToken(t *testing.T) {
	var calls int
	server := newTokenServer(t, &calls)

	store := &memoryTokenStore{token: &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(-time.Hour),
	}}
	config := &oauth2.Config{
		ClientID: "client",
		Endpoint: oauth2.Endpoint{TokenURL: server.URL, AuthStyle: oauth2.AuthStyleInParams},
	}
	auth := NewAuthWithConfig(config, store, noConsent(t))

	src, err := auth.TokenSource(context.Background())
	if err != nil {
		t.Fatalf("TokenSource() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		tok, err := src.Token()
		if err != nil {
			t.Fatalf("Token() error = %v", err)
		}
		if tok.AccessToken != "fresh" {
			t.Errorf("Token() = %q, want fresh", tok.AccessToken)
		}
	}

	if calls != 1 {
		t.Errorf("token endpoint called %d times, want 1", calls)
	}
	if store.saves != 1 || store.token.AccessToken != "fresh" {
		t.Errorf("store = %+v after %d saves, want refreshed token persisted once", store.token, store.saves)
	}
}

func TestAuth_RunsConsentWithoutToken(t *testing.T) {
	store := &memoryTokenStore{}
	consented := 0
	consent := func(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
		consented++
		return &oauth2.Token{AccessToken: "granted", Expiry: time.Now().Add(time.Hour)}, nil
	}
	auth := NewAuthWithConfig(&oauth2.Config{}, store, consent)

	for i := 0; i < 2; i++ {
		if _, err := auth.TokenSource(context.Background()); err != nil {
			t.Fatalf("TokenSource() error = %v", err)
		}
	}

	if consented != 1 {
		t.Errorf("consent ran %d times, want 1", consented)
	}
	if store.token == nil || store.token.AccessToken != "granted" {
		t.Errorf("consented token not persisted: %+v", store.token)
	}
}

func TestAuth_RunsConsentWhenTokenCannotRefresh(t *testing.T) {
	store := &memoryTokenStore{token: &oauth2.Token{
		AccessToken: "expired",
		Expiry:      time.Now().Add(-time.Hour),
	}}
	consented := false
	consent := func(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
		consented = true
		return &oauth2.Token{AccessToken: "granted", RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour)}, nil
	}
	auth := NewAuthWithConfig(&oauth2.Config{}, store, consent)

	if _, err := auth.TokenSource(context.Background()); err != nil {
		t.Fatalf("TokenSource() error = %v", err)
	}
	if !consented {
		t.Error("consent flow did not run for an expired token without refresh token")
	}
}

func TestAuth_ConsentFailure(t *testing.T) {
	consent := func(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
		return nil, errors.New("access_denied")
	}
	auth := NewAuthWithConfig(&oauth2.Config{}, &memoryTokenStore{}, consent)

	_, err := auth.TokenSource(context.Background())
	if !errors.Is(err, inventory.ErrAuthFailure) {
		t.Errorf("TokenSource() error = %v, want ErrAuthFailure", err)
	}
}

func TestPersistingTokenSource_RefreshFailure(t *testing.T) {
	src := &persistingTokenSource{base: failingTokenSource{}, store: &memoryTokenStore{}}

	_, err := src.Token()
	if !errors.Is(err, inventory.ErrAuthFailure) {
		t.Errorf("Token() error = %v, want ErrAuthFailure", err)
	}

	var retrieve *oauth2.RetrieveError
	if !errors.As(err, &retrieve) {
		t.Errorf("Token() error does not carry the retrieve error: %v", err)
	}
}

func TestNewAuth_ReadsClientSecret(t *testing.T) {
	dir := t.TempDir()
	credentials := filepath.Join(dir, "credentials.json")
	secret := `{
		"installed": {
			"client_id": "client.apps.googleusercontent.com",
			"client_secret": "secret",
			"auth_uri": "https://accounts.google.com/o/oauth2/auth",
			"token_uri": "https://oauth2.googleapis.com/token",
			"redirect_uris": ["http://localhost"]
		}
	}`
	if err := os.WriteFile(credentials, []byte(secret), 0600); err != nil {
		t.Fatal(err)
	}

	auth, err := NewAuth(credentials, filepath.Join(dir, "token.json"), "http://localhost:8080/callback")
	if err != nil {
		t.Fatalf("NewAuth() error = %v", err)
	}
	if auth.config.ClientID != "client.apps.googleusercontent.com" {
		t.Errorf("ClientID = %q", auth.config.ClientID)
	}
	if auth.config.RedirectURL != "http://localhost:8080/callback" {
		t.Errorf("RedirectURL = %q", auth.config.RedirectURL)
	}

	if _, err := NewAuth(filepath.Join(dir, "missing.json"), "", ""); err == nil {
		t.Error("NewAuth() with missing credentials should fail")
	}
}
