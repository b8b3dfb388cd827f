package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/digitaldrywood/inventory/internal/inventory"
)

// TokenStore loads and persists the OAuth token between runs.
type TokenStore interface {
	Load() (*oauth2.Token, error)
	Save(*oauth2.Token) error
}

// ConsentFunc obtains a new token interactively.
type ConsentFunc func(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error)

type FileTokenStore struct {
	path string
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

func (s *FileTokenStore) Load() (*oauth2.Token, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("unable to decode token file: %w", err)
	}
	return tok, nil
}

func (s *FileTokenStore) Save(token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(token)
}

// Auth hands out a token source backed by a TokenStore. The first call loads
// the stored token, running the consent flow when there is none or it can no
// longer be refreshed. Refreshed tokens are written back to the store.
type Auth struct {
	config  *oauth2.Config
	store   TokenStore
	consent ConsentFunc

	mu     sync.Mutex
	source oauth2.TokenSource
}

func NewAuth(credentialsPath, tokenPath, redirectURL string) (*Auth, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = redirectURL

	return NewAuthWithConfig(config, NewFileTokenStore(tokenPath), WebConsent), nil
}

func NewAuthWithConfig(config *oauth2.Config, store TokenStore, consent ConsentFunc) *Auth {
	return &Auth{
		config:  config,
		store:   store,
		consent: consent,
	}
}

func (a *Auth) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.source != nil {
		return a.source, nil
	}

	tok, err := a.store.Load()
	if err != nil {
		log.Debug().Err(err).Msg("No stored token")
	}

	if tok == nil || (!tok.Valid() && tok.RefreshToken == "") {
		tok, err = a.consent(ctx, a.config)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", inventory.ErrAuthFailure, err)
		}
		if err := a.store.Save(tok); err != nil {
			return nil, err
		}
	}

	a.source = &persistingTokenSource{
		base:  a.config.TokenSource(context.Background(), tok),
		store: a.store,
		last:  tok,
	}
	return a.source, nil
}

func (a *Auth) GetSheetsService(ctx context.Context, opts ...option.ClientOption) (*sheets.Service, error) {
	src, err := a.TokenSource(ctx)
	if err != nil {
		return nil, err
	}

	srv, err := sheets.NewService(ctx, append([]option.ClientOption{option.WithTokenSource(src)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Sheets client: %w", err)
	}
	return srv, nil
}

type persistingTokenSource struct {
	base  oauth2.TokenSource
	store TokenStore

	mu   sync.Mutex
	last *oauth2.Token
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.base.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", inventory.ErrAuthFailure, err)
	}

	if s.last == nil || tok.AccessToken != s.last.AccessToken {
		if err := s.store.Save(tok); err != nil {
			log.Warn().Err(err).Msg("Unable to persist refreshed token")
		} else {
			log.Debug().Time("expiry", tok.Expiry).Msg("Persisted refreshed token")
		}
		s.last = tok
	}

	return tok, nil
}

// WebConsent runs the installed-app flow: a local server on the redirect URL
// receives the authorization code, which is exchanged for a token.
func WebConsent(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	redirect, err := url.Parse(config.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URL %q: %w", config.RedirectURL, err)
	}

	callback := redirect.Path
	if callback == "" {
		callback = "/"
	}

	addr := redirect.Host
	if _, port, err := net.SplitHostPort(addr); err == nil {
		addr = ":" + port
	} else {
		addr = ":80"
	}

	state := uuid.NewString()
	codes := make(chan string, 1)
	failures := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(callback, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "Error: state mismatch", http.StatusBadRequest)
			return
		}

		code := r.URL.Query().Get("code")
		if code == "" {
			fmt.Fprintf(w, "Error: No authorization code received")
			return
		}

		fmt.Fprintf(w, `
			<html>
				<head><title>Authentication Successful</title></head>
				<body>
					<h1>Authentication Successful!</h1>
					<p>You can close this window and return to the terminal.</p>
					<script>window.setTimeout(function(){window.close();}, 2000);</script>
				</body>
			</html>
		`)

		select {
		case codes <- code:
		default:
		}
	})

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failures <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline)
	fmt.Printf("Opening browser for authentication...\n")
	fmt.Printf("If browser doesn't open automatically, visit:\n%v\n", authURL)
	openBrowser(authURL)

	fmt.Println("Waiting for authentication...")

	var code string
	select {
	case code = <-codes:
	case err := <-failures:
		return nil, fmt.Errorf("callback server failed: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tok, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return tok, nil
}

// openBrowser tries to open the URL in a browser
func openBrowser(url string) {
	var err error

	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform")
	}

	if err != nil {
		log.Warn().Err(err).Msg("Failed to open browser")
	}
}
