// Package auth handles the Google OAuth2 flow and token persistence for
// the People API. The first run walks the user through a browser consent
// flow via a localhost redirect; later runs refresh the stored token
// silently, which keeps unattended syncs working.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/people/v1"
)

const (
	// ClientSecretsFile holds the OAuth client downloaded from the Google
	// Cloud console (client_id, client_secret, redirect_uris).
	ClientSecretsFile = "credentials.json"

	// TokenFile caches the obtained access and refresh tokens.
	TokenFile = "token.json"

	// LocalhostAuthPort is where the local server listens for the OAuth
	// redirect during the initial consent flow.
	LocalhostAuthPort = "6789"

	xdgAppName = "davsync"
)

// ConfigDir returns the application's XDG config directory.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

// tokenPath resolves the token cache location, honoring the
// GOOGLE_TOKEN_FILE override used in unattended deployments.
func tokenPath() (string, error) {
	if p := os.Getenv("GOOGLE_TOKEN_FILE"); p != "" {
		return p, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, TokenFile), nil
}

func oauthConfig(scopes []string) (*oauth2.Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	secrets := filepath.Join(dir, ClientSecretsFile)
	b, err := os.ReadFile(secrets)
	if err != nil {
		return nil, fmt.Errorf("reading client secrets %s: %w", secrets, err)
	}
	config, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parsing client secrets: %w", err)
	}
	config.RedirectURL = fmt.Sprintf("http://localhost:%s/oauth2callback", LocalhostAuthPort)
	return config, nil
}

// Client returns an authenticated HTTP client for the given scopes. A
// cached token is refreshed transparently; with no cached token the
// interactive consent flow runs, which requires a browser.
func Client(ctx context.Context, scopes []string) (*http.Client, error) {
	config, err := oauthConfig(scopes)
	if err != nil {
		return nil, err
	}
	path, err := tokenPath()
	if err != nil {
		return nil, err
	}
	tok, err := tokenFromFile(path)
	if err != nil {
		tok, err = tokenFromWeb(ctx, config)
		if err != nil {
			return nil, fmt.Errorf("authorizing: %w", err)
		}
		if err := saveToken(path, tok); err != nil {
			return nil, err
		}
	}
	return config.Client(ctx, tok), nil
}

// Authorize runs the interactive consent flow unconditionally and caches
// the resulting token, replacing any stored one.
func Authorize(ctx context.Context, scopes []string) error {
	config, err := oauthConfig(scopes)
	if err != nil {
		return err
	}
	tok, err := tokenFromWeb(ctx, config)
	if err != nil {
		return err
	}
	path, err := tokenPath()
	if err != nil {
		return err
	}
	return saveToken(path, tok)
}

// tokenFromWeb runs the authorization code flow with a localhost redirect
// capture.
func tokenFromWeb(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	listener, err := net.Listen("tcp", ":"+LocalhostAuthPort)
	if err != nil {
		return nil, fmt.Errorf("listening on port %s: %w", LocalhostAuthPort, err)
	}
	defer listener.Close()

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "authorization code missing", http.StatusBadRequest)
				errCh <- fmt.Errorf("redirect carried no authorization code")
				return
			}
			fmt.Fprint(w, "Authentication successful. You can close this window.")
			codeCh <- code
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	defer server.Shutdown(context.Background())

	authURL := config.AuthCodeURL("state-token",
		oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Printf("Open this URL in your browser to authorize access:\n%s\n", authURL)

	select {
	case code := <-codeCh:
		exchangeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		tok, err := config.Exchange(exchangeCtx, code)
		if err != nil {
			return nil, fmt.Errorf("exchanging authorization code: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Minute):
		return nil, fmt.Errorf("authorization timed out")
	}
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decoding token %s: %w", path, err)
	}
	return tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("writing token %s: %w", path, err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(tok)
}

// PeopleScopes are the scopes the contact sync needs.
var PeopleScopes = []string{people.ContactsScope}

// PeopleService returns an authenticated People API service.
func PeopleService(ctx context.Context) (*people.Service, error) {
	client, err := Client(ctx, PeopleScopes)
	if err != nil {
		return nil, fmt.Errorf("authenticating with Google: %w", err)
	}
	srv, err := people.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("creating People service: %w", err)
	}
	return srv, nil
}
