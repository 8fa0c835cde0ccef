// Package auth handles the Google OAuth installed-app flow and the cached token.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const (
	// ClientSecretsFile is the downloaded Google API credentials, kept in the config dir.
	ClientSecretsFile = "credentials.json"
	TokenFile         = "token.json"

	// LocalhostAuthPort receives the OAuth redirect during Authorize.
	LocalhostAuthPort = "6789"

	authTimeout = 5 * time.Minute
)

// ErrNoToken means Authorize has not been run yet.
var ErrNoToken = errors.New("no cached token, run `autosched auth` first")

// Scopes are read-only: the engine only needs busy time.
var Scopes = []string{calendar.CalendarReadonlyScope}

// GetConfig builds the oauth2 config from the client secrets in dir.
func GetConfig(dir string, scopes []string, log zerolog.Logger) (*oauth2.Config, error) {
	path := filepath.Join(dir, ClientSecretsFile)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file %s: %w", path, err)
	}

	cfg, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	cfg.RedirectURL = normalizeRedirect(cfg.RedirectURL, log)
	return cfg, nil
}

// normalizeRedirect points localhost and out-of-band redirects at LocalhostAuthPort.
func normalizeRedirect(raw string, log zerolog.Logger) string {
	if raw == "urn:ietf:wg:oauth:2.0:oob" {
		return fmt.Sprintf("http://localhost:%s/oauth2callback", LocalhostAuthPort)
	}
	u, err := url.Parse(raw)
	if err != nil {
		log.Warn().Err(err).Str("redirect_url", raw).Msg("could not parse redirect url, using it as is")
		return raw
	}
	if u.Hostname() != "localhost" && u.Hostname() != "127.0.0.1" {
		log.Warn().Str("redirect_url", raw).Msg("redirect url is not a localhost callback")
		return raw
	}
	if u.Port() != LocalhostAuthPort {
		u.Host = net.JoinHostPort(u.Hostname(), LocalhostAuthPort)
	}
	return u.String()
}

// GetClient returns an HTTP client using the cached token. Refreshed tokens are
// written back to disk. It never starts the interactive flow.
func GetClient(ctx context.Context, dir string, scopes []string, log zerolog.Logger) (*http.Client, error) {
	cfg, err := GetConfig(dir, scopes, log)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, TokenFile)
	tok, err := tokenFromFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, err
	}

	src := &savingSource{
		base: cfg.TokenSource(ctx, tok),
		path: path,
		last: tok,
		log:  log,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

// Authorize runs the browser flow and caches the resulting token in dir.
func Authorize(ctx context.Context, dir string, scopes []string, out io.Writer, log zerolog.Logger) error {
	cfg, err := GetConfig(dir, scopes, log)
	if err != nil {
		return err
	}
	tok, err := getTokenFromWeb(ctx, cfg, out, log)
	if err != nil {
		return fmt.Errorf("failed to get token from web: %w", err)
	}
	path := filepath.Join(dir, TokenFile)
	if err := saveToken(path, tok); err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved authentication token to: %s\n", path)
	return nil
}

// CalendarService returns an authenticated Google Calendar service.
func CalendarService(ctx context.Context, dir string, log zerolog.Logger) (*calendar.Service, error) {
	client, err := GetClient(ctx, dir, Scopes, log)
	if err != nil {
		return nil, fmt.Errorf("failed to get authenticated client for Calendar API: %w", err)
	}
	srv, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Google Calendar service: %w", err)
	}
	return srv, nil
}

func getTokenFromWeb(ctx context.Context, cfg *oauth2.Config, out io.Writer, log zerolog.Logger) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	listener, err := net.Listen("tcp", ":"+LocalhostAuthPort)
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %s: %w", LocalhostAuthPort, err)
	}
	defer listener.Close()

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Authorization code not found", http.StatusBadRequest)
				select {
				case errCh <- errors.New("authorization code not found in redirect URL"):
				default:
				}
				return
			}
			fmt.Fprintf(w, "Authentication successful! You can close this window.")
			select {
			case codeCh <- code:
			default:
			}
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	defer server.Shutdown(context.Background())

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case errCh <- fmt.Errorf("HTTP server error: %w", err):
			default:
			}
		}
	}()

	// offline access is what yields a refresh token
	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Fprintf(out, "Please open the following URL in your browser to authorize autosched:\n%s\n", authURL)
	log.Info().Str("redirect_url", cfg.RedirectURL).Msg("waiting for authorization code")

	timer := time.NewTimer(authTimeout)
	defer timer.Stop()

	select {
	case code := <-codeCh:
		xctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		tok, err := cfg.Exchange(xctx, code)
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, errors.New("authorization timed out, please try again")
	}
}

// savingSource persists the token whenever the underlying source hands out a new one.
type savingSource struct {
	base oauth2.TokenSource
	path string
	log  zerolog.Logger

	mu   sync.Mutex
	last *oauth2.Token
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || tok.AccessToken != s.last.AccessToken || tok.RefreshToken != s.last.RefreshToken {
		if err := saveToken(s.path, tok); err != nil {
			s.log.Warn().Err(err).Msg("could not persist refreshed token")
		} else {
			s.log.Debug().Msg("refreshed token saved")
		}
		s.last = tok
	}
	return tok, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode token from file %s: %w", path, err)
	}
	return tok, nil
}

func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("could not create token directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache OAuth token to %s: %w", path, err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}
