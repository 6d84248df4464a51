// Package credential supplies the bearer token minted by the login flow and
// the operator identity carried in its claims. Tokens come from a file
// (reloaded when it changes) or a fixed value; nothing here acquires or
// renews them.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/watchdesk/watchdesk/internal/dispatch"
	"github.com/watchdesk/watchdesk/internal/log"
	"github.com/watchdesk/watchdesk/internal/pubsub"
	"github.com/watchdesk/watchdesk/internal/watcher"
)

// ErrNoToken means no credential is available yet.
var ErrNoToken = errors.New("no credential available; sign in first")

// Overrides replace identity fields read from the token. Deployments whose
// tokens omit badge or unit claims set these in config.
type Overrides struct {
	Badge  string
	UnitID string
	Role   string
}

// Source holds the current token and identity.
type Source struct {
	mu        sync.RWMutex
	token     string
	identity  dispatch.Identity
	path      string
	overrides Overrides

	broker *pubsub.Broker[dispatch.Identity]
}

// NewStatic returns a source for a fixed token.
func NewStatic(token string, ov Overrides) (*Source, error) {
	s := &Source{overrides: ov, broker: pubsub.NewBroker[dispatch.Identity]()}
	if err := s.set(strings.TrimSpace(token)); err != nil {
		return nil, err
	}
	return s, nil
}

// NewFile returns a source reading path. A missing file is not an error;
// Token reports ErrNoToken until the login flow writes it.
func NewFile(path string, ov Overrides) (*Source, error) {
	s := &Source{path: path, overrides: ov, broker: pubsub.NewBroker[dispatch.Identity]()}
	if err := s.Reload(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return s, nil
}

// Token returns the current bearer token.
func (s *Source) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", ErrNoToken
	}
	return s.token, nil
}

// Identity returns who the current token belongs to.
func (s *Source) Identity() dispatch.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Subscribe streams identity changes (sign-in, token swap, sign-out).
func (s *Source) Subscribe(ctx context.Context) <-chan pubsub.Event[dispatch.Identity] {
	return s.broker.Subscribe(ctx)
}

// Broker exposes the identity broker for Bubble Tea listeners.
func (s *Source) Broker() *pubsub.Broker[dispatch.Identity] {
	return s.broker
}

// Reload re-reads the token file.
func (s *Source) Reload() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path) //nolint:gosec // G304: path comes from operator config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.clear()
		}
		return fmt.Errorf("read token file: %w", err)
	}
	return s.set(extractToken(data))
}

// Watch reloads the token whenever the file changes, until ctx is done.
func (s *Source) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	changes, err := watcher.File(ctx, s.path, watcher.DefaultQuiet)
	if err != nil {
		return err
	}

	go func() {
		for range changes {
			if err := s.Reload(); err != nil {
				log.WarnErr(log.CatAuth, "token reload failed", err, "path", s.path)
				continue
			}
			log.Info(log.CatAuth, "token reloaded", "user", s.Identity().UserID)
		}
	}()
	return nil
}

// Close releases the broker.
func (s *Source) Close() {
	s.broker.Close()
}

func (s *Source) set(token string) error {
	if token == "" {
		s.clear()
		return nil
	}
	id, err := ParseIdentity(token)
	if err != nil {
		return err
	}
	id = s.overrides.apply(id)

	s.mu.Lock()
	changed := s.identity != id || s.token != token
	s.token = token
	s.identity = id
	s.mu.Unlock()

	if changed {
		s.broker.Publish(pubsub.UpdatedEvent, id)
	}
	return nil
}

func (s *Source) clear() {
	s.mu.Lock()
	had := s.token != ""
	s.token = ""
	s.identity = dispatch.Identity{}
	s.mu.Unlock()
	if had {
		s.broker.Publish(pubsub.DeletedEvent, dispatch.Identity{})
	}
}

func (o Overrides) apply(id dispatch.Identity) dispatch.Identity {
	if o.Badge != "" {
		id.Badge = o.Badge
	}
	if o.UnitID != "" {
		id.UnitID = o.UnitID
	}
	if o.Role != "" {
		id.Role = dispatch.Role(o.Role)
	}
	return id
}

// extractToken accepts a bare token or the login flow's JSON response
// ({"access_token": "..."}).
func extractToken(data []byte) string {
	text := strings.TrimSpace(string(data))
	if !strings.HasPrefix(text, "{") {
		return text
	}
	var body struct {
		AccessToken string `json:"access_token"`
		Token       string `json:"token"`
	}
	if err := json.Unmarshal([]byte(text), &body); err != nil {
		return ""
	}
	if body.AccessToken != "" {
		return body.AccessToken
	}
	return body.Token
}

// ParseIdentity reads identity claims without verifying the signature.
// The server verifies every request; the console only needs to know who
// it is acting as.
func ParseIdentity(token string) (dispatch.Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return dispatch.Identity{}, fmt.Errorf("parse token claims: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return dispatch.Identity{}, fmt.Errorf("token subject: %w", err)
	}
	id := dispatch.Identity{
		UserID: sub,
		Badge:  stringClaim(claims, "badge_number", "badge"),
		UnitID: stringClaim(claims, "unit_id", "unit"),
		Role:   dispatch.Role(stringClaim(claims, "role")),
	}
	if id.UserID == "" {
		id.UserID = stringClaim(claims, "user_id", "id")
	}
	return id, nil
}

func stringClaim(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		switch v := claims[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}
