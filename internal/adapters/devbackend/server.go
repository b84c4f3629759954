// Package devbackend is a stub of the external HR backend for local
// development and integration tests. It serves the whoami, login, validate,
// app-token and directory endpoints with HS256 tokens and bcrypt passwords.
package devbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/domain/sso"
)

const issuer = "hrportal-devbackend"

// SeedUser is an account the backend knows at startup.
type SeedUser struct {
	User     domainauth.User
	Password string
}

// Config configures the stub backend.
type Config struct {
	// Secret signs tokens; required.
	Secret []byte
	// TokenTTL defaults to 8h.
	TokenTTL     time.Duration
	Users        []SeedUser
	Applications []sso.Application
	Logger       *slog.Logger
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	// Now overrides the clock in tests.
	Now func() time.Time
}

type account struct {
	user domainauth.User
	hash []byte
}

// Server implements the consumed backend endpoints in memory.
type Server struct {
	signer signer
	logger *slog.Logger
	cost   int

	mu       sync.RWMutex
	accounts map[string]account // keyed by lower-case email
	apps     []sso.Application
}

// New builds a Server, hashing every seed password.
func New(cfg Config) (*Server, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("devbackend: secret is required")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	s := &Server{
		signer:   signer{secret: cfg.Secret, ttl: ttl, now: now},
		cost:     cost,
		logger:   logger.With("component", "devbackend"),
		accounts: make(map[string]account, len(cfg.Users)),
		apps:     append([]sso.Application(nil), cfg.Applications...),
	}
	for _, su := range cfg.Users {
		if err := s.AddUser(su); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// AddUser registers or replaces an account.
func (s *Server) AddUser(su SeedUser) error {
	email := strings.ToLower(strings.TrimSpace(su.User.Email))
	if email == "" {
		return errors.New("devbackend: seed user without email")
	}
	if !su.User.Role.Valid() {
		return fmt.Errorf("devbackend: seed user %s has invalid role %q", email, su.User.Role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(su.Password), s.cost)
	if err != nil {
		return fmt.Errorf("devbackend: hash password for %s: %w", email, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[email] = account{user: su.User, hash: hash}
	return nil
}

// MintToken issues a primary token for email without a password check.
// It backs the mock login mode.
func (s *Server) MintToken(_ context.Context, email string) (domainauth.Credential, error) {
	acct, ok := s.lookup(email)
	if !ok {
		return "", fmt.Errorf("devbackend: unknown user %q", email)
	}
	tok, err := s.signer.sign(acct.user.Email, scopePrimary, "")
	if err != nil {
		return "", err
	}
	return domainauth.Credential(tok), nil
}

func (s *Server) lookup(email string) (account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[strings.ToLower(strings.TrimSpace(email))]
	return a, ok
}

// Handler routes the backend endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/me", s.handleMe)
	mux.HandleFunc("POST /sso/login", s.handleLogin)
	mux.HandleFunc("POST /sso/validate", s.handleValidate)
	mux.HandleFunc("POST /sso/app-token", s.handleAppToken)
	mux.HandleFunc("GET /sso/applications", s.handleApplications)
	return mux
}

// authenticate resolves the bearer header to an account, writing a 401 on failure.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (account, bool) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return account{}, false
	}
	c, err := s.signer.parse(strings.TrimSpace(raw), scopePrimary)
	if err != nil {
		s.logger.DebugContext(r.Context(), "rejected token", "error", err)
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return account{}, false
	}
	acct, found := s.lookup(c.Subject)
	if !found {
		writeError(w, http.StatusUnauthorized, "unknown user")
		return account{}, false
	}
	return acct, true
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, wireUser(acct.user))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	acct, ok := s.lookup(req.Email)
	if !ok || bcrypt.CompareHashAndPassword(acct.hash, []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	tok, err := s.signer.sign(acct.user.Email, scopePrimary, "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	s.logger.InfoContext(r.Context(), "login", "email", acct.user.Email)
	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken": tok,
		"user":        wireUser(acct.user),
	})
}

type validateRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	c, err := s.signer.parse(req.Token, "")
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false})
		return
	}
	acct, ok := s.lookup(c.Subject)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "user": wireUser(acct.user)})
}

type appTokenRequest struct {
	Application string `json:"application"`
}

func (s *Server) handleAppToken(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req appTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	app := strings.ToLower(strings.TrimSpace(req.Application))
	if !s.hasApplication(app) {
		writeError(w, http.StatusNotFound, "unknown application")
		return
	}
	if !domainauth.CanAccessApplication(&acct.user, app) {
		writeError(w, http.StatusForbidden, "application not permitted")
		return
	}
	tok, err := s.signer.sign(acct.user.Email, scopeApplication, app)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": tok})
}

func (s *Server) handleApplications(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}
	s.mu.RLock()
	apps := append([]sso.Application(nil), s.apps...)
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, apps)
}

func (s *Server) hasApplication(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.apps {
		if strings.EqualFold(a.ID, id) {
			return true
		}
	}
	return false
}

// wireUser renders u in the camelCase shape the real backend uses.
func wireUser(u domainauth.User) map[string]any {
	out := map[string]any{
		"id":           u.ID,
		"username":     u.Username,
		"email":        u.Email,
		"role":         string(u.Role),
		"firstName":    u.Profile.FirstName,
		"lastName":     u.Profile.LastName,
		"phone":        u.Profile.Phone,
		"position":     u.Profile.Position,
		"division":     u.Profile.Division,
		"businessUnit": u.Profile.BusinessUnit,
		"avatarUrl":    u.Profile.AvatarURL,
	}
	if u.Profile.HireDate != nil {
		out["hireDate"] = u.Profile.HireDate.Format("2006-01-02")
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}
