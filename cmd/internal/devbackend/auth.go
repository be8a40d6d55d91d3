package devbackend

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"studydeck/cmd/identity/ids"
	"studydeck/cmd/internal/transport"
	"studydeck/cmd/security/token"
)

type ctxKey int

const userKey ctxKey = 1

type accessClaims struct {
	TokenType string `json:"token_type"`
	UserID    int    `json:"user_id"`
	jwt.RegisteredClaims
}

// Pair is a token pair as the backend issues it.
type Pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

type registerResponse struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

func mustRandomSecret() []byte {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

func (s *Server) signAccessLocked(u *user) (string, error) {
	now := s.opts.Now()
	jti, err := ids.NewULID(now)
	if err != nil {
		return "", err
	}
	claims := accessClaims{
		TokenType: "access",
		UserID:    u.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   u.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.AccessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.Secret)
}

func (s *Server) issueLocked(u *user) (Pair, error) {
	access, err := s.signAccessLocked(u)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := token.NewOpaque(32)
	if err != nil {
		return Pair{}, err
	}
	s.refresh[refresh] = u.Username
	return Pair{Access: access, Refresh: refresh}, nil
}

// IssueFor mints a token pair for an existing user, creating it if needed.
func (s *Server) IssueFor(username string) (Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		u = s.addUserLocked(username, "")
	}
	return s.issueLocked(u)
}

// ExpireAccess makes the backend reject access from now on, as if it had expired.
func (s *Server) ExpireAccess(access string) {
	claims, err := s.parseAccess(access, false)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.revoked[claims.ID] = true
	s.mu.Unlock()
}

// RevokeRefresh invalidates a refresh token.
func (s *Server) RevokeRefresh(refresh string) {
	s.mu.Lock()
	delete(s.refresh, refresh)
	s.mu.Unlock()
}

var errRevoked = errors.New("token revoked")

func (s *Server) parseAccess(raw string, checkRevoked bool) (*accessClaims, error) {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.opts.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.opts.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != "access" {
		return nil, errors.New("wrong token type")
	}
	if checkRevoked {
		s.mu.Lock()
		revoked := s.revoked[claims.ID]
		s.mu.Unlock()
		if revoked {
			return nil, errRevoked
		}
	}
	return &claims, nil
}

// authed requires a valid bearer access token.
func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := transport.BearerToken(r)
		if raw == "" {
			writeDetail(w, http.StatusUnauthorized, "not_authenticated", "Authentication credentials were not provided.")
			return
		}
		claims, err := s.parseAccess(raw, true)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "token_not_valid", "Given token not valid for any token type")
			return
		}

		s.mu.Lock()
		u, ok := s.users[claims.Subject]
		s.mu.Unlock()
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "user_not_found", "User not found")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
	}
}

func userFrom(r *http.Request) *user {
	u, _ := r.Context().Value(userKey).(*user)
	return u
}

func missingCredentials(in credentialsRequest) map[string]string {
	fields := map[string]string{}
	if strings.TrimSpace(in.Username) == "" {
		fields["username"] = "This field may not be blank."
	}
	if in.Password == "" {
		fields["password"] = "This field may not be blank."
	}
	return fields
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var in credentialsRequest
	if err := decodeJSON(w, r, maxJSONBytes, &in); err != nil {
		writeDetail(w, http.StatusBadRequest, "parse_error", "JSON parse error")
		return
	}
	if fields := missingCredentials(in); len(fields) > 0 {
		writeFieldErrors(w, fields)
		return
	}

	s.mu.Lock()
	u, ok := s.users[in.Username]
	var hash string
	if ok {
		hash = u.PasswordHash
	}
	s.mu.Unlock()

	// Verify outside the lock.
	match := false
	if ok {
		var err error
		if match, err = s.opts.Passwords.Verify(hash, in.Password); err != nil {
			s.log.Warn("devbackend.login.bad_hash", "username", in.Username, "err", err)
		}
	}
	if !match {
		s.log.Info("devbackend.login.fail", "username", in.Username)
		writeDetail(w, s.opts.BadLoginStatus, "no_active_account", "No active account found with the given credentials")
		return
	}

	var rehash string
	if s.opts.Passwords.NeedsRehash(hash) {
		rehash, _ = s.opts.Passwords.Hash(in.Password)
	}

	s.mu.Lock()
	if rehash != "" && u.PasswordHash == hash {
		u.PasswordHash = rehash
	}
	pair, err := s.issueLocked(u)
	s.mu.Unlock()
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "internal", "token issue failed")
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeJSON(w, r, maxJSONBytes, &in); err != nil || in.Refresh == "" {
		writeFieldErrors(w, map[string]string{"refresh": "This field is required."})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	username, ok := s.refresh[in.Refresh]
	u := s.users[username]
	if !ok || u == nil {
		writeDetail(w, http.StatusUnauthorized, "token_not_valid", "Token is invalid or expired")
		return
	}

	access, err := s.signAccessLocked(u)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "internal", "token issue failed")
		return
	}

	out := refreshResponse{Access: access}
	if s.opts.RotateRefresh {
		next, err := token.NewOpaque(32)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "internal", "token issue failed")
			return
		}
		delete(s.refresh, in.Refresh)
		s.refresh[next] = username
		out.Refresh = next
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in credentialsRequest
	if err := decodeJSON(w, r, maxJSONBytes, &in); err != nil {
		writeDetail(w, http.StatusBadRequest, "parse_error", "JSON parse error")
		return
	}
	if fields := missingCredentials(in); len(fields) > 0 {
		writeFieldErrors(w, fields)
		return
	}

	hash, err := s.opts.Passwords.Hash(in.Password)
	if err != nil {
		writeFieldErrors(w, map[string]string{"password": err.Error()})
		return
	}

	s.mu.Lock()
	if _, exists := s.users[in.Username]; exists {
		s.mu.Unlock()
		writeFieldErrors(w, map[string]string{"username": "A user with that username already exists."})
		return
	}
	u := s.addUserLocked(in.Username, hash)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, registerResponse{ID: u.ID, Username: u.Username})
}
