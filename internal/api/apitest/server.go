// Package apitest provides an in-memory marketplace API for tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/kilimopesa/internal/apipaths"
	"github.com/kilimopesa/internal/domain"
)

// VerificationCode is the code mailed to every new account
const VerificationCode = "482193"

type account struct {
	user     domain.User
	password string
	code     string
}

// Server speaks the auth endpoints of the marketplace API with bearer
// tokens. Accounts live in memory.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	accounts map[string]*account // by email
	tokens   map[string]string   // token -> email
	nextID   int64
	issued   int
	hits     map[string]int
	failWith int
}

// NewServer starts a server that is closed when the test ends
func NewServer(t testing.TB) *Server {
	s := &Server{
		accounts: make(map[string]*account),
		tokens:   make(map[string]string),
		hits:     make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+apipaths.CurrentUser, s.currentUser)
	mux.HandleFunc("POST "+apipaths.Login, s.login)
	mux.HandleFunc("POST "+apipaths.Register, s.register)
	mux.HandleFunc("POST "+apipaths.VerifyEmail, s.verifyEmail)
	mux.HandleFunc("POST "+apipaths.ResendVerification, s.resend)
	mux.HandleFunc("POST "+apipaths.Logout, s.logout)

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		status := s.failWith
		s.mu.Unlock()

		if status != 0 {
			writeJSON(w, status, map[string]string{"detail": http.StatusText(status)})
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

// AddAccount creates an account directly and returns its user
func (s *Server) AddAccount(username, email, password string, verified bool) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(username, email, password, verified).user
}

func (s *Server) addLocked(username, email, password string, verified bool) *account {
	s.nextID++
	a := &account{
		user: domain.User{
			ID:              s.nextID,
			Username:        username,
			Email:           email,
			IsEmailVerified: verified,
		},
		password: password,
		code:     VerificationCode,
	}
	s.accounts[strings.ToLower(email)] = a
	return a
}

// Hits returns how many requests reached path
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// TotalHits returns the number of requests received
func (s *Server) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, h := range s.hits {
		n += h
	}
	return n
}

// FailWith makes every endpoint answer status; 0 restores normal service
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	s.failWith = status
	s.mu.Unlock()
}

// RevokeTokens invalidates every issued token
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	s.tokens = make(map[string]string)
	s.mu.Unlock()
}

// Token issues a token for email without a login request
func (s *Server) Token(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(strings.ToLower(email))
}

func (s *Server) issueLocked(email string) string {
	s.issued++
	token := fmt.Sprintf("tok-%d-%s", s.issued, strings.SplitN(email, "@", 2)[0])
	s.tokens[token] = email
	return token
}

// authenticated resolves the bearer token to a copy of its user
func (s *Server) authenticated(r *http.Request) (string, domain.User, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.tokens[token]
	if !ok {
		return "", domain.User{}, false
	}
	return token, s.accounts[email].user, true
}

func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) {
	_, user, ok := s.authenticated(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid token."})
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decode(w, r, &body) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var acc *account
	if body.Email != "" {
		acc = s.accounts[strings.ToLower(body.Email)]
	} else {
		for _, a := range s.accounts {
			if a.user.Username == body.Username {
				acc = a
				break
			}
		}
	}
	if acc == nil || acc.password != body.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": s.issueLocked(strings.ToLower(acc.user.Email)),
		"user":  acc.user,
	})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &body) {
		return
	}

	fields := map[string][]string{}
	if body.Username == "" {
		fields["username"] = []string{"This field is required."}
	}
	if body.Email == "" {
		fields["email"] = []string{"This field is required."}
	}
	if body.Password == "" {
		fields["password"] = []string{"This field is required."}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.user.Username == body.Username {
			fields["username"] = []string{"A user with that username already exists."}
		}
	}
	if _, taken := s.accounts[strings.ToLower(body.Email)]; taken {
		fields["email"] = []string{"A user with that email already exists."}
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, fields)
		return
	}

	s.addLocked(body.Username, body.Email, body.Password, false)
	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "Registration successful. Check your email for the verification code.",
	})
}

func (s *Server) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if !decode(w, r, &body) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.accounts[strings.ToLower(body.Email)]
	if acc == nil || acc.code != body.Code {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid or expired verification code"})
		return
	}
	acc.user.IsEmailVerified = true
	writeJSON(w, http.StatusOK, map[string]string{"message": "Email verified successfully"})
}

func (s *Server) resend(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &body) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accounts[strings.ToLower(body.Email)] == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Verification code resent"})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	token, _, ok := s.authenticated(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
		return
	}
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Malformed request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
