package devbackend

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"studydeck/cmd/internal/transport"
	"studydeck/cmd/security/password"
)

const (
	maxJSONBytes   = 1 << 20
	maxUploadBytes = 32 << 20
)

// Options configures a Server.
type Options struct {
	// Secret signs access tokens (HS256). Defaults to a random key.
	Secret []byte
	// AccessTTL is the access token lifetime. Defaults to 5 minutes (simplejwt).
	AccessTTL time.Duration
	// BadLoginStatus is returned for wrong credentials. Defaults to 401 (simplejwt);
	// some deployments answer 400.
	BadLoginStatus int
	// RotateRefresh returns a new refresh token from the refresh endpoint.
	RotateRefresh bool
	// Now overrides the clock.
	Now func() time.Time
	// Passwords hashes stored passwords. Defaults to password.FastParams.
	Passwords *password.Hasher
	Logger    *slog.Logger
}

// Recorded is one request as the server saw it.
type Recorded struct {
	Method        string
	Path          string
	Authorization string
	At            time.Time
}

// Bearer returns the bearer credential of the recorded request.
func (r Recorded) Bearer() string {
	req := http.Request{Header: http.Header{"Authorization": []string{r.Authorization}}}
	return transport.BearerToken(&req)
}

type override struct {
	status int
	body   string
}

// Server is the in-memory backend.
type Server struct {
	opts Options
	log  *slog.Logger

	mu         sync.Mutex
	nextID     int
	users      map[string]*user // by username
	refresh    map[string]string
	revoked    map[string]bool // access token jti
	topics     map[int]*Topic
	flashcards map[int]*Flashcard
	requests   []Recorded
	overrides  map[string][]override
	onRequest  func(Recorded)

	router *mux.Router
}

type user struct {
	ID           int
	Username     string
	PasswordHash string
}

// New builds a Server.
func New(opts Options) *Server {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 5 * time.Minute
	}
	if opts.BadLoginStatus == 0 {
		opts.BadLoginStatus = http.StatusUnauthorized
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if len(opts.Secret) == 0 {
		opts.Secret = mustRandomSecret()
	}
	if opts.Passwords == nil {
		opts.Passwords = password.New(password.FastParams())
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		opts:       opts,
		log:        log,
		users:      make(map[string]*user),
		refresh:    make(map[string]string),
		revoked:    make(map[string]bool),
		topics:     make(map[int]*Topic),
		flashcards: make(map[int]*Flashcard),
		overrides:  make(map[string][]override),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/token/", s.handleToken).Methods(http.MethodPost)
	r.HandleFunc("/api/token/refresh/", s.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/api/user/register/", s.handleRegister).Methods(http.MethodPost)

	r.HandleFunc("/api/topics/", s.authed(s.handleListTopics)).Methods(http.MethodGet)
	r.HandleFunc("/api/topics/", s.authed(s.handleCreateTopic)).Methods(http.MethodPost)
	r.HandleFunc("/api/topic/delete/{id:[0-9]+}", s.authed(s.handleDeleteTopic)).Methods(http.MethodDelete)
	r.HandleFunc("/api/topic/delete/{id:[0-9]+}/", s.authed(s.handleDeleteTopic)).Methods(http.MethodDelete)
	r.HandleFunc("/api/flashcards/", s.authed(s.handleCreateFlashcard)).Methods(http.MethodPost)
	r.HandleFunc("/api/flashcards/{topic:[0-9]+}/", s.authed(s.handleListFlashcards)).Methods(http.MethodGet)
	r.HandleFunc("/api/flashcards/{id:[0-9]+}/", s.authed(s.handleDeleteFlashcard)).Methods(http.MethodDelete)

	r.HandleFunc("/ws/ping", s.authed(s.handlePing)).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "not_found", "Not found.")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "method_not_allowed", `Method "`+r.Method+`" not allowed.`)
	})
	return r
}

// ServeHTTP records the request, applies any queued override, then routes it.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := Recorded{
		Method:        r.Method,
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		At:            s.opts.Now(),
	}

	s.mu.Lock()
	s.requests = append(s.requests, rec)
	hook := s.onRequest
	var ov *override
	key := r.Method + " " + r.URL.Path
	if q := s.overrides[key]; len(q) > 0 {
		ov = &q[0]
		s.overrides[key] = q[1:]
	}
	s.mu.Unlock()

	if hook != nil {
		hook(rec)
	}

	s.log.Debug("devbackend.request", "method", rec.Method, "path", rec.Path, "authenticated", rec.Authorization != "")

	if ov != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(ov.status)
		_, _ = w.Write([]byte(ov.body))
		return
	}
	s.router.ServeHTTP(w, r)
}

// OnRequest installs a hook that runs synchronously for every request before
// it is handled. Blocking in the hook delays the response.
func (s *Server) OnRequest(fn func(Recorded)) {
	s.mu.Lock()
	s.onRequest = fn
	s.mu.Unlock()
}

// Override makes the next request for method+path answer status and body verbatim.
func (s *Server) Override(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.overrides[key] = append(s.overrides[key], override{status: status, body: body})
}

// Requests returns a copy of every recorded request.
func (s *Server) Requests() []Recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Recorded, len(s.requests))
	copy(out, s.requests)
	return out
}

// LastRequest returns the most recent request for method+path.
func (s *Server) LastRequest(method, path string) (Recorded, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.requests) - 1; i >= 0; i-- {
		if r := s.requests[i]; r.Method == method && r.Path == path {
			return r, true
		}
	}
	return Recorded{}, false
}

// AddUser creates a user directly, replacing any user with the same name.
func (s *Server) AddUser(username, pw string) {
	hash, err := s.opts.Passwords.Hash(pw)
	if err != nil {
		s.log.Error("devbackend.user.hash_fail", "username", username, "err", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addUserLocked(username, hash)
}

func (s *Server) addUserLocked(username, hash string) *user {
	s.nextID++
	u := &user{ID: s.nextID, Username: username, PasswordHash: hash}
	s.users[username] = u
	return u
}

func (s *Server) id() int {
	s.nextID++
	return s.nextID
}
