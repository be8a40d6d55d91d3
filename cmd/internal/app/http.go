package app

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"studydeck/cmd/identity"
	"studydeck/cmd/internal/auth/credstore"
	"studydeck/cmd/internal/metrics"
)

// Local shell routes.
const (
	HomeRoute     = "/"
	LoginRoute    = "/login"
	LogoutRoute   = "/logout"
	RegisterRoute = "/register"
	SessionRoute  = "/session"
	RefreshRoute  = "/session/refresh"
	TopicsRoute   = "/topics"
)

func (a *App) routes() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: r.URL.Path})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method_not_allowed"})
	})

	r.HandleFunc("/healthz", a.handleHealthz).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", a.handleReadyz).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/metrics", metrics.Handler(a.registry)).Methods(http.MethodGet)

	r.HandleFunc(LoginRoute, a.handleLoginView).Methods(http.MethodGet)
	r.HandleFunc(LoginRoute, a.handleLogin).Methods(http.MethodPost)
	r.HandleFunc(LogoutRoute, a.handleLogout).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc(RegisterRoute, a.handleRegisterView).Methods(http.MethodGet)
	r.HandleFunc(RegisterRoute, a.handleRegister).Methods(http.MethodPost)
	r.HandleFunc(SessionRoute, a.handleSession).Methods(http.MethodGet)
	r.HandleFunc(RefreshRoute, a.handleRefresh).Methods(http.MethodPost)

	protected := r.NewRoute().Subrouter()
	protected.Use(a.gate.Middleware(LoginRoute))
	protected.HandleFunc(HomeRoute, a.handleHome).Methods(http.MethodGet)
	protected.HandleFunc(TopicsRoute, a.handleListTopics).Methods(http.MethodGet)
	protected.HandleFunc(TopicsRoute, a.handleCreateTopic).Methods(http.MethodPost)
	protected.HandleFunc(TopicsRoute+"/{id:[0-9]+}", a.handleDeleteTopic).Methods(http.MethodDelete)
	protected.HandleFunc(TopicsRoute+"/flashcards/{id:[0-9]+}", a.handleFlashcards).Methods(http.MethodGet)

	return WithSecurityHeaders(r)
}

func (a *App) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (a *App) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if a.dbPool != nil {
		if err := PingDB(r.Context(), a.dbPool, 2*time.Second); err != nil {
			a.log.Info("readyz.db.not_ready", "err", err)
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready\n"))
}

type sessionView struct {
	View       string `json:"view,omitempty"`
	State      string `json:"state"`
	Credential bool   `json:"credential"`
	Backend    string `json:"backend"`
	API        string `json:"api"`
	Next       string `json:"next,omitempty"`
}

func (a *App) sessionView(view string) sessionView {
	_, has := a.store.Get(credstore.KindAccess)
	return sessionView{
		View:       view,
		State:      a.tracker.State().String(),
		Credential: has,
		Backend:    a.store.Backend(),
		API:        a.client.BaseURL(),
	}
}

func (a *App) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.sessionView(""))
}

func (a *App) handleLoginView(w http.ResponseWriter, r *http.Request) {
	v := a.sessionView("login")
	v.Next = safeNext(r.URL.Query().Get("next"))
	writeJSON(w, http.StatusOK, v)
}

func (a *App) handleRegisterView(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.sessionView("register"))
}

type credentialsForm struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Next     string `json:"next"`
}

// readCredentials accepts a JSON body or a browser form.
func readCredentials(w http.ResponseWriter, r *http.Request) (credentialsForm, error) {
	var in credentialsForm

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormBytes))
		if err := dec.Decode(&in); err != nil {
			return in, fmt.Errorf("invalid json body: %w", err)
		}
		return in, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		return in, fmt.Errorf("invalid form body: %w", err)
	}
	in.Username = r.PostForm.Get("username")
	in.Password = r.PostForm.Get("password")
	in.Next = r.PostForm.Get("next")
	if in.Next == "" {
		in.Next = r.URL.Query().Get("next")
	}
	return in, nil
}

func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	in, err := readCredentials(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
		return
	}

	if err := a.flow.Login(r.Context(), identity.New(in.Username, in.Password)); err != nil {
		a.fail(w, r, err, false)
		return
	}

	next := safeNext(in.Next)
	v := a.sessionView("login")
	v.Next = next
	navigate(w, r, next, http.StatusOK, v)
}

func (a *App) handleRegister(w http.ResponseWriter, r *http.Request) {
	in, err := readCredentials(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
		return
	}

	if err := a.flow.Register(r.Context(), identity.New(in.Username, in.Password)); err != nil {
		a.fail(w, r, err, false)
		return
	}

	v := a.sessionView("register")
	v.Next = LoginRoute
	navigate(w, r, LoginRoute, http.StatusCreated, v)
}

func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.flow.Logout(); err != nil {
		// Memory is already cleared; the persisted copy may linger.
		a.log.WarnContext(r.Context(), "shell.logout.persist_error", "err", err)
	}
	v := a.sessionView("logout")
	v.Next = LoginRoute
	navigate(w, r, LoginRoute, http.StatusOK, v)
}

func (a *App) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := a.flow.Refresh(r.Context()); err != nil {
		a.fail(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, a.sessionView(""))
}
