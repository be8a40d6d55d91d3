package app

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"studydeck/cmd/internal/study"
)

// multipartMemory is how much of an upload ParseMultipartForm keeps in memory.
const multipartMemory = 8 << 20

type homeView struct {
	View   string        `json:"view"`
	State  string        `json:"state"`
	Topics []study.Topic `json:"topics"`
}

type topicsView struct {
	View   string        `json:"view"`
	Topics []study.Topic `json:"topics"`
}

type flashcardsView struct {
	View       string            `json:"view"`
	Topic      int               `json:"topic"`
	Flashcards []study.Flashcard `json:"flashcards"`
}

func routeID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	return id, err == nil && id > 0
}

func (a *App) handleHome(w http.ResponseWriter, r *http.Request) {
	topics, err := a.topics.List(r.Context())
	if err != nil {
		a.fail(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, homeView{
		View:   "home",
		State:  a.tracker.State().String(),
		Topics: nonNil(topics),
	})
}

func (a *App) handleListTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := a.topics.List(r.Context())
	if err != nil {
		a.fail(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, topicsView{View: "topics", Topics: nonNil(topics)})
}

func (a *App) handleCreateTopic(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxUploadBytes+maxFormBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
				Error:  "validation",
				Code:   "invalid_input",
				Fields: map[string][]string{"file": {"File too large."}},
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	var up study.Upload
	file, hdr, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		up = study.Upload{Filename: hdr.Filename, Size: hdr.Size, Content: file}
	case !errors.Is(err, http.ErrMissingFile):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
		return
	}

	topic, err := a.topics.Create(r.Context(), r.FormValue("name"), up)
	if err != nil {
		a.fail(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusCreated, topic)
}

func (a *App) handleDeleteTopic(w http.ResponseWriter, r *http.Request) {
	id, ok := routeID(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: r.URL.Path})
		return
	}
	if err := a.topics.Delete(r.Context(), id); err != nil {
		a.fail(w, r, err, true)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleFlashcards(w http.ResponseWriter, r *http.Request) {
	id, ok := routeID(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: r.URL.Path})
		return
	}
	cards, err := a.cards.ByTopic(r.Context(), id)
	if err != nil {
		a.fail(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, flashcardsView{View: "flashcards", Topic: id, Flashcards: nonNil(cards)})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
