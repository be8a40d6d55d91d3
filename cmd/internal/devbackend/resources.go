package devbackend

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

// Topic mirrors the backend topic serializer.
type Topic struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	User      int       `json:"user"`
}

// Flashcard mirrors the backend flashcard serializer.
type Flashcard struct {
	ID        int       `json:"id"`
	Topic     int       `json:"topic"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
	User      int       `json:"user"`
}

type flashcardRequest struct {
	Topic    int    `json:"topic"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// SeedTopic creates a topic owned by username and returns it.
func (s *Server) SeedTopic(username, name string) Topic {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		u = s.addUserLocked(username, "")
	}
	t := &Topic{ID: s.id(), Name: name, CreatedAt: s.opts.Now().UTC(), User: u.ID}
	s.topics[t.ID] = t
	return *t
}

func (s *Server) handleListTopics(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)

	s.mu.Lock()
	out := make([]Topic, 0)
	for _, t := range s.topics {
		if t.User == u.ID {
			out = append(out, *t)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

// handleCreateTopic takes multipart "name" + "file" and derives one flashcard per
// non-empty line of the file. Lines of the form "question ? answer" split at the
// first "?".
func (s *Server) handleCreateTopic(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeDetail(w, http.StatusBadRequest, "unsupported_media_type", "Multipart form parse error")
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	f, _, err := r.FormFile("file")
	fields := map[string]string{}
	if name == "" {
		fields["name"] = "This field is required."
	}
	if err != nil {
		fields["file"] = "No file was submitted."
	}
	if len(fields) > 0 {
		writeFieldErrors(w, fields)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "upload_failed", "Could not read uploaded file")
		return
	}

	now := s.opts.Now().UTC()

	s.mu.Lock()
	t := &Topic{ID: s.id(), Name: name, CreatedAt: now, User: u.ID}
	s.topics[t.ID] = t
	for _, qa := range deriveCards(data) {
		c := &Flashcard{ID: s.id(), Topic: t.ID, Question: qa[0], Answer: qa[1], CreatedAt: now, User: u.ID}
		s.flashcards[c.ID] = c
	}
	out := *t
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, out)
}

func deriveCards(data []byte) [][2]string {
	var out [][2]string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		q, a, ok := strings.Cut(line, "?")
		if !ok {
			out = append(out, [2]string{"What is " + line + "?", line})
			continue
		}
		out = append(out, [2]string{strings.TrimSpace(q) + "?", strings.TrimSpace(a)})
	}
	return out
}

func pathInt(r *http.Request, key string) (int, bool) {
	n, err := strconv.Atoi(mux.Vars(r)[key])
	return n, err == nil
}

func (s *Server) handleDeleteTopic(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	id, ok := pathInt(r, "id")
	if !ok {
		writeDetail(w, http.StatusNotFound, "not_found", "Not found.")
		return
	}

	s.mu.Lock()
	t, ok := s.topics[id]
	if !ok || t.User != u.ID {
		s.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "not_found", "Not found.")
		return
	}
	delete(s.topics, id)
	for cid, c := range s.flashcards {
		if c.Topic == id {
			delete(s.flashcards, cid)
		}
	}
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFlashcards(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	topicID, _ := pathInt(r, "topic")

	s.mu.Lock()
	out := make([]Flashcard, 0)
	for _, c := range s.flashcards {
		if c.Topic == topicID && c.User == u.ID {
			out = append(out, *c)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateFlashcard(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)

	var in flashcardRequest
	if err := decodeJSON(w, r, maxJSONBytes, &in); err != nil {
		writeDetail(w, http.StatusBadRequest, "parse_error", "JSON parse error")
		return
	}
	fields := map[string]string{}
	if strings.TrimSpace(in.Question) == "" {
		fields["question"] = "This field may not be blank."
	}
	if strings.TrimSpace(in.Answer) == "" {
		fields["answer"] = "This field may not be blank."
	}

	s.mu.Lock()
	t, ok := s.topics[in.Topic]
	if !ok || t.User != u.ID {
		fields["topic"] = `Invalid pk "` + strconv.Itoa(in.Topic) + `" - object does not exist.`
	}
	if len(fields) > 0 {
		s.mu.Unlock()
		writeFieldErrors(w, fields)
		return
	}
	c := &Flashcard{ID: s.id(), Topic: in.Topic, Question: in.Question, Answer: in.Answer, CreatedAt: s.opts.Now().UTC(), User: u.ID}
	s.flashcards[c.ID] = c
	out := *c
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleDeleteFlashcard(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	id, _ := pathInt(r, "id")

	s.mu.Lock()
	c, ok := s.flashcards[id]
	if !ok || c.User != u.ID {
		s.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "not_found", "Not found.")
		return
	}
	delete(s.flashcards, id)
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}
