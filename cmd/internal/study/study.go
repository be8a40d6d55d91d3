// Package study holds the topic and flashcard services used by the views.
// They only call the transport client; credentials never pass through here.
package study

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"studydeck/cmd/internal/transport"
)

// DefaultMaxUploadBytes matches the backend's upload limit.
const DefaultMaxUploadBytes = 10 << 20

// Topic is a named group of flashcards derived from one upload.
type Topic struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	User      int       `json:"user"`
}

// Flashcard is one question/answer pair.
type Flashcard struct {
	ID        int       `json:"id"`
	Topic     int       `json:"topic"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
	User      int       `json:"user"`
}

// NewFlashcard is the body for a manually created card.
type NewFlashcard struct {
	Topic    int    `json:"topic"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Upload is the document sent with a new topic.
type Upload struct {
	Filename string
	// Size is used for the local limit check; 0 skips it.
	Size    int64
	Content io.Reader
}

func validation(method, path, field, msg string) *transport.Failure {
	return &transport.Failure{
		Kind:    transport.KindValidation,
		Method:  method,
		Path:    path,
		Code:    "invalid_input",
		Message: field + ": " + msg,
		Fields:  map[string][]string{field: {msg}},
	}
}

// Topics calls the topic endpoints.
type Topics struct {
	client         *transport.Client
	maxUploadBytes int64
}

// NewTopics returns a topic service. maxUploadBytes <= 0 uses DefaultMaxUploadBytes.
func NewTopics(client *transport.Client, maxUploadBytes int64) *Topics {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &Topics{client: client, maxUploadBytes: maxUploadBytes}
}

// List returns the current user's topics.
func (t *Topics) List(ctx context.Context) ([]Topic, error) {
	resp, err := t.client.Get(ctx, "/api/topics/")
	if err != nil {
		return nil, err
	}
	var out []Topic
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create uploads a document under a new topic. The backend derives the flashcards.
func (t *Topics) Create(ctx context.Context, name string, up Upload) (Topic, error) {
	const path = "/api/topics/"

	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return Topic{}, validation(http.MethodPost, path, "name", "This field is required.")
	case up.Content == nil || up.Filename == "":
		return Topic{}, validation(http.MethodPost, path, "file", "Please upload a file.")
	case up.Size > t.maxUploadBytes:
		return Topic{}, validation(http.MethodPost, path, "file",
			fmt.Sprintf("File too large. Maximum size is %dMB.", t.maxUploadBytes>>20))
	}

	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(up.Filename)))
	resp, err := t.client.PostMultipart(ctx, path,
		map[string]string{"name": name},
		[]transport.File{{Field: "file", Name: filepath.Base(up.Filename), ContentType: ct, Reader: up.Content}},
	)
	if err != nil {
		return Topic{}, err
	}

	var out Topic
	if err := resp.Decode(&out); err != nil {
		return Topic{}, err
	}
	return out, nil
}

// Delete removes a topic and, on the backend, all of its flashcards.
func (t *Topics) Delete(ctx context.Context, id int) error {
	path := fmt.Sprintf("/api/topic/delete/%d", id)
	if id <= 0 {
		return validation(http.MethodDelete, path, "id", "A valid topic id is required.")
	}
	_, err := t.client.Delete(ctx, path)
	return err
}

// Flashcards calls the flashcard endpoints.
type Flashcards struct {
	client *transport.Client
}

func NewFlashcards(client *transport.Client) *Flashcards {
	return &Flashcards{client: client}
}

// ByTopic lists a topic's flashcards.
func (f *Flashcards) ByTopic(ctx context.Context, topicID int) ([]Flashcard, error) {
	resp, err := f.client.Get(ctx, fmt.Sprintf("/api/flashcards/%d/", topicID))
	if err != nil {
		return nil, err
	}
	var out []Flashcard
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *Flashcards) Create(ctx context.Context, in NewFlashcard) (Flashcard, error) {
	resp, err := f.client.PostJSON(ctx, "/api/flashcards/", in)
	if err != nil {
		return Flashcard{}, err
	}
	var out Flashcard
	if err := resp.Decode(&out); err != nil {
		return Flashcard{}, err
	}
	return out, nil
}

func (f *Flashcards) Delete(ctx context.Context, id int) error {
	_, err := f.client.Delete(ctx, fmt.Sprintf("/api/flashcards/%d/", id))
	return err
}
