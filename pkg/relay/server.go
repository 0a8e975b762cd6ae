// Package relay is the single writer of the wish board. It accepts uploads
// and admin commands over HTTP and fans the resulting events out to every
// connected display over websockets.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/astromechza/wishboard/pkg/wish"
	"github.com/astromechza/wishboard/pkg/wsconn"
)

const DefaultMaxPhotoBytes = 10 << 20

var (
	ErrMissingPhoto = errors.New("photo is required")
	ErrPhotoTooBig  = errors.New("photo is too large")
	ErrNotAnImage   = errors.New("photo is not an image")
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type Options struct {
	UploadDir     string
	MaxPhotoBytes int64
	QueueSize     int
}

type Server struct {
	store     *Store
	hub       *Hub
	uploadDir string
	maxPhoto  int64
	upgrader  websocket.Upgrader
	newID     func() (string, error)

	// mu orders every board mutation with its broadcast, and subscriptions
	// with their snapshot.
	mu        sync.Mutex
	spotlight string
}

func NewServer(store *Store, opts Options) (*Server, error) {
	if opts.UploadDir == "" {
		return nil, fmt.Errorf("upload dir is required")
	}
	if err := os.MkdirAll(opts.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	if opts.MaxPhotoBytes <= 0 {
		opts.MaxPhotoBytes = DefaultMaxPhotoBytes
	}
	return &Server{
		store:     store,
		hub:       NewHub(opts.QueueSize),
		uploadDir: opts.UploadDir,
		maxPhoto:  opts.MaxPhotoBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		newID: func() (string, error) {
			id, err := uuid.NewV7()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		},
	}, nil
}

func (s *Server) Hub() *Hub {
	return s.hub
}

// Close disconnects every display.
func (s *Server) Close() {
	s.hub.Close()
}

func logRequests(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		m := httpsnoop.CaptureMetrics(handler, writer, request)
		slog.Info("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
	})
}

func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(logRequests)

	r.Methods(http.MethodPost).Path("/api/upload").HandlerFunc(s.upload)
	r.Methods(http.MethodGet).Path("/api/theme").HandlerFunc(s.getTheme)
	r.Methods(http.MethodPut).Path("/api/theme").HandlerFunc(s.putTheme)
	r.Methods(http.MethodGet).Path("/api/wishes").HandlerFunc(s.listWishes)
	r.Methods(http.MethodDelete).Path("/api/wishes").HandlerFunc(s.clearWishes)
	r.Methods(http.MethodDelete).Path("/api/wishes/{id}").HandlerFunc(s.deleteWish)
	r.Methods(http.MethodPost).Path("/api/spotlight/{id}").HandlerFunc(s.setSpotlight)
	r.Methods(http.MethodDelete).Path("/api/spotlight").HandlerFunc(s.clearSpotlight)
	r.Methods(http.MethodGet).Path("/uploads/{file}").HandlerFunc(s.getUpload)
	r.Methods(http.MethodGet).Path("/ws").HandlerFunc(s.serveWS)
	return r
}

func writeJSON(writer http.ResponseWriter, status int, body any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(body); err != nil {
		slog.Error("failed to write out", "err", err)
	}
}

func writeError(writer http.ResponseWriter, status int, err error) {
	writeJSON(writer, status, wish.ErrorResponse{Error: err.Error()})
}

// broadcastLocked encodes and fans out one event. Callers hold s.mu.
func (s *Server) broadcastLocked(channel wish.Channel, payload any) {
	frame, err := wish.Encode(channel, payload)
	if err != nil {
		slog.Error("failed to encode event", "channel", channel, "err", err)
		return
	}
	s.hub.Broadcast(frame)
}

// snapshotLocked is what a display needs to rebuild the board from nothing:
// all wishes, then the spotlight if there is one, then the theme.
func (s *Server) snapshotLocked() ([][]byte, error) {
	wishes, err := s.store.List()
	if err != nil {
		return nil, err
	}
	all, err := wish.Encode(wish.ChannelAllWishes, wishes)
	if err != nil {
		return nil, err
	}
	// The spotlight state is always sent so a display that kept one across a
	// resync hears about it being cleared.
	spot, err := wish.Encode(wish.ChannelSpotlightOff, nil)
	if err != nil {
		return nil, err
	}
	if s.spotlight != "" {
		if w, err := s.store.Get(s.spotlight); err == nil {
			if spot, err = wish.Encode(wish.ChannelSpotlight, w); err != nil {
				return nil, err
			}
		}
	}
	frames := [][]byte{all, spot}
	theme, err := wish.Encode(wish.ChannelThemeChange, wish.Theme{Theme: s.store.Theme()})
	if err != nil {
		return nil, err
	}
	return append(frames, theme), nil
}

func (s *Server) savePhoto(id string, photo io.Reader) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(photo, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read photo: %w", err)
	}
	if n == 0 {
		return "", ErrMissingPhoto
	}
	head = head[:n]
	contentType := http.DetectContentType(head)
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotAnImage, contentType)
	}

	name := id + ext
	f, err := os.CreateTemp(s.uploadDir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create photo file: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	written, err := io.Copy(f, io.MultiReader(bytes.NewReader(head), io.LimitReader(photo, s.maxPhoto-int64(n)+1)))
	if err != nil {
		return "", fmt.Errorf("failed to write photo: %w", err)
	}
	if written > s.maxPhoto {
		return "", ErrPhotoTooBig
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write photo: %w", err)
	}
	if err := os.Rename(f.Name(), filepath.Join(s.uploadDir, name)); err != nil {
		return "", fmt.Errorf("failed to store photo: %w", err)
	}
	return "/uploads/" + name, nil
}

func (s *Server) upload(writer http.ResponseWriter, request *http.Request) {
	var name, photoURL string
	fail := func(status int, err error) {
		s.discardPhoto(photoURL)
		writeJSON(writer, status, wish.UploadResponse{Success: false, Error: err.Error()})
	}

	request.Body = http.MaxBytesReader(writer, request.Body, s.maxPhoto+(1<<20))
	reader, err := request.MultipartReader()
	if err != nil {
		fail(http.StatusBadRequest, fmt.Errorf("expected a multipart form: %w", err))
		return
	}

	id, err := s.newID()
	if err != nil {
		fail(http.StatusInternalServerError, fmt.Errorf("failed to generate id: %w", err))
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fail(http.StatusBadRequest, fmt.Errorf("failed to read form: %w", err))
			return
		}
		switch part.FormName() {
		case "childName":
			raw, err := io.ReadAll(io.LimitReader(part, wish.MaxNameBytes+1))
			if err != nil {
				fail(http.StatusBadRequest, fmt.Errorf("failed to read name: %w", err))
				return
			}
			if len(raw) > wish.MaxNameBytes {
				fail(http.StatusBadRequest, wish.ErrNameTooLong)
				return
			}
			name = string(raw)
		case "photo":
			if photoURL != "" {
				break
			}
			if photoURL, err = s.savePhoto(id, part); err != nil {
				status := http.StatusBadRequest
				if !errors.Is(err, ErrMissingPhoto) && !errors.Is(err, ErrPhotoTooBig) && !errors.Is(err, ErrNotAnImage) {
					status = http.StatusInternalServerError
				}
				fail(status, err)
				return
			}
		}
		_ = part.Close()
	}

	cleanName, err := wish.NormalizeName(name)
	if err != nil {
		fail(http.StatusBadRequest, err)
		return
	}
	if photoURL == "" {
		fail(http.StatusBadRequest, ErrMissingPhoto)
		return
	}

	w := wish.Wish{ID: id, ChildName: cleanName, PhotoURL: photoURL}
	s.mu.Lock()
	if err := s.store.Add(w); err != nil {
		s.mu.Unlock()
		fail(http.StatusInternalServerError, err)
		return
	}
	s.broadcastLocked(wish.ChannelNewWish, w)
	s.mu.Unlock()

	slog.Info("wish received", "id", w.ID, "name", w.ChildName)
	writeJSON(writer, http.StatusOK, wish.UploadResponse{Success: true, Wish: &w})
}

func (s *Server) discardPhoto(photoURL string) {
	if photoURL == "" {
		return
	}
	path := filepath.Join(s.uploadDir, filepath.Base(photoURL))
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to remove photo", "path", path, "err", err)
	}
}

func (s *Server) getTheme(writer http.ResponseWriter, request *http.Request) {
	writeJSON(writer, http.StatusOK, wish.Theme{Theme: s.store.Theme()})
}

func (s *Server) putTheme(writer http.ResponseWriter, request *http.Request) {
	var body wish.Theme
	if err := json.NewDecoder(io.LimitReader(request.Body, 4096)).Decode(&body); err != nil {
		writeError(writer, http.StatusBadRequest, fmt.Errorf("failed to decode body: %w", err))
		return
	}
	if !wish.ValidTheme(body.Theme) {
		writeError(writer, http.StatusBadRequest, fmt.Errorf("unknown theme %q, expected one of %s", body.Theme, strings.Join(wish.Themes, ", ")))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.SetTheme(body.Theme); err != nil {
		writeError(writer, http.StatusInternalServerError, err)
		return
	}
	s.broadcastLocked(wish.ChannelThemeChange, body)
	writeJSON(writer, http.StatusOK, body)
}

func (s *Server) listWishes(writer http.ResponseWriter, request *http.Request) {
	wishes, err := s.store.List()
	if err != nil {
		writeError(writer, http.StatusInternalServerError, err)
		return
	}
	writeJSON(writer, http.StatusOK, wishes)
}

func (s *Server) deleteWish(writer http.ResponseWriter, request *http.Request) {
	id := mux.Vars(request)["id"]
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.store.Get(id)
	if err == nil {
		err = s.store.Delete(id)
	}
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(writer, http.StatusNotFound, err)
		return
	case err != nil:
		writeError(writer, http.StatusInternalServerError, err)
		return
	}
	s.broadcastLocked(wish.ChannelWishDeleted, wish.Deleted{ID: id})
	if s.spotlight == id {
		s.spotlight = ""
		s.broadcastLocked(wish.ChannelSpotlightOff, nil)
	}
	s.discardPhoto(w.PhotoURL)
	writer.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearWishes(writer http.ResponseWriter, request *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wishes, err := s.store.List()
	if err != nil {
		writeError(writer, http.StatusInternalServerError, err)
		return
	}
	n, err := s.store.Clear()
	if err != nil {
		writeError(writer, http.StatusInternalServerError, err)
		return
	}
	if s.spotlight != "" {
		s.spotlight = ""
		s.broadcastLocked(wish.ChannelSpotlightOff, nil)
	}
	s.broadcastLocked(wish.ChannelAllCleared, nil)
	for _, w := range wishes {
		s.discardPhoto(w.PhotoURL)
	}
	slog.Info("board cleared", "wishes", n)
	writeJSON(writer, http.StatusOK, wish.Cleared{Cleared: n})
}

func (s *Server) setSpotlight(writer http.ResponseWriter, request *http.Request) {
	id := mux.Vars(request)["id"]
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.store.Get(id)
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(writer, http.StatusNotFound, err)
		return
	case err != nil:
		writeError(writer, http.StatusInternalServerError, err)
		return
	}
	s.spotlight = id
	s.broadcastLocked(wish.ChannelSpotlight, w)
	writeJSON(writer, http.StatusOK, w)
}

func (s *Server) clearSpotlight(writer http.ResponseWriter, request *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.spotlight != "" {
		s.spotlight = ""
		s.broadcastLocked(wish.ChannelSpotlightOff, nil)
	}
	writer.WriteHeader(http.StatusNoContent)
}

// Spotlight returns the focused wish id, if any.
func (s *Server) Spotlight() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spotlight, s.spotlight != ""
}

func (s *Server) getUpload(writer http.ResponseWriter, request *http.Request) {
	file := mux.Vars(request)["file"]
	if file != filepath.Base(file) || strings.HasPrefix(file, ".") {
		writer.WriteHeader(http.StatusNotFound)
		return
	}
	http.ServeFile(writer, request, filepath.Join(s.uploadDir, file))
}

func (s *Server) serveWS(writer http.ResponseWriter, request *http.Request) {
	conn, err := s.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		slog.Error("failed to upgrade", "err", err)
		return
	}

	s.mu.Lock()
	frames, err := s.snapshotLocked()
	if err != nil {
		s.mu.Unlock()
		slog.Error("failed to build snapshot", "err", err)
		_ = conn.Close()
		return
	}
	sub := s.hub.Subscribe(frames...)
	s.mu.Unlock()
	defer s.hub.Unsubscribe(sub)

	if err := wsconn.Pump(context.Background(), conn, sub.Frames(), func(raw []byte) error {
		env, err := wish.Decode(raw)
		if err != nil {
			return err
		}
		if env.Type != wish.ChannelRequestSnapshot {
			return fmt.Errorf("unexpected channel %q from display", env.Type)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		frames, err := s.snapshotLocked()
		if err != nil {
			return err
		}
		s.hub.Send(sub, frames...)
		return nil
	}); err != nil {
		slog.Debug("display disconnected", "err", err)
	}
}
