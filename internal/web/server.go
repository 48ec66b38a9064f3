// Package web serves the browser front-end: a JSON API over the studio, a
// websocket for live state and the embedded single-page UI.
package web

import (
	"embed"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"ai-profile-studio/internal/refimage"
	"ai-profile-studio/internal/studio"
)

//go:embed static/*
var staticFS embed.FS

const maxUploadBytes = 25 << 20

type Options struct {
	Studio *studio.Studio
	Logger *slog.Logger
	// AccessPassword enables HTTP basic auth when set.
	AccessPassword string
}

type Server struct {
	studio   *studio.Studio
	hub      *Hub
	logger   *slog.Logger
	password string
}

// New builds the server and subscribes its websocket hub to studio changes.
func New(opts Options) (*Server, error) {
	if opts.Studio == nil {
		return nil, errors.New("studio is nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		studio:   opts.Studio,
		hub:      NewHub(logger),
		logger:   logger,
		password: opts.AccessPassword,
	}
	s.studio.Subscribe(func(v studio.View) {
		s.hub.Broadcast(v.Version, wsMessage{Type: "state", State: toState(v)})
	})
	return s, nil
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(withLogging(s.logger), withBasicAuth(s.password))

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/credential", s.handleGetCredential).Methods(http.MethodGet)
	api.HandleFunc("/credential", s.handlePutCredential).Methods(http.MethodPut)
	api.HandleFunc("/credential", s.handleDeleteCredential).Methods(http.MethodDelete)

	api.HandleFunc("/catalog", s.gated(s.handleCatalog)).Methods(http.MethodGet)
	api.HandleFunc("/state", s.gated(s.handleState)).Methods(http.MethodGet)
	api.HandleFunc("/selections/{category}", s.gated(s.handleSelect)).Methods(http.MethodPut)
	api.HandleFunc("/reset", s.gated(s.handleReset)).Methods(http.MethodPost)
	api.HandleFunc("/reference", s.gated(s.handleGetReference)).Methods(http.MethodGet)
	api.HandleFunc("/reference", s.gated(s.handleUpload)).Methods(http.MethodPost)
	api.HandleFunc("/reference", s.gated(s.handleRemoveReference)).Methods(http.MethodDelete)
	api.HandleFunc("/generate", s.gated(s.handleGenerate)).Methods(http.MethodPost)
	api.HandleFunc("/images", s.gated(s.handleImages)).Methods(http.MethodGet)
	api.HandleFunc("/images/{index:[0-9]+}", s.gated(s.handleImage)).Methods(http.MethodGet)
	api.HandleFunc("/downloads", s.gated(s.handleDownloadAll)).Methods(http.MethodPost)
	api.HandleFunc("/notification", s.gated(s.handleDismiss)).Methods(http.MethodDelete)

	r.HandleFunc("/ws", s.handleWS)

	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	r.PathPrefix("/").Handler(http.FileServer(http.FS(staticSub)))

	return r
}

// gated answers 428 until a credential is stored.
func (s *Server) gated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.studio.HasCredential() {
			writeJSON(w, http.StatusPreconditionRequired, apiError{Error: "credential required"})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleGetCredential(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"set": s.studio.HasCredential()})
}

func (s *Server) handlePutCredential(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid json"})
		return
	}
	v, err := s.studio.SaveCredential(body.Key)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, toState(v))
}

func (s *Server) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	v, err := s.studio.ClearCredential()
	if err != nil {
		s.logger.Error("clear credential failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to clear credential"})
		return
	}
	writeJSON(w, http.StatusOK, toState(v))
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toCategories(s.studio.EffectiveCatalog()))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toState(s.studio.View()))
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Option string `json:"option"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid json"})
		return
	}
	v, err := s.studio.Select(mux.Vars(r)["category"], strings.TrimSpace(body.Option))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, toState(v))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toState(s.studio.Reset()))
}

func (s *Server) handleGetReference(w http.ResponseWriter, r *http.Request) {
	ref := s.studio.View().Reference
	if ref == nil {
		writeJSON(w, http.StatusNotFound, apiError{Error: "no reference image"})
		return
	}
	w.Header().Set("cache-control", "no-store")
	if r.URL.Query().Get("preview") == "1" {
		thumb, err := refimage.PreviewJPEG(ref, 70)
		if err != nil {
			s.logger.Warn("reference preview failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, apiError{Error: "preview failed"})
			return
		}
		w.Header().Set("content-type", refimage.MIMEJPEG)
		_, _ = w.Write(thumb)
		return
	}
	w.Header().Set("content-type", ref.MIMEType)
	_, _ = w.Write(ref.Data)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "missing image"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "failed to read image"})
		return
	}

	v, err := s.studio.Upload(data, header.Filename)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, toState(v))
}

func (s *Server) handleRemoveReference(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toState(s.studio.RemoveReference()))
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	epoch := s.studio.StartGeneration(r.Context())
	writeJSON(w, http.StatusAccepted, map[string]uint64{"epoch": epoch})
}

func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	v := s.studio.View()
	out := make([]string, 0, len(v.Images))
	for i := range v.Images {
		d, err := s.studio.Image(i)
		if err != nil {
			break
		}
		out = append(out, refimage.DataURL(d.MIMEType, d.Data))
	}
	writeJSON(w, http.StatusOK, map[string][]string{"images": out})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid index"})
		return
	}
	d, err := s.studio.Image(index)
	if err != nil {
		writeJSON(w, http.StatusNotFound, apiError{Error: err.Error()})
		return
	}
	w.Header().Set("content-type", d.MIMEType)
	w.Header().Set("content-disposition", `attachment; filename="`+d.Filename+`"`)
	_, _ = w.Write(d.Data)
}

func (s *Server) handleDownloadAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]downloadJSON{"files": toDownloads(s.studio.DownloadAll())})
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toState(s.studio.Dismiss()))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.Serve(w, r, func() (uint64, any) {
		v := s.studio.View()
		return v.Version, wsMessage{Type: "state", State: toState(v)}
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
