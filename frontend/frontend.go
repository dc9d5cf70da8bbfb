// Package frontend exposes the namenode over HTTP: multipart upload, download by
// name and a JSON status view.
package frontend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/mini_hdfs_project/helper"
	"github.com/mini_hdfs_project/models"
)

// FileService is the part of the namenode the HTTP layer drives.
type FileService interface {
	Upload(ctx context.Context, filename string, r io.Reader) (models.UploadResult, error)
	Download(ctx context.Context, filename string) ([]byte, error)
	Status() models.ClusterStatus
}

type Server struct {
	files          FileService
	maxUploadBytes int64
}

func NewServer(files FileService) *Server {
	return &Server{files: files, maxUploadBytes: helper.MAX_UPLOAD_BYTES}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/download/{filename:.+}", s.handleDownload).Methods(http.MethodGet)
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.files.Status())
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "no file selected, send a multipart field named \"file\"", http.StatusBadRequest)
		return
	}
	defer file.Close()

	result, err := s.files.Upload(r.Context(), header.Filename, file)
	if err != nil {
		log.Printf("[Namenode HTTP] Upload of %q failed: %v\n", header.Filename, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]
	data, err := s.files.Download(r.Context(), filename)
	switch {
	case errors.Is(err, helper.ErrFileNotFound):
		http.Error(w, "file not found", http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(filename)))
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("[Namenode HTTP] Error encoding response:", err)
	}
}
