// Package api exposes the dataset engine over HTTP using chi and render.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/lakeward/datasetstore/pkg/datasetstore"
)

// maxUploadBytes caps multipart payload memory buffering; larger files spill
// to disk.
const maxUploadBytes = 32 << 20

// DatasetHandler handles HTTP requests for datasets.
type DatasetHandler struct {
	service datasetstore.Service
	logger  *slog.Logger
}

// NewDatasetHandler creates a new dataset handler.
func NewDatasetHandler(service datasetstore.Service, logger *slog.Logger) *DatasetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DatasetHandler{service: service, logger: logger}
}

// Routes returns the routes for datasets.
func (h *DatasetHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.StoreDataset)
	r.Get("/", h.ListDatasets)
	r.Delete("/{name}", h.DeleteDataset)

	r.Get("/{name}/versions/{version}", h.RetrieveVersion)
	r.Delete("/{name}/versions/{version}", h.DeleteVersion)

	r.Post("/archive", h.RunArchival)

	return r
}

// StoreDataset stores an uploaded payload as a new dataset version. The
// payload arrives as a multipart file field named "file"; the remaining
// form fields mirror StoreRequest.
func (h *DatasetHandler) StoreDataset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "multipart form required: "+err.Error(), http.StatusBadRequest)
		return
	}

	name := r.FormValue("name")
	if name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	// The engine reads payloads from the filesystem, so the upload is
	// staged into a temp file carrying the original extension.
	tmp, err := os.CreateTemp("", "upload-*"+filepath.Ext(header.Filename))
	if err != nil {
		h.logger.Error("failed to stage upload", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.ReadFrom(file); err != nil {
		tmp.Close()
		h.logger.Error("failed to stage upload", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := tmp.Close(); err != nil {
		h.logger.Error("failed to stage upload", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	req := datasetstore.StoreRequest{
		SourcePath: tmp.Name(),
		Name:       name,
		Kind:       datasetstore.DatasetKind(r.FormValue("kind")),
		Profile:    r.FormValue("profile"),
	}
	if cols := r.FormValue("index_columns"); cols != "" {
		req.IndexColumns = splitCSV(cols)
	}
	if raw := r.FormValue("metadata"); raw != "" {
		var metadata map[string]any
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			http.Error(w, "metadata must be a JSON object: "+err.Error(), http.StatusBadRequest)
			return
		}
		req.Metadata = metadata
	}
	if raw := r.FormValue("strategy"); raw != "" {
		var strategy datasetstore.Strategy
		if err := json.Unmarshal([]byte(raw), &strategy); err != nil {
			http.Error(w, "strategy must be a JSON object: "+err.Error(), http.StatusBadRequest)
			return
		}
		req.Strategy = &strategy
	}

	result := h.service.Store(r.Context(), req)
	if !result.OK {
		h.logger.Error("store failed", "dataset", name, "error", result.Error)
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, result)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// ListDatasets lists catalogued datasets.
func (h *DatasetHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	req := datasetstore.ListRequest{
		Kind:            datasetstore.DatasetKind(r.URL.Query().Get("kind")),
		IncludeArchived: queryBool(r, "include_archived"),
		IncludeMetadata: queryBool(r, "include_metadata"),
	}

	result := h.service.List(r.Context(), req)
	if !result.OK {
		h.logger.Error("list failed", "error", result.Error)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, result)
		return
	}
	render.JSON(w, r, result)
}

// RetrieveVersion reconstructs one version and serves its bytes. The
// selector "latest" resolves to the newest version.
func (h *DatasetHandler) RetrieveVersion(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	version := chi.URLParam(r, "version")
	if version == datasetstore.VersionAll {
		http.Error(w, "this route serves one file; request versions individually", http.StatusBadRequest)
		return
	}

	dest, err := os.MkdirTemp("", "retrieve-")
	if err != nil {
		h.logger.Error("failed to create retrieval directory", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer os.RemoveAll(dest)

	result := h.service.Retrieve(r.Context(), datasetstore.RetrieveRequest{
		Name:        name,
		Version:     version,
		Destination: dest,
	})
	if !result.OK {
		h.logger.Error("retrieve failed", "dataset", name, "version", version, "error", result.Error)
		status := http.StatusInternalServerError
		if strings.Contains(result.Error, "not found") {
			status = http.StatusNotFound
		}
		render.Status(r, status)
		render.JSON(w, r, result)
		return
	}
	if len(result.Paths) == 0 {
		http.Error(w, "no payload produced", http.StatusInternalServerError)
		return
	}

	path := result.Paths[0]
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(filepath.Base(path)))
	http.ServeFile(w, r, path)
}

// DeleteDataset deletes a dataset and every version it holds.
func (h *DatasetHandler) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	h.deleteWith(w, r, datasetstore.DeleteRequest{
		Name:    chi.URLParam(r, "name"),
		Version: datasetstore.VersionAll,
	})
}

// DeleteVersion deletes one version of a dataset.
func (h *DatasetHandler) DeleteVersion(w http.ResponseWriter, r *http.Request) {
	h.deleteWith(w, r, datasetstore.DeleteRequest{
		Name:    chi.URLParam(r, "name"),
		Version: chi.URLParam(r, "version"),
	})
}

func (h *DatasetHandler) deleteWith(w http.ResponseWriter, r *http.Request, req datasetstore.DeleteRequest) {
	result := h.service.Delete(r.Context(), req)
	if !result.OK {
		h.logger.Error("delete failed", "dataset", req.Name, "version", req.Version, "error", result.Error)
		status := http.StatusInternalServerError
		if strings.Contains(result.Error, "not found") {
			status = http.StatusNotFound
		}
		render.Status(r, status)
		render.JSON(w, r, result)
		return
	}
	render.JSON(w, r, result)
}

// RunArchival triggers the catalog-wide archival scan.
func (h *DatasetHandler) RunArchival(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ArchiveAged(r.Context()); err != nil {
		h.logger.Error("archival scan failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	render.JSON(w, r, map[string]string{"status": "completed"})
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func queryBool(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && v
}
