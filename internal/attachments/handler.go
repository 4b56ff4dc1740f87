package attachments

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/opdstack/clinic-platform/internal/session"
	"github.com/opdstack/clinic-platform/pkg/logging"
)

// maxUploadBody bounds the multipart request; individual files are still
// checked against the tier limits by the pipeline.
const maxUploadBody = 256 << 20

// Handler exposes the upload pipeline for reports attached after
// registration. Registration-time uploads go through the consultations
// handler instead.
type Handler struct {
	pipeline *Pipeline
	logger   *logging.Logger
}

// NewHandler creates a new attachments handler.
func NewHandler(pipeline *Pipeline, logger *logging.Logger) *Handler {
	return &Handler{pipeline: pipeline, logger: logger}
}

// Upload handles POST /attachments. The request is multipart/form-data
// with zero or more "files" parts. The whole batch settles before the
// response; a partial failure comes back 207 with both subsets.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if _, ok := session.FromContext(r.Context()); !ok {
		http.Error(w, "missing session", http.StatusUnauthorized)
		return
	}

	files, err := readMultipartFiles(r)
	if err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}

	result := h.pipeline.UploadBatch(r.Context(), files, nil)

	status := http.StatusOK
	if len(result.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(result)
}

func readMultipartFiles(r *http.Request) ([]File, error) {
	if err := r.ParseMultipartForm(maxUploadBody); err != nil {
		return nil, err
	}
	var files []File
	for _, header := range r.MultipartForm.File["files"] {
		f, err := header.Open()
		if err != nil {
			return nil, err
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, File{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        int64(len(content)),
			Content:     content,
		})
	}
	return files, nil
}
