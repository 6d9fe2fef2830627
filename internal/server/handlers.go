package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spherical/docparser/internal/convert"
	"github.com/spherical/docparser/internal/domain"
	"github.com/spherical/docparser/internal/jobs"
	"github.com/spherical/docparser/internal/observability"
)

const multipartMemory = 32 << 20

// ConvertHandler handles conversion and job lookup requests.
type ConvertHandler struct {
	logger *observability.Logger
	conv   Converter
}

// NewConvertHandler creates a new conversion handler.
func NewConvertHandler(logger *observability.Logger, conv Converter) *ConvertHandler {
	return &ConvertHandler{
		logger: logger,
		conv:   conv,
	}
}

// JobInputDTO is the job input: a base64 document and its name.
type JobInputDTO struct {
	File     string `json:"file"`
	FileName string `json:"file_name,omitempty"`
}

// ConvertRequestDTO accepts the bare job input or an envelope carrying it
// under "input".
type ConvertRequestDTO struct {
	ID    string       `json:"id,omitempty"`
	Input *JobInputDTO `json:"input,omitempty"`
	JobInputDTO
}

func (d ConvertRequestDTO) job() domain.Job {
	in := d.JobInputDTO
	if d.Input != nil {
		in = *d.Input
	}
	return domain.Job{RequestID: d.ID, Payload: in.File, FileName: in.FileName}
}

// Convert handles POST /v1/convert. Conversion failures are reported in the
// body with status 200.
func (h *ConvertHandler) Convert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "")
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	h.run(w, r, req.job())
}

// Upload handles POST /v1/convert/upload with the document in multipart
// field "file".
func (h *ConvertHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "")
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "file is required", err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read upload", err.Error())
		return
	}

	name := r.FormValue("file_name")
	if name == "" {
		name = header.Filename
	}

	h.run(w, r, domain.Job{
		Payload:  base64.StdEncoding.EncodeToString(data),
		FileName: name,
	})
}

// GetJob handles GET /v1/jobs/{jobId}.
func (h *ConvertHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobId")

	rec, err := h.conv.Lookup(r.Context(), id)
	if errors.Is(err, jobs.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "job not found", "")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", id).Msg("Job lookup failed")
		h.writeError(w, http.StatusInternalServerError, "job lookup failed", "")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (h *ConvertHandler) run(w http.ResponseWriter, r *http.Request, job domain.Job) {
	h.logger.Info().
		Str("request_id", chimiddleware.GetReqID(r.Context())).
		Str("file_name", job.FileName).
		Int("payload_chars", len(job.Payload)).
		Msg("Conversion requested")

	out := h.conv.Convert(r.Context(), job)

	body, err := outcomeBody(out)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to encode result", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// outcomeBody flattens the job output and adds job_id, the caller's id and
// output_uri.
func outcomeBody(out convert.Outcome) (map[string]any, error) {
	raw, err := json.Marshal(out.Result)
	if err != nil {
		return nil, err
	}
	body := map[string]any{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	body["job_id"] = out.JobID
	if out.RequestID != "" {
		body["id"] = out.RequestID
	}
	if out.OutputURI != "" {
		body["output_uri"] = out.OutputURI
	}
	return body, nil
}

func (h *ConvertHandler) writeError(w http.ResponseWriter, status int, message, detail string) {
	writeError(w, status, message, detail)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
