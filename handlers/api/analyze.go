package api

import (
	stderrors "errors"
	"mime/multipart"
	"net/http"

	"github.com/nijaru/interview-feedback/config"
	"github.com/nijaru/interview-feedback/errors"
	"github.com/nijaru/interview-feedback/middleware"
	"github.com/nijaru/interview-feedback/models"
	"github.com/nijaru/interview-feedback/services/analysis"
	"github.com/nijaru/interview-feedback/validation"
	"github.com/sirupsen/logrus"
)

const (
	videoField    = "video"
	providerField = "provider"

	// room for multipart framing and the provider field
	formOverhead = 1 << 20
)

type AnalyzeHandler struct {
	service   analysis.Service
	validator *validation.Validator
	upload    config.UploadConfig
	logger    *logrus.Logger
}

func NewAnalyzeHandler(service analysis.Service, validator *validation.Validator, upload config.UploadConfig, logger *logrus.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{
		service:   service,
		validator: validator,
		upload:    upload,
		logger:    logger,
	}
}

func (h *AnalyzeHandler) HandleAnalyzeVideo(w http.ResponseWriter, r *http.Request) {
	const op = "AnalyzeHandler.HandleAnalyzeVideo"

	limit := h.upload.MaxFileSize + formOverhead
	if err := h.validator.ValidateRequest(r, validation.RequestValidationOpts{
		AllowedMethods:   []string{http.MethodPost},
		RequireMultipart: true,
		MaxContentLength: limit,
	}); err != nil {
		respondAnalysisError(w, r, h.logger, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(h.upload.MaxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			respondAnalysisError(w, r, h.logger, errors.Validation(op, err, validation.MsgFileTooLarge(h.upload.MaxFileSize)))
			return
		}
		respondAnalysisError(w, r, h.logger, errors.Validation(op, err, "Invalid multipart form."))
		return
	}
	defer r.MultipartForm.RemoveAll()

	upload, closeFile, err := uploadFromForm(r)
	if err != nil {
		respondAnalysisError(w, r, h.logger, errors.Validation(op, err, validation.MsgFileRequired))
		return
	}
	defer closeFile()

	result, err := h.service.Analyze(r.Context(), &analysis.Request{
		RequestID: middleware.RequestIDFrom(r.Context()),
		Upload:    upload,
		Provider:  r.FormValue(providerField),
	})
	if err != nil {
		respondAnalysisError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// uploadFromForm returns a nil upload when the form has no video part, so the
// validator reports it like any other rule.
func uploadFromForm(r *http.Request) (*models.UploadedVideo, func(), error) {
	file, header, err := r.FormFile(videoField)
	if stderrors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return newUpload(file, header), func() { file.Close() }, nil
}

func newUpload(file multipart.File, header *multipart.FileHeader) *models.UploadedVideo {
	return &models.UploadedVideo{
		Filename: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Size:     header.Size,
		Content:  file,
	}
}
