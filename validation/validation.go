package validation

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/nijaru/interview-feedback/config"
	"github.com/nijaru/interview-feedback/errors"
	"github.com/nijaru/interview-feedback/models"
)

const (
	MsgFileRequired    = "Please select a video file."
	MsgUnsupportedType = "Unsupported video format. Please choose an MP4, AVI, or MOV file."
)

// MsgFileTooLarge formats the size rule message for limit bytes.
func MsgFileTooLarge(limit int64) string {
	return fmt.Sprintf("File size exceeds %dMB.", limit/(1024*1024))
}

type Validator struct {
	maxFileSize     int64
	allowedTypes    map[string]struct{}
	defaultProvider models.Provider
}

func NewValidator(cfg *config.Config) *Validator {
	allowed := make(map[string]struct{}, len(cfg.Upload.AllowedTypes))
	for _, t := range cfg.Upload.AllowedTypes {
		allowed[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return &Validator{
		maxFileSize:     cfg.Upload.MaxFileSize,
		allowedTypes:    allowed,
		defaultProvider: models.Provider(cfg.DefaultProvider),
	}
}

// Result is the outcome of checking an upload. Reason is set when Valid is false.
type Result struct {
	Valid  bool
	Reason string
}

// Check applies the upload rules in order; the first failing rule wins.
func (v *Validator) Check(file *models.UploadedVideo) Result {
	if file == nil || file.Filename == "" {
		return Result{Reason: MsgFileRequired}
	}
	if file.Size > v.maxFileSize {
		return Result{Reason: MsgFileTooLarge(v.maxFileSize)}
	}
	if _, ok := v.allowedTypes[normalizeMimeType(file.MimeType)]; !ok {
		return Result{Reason: MsgUnsupportedType}
	}
	return Result{Valid: true}
}

// ValidateUpload is Check expressed as an error.
func (v *Validator) ValidateUpload(file *models.UploadedVideo) error {
	const op = "Validator.ValidateUpload"

	if res := v.Check(file); !res.Valid {
		return errors.Validation(op, nil, res.Reason)
	}
	return nil
}

// ValidateProvider resolves a provider selector, defaulting when empty.
func (v *Validator) ValidateProvider(selector string) (models.Provider, error) {
	const op = "Validator.ValidateProvider"

	p, ok := models.ParseProvider(selector, v.defaultProvider)
	if !ok {
		return "", errors.Validation(op, nil, fmt.Sprintf("Unsupported provider %q.", selector))
	}
	return p, nil
}

// normalizeMimeType drops parameters such as "; codecs=...".
func normalizeMimeType(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// RequestValidationOpts holds options for request validation
type RequestValidationOpts struct {
	MaxContentLength int64
	AllowedMethods   []string
	RequireMultipart bool
}

// ValidateRequest validates HTTP requests
func (v *Validator) ValidateRequest(r *http.Request, opts RequestValidationOpts) error {
	const op = "Validator.ValidateRequest"

	if len(opts.AllowedMethods) > 0 {
		methodAllowed := false
		for _, method := range opts.AllowedMethods {
			if r.Method == method {
				methodAllowed = true
				break
			}
		}
		if !methodAllowed {
			return errors.Validation(op, nil, fmt.Sprintf("Method %s not allowed", r.Method))
		}
	}

	if opts.RequireMultipart {
		if contentType := r.Header.Get("Content-Type"); !strings.HasPrefix(contentType, "multipart/form-data") {
			return errors.Validation(op, nil, "Content-Type must be multipart/form-data")
		}
	}

	if opts.MaxContentLength > 0 && r.ContentLength > opts.MaxContentLength {
		return errors.Validation(op, nil, MsgFileTooLarge(v.maxFileSize))
	}

	return nil
}
