package analysis

import (
	"context"
	"io"
	"time"

	"github.com/nijaru/interview-feedback/errors"
	"github.com/nijaru/interview-feedback/models"
	"github.com/nijaru/interview-feedback/pricing"
	"github.com/nijaru/interview-feedback/providers"
	"github.com/nijaru/interview-feedback/storage"
	"github.com/nijaru/interview-feedback/utils"
	"github.com/nijaru/interview-feedback/validation"
	"github.com/sirupsen/logrus"
)

type Config struct {
	MaxFileSize int64
}

type service struct {
	validator *validation.Validator
	store     *storage.Store
	extractor FrameExtractor
	registry  *providers.Registry
	pricing   *pricing.Calculator
	metrics   Recorder
	logger    *logrus.Logger
	config    Config
}

type Option func(*service)

func WithRecorder(r Recorder) Option {
	return func(s *service) {
		if r != nil {
			s.metrics = r
		}
	}
}

func WithLogger(l *logrus.Logger) Option {
	return func(s *service) { s.logger = l }
}

func NewService(
	validator *validation.Validator,
	store *storage.Store,
	extractor FrameExtractor,
	registry *providers.Registry,
	calculator *pricing.Calculator,
	config Config,
	opts ...Option,
) Service {
	s := &service{
		validator: validator,
		store:     store,
		extractor: extractor,
		registry:  registry,
		pricing:   calculator,
		metrics:   nopRecorder{},
		logger:    logrus.StandardLogger(),
		config:    config,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run tracks one request through the pipeline for logging.
type run struct {
	logger   *logrus.Entry
	state    State
	provider models.Provider
}

func (r *run) enter(state State) {
	r.state = state
	r.logger.WithField("state", state).Debug("Analysis state changed")
}

func (s *service) Analyze(ctx context.Context, req *Request) (*models.AnalysisResult, error) {
	const op = "AnalysisService.Analyze"

	r := &run{logger: s.logger.WithFields(logrus.Fields{
		"operation":  op,
		"request_id": req.RequestID,
	})}
	if req.Upload != nil {
		r.logger = r.logger.WithFields(logrus.Fields{
			"filename": req.Upload.Filename,
			"size":     utils.FormatFileSize(req.Upload.Size),
			"mime":     req.Upload.MimeType,
		})
	}
	r.enter(StateReceived)

	start := time.Now()
	result, err := s.process(ctx, r, req)
	outcome := "success"
	if err != nil {
		outcome = string(errors.KindOf(err))
	}
	if r.provider != "" {
		s.metrics.RecordAnalysis(r.provider.String(), outcome, time.Since(start))
	}

	if err != nil {
		r.state = StateFailed
		entry := r.logger.WithFields(logrus.Fields{
			"state": StateFailed,
			"kind":  errors.KindOf(err),
			"error": err,
		})
		if errors.Is(err, errors.KindValidation) {
			entry.Warn("Analysis rejected")
		} else {
			entry.Error("Analysis failed")
		}
		return nil, err
	}

	r.enter(StateResponded)
	r.logger.WithFields(logrus.Fields{
		"provider": r.provider,
		"cost":     result.Cost.TotalCost,
		"duration": time.Since(start),
	}).Info("Analysis completed")
	return result, nil
}

func (s *service) process(ctx context.Context, r *run, req *Request) (*models.AnalysisResult, error) {
	const op = "AnalysisService.process"

	// Nothing touches the filesystem until the request is valid.
	if err := s.validator.ValidateUpload(req.Upload); err != nil {
		return nil, err
	}
	provider, err := s.validator.ValidateProvider(req.Provider)
	if err != nil {
		return nil, err
	}
	r.provider = provider
	r.logger = r.logger.WithField("provider", provider)

	analyzer, err := s.registry.Get(provider)
	if err != nil {
		return nil, err
	}
	r.enter(StateValidated)

	done := s.metrics.AnalysisStarted()
	defer done()

	ws := s.store.NewWorkspace(req.Upload.Filename)
	defer s.release(r, ws)

	content := req.Upload.Content
	if content == nil {
		return nil, errors.Validation(op, nil, validation.MsgFileRequired)
	}
	if s.config.MaxFileSize > 0 {
		content = io.LimitReader(content, s.config.MaxFileSize+1)
	}
	written, err := ws.SaveVideo(content)
	if err != nil {
		return nil, err
	}
	if s.config.MaxFileSize > 0 && written > s.config.MaxFileSize {
		return nil, errors.Validation(op, nil, validation.MsgFileTooLarge(s.config.MaxFileSize))
	}
	r.enter(StatePersisted)

	duration, err := s.extractor.Duration(ctx, ws.VideoPath())
	if err != nil {
		return nil, err
	}

	ev := &providers.Evidence{
		VideoPath: ws.VideoPath(),
		MimeType:  req.Upload.MimeType,
		Duration:  duration,
	}

	switch analyzer.Evidence() {
	case providers.EvidenceFrames:
		r.enter(StateExtracting)
		dir, err := ws.FrameDir()
		if err != nil {
			return nil, err
		}
		frames, err := s.extractor.ExtractFrames(ctx, ws.VideoPath(), dir, duration)
		if err != nil {
			return nil, err
		}
		ev.Frames = frames.Paths
		s.metrics.RecordFrames(len(frames.Paths))
	case providers.EvidenceVideo:
		r.enter(StateUploading)
	default:
		return nil, errors.Internal(op, nil, "provider requested unsupported evidence")
	}

	analysis, err := analyzer.Analyze(ctx, ev)
	if err != nil {
		return nil, err
	}
	r.enter(StateAnalyzed)

	cost, err := s.pricing.CostInfo(analysis.Usage, provider)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordUsage(provider.String(), cost.InputTokens, cost.OutputTokens, cost.TotalCost)

	size := req.Upload.Size
	if size <= 0 {
		size = written
	}

	return &models.AnalysisResult{
		Success:  true,
		Analysis: analysis.Text,
		Filename: req.Upload.Filename,
		FileSize: size,
		FileType: req.Upload.MimeType,
		Cost:     cost,
	}, nil
}

// release never overrides the request's outcome; failures are logged and counted.
func (s *service) release(r *run, ws *storage.Workspace) {
	if err := ws.Release(); err != nil {
		s.metrics.RecordCleanupFailure()
		r.logger.WithFields(logrus.Fields{
			"workspace": ws.Name(),
			"error":     err,
		}).Warn("Scratch cleanup incomplete")
		return
	}
	r.logger.WithFields(logrus.Fields{
		"state":     StateCleanedUp,
		"workspace": ws.Name(),
	}).Debug("Analysis state changed")
}
