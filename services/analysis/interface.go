package analysis

import (
	"context"
	"time"

	"github.com/nijaru/interview-feedback/media"
	"github.com/nijaru/interview-feedback/models"
)

// Request is one analyze call as received from the transport layer.
type Request struct {
	RequestID string
	Upload    *models.UploadedVideo
	// Provider selector as sent by the client; empty means the default.
	Provider string
}

type Service interface {
	Analyze(ctx context.Context, req *Request) (*models.AnalysisResult, error)
}

// FrameExtractor probes videos and samples frames from them.
type FrameExtractor interface {
	Duration(ctx context.Context, videoPath string) (float64, error)
	ExtractFrames(ctx context.Context, videoPath, outDir string, known float64) (*media.FrameSet, error)
}

// Recorder receives pipeline metrics.
type Recorder interface {
	AnalysisStarted() func()
	RecordAnalysis(provider, outcome string, d time.Duration)
	RecordFrames(n int)
	RecordUsage(provider string, input, output int, cost float64)
	RecordCleanupFailure()
}

type nopRecorder struct{}

func (nopRecorder) AnalysisStarted() func()                      { return func() {} }
func (nopRecorder) RecordAnalysis(string, string, time.Duration) {}
func (nopRecorder) RecordFrames(int)                             {}
func (nopRecorder) RecordUsage(string, int, int, float64)        {}
func (nopRecorder) RecordCleanupFailure()                        {}
