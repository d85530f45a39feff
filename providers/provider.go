package providers

import (
	"context"

	"github.com/nijaru/interview-feedback/models"
)

// EvidenceKind is what an analyzer needs extracted from the upload.
type EvidenceKind int

const (
	// EvidenceFrames: sampled still frames.
	EvidenceFrames EvidenceKind = iota
	// EvidenceVideo: the persisted video file itself.
	EvidenceVideo
)

func (k EvidenceKind) String() string {
	switch k {
	case EvidenceFrames:
		return "frames"
	case EvidenceVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Evidence is the material handed to an analyzer for one request.
type Evidence struct {
	VideoPath string
	MimeType  string
	// Duration in seconds, as probed from the file.
	Duration float64
	// Frames in capture order. Set only for EvidenceFrames analyzers.
	Frames []string
}

type Analysis struct {
	Text  string
	Model string
	Usage models.ProviderUsage
}

// Analyzer sends evidence to a provider and returns its feedback.
type Analyzer interface {
	Name() models.Provider
	Evidence() EvidenceKind
	Analyze(ctx context.Context, ev *Evidence) (*Analysis, error)
}
