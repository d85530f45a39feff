package media

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nijaru/interview-feedback/config"
	"github.com/nijaru/interview-feedback/errors"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const framePattern = "frame_%03d.jpg"

// FrameSet is the ordered set of frames sampled from one video.
type FrameSet struct {
	Dir      string
	Paths    []string
	Duration float64
}

type Extractor struct {
	cfg    config.FramesConfig
	runner Runner
	logger *logrus.Logger
}

func NewExtractor(cfg config.FramesConfig, runner Runner, logger *logrus.Logger) *Extractor {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 1
	}
	return &Extractor{cfg: cfg, runner: runner, logger: logger}
}

// FrameCount is the number of frames sampled from a video of the given
// duration: one per second, rounded up, never more than max.
func FrameCount(duration float64, limit int) int {
	if duration <= 0 || math.IsNaN(duration) {
		return 0
	}
	n := math.Ceil(duration)
	if n > float64(limit) {
		return limit
	}
	return int(n)
}

// Duration probes the video's length in seconds.
func (e *Extractor) Duration(ctx context.Context, videoPath string) (float64, error) {
	const op = "Extractor.Duration"

	out, err := e.runner.Run(ctx, e.cfg.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	if err != nil {
		return 0, errors.Extraction(op, err, "failed to read video duration")
	}

	value := strings.TrimSpace(string(out))
	duration, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return 0, errors.Extraction(op, pkgerrors.Errorf("unexpected ffprobe output %q", value), "failed to read video duration")
	}
	return duration, nil
}

// ExtractFrames samples frames from videoPath into outDir. The duration is
// probed unless known is positive.
func (e *Extractor) ExtractFrames(ctx context.Context, videoPath, outDir string, known float64) (*FrameSet, error) {
	const op = "Extractor.ExtractFrames"

	duration := known
	if duration <= 0 {
		var err error
		if duration, err = e.Duration(ctx, videoPath); err != nil {
			return nil, err
		}
	}

	count := FrameCount(duration, e.cfg.MaxFrames)
	if count == 0 {
		return nil, errors.Extraction(op, pkgerrors.Errorf("duration %.3fs", duration), "no frames could be extracted from the video")
	}

	if err := os.MkdirAll(outDir, 0o700); err != nil {
		return nil, errors.IO(op, err, "failed to create frame directory")
	}

	filter := fmt.Sprintf("fps=%d,scale=%d:%d", e.cfg.FPS, e.cfg.Width, e.cfg.Height)
	if _, err := e.runner.Run(ctx, e.cfg.FFmpegPath,
		"-v", "error",
		"-y",
		"-i", videoPath,
		"-vf", filter,
		"-frames:v", strconv.Itoa(count),
		filepath.Join(outDir, framePattern),
	); err != nil {
		return nil, errors.Extraction(op, err, "failed to extract frames from the video")
	}

	paths, err := filepath.Glob(filepath.Join(outDir, "frame_*.jpg"))
	if err != nil {
		return nil, errors.Extraction(op, err, "failed to list extracted frames")
	}
	if len(paths) == 0 {
		return nil, errors.Extraction(op, nil, "no frames could be extracted from the video")
	}
	// zero padded names, so lexical order is capture order
	sort.Strings(paths)

	e.logger.WithFields(logrus.Fields{
		"video":     filepath.Base(videoPath),
		"duration":  duration,
		"requested": count,
		"extracted": len(paths),
	}).Debug("Frames extracted")

	return &FrameSet{Dir: outDir, Paths: paths, Duration: duration}, nil
}
