package media

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/nijaru/interview-feedback/config"
	"github.com/nijaru/interview-feedback/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner answers ffprobe with a fixed duration and emulates ffmpeg by
// writing up to `-frames:v` JPEG files.
type fakeRunner struct {
	mu        sync.Mutex
	duration  string
	maxFrames int // frames ffmpeg actually manages to produce; -1 means all requested
	probeErr  error
	ffmpegErr error
	calls     [][]string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()

	switch name {
	case "ffprobe":
		if f.probeErr != nil {
			return nil, f.probeErr
		}
		return []byte(f.duration + "\n"), nil
	case "ffmpeg":
		if f.ffmpegErr != nil {
			return nil, f.ffmpegErr
		}
		requested, _ := strconv.Atoi(argAfter(args, "-frames:v"))
		n := requested
		if f.maxFrames >= 0 && f.maxFrames < n {
			n = f.maxFrames
		}
		pattern := args[len(args)-1]
		for i := 1; i <= n; i++ {
			if err := writeJPEG(fmt.Sprintf(pattern, i)); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected command %s", name)
}

func (f *fakeRunner) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c[0] == name {
			n++
		}
	}
	return n
}

func (f *fakeRunner) lastArgs(name string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i][0] == name {
			return f.calls[i][1:]
		}
	}
	return nil
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func writeJPEG(path string) error {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.RGBA{R: 200, A: 255})
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return jpeg.Encode(f, img, nil)
}

func newTestExtractor(r Runner) *Extractor {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	return NewExtractor(config.Default().Frames, r, logger)
}

func TestFrameCount(t *testing.T) {
	tests := []struct {
		duration float64
		want     int
	}{
		{0, 0},
		{-1, 0},
		{0.3, 1},
		{1, 1},
		{10, 10},
		{10.01, 11},
		{29.5, 30},
		{30, 30},
		{45, 30},
		{3600, 30},
	}

	for _, tt := range tests {
		if got := FrameCount(tt.duration, 30); got != tt.want {
			t.Errorf("FrameCount(%v) = %d, want %d", tt.duration, got, tt.want)
		}
	}
}

func TestDuration(t *testing.T) {
	r := &fakeRunner{duration: "12.480000"}
	e := newTestExtractor(r)

	d, err := e.Duration(context.Background(), "/tmp/video.mp4")
	require.NoError(t, err)
	assert.InDelta(t, 12.48, d, 1e-9)

	args := r.lastArgs("ffprobe")
	assert.Equal(t, "/tmp/video.mp4", args[len(args)-1])
}

func TestDurationFailures(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
	}{
		{"tool missing", &fakeRunner{probeErr: &CommandError{Name: "ffprobe", Err: os.ErrNotExist}}},
		{"garbage output", &fakeRunner{duration: "N/A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestExtractor(tt.runner).Duration(context.Background(), "/tmp/video.mp4")
			assert.True(t, errors.Is(err, errors.KindExtraction), "got %v", err)
		})
	}
}

func TestExtractFramesTenSeconds(t *testing.T) {
	r := &fakeRunner{duration: "10.0", maxFrames: -1}
	e := newTestExtractor(r)
	dir := filepath.Join(t.TempDir(), "frames")

	set, err := e.ExtractFrames(context.Background(), "/tmp/video.mp4", dir, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, r.count("ffmpeg"))
	assert.Equal(t, "10", argAfter(r.lastArgs("ffmpeg"), "-frames:v"))
	assert.Equal(t, "fps=1,scale=512:512", argAfter(r.lastArgs("ffmpeg"), "-vf"))
	require.Len(t, set.Paths, 10)
	assert.Equal(t, 10.0, set.Duration)

	for i, p := range set.Paths {
		assert.Equal(t, fmt.Sprintf("frame_%03d.jpg", i+1), filepath.Base(p))
	}
}

func TestExtractFramesCapsLongVideos(t *testing.T) {
	r := &fakeRunner{maxFrames: -1}
	e := newTestExtractor(r)

	set, err := e.ExtractFrames(context.Background(), "/tmp/video.mp4", t.TempDir(), 45)
	require.NoError(t, err)

	assert.Len(t, set.Paths, 30)
	assert.Equal(t, 0, r.count("ffprobe"), "known duration skips the probe")
}

func TestExtractFramesShortVideo(t *testing.T) {
	r := &fakeRunner{duration: "0.3", maxFrames: -1}
	set, err := newTestExtractor(r).ExtractFrames(context.Background(), "/tmp/video.mp4", t.TempDir(), 0)
	require.NoError(t, err)
	assert.Len(t, set.Paths, 1)
}

func TestExtractFramesOrderingBeyondNine(t *testing.T) {
	r := &fakeRunner{maxFrames: -1}
	set, err := newTestExtractor(r).ExtractFrames(context.Background(), "/tmp/video.mp4", t.TempDir(), 12)
	require.NoError(t, err)

	require.Len(t, set.Paths, 12)
	assert.Equal(t, "frame_009.jpg", filepath.Base(set.Paths[8]))
	assert.Equal(t, "frame_010.jpg", filepath.Base(set.Paths[9]))
}

func TestExtractFramesFailures(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
	}{
		{"zero duration", &fakeRunner{duration: "0", maxFrames: -1}},
		{"no frames produced", &fakeRunner{duration: "5", maxFrames: 0}},
		{"ffmpeg failed", &fakeRunner{duration: "5", ffmpegErr: &CommandError{Name: "ffmpeg", Err: fmt.Errorf("exit status 1"), Stderr: "moov atom not found"}}},
		{"probe failed", &fakeRunner{probeErr: fmt.Errorf("exec: not found")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestExtractor(tt.runner).ExtractFrames(context.Background(), "/tmp/video.mp4", t.TempDir(), 0)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.KindExtraction), "got %v", err)
		})
	}
}

func TestCommandErrorIncludesStderr(t *testing.T) {
	err := &CommandError{Name: "ffmpeg", Err: fmt.Errorf("exit status 1"), Stderr: "Invalid data found"}
	assert.Contains(t, err.Error(), "Invalid data found")
	assert.Equal(t, "exit status 1", err.Unwrap().Error())
}
