package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nijaru/interview-feedback/config"
	"github.com/nijaru/interview-feedback/errors"
	"github.com/nijaru/interview-feedback/providers"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFilesAPI emulates the upload, poll, generate and delete endpoints.
type fakeFilesAPI struct {
	t *testing.T

	mu           sync.Mutex
	states       []string // returned by successive polls; the last one repeats
	polls        int
	uploaded     []byte
	uploadMime   string
	generateBody map[string]any
	generateText string
	generateCode int
	finishReason string
	deleted      []string
	startCode    int
	srv          *httptest.Server
}

func newFakeFilesAPI(t *testing.T, states ...string) *fakeFilesAPI {
	f := &fakeFilesAPI{t: t, states: states, generateText: "## 動画分析結果"}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload/v1beta/files", f.handleStart)
	mux.HandleFunc("POST /upload/session", f.handleUpload)
	mux.HandleFunc("GET /v1beta/files/{id}", f.handleGet)
	mux.HandleFunc("DELETE /v1beta/files/{id}", f.handleDelete)
	mux.HandleFunc("POST /v1beta/models/{action}", f.handleGenerate)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeFilesAPI) handleStart(w http.ResponseWriter, r *http.Request) {
	assert.Equal(f.t, "test-key", r.Header.Get("x-goog-api-key"))
	assert.Equal(f.t, "resumable", r.Header.Get("X-Goog-Upload-Protocol"))
	assert.Equal(f.t, "start", r.Header.Get("X-Goog-Upload-Command"))
	f.mu.Lock()
	f.uploadMime = r.Header.Get("X-Goog-Upload-Header-Content-Type")
	code := f.startCode
	f.mu.Unlock()
	if code != 0 {
		http.Error(w, "denied", code)
		return
	}
	w.Header().Set("X-Goog-Upload-URL", f.srv.URL+"/upload/session")
}

func (f *fakeFilesAPI) handleUpload(w http.ResponseWriter, r *http.Request) {
	assert.Equal(f.t, "upload, finalize", r.Header.Get("X-Goog-Upload-Command"))
	data, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.uploaded = data
	mime := f.uploadMime
	f.mu.Unlock()
	fmt.Fprintf(w, `{"file":{"name":"files/abc123","uri":"%s/v1beta/files/abc123","mimeType":"%s","state":"PROCESSING"}}`, f.srv.URL, mime)
}

func (f *fakeFilesAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	state := f.states[len(f.states)-1]
	if f.polls < len(f.states) {
		state = f.states[f.polls]
	}
	f.polls++
	f.mu.Unlock()
	fmt.Fprintf(w, `{"name":"files/%s","uri":"u","mimeType":"video/mp4","state":"%s"}`, r.PathValue("id"), state)
}

func (f *fakeFilesAPI) handleDelete(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.deleted = append(f.deleted, "files/"+r.PathValue("id"))
	f.mu.Unlock()
	w.Write([]byte(`{}`))
}

func (f *fakeFilesAPI) handleGenerate(w http.ResponseWriter, r *http.Request) {
	assert.Equal(f.t, "gemini-1.5-pro:generateContent", r.PathValue("action"))
	var body map[string]any
	assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
	f.mu.Lock()
	f.generateBody = body
	code, text, finish := f.generateCode, f.generateText, f.finishReason
	f.mu.Unlock()
	if code != 0 {
		http.Error(w, "boom", code)
		return
	}
	candidate := map[string]any{}
	if text != "" {
		candidate["content"] = map[string]any{"parts": []any{map[string]any{"text": text}}}
	}
	if finish != "" {
		candidate["finishReason"] = finish
	}
	resp := map[string]any{
		"candidates":    []any{candidate},
		"usageMetadata": map[string]any{"promptTokenCount": 9000, "candidatesTokenCount": 400},
	}
	json.NewEncoder(w).Encode(resp)
}

func (f *fakeFilesAPI) snapshot() (polls int, uploaded []byte, generated map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls, f.uploaded, f.generateBody
}

func (f *fakeFilesAPI) deletedFiles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func newTestClient(t *testing.T, f *fakeFilesAPI, mutate func(*config.GeminiConfig)) *Client {
	t.Helper()
	cfg := config.Default().Gemini
	cfg.APIKey = "test-key"
	cfg.BaseURL = f.srv.URL
	cfg.PollInterval = 5 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	c, err := New(cfg, WithHTTPClient(f.srv.Client()), WithLogger(logger))
	require.NoError(t, err)
	return c
}

func writeVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "temp_1_clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("fake mp4 payload"), 0o600))
	return path
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(config.Default().Gemini)
	assert.True(t, errors.Is(err, errors.KindInternal))
}

func TestAnalyzeUploadPollGenerateDelete(t *testing.T) {
	f := newFakeFilesAPI(t, StateProcessing, StateProcessing, StateActive)
	c := newTestClient(t, f, nil)

	res, err := c.Analyze(context.Background(), &providers.Evidence{
		VideoPath: writeVideo(t),
		MimeType:  "video/mp4",
		Duration:  10,
	})
	require.NoError(t, err)

	assert.Equal(t, "## 動画分析結果", res.Text)
	assert.Equal(t, "gemini-1.5-pro", res.Model)
	polls, uploaded, generated := f.snapshot()
	assert.Equal(t, []byte("fake mp4 payload"), uploaded)
	assert.Equal(t, 3, polls)
	assert.Equal(t, []string{"files/abc123"}, f.deletedFiles())

	// estimated, not the reported usageMetadata
	assert.True(t, res.Usage.Estimated)
	want := EstimateUsage(providers.SystemPrompt+providers.AnalysisPrompt, "## 動画分析結果", 10, 258)
	assert.Equal(t, want, res.Usage)

	contents := generated["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, providers.CombinedPrompt(), parts[0].(map[string]any)["text"])
	fd := parts[1].(map[string]any)["file_data"].(map[string]any)
	assert.Equal(t, "video/mp4", fd["mime_type"])
	assert.Contains(t, fd["file_uri"], "/v1beta/files/abc123")
}

func TestAnalyzeProcessingFailed(t *testing.T) {
	f := newFakeFilesAPI(t, StateProcessing, StateFailed)
	c := newTestClient(t, f, nil)

	_, err := c.Analyze(context.Background(), &providers.Evidence{VideoPath: writeVideo(t), MimeType: "video/mp4"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindProvider))
	assert.Equal(t, "gemini file processing failed", errors.Message(err))
	_, _, generated := f.snapshot()
	assert.Nil(t, generated, "generate must not run")
	assert.Equal(t, []string{"files/abc123"}, f.deletedFiles())
}

func TestAnalyzeProcessingTimeout(t *testing.T) {
	f := newFakeFilesAPI(t, StateProcessing)
	c := newTestClient(t, f, func(cfg *config.GeminiConfig) {
		cfg.ProcessingTimeout = 40 * time.Millisecond
	})

	_, err := c.Analyze(context.Background(), &providers.Evidence{VideoPath: writeVideo(t), MimeType: "video/mp4"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindProvider))
	assert.Contains(t, errors.Message(err), "did not finish within")
	assert.Equal(t, []string{"files/abc123"}, f.deletedFiles())
}

func TestAnalyzeCancelledStillDeletes(t *testing.T) {
	f := newFakeFilesAPI(t, StateProcessing)
	c := newTestClient(t, f, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := c.Analyze(ctx, &providers.Evidence{VideoPath: writeVideo(t), MimeType: "video/mp4"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindProvider))
	assert.Equal(t, []string{"files/abc123"}, f.deletedFiles())
}

func TestAnalyzeGenerateErrorDeletes(t *testing.T) {
	f := newFakeFilesAPI(t, StateActive)
	f.generateCode = http.StatusTooManyRequests
	c := newTestClient(t, f, nil)

	_, err := c.Analyze(context.Background(), &providers.Evidence{VideoPath: writeVideo(t), MimeType: "video/mp4"})
	require.Error(t, err)
	assert.Equal(t, "gemini rate limit exceeded", errors.Message(err))
	assert.Equal(t, []string{"files/abc123"}, f.deletedFiles())
}

func TestAnalyzeUploadRejected(t *testing.T) {
	f := newFakeFilesAPI(t, StateActive)
	f.startCode = http.StatusForbidden
	c := newTestClient(t, f, nil)

	_, err := c.Analyze(context.Background(), &providers.Evidence{VideoPath: writeVideo(t), MimeType: "video/mp4"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindProvider))
	assert.Empty(t, f.deletedFiles(), "nothing to delete before upload succeeds")
}

func TestAnalyzeEmptyResponseFallsBack(t *testing.T) {
	f := newFakeFilesAPI(t, StateActive)
	f.generateText = ""
	c := newTestClient(t, f, nil)

	res, err := c.Analyze(context.Background(), &providers.Evidence{VideoPath: writeVideo(t), MimeType: "video/mp4"})
	require.NoError(t, err)
	assert.Equal(t, providers.FallbackAnalysis, res.Text)
	assert.Zero(t, res.Usage.OutputTokens)
}

func TestAnalyzeBlockedResponse(t *testing.T) {
	for _, reason := range []string{"SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII"} {
		t.Run(reason, func(t *testing.T) {
			f := newFakeFilesAPI(t, StateActive)
			f.generateText = ""
			f.finishReason = reason
			c := newTestClient(t, f, nil)

			res, err := c.Analyze(context.Background(), &providers.Evidence{VideoPath: writeVideo(t), MimeType: "video/mp4"})
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, errors.KindProvider))
			assert.Equal(t, "gemini blocked the response: "+reason, errors.Message(err))
			assert.Equal(t, []string{"files/abc123"}, f.deletedFiles())
		})
	}
}

func TestAnalyzeStopFinishReasonSucceeds(t *testing.T) {
	f := newFakeFilesAPI(t, StateActive)
	f.finishReason = "STOP"
	c := newTestClient(t, f, nil)

	res, err := c.Analyze(context.Background(), &providers.Evidence{VideoPath: writeVideo(t), MimeType: "video/mp4"})
	require.NoError(t, err)
	assert.Equal(t, "## 動画分析結果", res.Text)
}

func TestAnalyzeUnexpectedFileState(t *testing.T) {
	for _, state := range []string{"STATE_UNSPECIFIED", ""} {
		t.Run("state "+state, func(t *testing.T) {
			f := newFakeFilesAPI(t, state)
			c := newTestClient(t, f, func(cfg *config.GeminiConfig) {
				cfg.PollInterval = time.Hour
			})

			_, err := c.Analyze(context.Background(), &providers.Evidence{VideoPath: writeVideo(t), MimeType: "video/mp4"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.KindProvider))
			assert.Contains(t, errors.Message(err), "unexpected state")
			polls, _, generated := f.snapshot()
			assert.Equal(t, 1, polls)
			assert.Nil(t, generated)
			assert.Equal(t, []string{"files/abc123"}, f.deletedFiles())
		})
	}
}

func TestWaitActivePollsImmediately(t *testing.T) {
	f := newFakeFilesAPI(t, StateActive)
	c := newTestClient(t, f, func(cfg *config.GeminiConfig) {
		cfg.PollInterval = time.Hour
	})

	start := time.Now()
	file, err := c.waitActive(context.Background(), &remoteFile{Name: "files/abc123", State: StateProcessing})
	require.NoError(t, err)
	assert.Equal(t, StateActive, file.State)
	assert.Less(t, time.Since(start), time.Minute)
	polls, _, _ := f.snapshot()
	assert.Equal(t, 1, polls)
}

func TestEstimateUsage(t *testing.T) {
	tests := []struct {
		name     string
		prompt   string
		response string
		duration float64
		rate     float64
		input    int
		output   int
	}{
		{"empty", "", "", 0, 258, 0, 0},
		{"rounds up", "abcde", "abc", 0, 258, 2, 1},
		{"counts runes", "面接面接", "良い点", 0, 258, 1, 1},
		{"video tokens", "abcd", "", 10, 258, 1 + 2580, 0},
		{"fractional seconds", "", "", 1.5, 258, 387, 0},
		{"rate disabled", "abcd", "", 10, 0, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := EstimateUsage(tt.prompt, tt.response, tt.duration, tt.rate)
			assert.Equal(t, tt.input, u.InputTokens)
			assert.Equal(t, tt.output, u.OutputTokens)
			assert.Equal(t, tt.input+tt.output, u.TotalTokens)
			assert.True(t, u.Estimated)
		})
	}
}
