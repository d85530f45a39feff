package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/nijaru/interview-feedback/config"
	"github.com/nijaru/interview-feedback/errors"
	"github.com/nijaru/interview-feedback/models"
	"github.com/nijaru/interview-feedback/providers"
	"github.com/sirupsen/logrus"
)

// Client analyzes the uploaded video natively with generateContent.
type Client struct {
	cfg        config.GeminiConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func WithLogger(l *logrus.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

func New(cfg config.GeminiConfig, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.Internal("gemini.New", nil, "GEMINI_API_KEY is not set")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = 5 * time.Minute
	}
	if cfg.DeleteTimeout <= 0 {
		cfg.DeleteTimeout = 30 * time.Second
	}
	c := &Client{
		cfg:    cfg,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return c, nil
}

func (c *Client) Name() models.Provider            { return models.ProviderGemini }
func (c *Client) Evidence() providers.EvidenceKind { return providers.EvidenceVideo }

func (c *Client) url(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

func (c *Client) auth(req *http.Request) {
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)
}

type part struct {
	Text     string    `json:"text,omitempty"`
	FileData *fileData `json:"file_data,omitempty"`
}

type fileData struct {
	MimeType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// blockingFinishReasons end a candidate because of content policy rather than
// completion.
var blockingFinishReasons = map[string]bool{
	"SAFETY":             true,
	"RECITATION":         true,
	"BLOCKLIST":          true,
	"PROHIBITED_CONTENT": true,
	"SPII":               true,
}

func (c *Client) Analyze(ctx context.Context, ev *providers.Evidence) (*providers.Analysis, error) {
	const op = "gemini.Analyze"

	if ev == nil || ev.VideoPath == "" {
		return nil, errors.Internal(op, nil, "no video to analyze")
	}

	start := time.Now()
	file, err := c.upload(ctx, ev.VideoPath, ev.MimeType)
	if err != nil {
		return nil, err
	}
	logger := c.logger.WithFields(logrus.Fields{"provider": "gemini", "file": file.Name})
	logger.Debug("Video uploaded to Gemini")

	// The remote asset is removed on every path once uploaded, even if the
	// request context is already done.
	defer func() {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.DeleteTimeout)
		defer cancel()
		if err := c.deleteFile(dctx, file.Name); err != nil {
			logger.WithError(err).Warn("Failed to delete Gemini file")
			return
		}
		logger.Debug("Gemini file deleted")
	}()

	active, err := c.waitActive(ctx, file)
	if err != nil {
		return nil, err
	}

	prompt := providers.CombinedPrompt()
	text, reported, err := c.generate(ctx, prompt, active)
	if err != nil {
		return nil, err
	}

	usage := EstimateUsage(providers.SystemPrompt+providers.AnalysisPrompt, text, ev.Duration, c.cfg.VideoTokensPerSecond)
	if text == "" {
		text = providers.FallbackAnalysis
	}

	fields := logrus.Fields{
		"model":         c.cfg.Model,
		"input_tokens":  usage.InputTokens,
		"output_tokens": usage.OutputTokens,
		"duration":      time.Since(start),
	}
	if reported != nil {
		fields["reported_input_tokens"] = reported.InputTokens
		fields["reported_output_tokens"] = reported.OutputTokens
	}
	logger.WithFields(fields).Info("Gemini analysis completed")

	return &providers.Analysis{
		Text:  text,
		Model: c.cfg.Model,
		Usage: usage,
	}, nil
}

func (c *Client) generate(ctx context.Context, prompt string, file *remoteFile) (string, *models.ProviderUsage, error) {
	const op = "gemini.generate"

	body, err := json.Marshal(generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{Text: prompt},
				{FileData: &fileData{MimeType: file.MimeType, FileURI: file.URI}},
			},
		}},
		GenerationConfig: &generationConfig{
			Temperature:     c.cfg.Temperature,
			MaxOutputTokens: c.cfg.MaxOutputTokens,
		},
	})
	if err != nil {
		return "", nil, errors.Internal(op, err, "failed to encode gemini request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.url("/v1beta/models/"+c.cfg.Model+":generateContent"), bytes.NewReader(body))
	if err != nil {
		return "", nil, errors.Internal(op, err, "failed to build gemini request")
	}
	c.auth(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", nil, errors.Provider(op, err, providers.StatusMessage("gemini", err))
	}
	defer resp.Body.Close()
	if err := providers.CheckResponse(resp); err != nil {
		return "", nil, errors.Provider(op, err, providers.StatusMessage("gemini", err))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", nil, errors.Provider(op, err, "gemini returned an unreadable response")
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", nil, errors.Provider(op, nil, "gemini blocked the request: "+out.PromptFeedback.BlockReason)
	}

	if len(out.Candidates) > 0 && blockingFinishReasons[out.Candidates[0].FinishReason] {
		return "", nil, errors.Provider(op, nil, "gemini blocked the response: "+out.Candidates[0].FinishReason)
	}

	var sb strings.Builder
	if len(out.Candidates) > 0 {
		for _, p := range out.Candidates[0].Content.Parts {
			sb.WriteString(p.Text)
		}
	}

	var reported *models.ProviderUsage
	if out.UsageMetadata != nil {
		reported = &models.ProviderUsage{
			InputTokens:  out.UsageMetadata.PromptTokenCount,
			OutputTokens: out.UsageMetadata.CandidatesTokenCount,
		}
	}
	return sb.String(), reported, nil
}
