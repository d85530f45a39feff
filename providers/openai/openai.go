package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nijaru/interview-feedback/config"
	"github.com/nijaru/interview-feedback/errors"
	"github.com/nijaru/interview-feedback/models"
	"github.com/nijaru/interview-feedback/providers"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const chatCompletionsPath = "/v1/chat/completions"

// Client analyzes sampled frames with the chat completions API.
type Client struct {
	cfg        config.OpenAIConfig
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

func New(cfg config.OpenAIConfig, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.Internal("openai.New", nil, "OPENAI_API_KEY is not set")
	}
	if cfg.EncodeWorkers <= 0 {
		cfg.EncodeWorkers = 4
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

func (c *Client) Name() models.Provider            { return models.ProviderOpenAI }
func (c *Client) Evidence() providers.EvidenceKind { return providers.EvidenceFrames }

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage"`
}

func (c *Client) Analyze(ctx context.Context, ev *providers.Evidence) (*providers.Analysis, error) {
	const op = "openai.Analyze"

	if ev == nil || len(ev.Frames) == 0 {
		return nil, errors.Extraction(op, nil, "no frames could be extracted from the video")
	}

	start := time.Now()
	images, err := EncodeFrames(ctx, ev.Frames, c.cfg.EncodeWorkers)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(c.buildRequest(images))
	if err != nil {
		return nil, errors.Internal(op, err, "failed to encode openai request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+chatCompletionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Internal(op, err, "failed to build openai request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Provider(op, err, providers.StatusMessage("openai", err))
	}
	defer resp.Body.Close()

	if err := providers.CheckResponse(resp); err != nil {
		return nil, errors.Provider(op, err, providers.StatusMessage("openai", err))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Provider(op, err, "openai returned an unreadable response")
	}

	analysis := &providers.Analysis{
		Text:  providers.FallbackAnalysis,
		Model: c.cfg.Model,
	}
	if out.Model != "" {
		analysis.Model = out.Model
	}
	if len(out.Choices) > 0 && strings.TrimSpace(out.Choices[0].Message.Content) != "" {
		analysis.Text = out.Choices[0].Message.Content
	}
	if out.Usage != nil {
		analysis.Usage = models.ProviderUsage{
			InputTokens:  out.Usage.PromptTokens,
			OutputTokens: out.Usage.CompletionTokens,
			TotalTokens:  out.Usage.TotalTokens,
		}
	}

	c.logger.WithFields(logrus.Fields{
		"provider":      "openai",
		"model":         analysis.Model,
		"frames":        len(images),
		"input_tokens":  analysis.Usage.InputTokens,
		"output_tokens": analysis.Usage.OutputTokens,
		"duration":      time.Since(start),
	}).Info("OpenAI analysis completed")

	return analysis, nil
}

func (c *Client) buildRequest(images []string) chatRequest {
	parts := make([]contentPart, 0, len(images)+1)
	parts = append(parts, contentPart{Type: "text", Text: providers.AnalysisPrompt})
	for _, img := range images {
		parts = append(parts, contentPart{
			Type: "image_url",
			ImageURL: &imageURL{
				URL:    "data:image/jpeg;base64," + img,
				Detail: c.cfg.ImageDetail,
			},
		})
	}

	return chatRequest{
		Model: c.cfg.Model,
		Messages: []message{
			{Role: "system", Content: providers.SystemPrompt},
			{Role: "user", Content: parts},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}
}

// EncodeFrames reads and base64-encodes frames concurrently. The result keeps
// the order of paths.
func EncodeFrames(ctx context.Context, paths []string, workers int) ([]string, error) {
	const op = "openai.EncodeFrames"

	out := make([]string, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return errors.IO(op, err, fmt.Sprintf("failed to read frame %d", i+1))
			}
			out[i] = base64.StdEncoding.EncodeToString(data)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.IO(op, err, "failed to encode frames")
	}
	return out, nil
}
