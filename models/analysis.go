package models

import "io"

// UploadedVideo is the client's file as received, before it touches disk.
type UploadedVideo struct {
	Filename string
	MimeType string
	Size     int64
	Content  io.Reader
}

// ProviderUsage is token usage reported or estimated by a provider.
type ProviderUsage struct {
	InputTokens  int  `json:"inputTokens"`
	OutputTokens int  `json:"outputTokens"`
	TotalTokens  int  `json:"totalTokens"`
	Estimated    bool `json:"estimated,omitempty"`
}

type CostInfo struct {
	TotalCost    float64  `json:"totalCost"`
	InputTokens  int      `json:"inputTokens"`
	OutputTokens int      `json:"outputTokens"`
	TotalTokens  int      `json:"totalTokens"`
	Provider     Provider `json:"provider"`
}

// AnalysisResult is the response body for one analysis request.
type AnalysisResult struct {
	Success  bool      `json:"success"`
	Analysis string    `json:"analysis,omitempty"`
	Filename string    `json:"filename,omitempty"`
	FileSize int64     `json:"fileSize,omitempty"`
	FileType string    `json:"fileType,omitempty"`
	Cost     *CostInfo `json:"cost,omitempty"`
	Error    string    `json:"error,omitempty"`
}

func NewFailure(message string) *AnalysisResult {
	return &AnalysisResult{Success: false, Error: message}
}
