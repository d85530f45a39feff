package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/nijaru/interview-feedback/errors"
	"github.com/nijaru/interview-feedback/providers"
	"github.com/sirupsen/logrus"
)

const (
	StateProcessing = "PROCESSING"
	StateActive     = "ACTIVE"
	StateFailed     = "FAILED"

	uploadDisplayName = "Interview Video"
)

// remoteFile is an asset held by the Files API.
type remoteFile struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	State    string `json:"state"`
}

type fileEnvelope struct {
	File remoteFile `json:"file"`
}

// upload sends the video with the resumable protocol: a start request that
// returns the session URL, then a single upload-and-finalize request.
func (c *Client) upload(ctx context.Context, path, mimeType string) (*remoteFile, error) {
	const op = "gemini.upload"

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IO(op, err, "failed to open video for upload")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.IO(op, err, "failed to stat video for upload")
	}

	meta, _ := json.Marshal(map[string]any{"file": map[string]string{"display_name": uploadDisplayName}})
	start, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/upload/v1beta/files"), bytes.NewReader(meta))
	if err != nil {
		return nil, errors.Internal(op, err, "failed to build gemini upload request")
	}
	c.auth(start)
	start.Header.Set("Content-Type", "application/json")
	start.Header.Set("X-Goog-Upload-Protocol", "resumable")
	start.Header.Set("X-Goog-Upload-Command", "start")
	start.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.FormatInt(info.Size(), 10))
	start.Header.Set("X-Goog-Upload-Header-Content-Type", mimeType)

	resp, err := c.httpClient.Do(start)
	if err != nil {
		return nil, errors.Provider(op, err, providers.StatusMessage("gemini", err))
	}
	err = providers.CheckResponse(resp)
	resp.Body.Close()
	if err != nil {
		return nil, errors.Provider(op, err, providers.StatusMessage("gemini", err))
	}

	sessionURL := resp.Header.Get("X-Goog-Upload-URL")
	if sessionURL == "" {
		return nil, errors.Provider(op, nil, "gemini did not return an upload URL")
	}

	put, err := http.NewRequestWithContext(ctx, http.MethodPost, sessionURL, f)
	if err != nil {
		return nil, errors.Internal(op, err, "failed to build gemini upload request")
	}
	put.ContentLength = info.Size()
	put.Header.Set("X-Goog-Upload-Offset", "0")
	put.Header.Set("X-Goog-Upload-Command", "upload, finalize")

	resp, err = c.httpClient.Do(put)
	if err != nil {
		return nil, errors.Provider(op, err, providers.StatusMessage("gemini", err))
	}
	defer resp.Body.Close()
	if err := providers.CheckResponse(resp); err != nil {
		return nil, errors.Provider(op, err, providers.StatusMessage("gemini", err))
	}

	var env fileEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, errors.Provider(op, err, "gemini returned an unreadable upload response")
	}
	if env.File.Name == "" {
		return nil, errors.Provider(op, nil, "gemini upload response had no file name")
	}
	if env.File.MimeType == "" {
		env.File.MimeType = mimeType
	}
	return &env.File, nil
}

func (c *Client) getFile(ctx context.Context, name string) (*remoteFile, error) {
	const op = "gemini.getFile"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/v1beta/"+name), nil)
	if err != nil {
		return nil, errors.Internal(op, err, "failed to build gemini file request")
	}
	c.auth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Provider(op, err, providers.StatusMessage("gemini", err))
	}
	defer resp.Body.Close()
	if err := providers.CheckResponse(resp); err != nil {
		return nil, errors.Provider(op, err, providers.StatusMessage("gemini", err))
	}

	var file remoteFile
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return nil, errors.Provider(op, err, "gemini returned an unreadable file status")
	}
	return &file, nil
}

func (c *Client) deleteFile(ctx context.Context, name string) error {
	const op = "gemini.deleteFile"

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.url("/v1beta/"+name), nil)
	if err != nil {
		return errors.Internal(op, err, "failed to build gemini delete request")
	}
	c.auth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Provider(op, err, providers.StatusMessage("gemini", err))
	}
	defer resp.Body.Close()
	if err := providers.CheckResponse(resp); err != nil && resp.StatusCode != http.StatusNotFound {
		return errors.Provider(op, err, providers.StatusMessage("gemini", err))
	}
	return nil
}

// waitActive polls while the file is PROCESSING, checking once right away and
// then every poll interval. It gives up after the configured processing
// timeout or when ctx ends.
func (c *Client) waitActive(ctx context.Context, file *remoteFile) (*remoteFile, error) {
	const op = "gemini.waitActive"

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProcessingTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for polls := 0; file.State == StateProcessing; polls++ {
		if polls > 0 {
			select {
			case <-ctx.Done():
				return nil, c.waitError(ctx, op)
			case <-ticker.C:
			}
		}

		c.logger.WithFields(logrus.Fields{
			"file":  file.Name,
			"state": file.State,
			"poll":  polls + 1,
		}).Debug("Waiting for Gemini file processing")

		next, err := c.getFile(ctx, file.Name)
		if err != nil {
			if ctx.Err() != nil {
				return nil, c.waitError(ctx, op)
			}
			return nil, err
		}
		file = next
	}

	switch file.State {
	case StateActive:
		return file, nil
	case StateFailed:
		return nil, errors.Provider(op, nil, "gemini file processing failed")
	default:
		return nil, errors.Provider(op, nil, fmt.Sprintf("gemini file is in unexpected state %q", file.State))
	}
}

func (c *Client) waitError(ctx context.Context, op string) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.Provider(op, ctx.Err(),
			fmt.Sprintf("gemini file processing did not finish within %s", c.cfg.ProcessingTimeout))
	}
	return errors.Provider(op, ctx.Err(), "gemini file processing was cancelled")
}
