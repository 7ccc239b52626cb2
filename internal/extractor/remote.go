package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/okian/sitstraight/internal/domain/pose"
	"github.com/okian/sitstraight/internal/imaging"
)

const (
	defaultJPEGQuality   = 85
	maxErrorBodyBytes    = 512
	defaultClientTimeout = 10 * time.Second
)

// RemoteModel sends frames to a pose estimation sidecar over HTTP.
//
// The sidecar receives a JPEG body and answers
// {"landmarks": [ {x,y,visibility} x33 ] } or {"landmarks": null}.
type RemoteModel struct {
	url     string
	client  *http.Client
	quality int
}

type detectResponse struct {
	Landmarks *pose.Set `json:"landmarks"`
}

// NewRemoteModel returns a model backed by the sidecar at url.
func NewRemoteModel(url string, client *http.Client) *RemoteModel {
	if client == nil {
		client = &http.Client{Timeout: defaultClientTimeout}
	}
	return &RemoteModel{url: url, client: client, quality: defaultJPEGQuality}
}

// RemoteFactory returns a Factory producing RemoteModels sharing one client.
func RemoteFactory(url string, client *http.Client) Factory {
	return func() (Model, error) {
		if url == "" {
			return nil, fmt.Errorf("%w: no url configured", ErrUnavailable)
		}
		return NewRemoteModel(url, client), nil
	}
}

// Detect implements Model.
func (m *RemoteModel) Detect(ctx context.Context, img image.Image) (*pose.Set, error) {
	body, err := imaging.EncodeJPEG(img, m.quality)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, bytes.TrimSpace(msg))
	}
	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode landmarks: %w", err)
	}
	return out.Landmarks, nil
}

// Close implements Model.
func (m *RemoteModel) Close() error {
	m.client.CloseIdleConnections()
	return nil
}
