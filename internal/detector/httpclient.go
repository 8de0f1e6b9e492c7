package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/exam-proctor/internal/logging"
)

// HTTPClient calls the external vision service over HTTP. The service accepts
// a multipart frame upload and answers with a JSON signal bundle.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient builds a detector client for the service at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.Named("detector"),
	}
}

// Analyze submits one frame and decodes the resulting signal bundle.
func (c *HTTPClient) Analyze(ctx context.Context, image []byte) (*Bundle, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, logging.NewOperationError("detector.build_request", "", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, logging.NewOperationError("detector.build_request", "", err)
	}
	if err := writer.Close(); err != nil {
		return nil, logging.NewOperationError("detector.build_request", "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/detect", body)
	if err != nil {
		return nil, logging.NewOperationError("detector.build_request", "", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrUnavailable, err)
		c.logger.Error("detector request failed", zap.Error(wrapped))
		return nil, wrapped
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		wrapped := fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
		c.logger.Error("detector answered with error status", zap.Int("status", resp.StatusCode))
		return nil, wrapped
	}

	var bundle Bundle
	if err := json.NewDecoder(resp.Body).Decode(&bundle); err != nil {
		wrapped := fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
		c.logger.Error("detector response not decodable", zap.Error(err))
		return nil, wrapped
	}
	return &bundle, nil
}
