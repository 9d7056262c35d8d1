// Package oracle talks to the external identity oracle over HTTP.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"frontdesk-backend/config"
	"frontdesk-backend/internal/identity"
)

// Response models the envelope every oracle endpoint answers with.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Name  string  `json:"name"`
		Score float64 `json:"score"`
	} `json:"data"`
}

// CodeNoMatch is the application code the oracle uses when nobody matches.
const CodeNoMatch = 404

type documentRequest struct {
	Number string `json:"number"`
	Type   string `json:"type"`
}

type faceRequest struct {
	Image []byte `json:"image"`
}

// Client implements identity.Oracle.
type Client struct {
	baseURL string
	headers map[string]string
	client  *http.Client
	log     logrus.FieldLogger
}

// NewClient builds a client. The per-call deadline comes from the caller's
// context; timeout only bounds a stuck connection.
func NewClient(cfg config.OracleConfig, timeout time.Duration, log logrus.FieldLogger) *Client {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.WithError(err).Warnf("invalid proxy URL %q, oracle will not use a proxy", cfg.HTTPProxy)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		headers: cfg.Headers,
		client:  &http.Client{Transport: transport, Timeout: timeout},
		log:     log,
	}
}

func (c *Client) MatchDocument(ctx context.Context, number string, docType identity.DocumentType) (identity.Match, error) {
	return c.post(ctx, "/documents/match", documentRequest{Number: number, Type: string(docType)})
}

func (c *Client) MatchFace(ctx context.Context, image []byte) (identity.Match, error) {
	return c.post(ctx, "/faces/match", faceRequest{Image: image})
}

func (c *Client) post(ctx context.Context, path string, payload any) (identity.Match, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return identity.Match{}, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return identity.Match{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return identity.Match{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return identity.Match{}, identity.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return identity.Match{}, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return identity.Match{}, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResp Response
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return identity.Match{}, fmt.Errorf("failed to unmarshal oracle response: %w", err)
	}

	switch apiResp.Code {
	case 0:
	case CodeNoMatch:
		return identity.Match{}, identity.ErrNotFound
	default:
		return identity.Match{}, fmt.Errorf("oracle returned application code %d: %s", apiResp.Code, apiResp.Message)
	}
	if apiResp.Data.Name == "" {
		return identity.Match{}, errors.New("oracle returned a match without a name")
	}

	c.log.WithFields(logrus.Fields{"module": "oracle", "path": path, "score": apiResp.Data.Score}).Debug("oracle match")
	return identity.Match{Name: apiResp.Data.Name, Score: apiResp.Data.Score}, nil
}
