package clients

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ruteri/enclave-signer/api"
	"github.com/ruteri/enclave-signer/interfaces"
)

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("signer API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("signer API error %d: %s", e.StatusCode, e.Message)
}

// SignerClient talks to a signer daemon. It implements interfaces.Signer so
// a remote daemon can stand in for a local signer.
type SignerClient struct {
	baseURL    string
	httpClient *http.Client

	algorithm string
}

var _ interfaces.Signer = (*SignerClient)(nil)

// NewSignerClient creates a client for the daemon at baseURL
// (e.g. "http://localhost:8080").
func NewSignerClient(baseURL string, timeout ...time.Duration) *SignerClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &SignerClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: clientTimeout},
		algorithm:  interfaces.AlgorithmEd25519,
	}
}

func (c *SignerClient) GetPublicKey() (*api.PublicKeyResponse, error) {
	var resp api.PublicKeyResponse
	if err := c.do(http.MethodGet, api.PublicKeyPath, nil, &resp); err != nil {
		return nil, err
	}
	c.algorithm = resp.Algorithm
	return &resp, nil
}

func (c *SignerClient) Sign(msg []byte) (*api.SignResponse, error) {
	var resp api.SignResponse
	if err := c.do(http.MethodPost, api.SignPath, msg, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *SignerClient) GetAttestation() (*api.AttestationResponse, error) {
	var resp api.AttestationResponse
	if err := c.do(http.MethodGet, api.AttestationPath, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Algorithm returns the algorithm reported by the last GetPublicKey, ed25519
// before any call.
func (c *SignerClient) Algorithm() string {
	return c.algorithm
}

func (c *SignerClient) PublicKeyBytes() ([]byte, error) {
	resp, err := c.GetPublicKey()
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(resp.PublicKey)
}

func (c *SignerClient) TrySign(msg []byte) ([]byte, error) {
	resp, err := c.Sign(msg)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(resp.Signature)
}

func (c *SignerClient) do(method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var errResp api.ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			apiErr.Message = errResp.Error
			apiErr.Code = errResp.Code
		}
		return apiErr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// IsKeyNotSet reports whether err is the daemon's answer when no key is loaded.
func IsKeyNotSet(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == "key_not_set"
}
