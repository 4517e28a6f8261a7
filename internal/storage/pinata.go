package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cryptguard/cryptguard/internal/common"
)

const defaultPinataTimeout = 30 * time.Second

// PinataStore pins content to IPFS through the Pinata pinning API and reads
// it back through a gateway.
type PinataStore struct {
	apiURL     string
	gatewayURL string
	jwt        string
	client     *http.Client
}

func NewPinataStore(apiURL, gatewayURL, jwt string) *PinataStore {
	return &PinataStore{
		apiURL:     strings.TrimRight(apiURL, "/"),
		gatewayURL: strings.TrimRight(gatewayURL, "/"),
		jwt:        jwt,
		client:     &http.Client{Timeout: defaultPinataTimeout},
	}
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

func (s *PinataStore) Pin(ctx context.Context, name string, data []byte) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("building pin request: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return "", fmt.Errorf("building pin request: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("building pin request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/pinning/pinFileToIPFS", &body)
	if err != nil {
		return "", fmt.Errorf("building pin request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.jwt)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: pin: %v", common.ErrDependencyUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: pin: unexpected status %d", common.ErrDependencyUnavailable, resp.StatusCode)
	}

	var pr pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", fmt.Errorf("%w: pin: decoding response: %v", common.ErrDependencyUnavailable, err)
	}
	if pr.IpfsHash == "" {
		return "", fmt.Errorf("%w: pin: empty content identifier", common.ErrDependencyUnavailable)
	}
	return pr.IpfsHash, nil
}

func (s *PinataStore) Fetch(ctx context.Context, cid string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.gatewayURL+"/ipfs/"+cid, nil)
	if err != nil {
		return nil, fmt.Errorf("building fetch request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", common.ErrDependencyUnavailable, cid, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("fetch %s: %w", cid, common.ErrorNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: fetch %s: unexpected status %d", common.ErrDependencyUnavailable, cid, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: reading body: %v", common.ErrDependencyUnavailable, cid, err)
	}
	return data, nil
}

func (s *PinataStore) Unpin(ctx context.Context, cid string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.apiURL+"/pinning/unpin/"+cid, nil)
	if err != nil {
		return fmt.Errorf("building unpin request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.jwt)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: unpin %s: %v", common.ErrDependencyUnavailable, cid, err)
	}
	defer resp.Body.Close()

	// Unpinning something already gone is not an error worth surfacing.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("%w: unpin %s: unexpected status %d", common.ErrDependencyUnavailable, cid, resp.StatusCode)
	}
	return nil
}
