// Package extract talks to the field-extraction service and reads
// pre-extracted document envelopes. Extraction itself (OCR, layout parsing)
// lives outside this module; everything here consumes its output.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ledgerline/docaudit/internal/model"
)

// Service hands raw document content to the extraction service and returns
// the typed field map.
type Service interface {
	Extract(ctx context.Context, documentID string, content []byte) (model.DocumentRecord, error)
}

// Option configures the HTTP extraction client.
type Option func(*httpService)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *httpService) {
		s.http = hc
	}
}

type httpService struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewHTTP creates an extraction client against the given service URL.
func NewHTTP(baseURL, apiKey string, opts ...Option) Service {
	s := &httpService{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// extractResponse is the extraction service's wire format, which matches the
// envelope shape.
type extractResponse struct {
	DocumentID   string         `json:"document_id"`
	DocumentType string         `json:"document_type"`
	Fields       model.FieldMap `json:"fields"`
}

func (s *httpService) Extract(ctx context.Context, documentID string, content []byte) (model.DocumentRecord, error) {
	payload, err := json.Marshal(map[string]any{
		"document_id": documentID,
		"content":     content,
	})
	if err != nil {
		return model.DocumentRecord{}, eris.Wrap(err, "extract: marshal request")
	}

	body, err := s.retryPost(ctx, s.baseURL+"/v1/extract", payload)
	if err != nil {
		return model.DocumentRecord{}, err
	}

	var resp extractResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.DocumentRecord{}, eris.Wrap(err, "extract: decode response")
	}
	return recordFrom(resp)
}

func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryPost posts the payload with exponential backoff on transient failures.
func (s *httpService) retryPost(ctx context.Context, url string, payload []byte) ([]byte, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, eris.Wrap(err, "extract: build request")
		}
		req.Header.Set("Content-Type", "application/json")
		if s.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.apiKey)
		}

		resp, err := s.http.Do(req)
		if err != nil {
			lastErr = eris.Wrap(err, "extract: request")
		} else {
			body, readErr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if readErr != nil {
				return nil, eris.Wrap(readErr, "extract: read response body")
			}
			if resp.StatusCode == http.StatusOK {
				return body, nil
			}
			lastErr = eris.Errorf("extract: status %d: %s", resp.StatusCode, string(body))
			if !retryableStatusCode(resp.StatusCode) {
				return nil, lastErr
			}
		}

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return nil, eris.Wrap(ctx.Err(), "extract: request canceled")
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return nil, lastErr
}

// Envelope is the JSON shape of a pre-extracted document fed to the CLI.
type Envelope struct {
	DocumentID   string         `json:"document_id"`
	DocumentType string         `json:"document_type"`
	Fields       model.FieldMap `json:"fields"`
}

// ReadEnvelope parses one pre-extracted document from r.
func ReadEnvelope(r io.Reader) (model.DocumentRecord, error) {
	var env Envelope
	dec := json.NewDecoder(r)
	if err := dec.Decode(&env); err != nil {
		return model.DocumentRecord{}, eris.Wrap(err, "extract: decode envelope")
	}
	return recordFrom(extractResponse(env))
}

func recordFrom(resp extractResponse) (model.DocumentRecord, error) {
	if resp.DocumentID == "" {
		return model.DocumentRecord{}, eris.New("extract: envelope missing document_id")
	}
	docType := model.ParseDocumentType(resp.DocumentType)
	if docType == model.DocTypeUnknown {
		return model.DocumentRecord{}, eris.Errorf("extract: unsupported document type %q", resp.DocumentType)
	}
	fields := resp.Fields
	if fields == nil {
		fields = model.FieldMap{}
	}
	return model.DocumentRecord{
		ID:     resp.DocumentID,
		Type:   docType,
		Fields: fields,
	}, nil
}
