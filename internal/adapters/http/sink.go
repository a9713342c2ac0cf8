package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/bft-labs/sensorsync/internal/domain"
	"github.com/bft-labs/sensorsync/internal/ports"
)

const tuplesEndpoint = "/v1/ingest/tuples"

// SinkConfig identifies the collector and this agent.
type SinkConfig struct {
	ServiceURL string
	AuthKey    string
	Hostname   string
}

// MemberMeta describes one member of a posted tuple. Offset and Size locate
// its payload inside the "payloads" part.
type MemberMeta struct {
	Stream    domain.StreamID    `json:"stream"`
	Timestamp int64              `json:"stamp"`
	Kind      domain.PayloadKind `json:"kind"`
	Offset    int                `json:"off"`
	Size      int                `json:"len"`
}

// Manifest is the JSON part of a posted tuple.
type Manifest struct {
	ID        string       `json:"id"`
	Reference int64        `json:"reference"`
	Spread    int64        `json:"spread_ns"`
	Members   []MemberMeta `json:"members"`
}

// TupleSink implements ports.Sink by posting each tuple to a collector as a
// multipart request: a JSON manifest plus the concatenated member payloads.
type TupleSink struct {
	cfg    SinkConfig
	client ports.HTTPClient
	logger ports.Logger
}

// NewTupleSink creates a new HTTP tuple sink.
func NewTupleSink(cfg SinkConfig, client ports.HTTPClient, logger ports.Logger) *TupleSink {
	cfg.ServiceURL = strings.TrimRight(cfg.ServiceURL, "/")
	return &TupleSink{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

// NewDefaultClient returns the client used when none is injected.
func NewDefaultClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// Accept posts one tuple.
func (s *TupleSink) Accept(ctx context.Context, tuple *domain.AlignedTuple) error {
	manifest := Manifest{
		ID:        tuple.ID,
		Reference: tuple.Reference,
		Spread:    int64(tuple.Spread),
		Members:   make([]MemberMeta, len(tuple.Messages)),
	}

	var payloads bytes.Buffer
	for i, m := range tuple.Messages {
		data, err := payloadBytes(m.Payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", m.Stream, err)
		}
		manifest.Members[i] = MemberMeta{
			Stream:    m.Stream,
			Timestamp: m.Timestamp,
			Kind:      kindOf(m.Payload),
			Offset:    payloads.Len(),
			Size:      len(data),
		}
		payloads.Write(data)
	}

	// Build multipart request body
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	manifestPart, err := writer.CreateFormField("manifest")
	if err != nil {
		return fmt.Errorf("create manifest field: %w", err)
	}
	if _, err := manifestPart.Write(manifestJSON); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	payloadPart, err := writer.CreateFormFile("payloads", tuple.ID+".bin")
	if err != nil {
		return fmt.Errorf("create payloads field: %w", err)
	}
	if _, err := payloadPart.Write(payloads.Bytes()); err != nil {
		return fmt.Errorf("write payloads: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.ServiceURL+tuplesEndpoint, &body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if s.cfg.AuthKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.AuthKey)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Agent-Hostname", s.cfg.Hostname)
	req.Header.Set("X-Agent-OSArch", runtime.GOOS+"/"+runtime.GOARCH)
	req.Header.Set("X-Tuple-Id", tuple.ID)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
	}

	s.logger.Debug("tuple posted",
		ports.String("id", tuple.ID),
		ports.Int("bytes", body.Len()),
	)
	return nil
}

// Close is a no-op; the HTTP client is owned by the caller.
func (s *TupleSink) Close() error {
	return nil
}

func kindOf(p domain.Payload) domain.PayloadKind {
	if p == nil {
		return domain.KindRaw
	}
	return p.Kind()
}

// payloadBytes returns image and cloud buffers as-is, raw payloads verbatim
// and everything else as JSON.
func payloadBytes(p domain.Payload) ([]byte, error) {
	switch v := p.(type) {
	case nil:
		return nil, nil
	case domain.Image:
		return v.Data, nil
	case domain.PointCloud:
		return v.Data, nil
	case domain.Raw:
		return v, nil
	default:
		return json.Marshal(v)
	}
}
