// Package source obtains raw geolocation records from a live endpoint or
// from a local mock file.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"

	"ipwatch/internal/geo"
)

// DefaultEndpoint is the geolocation API queried when none is configured.
const DefaultEndpoint = "https://ipapi.co/json/"

// DefaultTimeout bounds a live request when no timeout is configured.
const DefaultTimeout = 10 * time.Second

const (
	userAgent       = "ipwatch/1.0"
	maxBodyExcerpt  = 200
	maxResponseSize = 1 << 20
)

// json decodes numbers as json.Number so values print exactly as received.
var json = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// Source produces one RawRecord per call.
type Source interface {
	Fetch(ctx context.Context) (geo.RawRecord, error)
	Name() string
}

// Live queries an HTTP endpoint.
type Live struct {
	Endpoint string
	Client   *http.Client
}

// NewLive returns a Live source whose requests are bounded by timeout.
func NewLive(endpoint string, timeout time.Duration) *Live {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Live{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: timeout},
	}
}

// Name returns the endpoint URL.
func (l *Live) Name() string { return l.Endpoint }

// Fetch issues a single GET and decodes the body as a JSON object.
func (l *Live) Fetch(ctx context.Context) (geo.RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.Endpoint, nil)
	if err != nil {
		return nil, &NetworkError{URL: l.Endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: l.Endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, &NetworkError{URL: l.Endpoint, StatusCode: resp.StatusCode, Err: err}
	}
	if len(body) > maxResponseSize {
		return nil, &NetworkError{
			URL:        l.Endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("response body exceeds %s", humanize.IBytes(maxResponseSize)),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("bad status: %s", resp.Status)
		if excerpt := strings.TrimSpace(string(body)); excerpt != "" {
			if len(excerpt) > maxBodyExcerpt {
				// drop a rune split by the cut
				excerpt = strings.ToValidUTF8(excerpt[:maxBodyExcerpt], "")
			}
			msg = fmt.Sprintf("%s, body: %s", msg, excerpt)
		}
		return nil, &NetworkError{URL: l.Endpoint, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}

	raw, err := decode(body)
	if err != nil {
		return nil, &DecodeError{Origin: l.Endpoint, Err: err}
	}
	return raw, nil
}

// Mock reads a JSON object from a local file.
type Mock struct {
	Path string
}

// NewMock returns a Mock source reading path.
func NewMock(path string) *Mock {
	return &Mock{Path: path}
}

// Name returns the mock file path.
func (m *Mock) Name() string { return m.Path }

// Fetch reads and decodes the mock file. ctx is unused; reading a local
// file does not block on the network.
func (m *Mock) Fetch(_ context.Context) (geo.RawRecord, error) {
	data, err := os.ReadFile(m.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Path: m.Path, Err: err}
		}
		return nil, fmt.Errorf("read mock file %s: %w", m.Path, err)
	}

	raw, err := decode(data)
	if err != nil {
		return nil, &DecodeError{Origin: m.Path, Mock: true, Err: err}
	}
	return raw, nil
}

// New picks the mock source when mockPath is set and the live one otherwise.
func New(mockPath, endpoint string, timeout time.Duration) Source {
	if mockPath != "" {
		return NewMock(mockPath)
	}
	return NewLive(endpoint, timeout)
}

func decode(data []byte) (geo.RawRecord, error) {
	var raw geo.RawRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("expected a JSON object, got null")
	}
	return raw, nil
}
