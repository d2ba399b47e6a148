package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultURL is the public Amtraker v3 endpoint listing all active trains.
const DefaultURL = "https://api-v3.amtraker.com/v3/trains"

// Source supplies one snapshot per call.
type Source interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

// HTTPSource fetches the snapshot over HTTP, retrying transient failures
// with exponential backoff.
type HTTPSource struct {
	url        string
	client     *http.Client
	maxElapsed time.Duration
}

func NewHTTPSource(url string, timeout, maxElapsed time.Duration) *HTTPSource {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxElapsed <= 0 {
		maxElapsed = time.Minute
	}
	return &HTTPSource{
		url:        url,
		client:     &http.Client{Timeout: timeout},
		maxElapsed: maxElapsed,
	}
}

func (s *HTTPSource) Fetch(ctx context.Context) (Snapshot, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = s.maxElapsed

	attempt := 0
	snap, err := backoff.RetryNotifyWithData(
		func() (Snapshot, error) {
			attempt++
			return s.fetchOnce(ctx)
		},
		backoff.WithContext(b, ctx),
		func(err error, d time.Duration) {
			log.Printf("feed fetch attempt %d failed: %v (retrying in %s)", attempt, err, d.Round(time.Millisecond))
		},
	)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	return snap, nil
}

func (s *HTTPSource) fetchOnce(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "rail-connection-check/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("transient status code: %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, backoff.Permanent(fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}
	snap, err := Decode(body)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	return snap, nil
}

// FileSource reads a previously saved feed document from disk.
type FileSource struct {
	Path string
}

func (s FileSource) Fetch(_ context.Context) (Snapshot, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read feed file: %w", err)
	}
	return Decode(data)
}

// Decode parses a feed document. The upstream API answers with an empty
// JSON array instead of an object when no trains are running.
func Decode(data []byte) (Snapshot, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("decode feed: empty document")
	}
	if bytes.Equal(trimmed, []byte("[]")) {
		return Snapshot{}, nil
	}
	var snap Snapshot
	if err := json.Unmarshal(trimmed, &snap); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	return snap, nil
}
