package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/techresidents/archivesvc/internal/apierrors"
	"github.com/techresidents/archivesvc/internal/archivestream"
)

// HTTPProvider talks to a recording provider's HTTP API: list recordings
// for a session, fetch one recording's media, delete a session's
// recordings. Authorization is an account/auth-token pair carried as
// HTTP basic auth.
type HTTPProvider struct {
	baseURL    string
	account    string
	authToken  string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
}

// NewHTTPProvider constructs a provider client bound to baseURL.
func NewHTTPProvider(baseURL, account, authToken string) *HTTPProvider {
	return &HTTPProvider{
		baseURL:   baseURL,
		account:   account,
		authToken: authToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
		retryDelay: 500 * time.Millisecond,
	}
}

type manifestEntry struct {
	CallID   string  `json:"call_id"`
	UserIDs  []int64 `json:"user_ids"`
	LengthMS *int    `json:"length_ms"`
	OffsetMS int     `json:"offset_ms"`
	Kind     string  `json:"kind"` // "audio" or "video"
	Ext      string  `json:"ext"`
}

// ListRecordings fetches and parses the provider's manifest for a
// session. The raw document is returned as-is for archival, alongside
// the parsed refs.
func (p *HTTPProvider) ListRecordings(ctx context.Context, sessionID int64, data []byte) ([]byte, []RecordingRef, error) {
	url := fmt.Sprintf("%s/sessions/%d/manifest", p.baseURL, sessionID)

	raw, status, err := p.doWithRetry(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, apierrors.Fetcher("failed to fetch provider manifest", err)
	}
	if status == http.StatusNotFound {
		return nil, nil, nil
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, nil, apierrors.Fetcher(fmt.Sprintf("provider authorization failed with status %d", status), nil)
	}
	if status != http.StatusOK {
		return nil, nil, apierrors.Fetcher(fmt.Sprintf("unexpected provider status %d", status), nil)
	}

	var entries []manifestEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, nil, apierrors.Fetcher("failed to parse provider manifest", err)
	}

	refs := make([]RecordingRef, 0, len(entries))
	for _, e := range entries {
		streamType := archivestream.TypeUserAudio
		if e.Kind == "video" {
			streamType = archivestream.TypeUserVideo
		}
		ext := e.Ext
		if ext == "" {
			if streamType == archivestream.TypeUserVideo {
				ext = ".mp4"
			} else {
				ext = ".mp3"
			}
		}
		refs = append(refs, RecordingRef{
			CallID:    e.CallID,
			UserIDs:   e.UserIDs,
			LengthMS:  e.LengthMS,
			OffsetMS:  e.OffsetMS,
			Type:      streamType,
			Extension: ext,
		})
	}

	return raw, refs, nil
}

// FetchRecording downloads one recording's media.
func (p *HTTPProvider) FetchRecording(ctx context.Context, ref RecordingRef) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/recordings/%s", p.baseURL, ref.CallID)

	body, status, err := p.doWithRetry(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apierrors.Fetcher(fmt.Sprintf("failed to fetch recording %s", ref.CallID), err)
	}
	if status == http.StatusNotFound {
		return nil, &ErrRecordingMissing{CallID: ref.CallID}
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, apierrors.Fetcher(fmt.Sprintf("provider authorization failed fetching %s", ref.CallID), nil)
	}
	if status != http.StatusOK {
		return nil, apierrors.Fetcher(fmt.Sprintf("unexpected provider status %d fetching %s", status, ref.CallID), nil)
	}

	return io.NopCloser(bytes.NewReader(body)), nil
}

// DeleteRecordings removes all recordings for a session. A 404 is
// treated as success (idempotent).
func (p *HTTPProvider) DeleteRecordings(ctx context.Context, sessionID int64, data []byte) error {
	url := fmt.Sprintf("%s/sessions/%d/recordings", p.baseURL, sessionID)

	_, status, err := p.doWithRetry(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return apierrors.Fetcher("failed to delete provider recordings", err)
	}
	if status == http.StatusNotFound || status == http.StatusOK || status == http.StatusNoContent {
		return nil
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return apierrors.Fetcher(fmt.Sprintf("provider authorization failed deleting session %d", sessionID), nil)
	}
	return apierrors.Fetcher(fmt.Sprintf("unexpected provider status %d deleting session %d", status, sessionID), nil)
}

// doWithRetry issues the request, retrying only on transient network
// errors (connection failures, timeouts); non-2xx/4xx HTTP responses and
// authorization errors are not retried and propagate to the caller.
func (p *HTTPProvider) doWithRetry(ctx context.Context, method, url string, body io.Reader) ([]byte, int, error) {
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, 0, err
		}
		req.SetBasicAuth(p.account, p.authToken)

		resp, err := p.httpClient.Do(req)
		if err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(p.retryDelay):
			}
			continue
		}

		defer resp.Body.Close()
		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, 0, readErr
		}
		return respBody, resp.StatusCode, nil
	}

	return nil, 0, fmt.Errorf("transient network error after %d attempts: %w", p.maxRetries+1, lastErr)
}
