package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/patternloom/loom/internal/pattern"
)

// DefaultTimeout bounds a single store request.
const DefaultTimeout = 30 * time.Second

// TokenFunc supplies the bearer token for a request. May be nil for
// unauthenticated stores.
type TokenFunc func(ctx context.Context) (string, error)

// HTTPStore talks JSON over REST to a remote pattern store:
//
//	POST   {base}/patterns           create
//	GET    {base}/patterns/{id}      read
//	PATCH  {base}/patterns/{id}      update (If-Match: version)
//	DELETE {base}/patterns/{id}      delete
type HTTPStore struct {
	baseURL string
	token   TokenFunc
	client  *http.Client
}

// NewHTTPStore creates a store client for the given base URL.
func NewHTTPStore(baseURL string, token TokenFunc) *HTTPStore {
	return &HTTPStore{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
}

// Create implements Store.
func (s *HTTPStore) Create(ctx context.Context, p pattern.Pattern) (pattern.Pattern, error) {
	var out pattern.Pattern
	err := s.do(ctx, http.MethodPost, "/patterns", p.ID, p, nil, &out)
	return out, err
}

// Get implements Store.
func (s *HTTPStore) Get(ctx context.Context, id string) (pattern.Pattern, error) {
	var out pattern.Pattern
	err := s.do(ctx, http.MethodGet, "/patterns/"+url.PathEscape(id), id, nil, nil, &out)
	return out, err
}

// Update implements Store. The expected version travels in an If-Match
// header; a 409 response maps to CodeVersionConflict.
func (s *HTTPStore) Update(ctx context.Context, id string, ch pattern.Change, expectedVersion int64) (pattern.Pattern, error) {
	headers := map[string]string{"If-Match": fmt.Sprintf("%d", expectedVersion)}
	var out pattern.Pattern
	err := s.do(ctx, http.MethodPatch, "/patterns/"+url.PathEscape(id), id, ch, headers, &out)
	return out, err
}

// Delete implements Store.
func (s *HTTPStore) Delete(ctx context.Context, id string) error {
	return s.do(ctx, http.MethodDelete, "/patterns/"+url.PathEscape(id), id, nil, nil, nil)
}

// do runs one request/response cycle and maps failures onto the store
// error taxonomy.
func (s *HTTPStore) do(ctx context.Context, method, path, patternID string, body any, headers map[string]string, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if s.token != nil {
		tok, err := s.token(ctx)
		if err != nil {
			return fmt.Errorf("resolve token: %w", err)
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		// Transport-level failure: the store was unreachable.
		return &StoreError{
			Code:      CodeNetworkUnavailable,
			PatternID: patternID,
			Message:   "pattern store unreachable",
			Err:       err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return s.errorFromResponse(resp, patternID)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// errorFromResponse maps HTTP status codes onto the error taxonomy.
func (s *HTTPStore) errorFromResponse(resp *http.Response, patternID string) error {
	msg := readErrorMessage(resp.Body)

	var code ErrorCode
	switch resp.StatusCode {
	case http.StatusConflict, http.StatusPreconditionFailed:
		code = CodeVersionConflict
	case http.StatusNotFound:
		code = CodeNotFound
	case http.StatusForbidden, http.StatusUnauthorized:
		code = CodePermissionDenied
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		code = CodeNetworkUnavailable
	default:
		code = CodeRemote
	}

	if msg == "" {
		msg = fmt.Sprintf("store returned %s", resp.Status)
	}
	return &StoreError{Code: code, PatternID: patternID, Message: msg}
}

// readErrorMessage pulls a message out of a JSON error body, best effort.
func readErrorMessage(r io.Reader) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}
