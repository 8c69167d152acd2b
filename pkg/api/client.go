// Package api wraps the booklet content API: listing the account shelf,
// fetching a booklet's ordered chapter list, and fetching chapter bodies.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.juejin.cn"

const (
	shelfPath   = "/booklet_api/v1/booklet/bookletshelflist"
	bookletPath = "/booklet_api/v1/booklet/get"
	sectionPath = "/booklet_api/v1/section/get"

	listTimeout    = 10 * time.Second
	contentTimeout = 15 * time.Second

	maxAttempts = 3
)

// baseBackoff is a var so tests can shrink the retry wait.
var baseBackoff = time.Second

// retryStatuses are the transient HTTP codes worth another attempt. Any
// other non-200 status propagates after a single try.
var retryStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// SectionRef identifies one chapter of a booklet. Titles are not unique;
// position in the Booklet.Sections slice is what matters.
type SectionRef struct {
	Title string
	ID    string
}

// Booklet is a title plus its chapters in authoritative presentation order.
type Booklet struct {
	Title    string
	Sections []SectionRef
}

// Client is a thin typed wrapper over the booklet API with a retrying
// transport. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cookie     string
	userAgent  string
	logger     *log.Logger
}

// NewClient builds a client for the given endpoint. The cookie is treated
// as an opaque credential and attached to every request.
func NewClient(baseURL, cookie string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		cookie:     cookie,
		userAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		logger:     logger,
	}
}

// envelope is the reply wrapper every endpoint shares. ErrNo zero means
// success; anything else carries a human-readable message.
type envelope struct {
	ErrNo  int             `json:"err_no"`
	ErrMsg string          `json:"err_msg"`
	Data   json.RawMessage `json:"data"`
}

// ListShelf returns the ids of booklets owned by the credential. Failures
// are logged and reported as an empty list, never as an error: an empty
// shelf and an unreachable shelf both mean "nothing to process".
func (c *Client) ListShelf(ctx context.Context) []string {
	var items []struct {
		BookletID string `json:"booklet_id"`
	}
	if err := c.post(ctx, shelfPath, nil, listTimeout, &items); err != nil {
		c.logger.Printf("WARN: shelf listing failed: %v", err)
		return nil
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.BookletID != "" {
			ids = append(ids, item.BookletID)
		}
	}
	return ids
}

// GetBooklet fetches a booklet's title and ordered chapter list. A reply
// with zero sections is valid and returned as-is.
func (c *Client) GetBooklet(ctx context.Context, bookID string) (*Booklet, error) {
	var data struct {
		Booklet struct {
			BaseInfo struct {
				Title string `json:"title"`
			} `json:"base_info"`
		} `json:"booklet"`
		Sections []struct {
			DraftTitle string `json:"draft_title"`
			SectionID  string `json:"section_id"`
		} `json:"sections"`
	}
	payload := map[string]string{"booklet_id": bookID}
	if err := c.post(ctx, bookletPath, payload, listTimeout, &data); err != nil {
		return nil, err
	}

	booklet := &Booklet{
		Title:    data.Booklet.BaseInfo.Title,
		Sections: make([]SectionRef, 0, len(data.Sections)),
	}
	for _, s := range data.Sections {
		booklet.Sections = append(booklet.Sections, SectionRef{
			Title: s.DraftTitle,
			ID:    s.SectionID,
		})
	}
	return booklet, nil
}

// GetSectionContent fetches one chapter's markdown body. All failures,
// remote and transport alike, are downgraded to ("", false) so a single
// chapter can never abort a run.
func (c *Client) GetSectionContent(ctx context.Context, sectionID string) (string, bool) {
	var data struct {
		Section struct {
			Markdown string `json:"markdown_show"`
		} `json:"section"`
	}
	payload := map[string]string{"section_id": sectionID}
	if err := c.post(ctx, sectionPath, payload, contentTimeout, &data); err != nil {
		c.logger.Printf("WARN: section %s fetch failed: %v", sectionID, err)
		return "", false
	}
	return data.Section.Markdown, true
}

// post issues one API call with the shared retry discipline and decodes
// the envelope's data field into out.
func (c *Client) post(ctx context.Context, path string, payload any, timeout time.Duration, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	reqURL := c.baseURL + path
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return &TransportError{URL: reqURL, Err: err}
			}
		}

		env, err := c.doOnce(ctx, reqURL, body, timeout)
		if err != nil {
			var herr *httpStatusError
			if errors.As(err, &herr) && !retryStatuses[herr.status] {
				// Non-transient status. One attempt is all it gets.
				return &TransportError{URL: reqURL, Err: err}
			}
			lastErr = err
			continue
		}

		if env.ErrNo != 0 {
			return &RemoteError{Code: env.ErrNo, Message: env.ErrMsg}
		}
		if out != nil && len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, out); err != nil {
				return fmt.Errorf("decoding reply from %s: %w", reqURL, err)
			}
		}
		return nil
	}
	return &TransportError{URL: reqURL, Err: lastErr}
}

func (c *Client) doOnce(ctx context.Context, reqURL string, body []byte, timeout time.Duration) (*envelope, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cookie", c.cookie)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Referer", "https://juejin.cn/")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &httpStatusError{status: resp.StatusCode, url: reqURL}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	return &env, nil
}

// backoff waits 1s, 2s, 4s... before the given retry attempt.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	wait := baseBackoff << (attempt - 1)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

type httpStatusError struct {
	status int
	url    string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s (%s)", e.status, http.StatusText(e.status), e.url)
}
