package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"pressroom/internal/model"
	"pressroom/pkg/circuitbreaker"
	"pressroom/pkg/config"
	"pressroom/pkg/metrics"
)

// Client publishes final content to WordPress through its REST API. Posts
// are created as drafts and then flipped to publish, so a failure between
// the two calls leaves at worst an unpublished draft behind.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	breaker  *circuitbreaker.CircuitBreaker
	logger   *zap.Logger
}

func NewClient(cfg config.WordPressConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		username: cfg.Username,
		password: cfg.Password,
		http:     &http.Client{Timeout: 30 * time.Second},
		breaker:  circuitbreaker.New(circuitbreaker.DefaultConfig()),
		logger:   logger,
	}
}

type postRequest struct {
	Title   string    `json:"title,omitempty"`
	Content string    `json:"content,omitempty"`
	Status  string    `json:"status,omitempty"`
	Excerpt string    `json:"excerpt,omitempty"`
	Meta    *postMeta `json:"meta,omitempty"`
}

// postMeta mirrors the custom fields the site's theme reads.
type postMeta struct {
	Category string   `json:"_press_category,omitempty"`
	Tags     []string `json:"_press_tags,omitempty"`
}

type postResponse struct {
	ID   int    `json:"id"`
	Link string `json:"link"`
}

// PublishPost creates and publishes a post, returning the WordPress post id.
func (c *Client) PublishPost(ctx context.Context, content model.FinalContent) (string, error) {
	var ref string
	start := time.Now()
	err := c.breaker.Execute(func() error {
		draft, err := c.createDraft(ctx, content)
		if err != nil {
			return err
		}
		if err := c.setStatus(ctx, draft.ID, "publish"); err != nil {
			return err
		}
		ref = strconv.Itoa(draft.ID)
		return nil
	})
	if err != nil {
		metrics.RecordAdapterCallLatency("cms", "error", time.Since(start))
		return "", err
	}
	metrics.RecordAdapterCallLatency("cms", "success", time.Since(start))

	c.logger.Info("Published post to WordPress", zap.String("post_id", ref))
	return ref, nil
}

// TestConnection checks the credentials against the users/me endpoint.
func (c *Client) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/wp-json/wp/v2/users/me", nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wordpress auth check returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) createDraft(ctx context.Context, content model.FinalContent) (*postResponse, error) {
	body := postRequest{
		Title:   content.Title,
		Content: content.Body,
		Status:  "draft",
		Excerpt: content.MetaDescription,
	}
	if content.Category != "" || len(content.Tags) > 0 {
		body.Meta = &postMeta{Category: content.Category, Tags: content.Tags}
	}

	var created postResponse
	if err := c.post(ctx, "/wp-json/wp/v2/posts", body, &created); err != nil {
		return nil, fmt.Errorf("failed to create draft: %w", err)
	}
	return &created, nil
}

func (c *Client) setStatus(ctx context.Context, postID int, status string) error {
	path := fmt.Sprintf("/wp-json/wp/v2/posts/%d", postID)
	if err := c.post(ctx, path, postRequest{Status: status}, nil); err != nil {
		return fmt.Errorf("failed to set post %d status to %s: %w", postID, status, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("wordpress returned status %d: %s", resp.StatusCode, string(raw))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode wordpress response: %w", err)
		}
	}
	return nil
}
