package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/config"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const defaultAPIURL = "https://api.twitter.com"

// Client answers follow and repost questions with app-only auth.
type Client struct {
	apiURL     string
	httpClient *http.Client
}

// New wraps tokens in an authenticated HTTP client.
func New(ctx context.Context, apiURL string, tokens oauth2.TokenSource) *Client {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	base := &http.Client{Timeout: 10 * time.Second}
	hc := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), tokens)
	hc.Timeout = base.Timeout
	return &Client{apiURL: strings.TrimRight(apiURL, "/"), httpClient: hc}
}

// NewFromConfig prefers TWITTER_BEARER_TOKEN and otherwise exchanges the
// client id and secret for an app-only token.
func NewFromConfig(ctx context.Context, cfg config.Config) (*Client, error) {
	if cfg.TwitterBearerToken != "" {
		return New(ctx, cfg.TwitterAPIURL, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.TwitterBearerToken})), nil
	}
	if cfg.TwitterClientID == "" || cfg.TwitterClientSecret == "" {
		return nil, errors.New("TWITTER_BEARER_TOKEN or TWITTER_CLIENT_ID and TWITTER_CLIENT_SECRET are required")
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.TwitterClientID,
		ClientSecret: cfg.TwitterClientSecret,
		TokenURL:     cfg.TwitterTokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	return New(ctx, cfg.TwitterAPIURL, cc.TokenSource(ctx)), nil
}

type friendshipResponse struct {
	Relationship struct {
		Source struct {
			Following bool `json:"following"`
		} `json:"source"`
	} `json:"relationship"`
}

func (c *Client) VerifyFollowing(ctx context.Context, source, target string) (bool, error) {
	q := url.Values{}
	q.Set("source_screen_name", source)
	q.Set("target_screen_name", target)
	var resp friendshipResponse
	found, err := c.get(ctx, "/1.1/friendships/show.json?"+q.Encode(), &resp)
	if err != nil || !found {
		return false, err
	}
	return resp.Relationship.Source.Following, nil
}

type tweetResponse struct {
	Data struct {
		ID               string `json:"id"`
		ReferencedTweets []struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		} `json:"referenced_tweets"`
	} `json:"data"`
}

// VerifyRepost reports whether postID references referencedID. Any reference
// type counts, so quotes and replies pass as well as retweets.
func (c *Client) VerifyRepost(ctx context.Context, referencedID, postID string) (bool, error) {
	var resp tweetResponse
	found, err := c.get(ctx, "/2/tweets/"+url.PathEscape(postID)+"?expansions=referenced_tweets.id", &resp)
	if err != nil || !found {
		return false, err
	}
	for _, ref := range resp.Data.ReferencedTweets {
		if ref.ID == referencedID {
			return true, nil
		}
	}
	return false, nil
}

// get returns found=false for 404 so missing accounts and posts read as a
// negative answer rather than an outage.
func (c *Client) get(ctx context.Context, path string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("twitter request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("twitter api failed: status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("decode twitter response: %w", err)
	}
	return true, nil
}

var _ domain.SocialVerifier = (*Client)(nil)
