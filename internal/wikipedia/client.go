// Package wikipedia wraps the three remote MediaWiki operations the
// pathfinding engine needs: outbound links, inbound (back)links, and
// free-text title resolution. It owns connection pooling, retry-with-backoff
// on transient transport failures, and timeout policy.
package wikipedia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/time/rate"
)

const (
	// APILimit is the maximum page size the links/backlinks endpoints accept.
	APILimit = 500

	connectTimeout     = 5 * time.Second
	readTimeout        = 30 * time.Second
	writeTimeout       = 5 * time.Second
	poolAcquireTimeout = 5 * time.Second

	maxConnsPerHost     = 500
	maxIdleConnsPerHost = 100

	retryMax     = 3
	retryWaitMin = 500 * time.Millisecond
)

// Client is a pooled, rate-limited wrapper over the MediaWiki action API.
// It is safe for concurrent use by multiple searches.
type Client struct {
	httpClient *retryablehttp.Client
	limiter    *rate.Limiter
	site       string
	userAgent  string
	logger     zerolog.Logger
}

// Config holds construction parameters for Client.
type Config struct {
	// Site is the MediaWiki host, e.g. "en.wikipedia.org".
	Site string
	// UserAgent is sent on every request, identifying this application.
	UserAgent string
	// RequestsPerSecond bounds how often the shared pool issues requests,
	// independent of the retry policy.
	RequestsPerSecond float64
}

// NewClient constructs the process-global Wikipedia client. The connection
// pool is initialized eagerly here (not lazily on first use): it has no
// state besides the transport, so there is nothing to defer.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	transport := &http.Transport{
		MaxConnsPerHost:     maxConnsPerHost,
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		DialContext: (&net.Dialer{
			Timeout: connectTimeout,
		}).DialContext,
		ResponseHeaderTimeout: readTimeout,
		IdleConnTimeout:       90 * time.Second,
	}

	httpClient := retryablehttp.NewClient()
	httpClient.HTTPClient = &http.Client{
		Transport: transport,
		Timeout:   connectTimeout + writeTimeout + readTimeout + poolAcquireTimeout,
	}
	httpClient.RetryMax = retryMax
	httpClient.RetryWaitMin = retryWaitMin
	httpClient.RetryWaitMax = retryWaitMin * (1 << retryMax)
	httpClient.Backoff = retryablehttp.DefaultBackoff
	httpClient.CheckRetry = transientOnlyRetry
	httpClient.Logger = nil

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}

	return &Client{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		site:       cfg.Site,
		userAgent:  cfg.UserAgent,
		logger:     logger,
	}
}

// SetTransportForTesting overrides the underlying HTTP transport. It exists
// so tests can point requests at an httptest server without real TLS.
func (c *Client) SetTransportForTesting(rt http.RoundTripper) {
	c.httpClient.HTTPClient.Transport = rt
}

// transientOnlyRetry retries connection, read, write, and pool-acquire
// failures (err != nil) but never retries on an HTTP status code: per the
// retry policy, 4xx/5xx responses are surfaced as empty results instead.
func transientOnlyRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	return false, nil
}

func (c *Client) do(ctx context.Context, values url.Values) (*http.Response, errors.E) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	apiURL := fmt.Sprintf("https://%s/w/api.php?%s", c.site, values.Encode())
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		errE := errors.WithStack(err)
		errors.Details(errE)["url"] = apiURL
		return nil, errE
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errE := errors.WithStack(err)
		errors.Details(errE)["url"] = apiURL
		return nil, errE
	}
	return resp, nil
}

type linksAPIResponse struct {
	Query struct {
		Pages []struct {
			Missing bool `json:"missing"`
			Links   []struct {
				Title string `json:"title"`
			} `json:"links"`
		} `json:"pages"`
	} `json:"query"`
	Continue struct {
		PLContinue string `json:"plcontinue"`
	} `json:"continue"`
}

// OutboundLinks returns the article-namespace links declared on title,
// following redirects, paginating internally at the API's maximum page size.
// It returns ErrNotFound when the remote API reports the page as missing.
// Any other transport or HTTP-status failure is surfaced as an empty list,
// per the retry policy: the caller treats that as a dead end.
func (c *Client) OutboundLinks(ctx context.Context, t string) ([]string, errors.E) {
	var links []string
	plcontinue := ""

	for {
		values := url.Values{}
		values.Set("action", "query")
		values.Set("titles", t)
		values.Set("prop", "links")
		values.Set("pllimit", strconv.Itoa(APILimit))
		values.Set("plnamespace", "0")
		values.Set("formatversion", "2")
		values.Set("redirects", "1")
		values.Set("format", "json")
		if plcontinue != "" {
			values.Set("plcontinue", plcontinue)
		}

		resp, errE := c.do(ctx, values)
		if errE != nil {
			c.logger.Warn().Err(errE).Str("title", t).Msg("outbound links request failed, treating as dead end")
			return nil, nil //nolint:nilerr
		}

		body, err := readAndClose(resp)
		if resp.StatusCode != http.StatusOK {
			c.logger.Warn().Int("status", resp.StatusCode).Str("title", t).Msg("outbound links bad status, treating as dead end")
			return nil, nil
		}
		if err != nil {
			return nil, nil //nolint:nilerr
		}

		var apiResp linksAPIResponse
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return nil, nil //nolint:nilerr
		}

		if len(apiResp.Query.Pages) == 0 {
			return nil, nil
		}
		page := apiResp.Query.Pages[0]
		if page.Missing {
			return nil, withDetails(ErrNotFound, "title", t)
		}

		for _, l := range page.Links {
			links = append(links, l.Title)
		}

		if apiResp.Continue.PLContinue == "" {
			break
		}
		plcontinue = apiResp.Continue.PLContinue
	}

	return links, nil
}

type backlinksAPIResponse struct {
	Query struct {
		Backlinks []struct {
			Title string `json:"title"`
		} `json:"backlinks"`
	} `json:"query"`
}

// InboundLinks returns up to limit titles that link to t. The remote API is
// capped at 500 results per call; if more exist, the first limit are
// returned without pagination, a deliberate cost/latency trade-off.
func (c *Client) InboundLinks(ctx context.Context, t string, limit int) ([]string, errors.E) {
	if limit <= 0 || limit > APILimit {
		limit = APILimit
	}

	values := url.Values{}
	values.Set("action", "query")
	values.Set("list", "backlinks")
	values.Set("bltitle", t)
	values.Set("bllimit", strconv.Itoa(limit))
	values.Set("blnamespace", "0")
	values.Set("blredirect", "1")
	values.Set("formatversion", "2")
	values.Set("format", "json")

	resp, errE := c.do(ctx, values)
	if errE != nil {
		c.logger.Warn().Err(errE).Str("title", t).Msg("inbound links request failed, treating as dead end")
		return nil, nil
	}

	body, err := readAndClose(resp)
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Str("title", t).Msg("inbound links bad status, treating as dead end")
		return nil, nil
	}
	if err != nil {
		return nil, nil //nolint:nilerr
	}

	var apiResp backlinksAPIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, nil //nolint:nilerr
	}

	links := make([]string, 0, len(apiResp.Query.Backlinks))
	for _, b := range apiResp.Query.Backlinks {
		links = append(links, b.Title)
	}
	return links, nil
}

// Resolve maps a free-text user query to the top-ranked article title via
// the open-search endpoint. It returns ErrNotResolved if nothing matches.
func (c *Client) Resolve(ctx context.Context, query string) (string, errors.E) {
	values := url.Values{}
	values.Set("action", "opensearch")
	values.Set("search", query)
	values.Set("limit", "1")
	values.Set("namespace", "0")
	values.Set("format", "json")

	resp, errE := c.do(ctx, values)
	if errE != nil {
		return "", withDetails(ErrNotResolved, "query", query, "cause", errE.Error())
	}

	body, err := readAndClose(resp)
	if resp.StatusCode != http.StatusOK {
		return "", withDetails(ErrNotResolved, "query", query, "status", resp.StatusCode)
	}
	if err != nil {
		return "", withDetails(ErrNotResolved, "query", query)
	}

	var parsed []json.RawMessage
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed) < 2 {
		return "", withDetails(ErrNotResolved, "query", query)
	}

	var titles []string
	if err := json.Unmarshal(parsed[1], &titles); err != nil || len(titles) == 0 {
		return "", withDetails(ErrNotResolved, "query", query)
	}

	return titles[0], nil
}

func readAndClose(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return body, nil
}
