package scraper

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
)

// Query parameters the register search endpoint expects.
const (
	searchScope   = "{21522AF6-8499-4C63-8CFA-02E2B97737BE}"
	searchItemID  = "{8B94FE47-304A-4629-AD46-DD208EEF71AA}"
	searchSig     = "als"
	searchVariant = "{2FCA44D4-EE00-43EC-BBBF-858C31387413}"

	maxResponseSize = 256 << 20
)

// Result is one search hit. Html holds the rendered result card.
type Result struct {
	ID   string `json:"Id"`
	HTML string `json:"Html"`
}

// SearchResponse is the JSON body returned by the search endpoint.
type SearchResponse struct {
	Count   int      `json:"Count"`
	Results []Result `json:"Results"`
}

// Client talks to the register search endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a search client with the given request timeout.
func NewClient(endpoint string, timeout time.Duration) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Transport: transport, Timeout: timeout},
		userAgent:  "regwatch/1.0",
	}
}

// Search requests pageSize results starting at offset.
func (c *Client) Search(ctx context.Context, offset, pageSize int) (*SearchResponse, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "parse endpoint %q", c.endpoint)
	}
	q := u.Query()
	q.Set("s", searchScope)
	q.Set("itemid", searchItemID)
	q.Set("sig", searchSig)
	q.Set("e", strconv.Itoa(offset))
	q.Set("p", strconv.Itoa(pageSize))
	q.Set("v", searchVariant)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var out SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode search response")
	}
	return &out, nil
}

// FetchAll asks for the result count and then for every result in one page.
// It fails when the endpoint returns a different number of results than it
// announced.
func (c *Client) FetchAll(ctx context.Context) ([]Result, error) {
	probe, err := c.Search(ctx, 0, 1)
	if err != nil {
		return nil, errors.Wrap(err, "count results")
	}
	if probe.Count <= 0 {
		return nil, errors.New("register reported no results")
	}

	full, err := c.Search(ctx, 0, probe.Count)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %d results", probe.Count)
	}
	if len(full.Results) != probe.Count {
		return nil, errors.Newf("register announced %d results but returned %d", probe.Count, len(full.Results))
	}
	return full.Results, nil
}
