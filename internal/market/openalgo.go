package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// OpenAlgoClient fetches quotes from an OpenAlgo server's REST API.
type OpenAlgoClient struct {
	host   string
	apiKey string
	client *http.Client
}

type quotesRequest struct {
	APIKey   string `json:"apikey"`
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`
}

type quotesResponse struct {
	Status string           `json:"status"`
	Data   []map[string]any `json:"data"`
}

func NewOpenAlgoClient(host, apiKey string, timeout time.Duration) *OpenAlgoClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &OpenAlgoClient{
		host:   host,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *OpenAlgoClient) FetchQuote(ctx context.Context, key Key) (Quote, error) {
	if !key.Valid() {
		return Quote{}, fmt.Errorf("invalid instrument key %q", key)
	}

	body, err := json.Marshal(quotesRequest{
		APIKey:   c.apiKey,
		Exchange: key.Exchange,
		Symbol:   key.Symbol,
	})
	if err != nil {
		return Quote{}, fmt.Errorf("marshal request: %w", err)
	}

	url := c.host + "/api/v1/quotes"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Quote{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("request openalgo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("openalgo http %d for %s", resp.StatusCode, key)
	}

	var out quotesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Quote{}, fmt.Errorf("decode openalgo response: %w", err)
	}
	if out.Status != "success" || len(out.Data) == 0 {
		return Quote{}, ErrNoData
	}
	return quoteFromFields(out.Data[0]), nil
}
