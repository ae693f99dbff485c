// Package catalog предоставляет клиент внешнего каталога изданий.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client инкапсулирует HTTP-взаимодействие с каталогом.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Record описывает ответ каталога по одному изданию.
type Record struct {
	Barcode     string `json:"barcode"`
	Title       string `json:"title"`
	TotalCopies int    `json:"total_copies"`
}

// NewClient создаёт HTTP-клиент каталога по указанному адресу.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Configured сообщает, задан ли адрес каталога.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// GetItem запрашивает данные издания по штрихкоду. Возвращает код ответа
// и, для 429, время до повторной попытки. На 404 запись равна nil без ошибки.
func (c *Client) GetItem(ctx context.Context, barcode string) (*Record, int, time.Duration, error) {
	if !c.Configured() {
		return nil, 0, 0, fmt.Errorf("catalog client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	endpoint := fmt.Sprintf("%s/api/items/%s", base, url.PathEscape(barcode))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, resp.StatusCode, retryAfter, nil
	case http.StatusNotFound:
		return nil, resp.StatusCode, 0, nil
	default:
		return nil, resp.StatusCode, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result Record
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, 0, fmt.Errorf("decode response: %w", err)
	}
	if result.TotalCopies < 0 {
		return nil, resp.StatusCode, 0, fmt.Errorf("invalid total_copies: %d", result.TotalCopies)
	}
	if result.Barcode == "" {
		result.Barcode = barcode
	}

	return &result, resp.StatusCode, 0, nil
}
