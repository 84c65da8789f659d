package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultAlphaVantageURL is the query endpoint of the Alpha Vantage API.
const DefaultAlphaVantageURL = "https://www.alphavantage.co/query"

type globalQuoteResponse struct {
	GlobalQuote struct {
		Symbol        string `json:"01. symbol"`
		Price         string `json:"05. price"`
		PreviousClose string `json:"08. previous close"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
	Note string `json:"Note"`
}

// AlphaVantage is a Feed backed by the GLOBAL_QUOTE endpoint.
type AlphaVantage struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewAlphaVantage(baseURL, apiKey string) *AlphaVantage {
	if baseURL == "" {
		baseURL = DefaultAlphaVantageURL
	}
	return &AlphaVantage{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Symbol maps an exchange-qualified code to the Alpha Vantage ticker:
// "sh.600000" becomes "600000.SHH" and "sz.000001" becomes "000001.SHZ".
func Symbol(code string) string {
	exchange, ticker, ok := strings.Cut(code, ".")
	if !ok {
		return code
	}
	switch strings.ToLower(exchange) {
	case "sh":
		return ticker + ".SHH"
	case "sz":
		return ticker + ".SHZ"
	default:
		return code
	}
}

func (a *AlphaVantage) Quote(ctx context.Context, code string) (Observation, error) {
	q := url.Values{}
	q.Set("function", "GLOBAL_QUOTE")
	q.Set("symbol", Symbol(code))
	q.Set("apikey", a.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Observation{}, err
	}
	resp, err := a.Client.Do(req)
	if err != nil {
		return Observation{}, fmt.Errorf("fetch quote %s: %w", code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Observation{}, fmt.Errorf("fetch quote %s: unexpected status %s", code, resp.Status)
	}

	var result globalQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Observation{}, fmt.Errorf("parse quote %s: %w", code, err)
	}
	if result.Note != "" {
		return Observation{}, fmt.Errorf("fetch quote %s: %s", code, result.Note)
	}
	if result.GlobalQuote.Price == "" {
		return Observation{}, fmt.Errorf("quote %s: %w", code, errNoQuote)
	}

	price, err := decimal.NewFromString(result.GlobalQuote.Price)
	if err != nil {
		return Observation{}, fmt.Errorf("parse quote %s price: %w", code, err)
	}
	obs := Observation{Code: code, Price: price}

	if prev, err := decimal.NewFromString(result.GlobalQuote.PreviousClose); err == nil {
		if change, ok := ChangeFromClose(price, prev); ok {
			obs.Change = &change
			return obs, nil
		}
	}
	pct := strings.TrimSuffix(strings.TrimSpace(result.GlobalQuote.ChangePercent), "%")
	if change, err := decimal.NewFromString(pct); err == nil {
		change = change.Round(2)
		obs.Change = &change
	}
	return obs, nil
}

var errNoQuote = fmt.Errorf("no quote returned")
