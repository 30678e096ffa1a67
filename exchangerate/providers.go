package exchangerate

import (
	"context"
	"encoding/json"
	"net/http"
)

// CoinCapProvider fetches rates from the CoinCap assets API.
type CoinCapProvider struct {
	HTTP    *http.Client
	BaseURL string
}

type coinCapResponse struct {
	Data []struct {
		Symbol   string `json:"symbol"`
		PriceUSD string `json:"priceUsd"`
	} `json:"data"`
}

func (p *CoinCapProvider) FetchRates(ctx context.Context) (map[string]float64, error) {
	url := p.BaseURL
	if url == "" {
		url = "https://api.coincap.io/v2/assets"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body coinCapResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	rates := make(map[string]float64, len(body.Data))
	for _, d := range body.Data {
		var f float64
		if err := json.Unmarshal([]byte(d.PriceUSD), &f); err == nil {
			rates[d.Symbol] = f
		}
	}
	rates["USD"] = 1.0
	return rates, nil
}

func (p *CoinCapProvider) httpClient() *http.Client {
	if p.HTTP != nil {
		return p.HTTP
	}
	return http.DefaultClient
}

// CryptoCompareProvider fetches rates from the CryptoCompare
// multi-symbol price API.
type CryptoCompareProvider struct {
	HTTP    *http.Client
	BaseURL string
	Symbols []string
}

func (p *CryptoCompareProvider) FetchRates(ctx context.Context) (map[string]float64, error) {
	url := p.BaseURL
	if url == "" {
		url = "https://min-api.cryptocompare.com/data/pricemulti?fsyms=" + joinSymbols(p.Symbols) + "&tsyms=USD"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	rates := make(map[string]float64, len(body))
	for symbol, prices := range body {
		if usd, ok := prices["USD"]; ok {
			rates[symbol] = usd
		}
	}
	rates["USD"] = 1.0
	return rates, nil
}

func (p *CryptoCompareProvider) httpClient() *http.Client {
	if p.HTTP != nil {
		return p.HTTP
	}
	return http.DefaultClient
}

func joinSymbols(symbols []string) string {
	out := ""
	for i, s := range symbols {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}
