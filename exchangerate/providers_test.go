package exchangerate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCoinCapProviderParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"symbol":"XRP","priceUsd":"0.5"},{"symbol":"BTC","priceUsd":"60000.25"}]}`))
	}))
	defer srv.Close()

	p := &CoinCapProvider{BaseURL: srv.URL}
	rates, err := p.FetchRates(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0.5, rates["XRP"])
	require.Equal(t, 60000.25, rates["BTC"])
	require.Equal(t, 1.0, rates["USD"])
}

func TestCoinCapProviderSkipsUnparsablePrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"symbol":"XRP","priceUsd":"not-a-number"}]}`))
	}))
	defer srv.Close()

	p := &CoinCapProvider{BaseURL: srv.URL}
	rates, err := p.FetchRates(context.Background())
	require.NoError(t, err)
	_, ok := rates["XRP"]
	require.False(t, ok)
}

func TestCryptoCompareProviderParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"XRP":{"USD":0.5},"BTC":{"USD":60000.25}}`))
	}))
	defer srv.Close()

	p := &CryptoCompareProvider{BaseURL: srv.URL, Symbols: []string{"XRP", "BTC"}}
	rates, err := p.FetchRates(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0.5, rates["XRP"])
	require.Equal(t, 60000.25, rates["BTC"])
	require.Equal(t, 1.0, rates["USD"])
}

func TestJoinSymbols(t *testing.T) {
	require.Equal(t, "", joinSymbols(nil))
	require.Equal(t, "XRP", joinSymbols([]string{"XRP"}))
	require.Equal(t, "XRP,BTC", joinSymbols([]string{"XRP", "BTC"}))
}
