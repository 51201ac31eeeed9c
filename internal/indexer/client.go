// Package indexer talks to the third-party NFT indexing APIs that back the
// wallet, activity and trending proxy routes.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/thereayou/abstrio/internal/apperror"
	"github.com/thereayou/abstrio/internal/services"
)

type Config struct {
	WalletAPI   string
	ActivityAPI string
	FloorAPI    string
	StatAPI     string
	TrendingAPI string
	FavoriteAPI string
	Timeout     time.Duration
}

type Client struct {
	http *resty.Client
	cfg  Config
}

var _ services.Indexer = (*Client)(nil)

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	hc := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: hc, cfg: cfg}
}

func (c *Client) OwnerWallet(ctx context.Context, q services.WalletQuery) (json.RawMessage, error) {
	body, err := c.get(ctx, c.cfg.WalletAPI, map[string]string{
		"owner":           q.Owner,
		"ownerAltAddress": q.OwnerAltAddress,
		"limit":           strconv.Itoa(q.Limit),
		"page":            strconv.Itoa(q.Page),
		"sort":            q.Sort,
	})
	if err != nil {
		return nil, err
	}
	return dataField(body)
}

func (c *Client) Activity(ctx context.Context, owner string, limit int) (json.RawMessage, error) {
	body, err := c.get(ctx, c.cfg.ActivityAPI, map[string]string{
		"owner":           owner,
		"ownerAltAddress": "",
		"limit":           strconv.Itoa(limit),
	})
	if err != nil {
		return nil, err
	}
	return dataField(body)
}

// WalletTokens prices each collection the owner holds at its floor and sorts
// the result by total value, highest first. Collections without a floor sort
// as zero.
func (c *Client) WalletTokens(ctx context.Context, owner string) ([]services.TokenHolding, error) {
	params := map[string]string{"owner": owner, "ownerAltAddress": ""}

	floorBody, err := c.get(ctx, c.cfg.FloorAPI, params)
	if err != nil {
		return nil, err
	}
	var floors struct {
		Data map[string]*float64 `json:"data"`
	}
	if err := json.Unmarshal(floorBody, &floors); err != nil {
		return nil, apperror.Upstream("unexpected floor price response", err)
	}

	statBody, err := c.get(ctx, c.cfg.StatAPI, params)
	if err != nil {
		return nil, err
	}
	var stats struct {
		Data []map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(statBody, &stats); err != nil {
		return nil, apperror.Upstream("unexpected wallet stat response", err)
	}

	holdings := make([]services.TokenHolding, 0, len(stats.Data))
	for _, item := range stats.Data {
		h := services.TokenHolding{Fields: item}
		// unreadable fields count as empty; the raw values are still sent
		if raw, ok := item["contractAddress"]; ok {
			if err := json.Unmarshal(raw, &h.ContractAddress); err != nil {
				h.ContractAddress = ""
			}
		}
		if raw, ok := item["count"]; ok {
			count, err := decodeCount(raw)
			if err != nil {
				count = 0
			}
			h.Count = count
		}

		if f := floors.Data[h.ContractAddress]; f != nil && *f != 0 {
			floor := *f
			value := floor * h.Count
			h.Floor = &floor
			h.Value = &value
		}
		holdings = append(holdings, h)
	}

	sort.SliceStable(holdings, func(i, j int) bool {
		return valueOrZero(holdings[i].Value) > valueOrZero(holdings[j].Value)
	})
	return holdings, nil
}

func (c *Client) Trending(ctx context.Context) (json.RawMessage, error) {
	body, err := c.get(ctx, c.cfg.TrendingAPI, nil)
	if err != nil {
		return nil, err
	}
	return rawJSON(body)
}

func (c *Client) OwnerFavorites(ctx context.Context, owner string) (json.RawMessage, error) {
	var params map[string]string
	if owner != "" {
		params = map[string]string{"owner": owner}
	}
	body, err := c.get(ctx, c.cfg.FavoriteAPI, params)
	if err != nil {
		return nil, err
	}
	return rawJSON(body)
}

func (c *Client) get(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	if endpoint == "" {
		return nil, apperror.Internal("indexer endpoint not configured", errors.New("empty endpoint"))
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(endpoint)
	if err != nil {
		return nil, apperror.Upstream("failed to fetch data", err)
	}
	if resp.IsError() {
		return nil, apperror.Upstream("failed to fetch data", fmt.Errorf("%s responded %d", endpoint, resp.StatusCode()))
	}
	return resp.Body(), nil
}

func dataField(body []byte) (json.RawMessage, error) {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperror.Upstream("unexpected indexer response", err)
	}
	if len(env.Data) == 0 {
		return json.RawMessage("null"), nil
	}
	return env.Data, nil
}

func rawJSON(body []byte) (json.RawMessage, error) {
	if !json.Valid(body) {
		return nil, apperror.Upstream("unexpected indexer response", errors.New("invalid json"))
	}
	return json.RawMessage(body), nil
}

// decodeCount accepts both 3 and "3".
func decodeCount(raw json.RawMessage) (float64, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(str), 64)
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
