package services

import (
	"context"
	"encoding/json"
	"io"
	"time"
)

// Mailer delivers verification links.
type Mailer interface {
	SendVerification(ctx context.Context, email, token string) error
}

// ImageStore persists an uploaded image and returns its public URL.
type ImageStore interface {
	Upload(ctx context.Context, filename, contentType string, body io.Reader, size int64) (string, error)
}

// TokenRevoker tracks session tokens invalidated before their expiry.
type TokenRevoker interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// SignupLocker serialises email signups per address. release must be called
// once the signup finished.
type SignupLocker interface {
	AcquireSignup(ctx context.Context, address string) (release func(), err error)
}

// Indexer is the third-party NFT indexing service behind the proxy routes.
type Indexer interface {
	OwnerWallet(ctx context.Context, q WalletQuery) (json.RawMessage, error)
	Activity(ctx context.Context, owner string, limit int) (json.RawMessage, error)
	WalletTokens(ctx context.Context, owner string) ([]TokenHolding, error)
	Trending(ctx context.Context) (json.RawMessage, error)
	OwnerFavorites(ctx context.Context, owner string) (json.RawMessage, error)
}

type WalletQuery struct {
	Owner           string
	OwnerAltAddress string
	Limit           int
	Page            int
	Sort            string
}

// TokenHolding is one collection held by a wallet, priced at the
// collection's floor. Floor and Value are nil when no floor is known.
type TokenHolding struct {
	Fields          map[string]json.RawMessage `json:"-"`
	ContractAddress string                     `json:"contractAddress"`
	Count           float64                    `json:"count"`
	Floor           *float64                   `json:"floor"`
	Value           *float64                   `json:"value"`
}

// MarshalJSON keeps every upstream field as sent and adds floor and value.
// ContractAddress and Count are written only when upstream did not send them.
func (h TokenHolding) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(h.Fields)+4)
	for k, v := range h.Fields {
		out[k] = v
	}
	if _, ok := h.Fields["contractAddress"]; !ok {
		out["contractAddress"] = h.ContractAddress
	}
	if _, ok := h.Fields["count"]; !ok {
		out["count"] = h.Count
	}
	out["floor"] = h.Floor
	out["value"] = h.Value
	return json.Marshal(out)
}
