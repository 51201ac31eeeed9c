package client

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/thereayou/abstrio/internal/apperror"
	"github.com/thereayou/abstrio/pkg/auth"
	"github.com/thereayou/abstrio/pkg/wallet"
)

// Web3State is the outcome of a successful bootstrap.
type Web3State struct {
	Signer         wallet.Signer
	AccountAddress string
}

// Bootstrapper drives the client side of sign-in once per wallet connection:
// reuse the cached session token if the server still accepts it, otherwise
// sign the challenge for a new one. Either way the address ends up registered.
type Bootstrapper struct {
	api    *API
	tokens TokenStore
	logger *zap.Logger
	now    func() time.Time
}

func NewBootstrapper(api *API, tokens TokenStore, logger *zap.Logger) *Bootstrapper {
	return &Bootstrapper{api: api, tokens: tokens, logger: logger, now: time.Now}
}

// Run is safe to call on every reconnect; registration is idempotent.
// Only an authentication failure drops the cached token; network and server
// errors leave it for the next attempt.
func (b *Bootstrapper) Run(ctx context.Context, signer wallet.Signer) (*Web3State, error) {
	address := signer.Address()
	state := &Web3State{Signer: signer, AccountAddress: address}

	token, err := b.tokens.Get(ctx, address)
	if err != nil {
		return nil, err
	}

	if token != "" {
		err := b.resume(ctx, address, token)
		if err == nil {
			return state, nil
		}
		if apperror.KindOf(err) != apperror.KindAuthentication {
			return nil, err
		}

		b.logger.Info("cached session rejected, signing in again",
			zap.String("address", address), zap.Error(err))
		if err := b.tokens.Delete(ctx, address); err != nil {
			return nil, err
		}
	}

	if err := b.signIn(ctx, signer); err != nil {
		return nil, err
	}
	return state, nil
}

// Token returns the cached session token for address, or "" when none.
func (b *Bootstrapper) Token(ctx context.Context, address string) (string, error) {
	return b.tokens.Get(ctx, address)
}

func (b *Bootstrapper) resume(ctx context.Context, address, token string) error {
	exp, err := auth.PeekExpiry(token)
	if err != nil {
		return apperror.Wrap(apperror.KindAuthentication, "cached token is unreadable", err)
	}
	if !exp.IsZero() && !exp.After(b.now()) {
		return apperror.Authentication("cached token expired")
	}

	_, err = b.api.GetUser(ctx, address)
	if apperror.KindOf(err) == apperror.KindNotFound {
		// запись пропала на сервере: регистрируемся заново с тем же токеном
		return b.register(ctx, address, token)
	}
	return err
}

func (b *Bootstrapper) signIn(ctx context.Context, signer wallet.Signer) error {
	address := signer.Address()

	signature, err := signer.SignMessage(ctx, wallet.ChallengeMessage(address))
	if err != nil {
		return apperror.Wrap(apperror.KindAuthentication, "wallet refused to sign", err)
	}

	token, err := b.api.Authenticate(ctx, address, signature)
	if err != nil {
		return err
	}
	if err := b.tokens.Set(ctx, address, token); err != nil {
		return err
	}

	return b.register(ctx, address, token)
}

func (b *Bootstrapper) register(ctx context.Context, address, token string) error {
	err := b.api.Register(ctx, address, token)
	if apperror.KindOf(err) == apperror.KindConflict {
		return nil
	}
	return err
}
