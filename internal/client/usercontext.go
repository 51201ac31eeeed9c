package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/thereayou/abstrio/internal/apperror"
	"github.com/thereayou/abstrio/internal/models"
	ws "github.com/thereayou/abstrio/internal/websocket"
	"github.com/thereayou/abstrio/pkg/wallet"
)

var (
	ErrNotConnected = errors.New("no wallet connected")
	// ErrSuperseded is returned to a SetConnection whose wallet was replaced
	// or disconnected before its bootstrap finished.
	ErrSuperseded = errors.New("wallet connection superseded")
)

// UserState is the cached view of the connected wallet.
type UserState struct {
	Signer         wallet.Signer
	AccountAddress string
	User           *models.User
}

// UserContext caches the connected wallet and its profile for the life of
// the process. Only the session token outlives it, in the TokenStore.
type UserContext struct {
	boot   *Bootstrapper
	api    *API
	logger *zap.Logger

	group singleflight.Group

	mu    sync.RWMutex
	state UserState
	// address of the latest SetConnection; only its run may fill state.
	// Disconnect clears it.
	pending string
}

func NewUserContext(boot *Bootstrapper, api *API, logger *zap.Logger) *UserContext {
	return &UserContext{boot: boot, api: api, logger: logger}
}

// SetConnection bootstraps the session for signer and loads the profile.
// Concurrent calls for the same address share one run. When another wallet
// connects meanwhile, the older run returns ErrSuperseded and leaves the
// cache alone.
func (u *UserContext) SetConnection(ctx context.Context, signer wallet.Signer) (UserState, error) {
	key := wallet.NormalizeAddress(signer.Address())

	u.mu.Lock()
	u.pending = key
	u.mu.Unlock()

	v, err, _ := u.group.Do(key, func() (any, error) {
		st, err := u.boot.Run(ctx, signer)
		if err != nil {
			return nil, err
		}
		user, err := u.api.GetUser(ctx, st.AccountAddress)
		if err != nil {
			return nil, err
		}

		state := UserState{Signer: st.Signer, AccountAddress: st.AccountAddress, User: user}
		u.mu.Lock()
		defer u.mu.Unlock()
		if u.pending != key {
			return nil, ErrSuperseded
		}
		u.state = state
		return state, nil
	})
	if errors.Is(err, ErrSuperseded) {
		u.logger.Debug("stale wallet connection dropped", zap.String("address", signer.Address()))
		return UserState{}, err
	}
	if err != nil {
		u.logger.Warn("wallet connection failed", zap.String("address", signer.Address()), zap.Error(err))
		return UserState{}, err
	}
	return v.(UserState), nil
}

// Current returns the cached state; AccountAddress is empty when nothing is
// connected.
func (u *UserContext) Current() UserState {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.state
}

// Disconnect forgets the wallet but keeps its cached token.
func (u *UserContext) Disconnect() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.state = UserState{}
	u.pending = ""
}

// Refresh re-fetches the profile of the connected wallet.
func (u *UserContext) Refresh(ctx context.Context) (*models.User, error) {
	st := u.Current()
	if st.AccountAddress == "" {
		return nil, ErrNotConnected
	}
	user, err := u.api.GetUser(ctx, st.AccountAddress)
	if err != nil {
		return nil, err
	}
	u.setUser(st.AccountAddress, user)
	return user, nil
}

func (u *UserContext) UpdateProfile(ctx context.Context, upd models.ProfileUpdate) (*models.User, error) {
	st, token, err := u.session(ctx)
	if err != nil {
		return nil, err
	}
	if err := u.api.Update(ctx, st.AccountAddress, token, upd); err != nil {
		return nil, err
	}
	return u.Refresh(ctx)
}

// Signup starts email verification for the connected wallet.
func (u *UserContext) Signup(ctx context.Context, email string) error {
	st := u.Current()
	if st.AccountAddress == "" {
		return ErrNotConnected
	}
	return u.api.Signup(ctx, st.AccountAddress, email)
}

// Logout revokes the session on the server, drops the cached token and
// disconnects.
func (u *UserContext) Logout(ctx context.Context) error {
	st, token, err := u.session(ctx)
	if err != nil {
		return err
	}
	if err := u.api.Logout(ctx, token); err != nil && apperror.KindOf(err) != apperror.KindAuthentication {
		return err
	}
	if err := u.boot.tokens.Delete(ctx, st.AccountAddress); err != nil {
		return err
	}
	u.Disconnect()
	return nil
}

// Watch follows the server's profile event stream and keeps the cached
// user current. It returns when ctx is done or the stream breaks.
func (u *UserContext) Watch(ctx context.Context) error {
	st, token, err := u.session(ctx)
	if err != nil {
		return err
	}

	endpoint, err := streamURL(u.api.BaseURL(), token)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return apperror.Upstream("event stream unavailable", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var ev ws.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return apperror.Upstream("event stream closed", err)
		}

		switch ev.Type {
		case ws.TypeUserRegistered, ws.TypeUserUpdated, ws.TypeEmailPending, ws.TypeEmailVerified:
			var user models.User
			if err := json.Unmarshal(ev.Data, &user); err != nil {
				u.logger.Warn("bad profile event", zap.String("type", string(ev.Type)), zap.Error(err))
				continue
			}
			u.setUser(st.AccountAddress, &user)
		}
	}
}

func (u *UserContext) session(ctx context.Context) (UserState, string, error) {
	st := u.Current()
	if st.AccountAddress == "" {
		return st, "", ErrNotConnected
	}
	token, err := u.boot.Token(ctx, st.AccountAddress)
	if err != nil {
		return st, "", err
	}
	if token == "" {
		return st, "", apperror.Authentication("no session token")
	}
	return st, token, nil
}

// setUser stores user only if address is still the connected wallet.
func (u *UserContext) setUser(address string, user *models.User) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if strings.EqualFold(u.state.AccountAddress, address) {
		u.state.User = user
	}
}

// streamURL maps http://host/api to ws://host/api/ws?token=...
func streamURL(apiBase, token string) (string, error) {
	parsed, err := url.Parse(apiBase)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	default:
		parsed.Scheme = "ws"
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/ws"
	parsed.RawQuery = url.Values{"token": {token}}.Encode()
	return parsed.String(), nil
}
