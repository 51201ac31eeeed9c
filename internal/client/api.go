// Package client is the wallet side of the sign-in protocol: it talks to the
// API, caches the session token and keeps the signed-in user's profile.
package client

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/thereayou/abstrio/internal/apperror"
	"github.com/thereayou/abstrio/internal/handlers/dto"
	"github.com/thereayou/abstrio/internal/models"
)

// API is a typed client for the /api routes.
type API struct {
	http    *resty.Client
	baseURL string
}

// NewAPI takes the API root, e.g. http://localhost:3000/api.
func NewAPI(baseURL string, timeout time.Duration) *API {
	baseURL = strings.TrimRight(baseURL, "/")
	hc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &API{http: hc, baseURL: baseURL}
}

func (a *API) BaseURL() string {
	return a.baseURL
}

func (a *API) Authenticate(ctx context.Context, address, signature string) (string, error) {
	var out dto.AuthenticateResponse
	err := a.do(a.http.R().
		SetContext(ctx).
		SetQueryParam("accountAddress", address).
		SetBody(dto.AuthenticateRequest{Signature: signature}).
		SetResult(&out), "POST", "/authentication")
	if err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", apperror.Upstream("empty token in authentication response", errors.New("no token"))
	}
	return out.Token, nil
}

// Register returns a Conflict error when the address is already registered.
func (a *API) Register(ctx context.Context, address, token string) error {
	return a.do(a.http.R().
		SetContext(ctx).
		SetQueryParam("accountAddress", address).
		SetBody(dto.TokenRequest{Token: token}), "POST", "/register")
}

func (a *API) GetUser(ctx context.Context, address string) (*models.User, error) {
	var out dto.UserResponse
	err := a.do(a.http.R().
		SetContext(ctx).
		SetQueryParam("accountAddress", address).
		SetResult(&out), "GET", "/user")
	if err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, apperror.NotFound("user not found")
	}
	return out.User, nil
}

func (a *API) Update(ctx context.Context, address, token string, upd models.ProfileUpdate) error {
	return a.do(a.http.R().
		SetContext(ctx).
		SetQueryParam("accountAddress", address).
		SetBody(dto.UpdateRequest{Token: token, Name: upd.Name, Email: upd.Email, X: upd.X, Image: upd.Image}), "POST", "/update")
}

func (a *API) Signup(ctx context.Context, address, email string) error {
	return a.do(a.http.R().
		SetContext(ctx).
		SetBody(dto.SignupRequest{Email: email, Address: address}), "POST", "/signup")
}

func (a *API) VerifyEmail(ctx context.Context, token string) error {
	return a.do(a.http.R().
		SetContext(ctx).
		SetQueryParam("token", token), "POST", "/verify-email")
}

func (a *API) Logout(ctx context.Context, token string) error {
	return a.do(a.http.R().
		SetContext(ctx).
		SetBody(dto.TokenRequest{Token: token}), "POST", "/logout")
}

// do sends the request and turns error responses into apperror values.
// Transport failures come back as Upstream.
func (a *API) do(req *resty.Request, method, path string) error {
	var failure dto.ErrorResponse
	resp, err := req.SetError(&failure).Execute(method, path)
	if err != nil {
		return apperror.Upstream("request failed", err)
	}
	if !resp.IsError() {
		return nil
	}

	kind := failure.Kind
	if kind == "" {
		kind = apperror.FromStatus(resp.StatusCode())
	}
	msg := failure.Message
	if msg == "" {
		msg = resp.Status()
	}
	return apperror.New(kind, msg)
}
