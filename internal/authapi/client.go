// Package authapi — HTTP-обмен API-ключа бота на пару токенов.
// Единственный endpoint: POST {base}/bot/auth.
package authapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const exchangeTimeout = 10 * time.Second

// Tokens — пара токенов сессии, выданная по API-ключу.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Client — клиент bootstrap-эндпоинта аутентификации.
type Client struct {
	baseURL string
	http    *fasthttp.Client
}

// New создаёт клиент для базового URL вида https://api.openhouse.chat.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http: &fasthttp.Client{
			ReadTimeout:  exchangeTimeout,
			WriteTimeout: exchangeTimeout,
		},
	}
}

// Exchange меняет API-ключ на пару токенов. Тело ответа с полем error
// означает отклонённый ключ и возвращается как ошибка.
func (c *Client) Exchange(ctx context.Context, apiKey string) (Tokens, error) {
	body, err := json.Marshal(map[string]string{"apiKey": apiKey})
	if err != nil {
		return Tokens{}, fmt.Errorf("auth exchange: %w", err)
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(c.baseURL + "/bot/auth")
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	deadline := time.Now().Add(exchangeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return Tokens{}, fmt.Errorf("auth exchange: %w", err)
	}

	var out struct {
		Tokens
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return Tokens{}, fmt.Errorf("auth exchange: decode: %w", err)
	}
	if out.Error != "" {
		return Tokens{}, fmt.Errorf("auth exchange: %s", out.Error)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return Tokens{}, fmt.Errorf("auth exchange: status %d", code)
	}
	if out.AccessToken == "" {
		return Tokens{}, errors.New("auth exchange: empty token in response")
	}
	return out.Tokens, nil
}
