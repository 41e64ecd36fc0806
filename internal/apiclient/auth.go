package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mmeshcher/rentportal/internal/model"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// Login выполняет вход и возвращает токен доступа вместе с пользователем.
func (c *Client) Login(ctx context.Context, email, password string) (*model.Credentials, error) {
	var resp loginResponse
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/api/auth/login",
		body:   loginRequest{Email: email, Password: password},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("login response without token")
	}
	return &model.Credentials{Token: resp.Token, User: resp.User}, nil
}

// CurrentUser возвращает пользователя, которому принадлежит токен.
func (c *Client) CurrentUser(ctx context.Context, token string) (*model.User, error) {
	var u model.User
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/api/auth/me",
		token:  token,
	}, &u)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Register создаёт учётную запись пользователя. Вход после регистрации выполняется отдельно.
func (c *Client) Register(ctx context.Context, reg model.Registration) error {
	return c.do(ctx, call{
		method: http.MethodPost,
		path:   "/api/auth/register",
		body:   reg,
	}, nil)
}
