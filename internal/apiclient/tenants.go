package apiclient

import (
	"context"
	"net/http"
	"strconv"

	"github.com/mmeshcher/rentportal/internal/model"
)

// LandlordTenants возвращает арендаторов по объектам арендодателя.
func (c *Client) LandlordTenants(ctx context.Context, token string) ([]model.Tenant, error) {
	var tenants []model.Tenant
	err := c.do(ctx, call{
		method:    http.MethodGet,
		path:      "/api/landlord/tenants",
		token:     token,
		retryable: true,
	}, &tenants)
	if err != nil {
		return nil, err
	}
	return tenants, nil
}

// AddTenant добавляет арендатора к объекту.
func (c *Client) AddTenant(ctx context.Context, token string, tenant model.NewTenant) error {
	return c.do(ctx, call{
		method: http.MethodPost,
		path:   "/api/tenants",
		token:  token,
		body:   tenant,
	}, nil)
}

// RemoveTenant снимает арендатора с объекта арендодателя.
func (c *Client) RemoveTenant(ctx context.Context, token string, id int64) error {
	return c.do(ctx, call{
		method: http.MethodDelete,
		path:   "/api/landlord/tenants/" + strconv.FormatInt(id, 10),
		token:  token,
	}, nil)
}

// TenantDetails возвращает сведения о текущем арендаторе и его объекте.
func (c *Client) TenantDetails(ctx context.Context, token string) (*model.TenantDetails, error) {
	var resp struct {
		Data model.TenantDetails `json:"data"`
	}
	err := c.do(ctx, call{
		method:    http.MethodGet,
		path:      "/api/tenants/current",
		token:     token,
		retryable: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Data.Property != nil {
		c.absoluteImages(resp.Data.Property)
	}
	return &resp.Data, nil
}
