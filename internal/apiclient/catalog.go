package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mmeshcher/rentportal/internal/model"
)

// Properties возвращает список объектов недвижимости с абсолютными адресами изображений.
func (c *Client) Properties(ctx context.Context, filters url.Values) ([]model.Property, error) {
	var props []model.Property
	err := c.do(ctx, call{
		method:    http.MethodGet,
		path:      "/api/properties",
		query:     filters,
		retryable: true,
	}, &props)
	if err != nil {
		return nil, err
	}

	for i := range props {
		c.absoluteImages(&props[i])
	}
	return props, nil
}

// LandlordProperties возвращает объекты арендодателя с расширенными данными.
func (c *Client) LandlordProperties(ctx context.Context, token string, filters url.Values) ([]model.Property, error) {
	var props []model.Property
	err := c.do(ctx, call{
		method:    http.MethodGet,
		path:      "/api/landlord/properties",
		query:     filters,
		token:     token,
		retryable: true,
	}, &props)
	if err != nil {
		return nil, err
	}

	for i := range props {
		c.absoluteImages(&props[i])
	}
	return props, nil
}

// Property возвращает объект недвижимости по идентификатору.
func (c *Client) Property(ctx context.Context, id int64) (*model.Property, error) {
	var p model.Property
	err := c.do(ctx, call{
		method:    http.MethodGet,
		path:      "/api/properties/" + strconv.FormatInt(id, 10),
		retryable: true,
	}, &p)
	if err != nil {
		return nil, err
	}

	c.absoluteImages(&p)
	return &p, nil
}

// CreateProperty создаёт объект недвижимости из multipart-формы с изображениями.
func (c *Client) CreateProperty(ctx context.Context, token string, upload model.PropertyUpload) error {
	return c.do(ctx, call{
		method:      http.MethodPost,
		path:        "/api/properties",
		token:       token,
		raw:         upload.Body,
		contentType: upload.ContentType,
	}, nil)
}

// UpdateProperty обновляет объект недвижимости из multipart-формы.
func (c *Client) UpdateProperty(ctx context.Context, token string, id int64, upload model.PropertyUpload) error {
	return c.do(ctx, call{
		method:      http.MethodPut,
		path:        "/api/properties/" + strconv.FormatInt(id, 10),
		token:       token,
		raw:         upload.Body,
		contentType: upload.ContentType,
	}, nil)
}

// DeleteProperty удаляет объект недвижимости.
func (c *Client) DeleteProperty(ctx context.Context, token string, id int64) error {
	return c.do(ctx, call{
		method: http.MethodDelete,
		path:   "/api/properties/" + strconv.FormatInt(id, 10),
		token:  token,
	}, nil)
}

func (c *Client) absoluteImages(p *model.Property) {
	p.Image = c.absoluteURL(p.Image)
	for i := range p.Images {
		p.Images[i] = c.absoluteURL(p.Images[i])
	}
}

// SubmitComplaint отправляет жалобу арендатора.
func (c *Client) SubmitComplaint(ctx context.Context, token string, complaint model.NewComplaint) error {
	return c.do(ctx, call{
		method: http.MethodPost,
		path:   "/api/complaints",
		token:  token,
		body:   complaint,
	}, nil)
}

// Complaints возвращает жалобы арендатора либо, при landlord = true, жалобы по объектам арендодателя.
func (c *Client) Complaints(ctx context.Context, token string, landlord bool, filter model.ComplaintFilter) ([]model.Complaint, error) {
	q := url.Values{}
	for _, s := range filter.Statuses {
		q.Add("status", string(s))
	}
	if filter.Category != "" {
		q.Set("category", filter.Category)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}

	path := "/api/complaints"
	if landlord {
		path = "/api/landlord/complaints"
	}

	var complaints []model.Complaint
	err := c.do(ctx, call{
		method:    http.MethodGet,
		path:      path,
		query:     q,
		token:     token,
		retryable: true,
	}, &complaints)
	if err != nil {
		return nil, err
	}
	return complaints, nil
}

// UpdateComplaint меняет статус жалобы.
func (c *Client) UpdateComplaint(ctx context.Context, token string, id int64, status model.ComplaintStatus) error {
	return c.do(ctx, call{
		method: http.MethodPut,
		path:   "/api/complaints/" + strconv.FormatInt(id, 10),
		token:  token,
		body:   map[string]string{"status": string(status)},
	}, nil)
}

// DashboardStats возвращает сводную статистику панели управления.
func (c *Client) DashboardStats(ctx context.Context, token string) (map[string]any, error) {
	var stats map[string]any
	err := c.do(ctx, call{
		method:    http.MethodGet,
		path:      "/api/dashboard/stats",
		token:     token,
		retryable: true,
	}, &stats)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// RecentPayments возвращает последние платежи для панели управления.
func (c *Client) RecentPayments(ctx context.Context, token string, limit int) ([]model.Payment, error) {
	var payments []model.Payment
	err := c.do(ctx, call{
		method:    http.MethodGet,
		path:      "/api/dashboard/recent-payments",
		query:     url.Values{"limit": {strconv.Itoa(limit)}},
		token:     token,
		retryable: true,
	}, &payments)
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// RecentComplaints возвращает последние жалобы для панели управления.
func (c *Client) RecentComplaints(ctx context.Context, token string, limit int) ([]model.Complaint, error) {
	var complaints []model.Complaint
	err := c.do(ctx, call{
		method:    http.MethodGet,
		path:      "/api/dashboard/recent-complaints",
		query:     url.Values{"limit": {strconv.Itoa(limit)}},
		token:     token,
		retryable: true,
	}, &complaints)
	if err != nil {
		return nil, err
	}
	return complaints, nil
}

// Report возвращает строки отчёта указанного вида за период.
func (c *Client) Report(ctx context.Context, token string, kind model.ReportKind, period model.ReportRange) ([]map[string]any, error) {
	q := url.Values{}
	if period.StartDate != "" {
		q.Set("startDate", period.StartDate)
	}
	if period.EndDate != "" {
		q.Set("endDate", period.EndDate)
	}

	var rows []map[string]any
	err := c.do(ctx, call{
		method:    http.MethodGet,
		path:      "/api/reports/" + string(kind),
		query:     q,
		token:     token,
		retryable: true,
	}, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
