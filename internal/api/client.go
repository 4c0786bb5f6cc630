package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"drivingschool-console/internal/domain"
)

// Client talks to the driving-school REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	requestID  func() string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		requestID:  uuid.NewString,
	}
}

// List fetches a whole collection. The API does not paginate or search server-side.
func (c *Client) List(ctx context.Context, token, endpoint string) ([]domain.Record, error) {
	if token == "" {
		return nil, domain.ErrAuthRequired
	}
	data, err := c.do(ctx, http.MethodGet, endpoint, token, nil)
	if err != nil {
		return nil, err
	}
	records, err := decodeCollection(data)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", endpoint)
	}
	return records, nil
}

// Create posts a new record and returns the server's message, if any.
func (c *Client) Create(ctx context.Context, token, endpoint string, fields domain.Record) (string, error) {
	if token == "" {
		return "", domain.ErrAuthRequired
	}
	data, err := c.do(ctx, http.MethodPost, endpoint, token, fields)
	if err != nil {
		return "", err
	}
	return decodeWriteResult(data)
}

// Update replaces the fields of record id.
func (c *Client) Update(ctx context.Context, token, endpoint, id string, fields domain.Record) (string, error) {
	if token == "" {
		return "", domain.ErrAuthRequired
	}
	data, err := c.do(ctx, http.MethodPut, recordPath(endpoint, id), token, fields)
	if err != nil {
		return "", err
	}
	return decodeWriteResult(data)
}

// Delete removes record id.
func (c *Client) Delete(ctx context.Context, token, endpoint, id string) (string, error) {
	if token == "" {
		return "", domain.ErrAuthRequired
	}
	data, err := c.do(ctx, http.MethodDelete, recordPath(endpoint, id), token, nil)
	if err != nil {
		return "", err
	}
	return decodeWriteResult(data)
}

type loginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type loginPayload struct {
	Token       string          `json:"token"`
	AccessToken string          `json:"access_token"`
	User        domain.Record   `json:"user"`
	Data        json.RawMessage `json:"data"`
}

// Login exchanges credentials for a bearer token. A 401 here means bad credentials,
// so it is reported as a validation failure on the password field.
func (c *Client) Login(ctx context.Context, phone, password string) (domain.LoginResult, error) {
	data, err := c.do(ctx, http.MethodPost, "/login", "", loginRequest{Phone: phone, Password: password})
	if err != nil {
		if errors.Is(err, domain.ErrSessionExpired) {
			return domain.LoginResult{}, domain.NewValidationError(map[string][]string{
				"password": {"invalid phone or password"},
			})
		}
		return domain.LoginResult{}, err
	}

	var payload loginPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return domain.LoginResult{}, errors.Wrap(domain.NewError(domain.KindServerError, 0, ""), "decode login")
	}
	if len(payload.Data) > 0 && payload.Token == "" && payload.AccessToken == "" {
		var inner loginPayload
		if err := json.Unmarshal(payload.Data, &inner); err == nil {
			payload = inner
		}
	}
	token := payload.Token
	if token == "" {
		token = payload.AccessToken
	}
	if token == "" {
		return domain.LoginResult{}, domain.NewError(domain.KindServerError, 0, "login response carried no token")
	}
	return domain.LoginResult{Token: token, Phone: phone, User: payload.User}, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(domain.NewError(domain.KindUnknown, 0, ""), "marshal: "+err.Error())
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(domain.NewError(domain.KindUnknown, 0, ""), "build request: "+err.Error())
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", c.requestID())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(domain.NewError(domain.KindNetworkUnreachable, 0, ""), "%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(domain.NewError(domain.KindNetworkUnreachable, resp.StatusCode, ""), "read %s: %v", path, err)
	}
	if kind := domain.KindForStatus(resp.StatusCode); kind != "" {
		return nil, decodeFailure(kind, resp.StatusCode, data)
	}
	return data, nil
}

func recordPath(endpoint, id string) string {
	return strings.TrimRight(endpoint, "/") + "/" + url.PathEscape(id)
}
