package keydir

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/R3E-Network/relay_layer/internal/entityid"
)

// Mirror looks keys up on a mirror node's REST API
// (GET /api/v1/accounts/{id} → key.key).
type Mirror struct {
	client *resty.Client
}

// NewMirror returns a mirror client for baseURL.
func NewMirror(baseURL string, timeout time.Duration) *Mirror {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Mirror{client: client}
}

func (m *Mirror) PublicKey(ctx context.Context, accountID string) (string, error) {
	id, err := entityid.Parse(accountID)
	if err != nil {
		return "", &LookupError{Account: accountID, Err: ErrUnknownAccount}
	}

	res, err := m.client.R().
		SetContext(ctx).
		SetPathParam("id", id.String()).
		Get("/api/v1/accounts/{id}")
	if err != nil {
		return "", &LookupError{Account: accountID, Err: err}
	}

	switch {
	case res.StatusCode() == http.StatusNotFound:
		return "", &LookupError{Account: accountID, Err: ErrUnknownAccount}
	case res.IsError():
		return "", &LookupError{Account: accountID, Err: fmt.Errorf("mirror returned HTTP %d", res.StatusCode())}
	}

	key := gjson.GetBytes(res.Body(), "key.key").String()
	if key == "" {
		return "", &LookupError{Account: accountID, Err: ErrUnknownAccount}
	}
	return key, nil
}
