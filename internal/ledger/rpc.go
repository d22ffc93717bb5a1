package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      uint64 `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

const maxResponseBody = 4 << 20

// call performs one JSON-RPC round trip. Ledger statuses in error.data.status
// become *StatusError; other RPC errors become *RPCError.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	httpClient, err := c.transport()
	if err != nil {
		return nil, err
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RPCURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: method, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &TransportError{Op: method, Err: err}
	}
	if resp.StatusCode != http.StatusOK && !gjson.ValidBytes(respBody) {
		return nil, &TransportError{Op: method, StatusCode: resp.StatusCode}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &TransportError{Op: method, StatusCode: resp.StatusCode}
		}
		return nil, &TransportError{Op: method, Err: fmt.Errorf("unmarshal response: %w", err)}
	}

	if len(rpcResp.Error) > 0 && string(rpcResp.Error) != "null" {
		return nil, decodeRPCError(method, rpcResp.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Op: method, StatusCode: resp.StatusCode}
	}
	return rpcResp.Result, nil
}

func decodeRPCError(method string, raw json.RawMessage) error {
	parsed := gjson.ParseBytes(raw)
	code := int(parsed.Get("code").Int())
	message := parsed.Get("message").String()
	if status := parsed.Get("data.status").String(); status != "" {
		return &StatusError{Op: method, Status: status, Message: message, Code: code}
	}
	return &RPCError{Code: code, Message: message}
}
