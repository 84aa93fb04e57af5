package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"custody-wallet/internal/model"
	"custody-wallet/pkg/chain"
	"custody-wallet/pkg/errno"
)

// APIClient 钱包服务 HTTP 接口的客户端，实现 Fetcher
type APIClient struct {
	base   string
	userID uint64
	http   *http.Client
}

func NewAPIClient(baseURL string, userID uint64, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		base:   baseURL,
		userID: userID,
		http:   &http.Client{Timeout: timeout},
	}
}

// envelope 服务端统一响应格式
type envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"msg"`
	Retryable bool            `json:"retryable,omitempty"`
	Data      json.RawMessage `json:"data"`
}

type allocateBody struct {
	UserID  uint64 `json:"user_id"`
	Chain   string `json:"chain"`
	Network string `json:"network"`
	Asset   string `json:"asset"`
}

func (c *APIClient) Allocate(ctx context.Context, key chain.Key) (*model.DepositAddress, error) {
	body, err := json.Marshal(allocateBody{
		UserID:  c.userID,
		Chain:   string(key.Chain),
		Network: key.Network,
		Asset:   key.Asset,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/v1/addresses", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var addr model.DepositAddress
	if err := c.do(req, &addr); err != nil {
		return nil, err
	}
	return &addr, nil
}

func (c *APIClient) Latest(ctx context.Context, key chain.Key, limit int) ([]model.Deposit, error) {
	q := url.Values{}
	q.Set("user_id", strconv.FormatUint(c.userID, 10))
	q.Set("chain", string(key.Chain))
	q.Set("network", key.Network)
	q.Set("asset", key.Asset)
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/v1/deposits?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var deposits []model.Deposit
	if err := c.do(req, &deposits); err != nil {
		return nil, err
	}
	return deposits, nil
}

// do 发送请求并解开响应信封，业务错误还原为 errno.Errno
func (c *APIClient) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("请求 %s 失败: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("解析响应失败 (status %d): %w", resp.StatusCode, err)
	}
	if env.Code != errno.OK.Code {
		return errno.Errno{Code: env.Code, Message: env.Message, Retryable: env.Retryable}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
