// internal/service/order/infrastructure/adapter/payment_http_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"kamishop/internal/pkg/httpclient"
)

// PaymentHTTPAdapter 是 port.PaymentVerifier 的 HTTP 实现。
// HTTP 回调的请求体可以伪造，处理前拿订单号去支付网关的
// 查询接口做二次确认。
type PaymentHTTPAdapter struct {
	client    *httpclient.Client
	verifyURL string
}

func NewPaymentHTTPAdapter(client *httpclient.Client, verifyURL string) *PaymentHTTPAdapter {
	return &PaymentHTTPAdapter{client: client, verifyURL: verifyURL}
}

type verifyResponse struct {
	OrderID string `json:"order_id"`
	Paid    bool   `json:"paid"`
}

// VerifyPaid 实现 port.PaymentVerifier。
func (a *PaymentHTTPAdapter) VerifyPaid(ctx context.Context, orderID string) (bool, error) {
	params := url.Values{}
	params.Set("order_id", orderID)

	body, err := a.client.Get(ctx, a.verifyURL, params)
	if err != nil {
		return false, fmt.Errorf("payment verification call failed: %w", err)
	}

	var resp verifyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("payment verification returned malformed body: %w", err)
	}
	return resp.Paid, nil
}
