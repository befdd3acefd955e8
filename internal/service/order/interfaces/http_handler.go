// internal/service/order/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	accountapp "kamishop/internal/service/account/application"
	accountdomain "kamishop/internal/service/account/domain"
	cardapp "kamishop/internal/service/card/application"
	carddomain "kamishop/internal/service/card/domain"
	"kamishop/internal/service/order/application"
	"kamishop/internal/service/order/domain"
	"kamishop/internal/service/order/port"
	productapp "kamishop/internal/service/product/application"
	productdomain "kamishop/internal/service/product/domain"
)

// OrderHandler 封装了订单/卡密/商品的 HTTP 处理器。
// 会话管理由外层网关处理，这里只做请求到应用服务的翻译，
// 外加一条给网关用的凭证校验路由。
type OrderHandler struct {
	orders   *application.OrderService
	cards    *cardapp.CardService
	products *productapp.ProductService
	accounts *accountapp.AccountService
	verifier port.PaymentVerifier // 可为 nil，此时直接信任回调内容
	hub      *PushHub

	// 手动触发的清理/补发与周期 worker 抢同一把锁，
	// 阻塞等待而不是失败：运营点了按钮就要等到结果
	cleanupLock   leaderLock // 可为 nil，此时手动触发不加锁
	reconcileLock leaderLock
}

func NewOrderHandler(
	orders *application.OrderService,
	cards *cardapp.CardService,
	products *productapp.ProductService,
	accounts *accountapp.AccountService,
	verifier port.PaymentVerifier,
	hub *PushHub,
	cleanupLock, reconcileLock leaderLock,
) *OrderHandler {
	return &OrderHandler{
		orders:        orders,
		cards:         cards,
		products:      products,
		accounts:      accounts,
		verifier:      verifier,
		hub:           hub,
		cleanupLock:   cleanupLock,
		reconcileLock: reconcileLock,
	}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/orders/create", h.handleCreateOrder)
	mux.HandleFunc("/api/orders/get", h.handleGetOrder)
	mux.HandleFunc("/api/orders/query", h.handleQueryByKey)
	mux.HandleFunc("/api/payment/callback", h.handlePaymentCallback)

	mux.HandleFunc("/api/products/list", h.handleListProducts)

	mux.HandleFunc("/api/admin/login", h.handleLogin)
	mux.HandleFunc("/api/admin/orders/list", h.handleListOrders)
	mux.HandleFunc("/api/admin/orders/undelivered", h.handleUndelivered)
	mux.HandleFunc("/api/admin/orders/status", h.handleUpdateStatus)
	mux.HandleFunc("/api/admin/orders/cleanup", h.handleCleanup)
	mux.HandleFunc("/api/admin/orders/reconcile", h.handleReconcile)

	mux.HandleFunc("/api/admin/products/create", h.handleCreateProduct)
	mux.HandleFunc("/api/admin/cards/generate", h.handleGenerateCards)
	mux.HandleFunc("/api/admin/cards/import", h.handleImportCards)
	mux.HandleFunc("/api/admin/cards/list", h.handleListCards)
	mux.HandleFunc("/api/admin/cards/delete", h.handleDeleteCard)

	if h.hub != nil {
		mux.HandleFunc("/ws/deliveries", h.hub.ServeWS)
	}
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req struct {
		ProductID     int64  `json:"product_id"`
		PaymentType   string `json:"payment_type"`
		WalletAddress string `json:"wallet_address"`
		QueryKey      string `json:"query_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	order, err := h.orders.CreateOrder(ctx, application.CreateOrderInput{
		ProductID:     req.ProductID,
		PaymentType:   req.PaymentType,
		WalletAddress: req.WalletAddress,
		QueryKey:      req.QueryKey,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, order)
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	orderID := r.URL.Query().Get("order_id")
	if orderID == "" {
		http.Error(w, "order_id is required", http.StatusBadRequest)
		return
	}
	order, err := h.orders.GetByOrderID(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, order)
}

func (h *OrderHandler) handleQueryByKey(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	queryKey := r.URL.Query().Get("query_key")
	if queryKey == "" {
		http.Error(w, "query_key is required", http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("all") == "true" {
		orders, err := h.orders.ListByQueryKey(ctx, queryKey)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, orders)
		return
	}

	order, err := h.orders.GetLatestByQueryKey(ctx, queryKey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, order)
}

// handlePaymentCallback 接收支付网关的 HTTP 回调。
// 配置了 verifier 时回调内容只当作提醒，支付与否以网关查询接口为准。
func (h *OrderHandler) handlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req struct {
		EventID string `json:"event_id"`
		OrderID string `json:"order_id"`
		Paid    bool   `json:"paid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.OrderID == "" {
		http.Error(w, "order_id is required", http.StatusBadRequest)
		return
	}

	paid := req.Paid
	if h.verifier != nil {
		verified, err := h.verifier.VerifyPaid(ctx, req.OrderID)
		if err != nil {
			log.Printf("ERROR: [Order: %s] Payment verification failed: %v", req.OrderID, err)
			// 网关查不到时按未支付处理，回调方会重试
			http.Error(w, "payment verification unavailable", http.StatusBadGateway)
			return
		}
		paid = verified
	}

	if err := h.orders.HandlePaymentResult(ctx, req.OrderID, paid); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"order_id": req.OrderID, "paid": paid})
}

// handleLogin 校验管理端凭证。会话/Token 的签发由外层网关负责，
// 这里只回答"用户名密码是否匹配"。
func (h *OrderHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.accounts.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"username": user.Username, "is_admin": user.IsAdmin})
}

func (h *OrderHandler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)
	products, err := h.products.List(ctx, r.URL.Query().Get("all") != "true")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, products)
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	status := domain.Status(r.URL.Query().Get("status"))

	orders, total, err := h.orders.ListPage(ctx, status, page, size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"orders": orders, "total": total})
}

func (h *OrderHandler) handleUndelivered(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)
	orders, err := h.orders.ListUndelivered(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, orders)
}

func (h *OrderHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	order, err := h.orders.UpdateStatus(ctx, req.OrderID, domain.Status(req.Status))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, order)
}

func (h *OrderHandler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req struct {
		Hours int `json:"hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Hours <= 0 {
		req.Hours = 24
	}

	if h.cleanupLock != nil {
		if err := h.cleanupLock.Lock(); err != nil {
			http.Error(w, "cleanup lock unavailable", http.StatusServiceUnavailable)
			return
		}
		defer func() {
			if err := h.cleanupLock.Unlock(); err != nil {
				log.Printf("ERROR: failed to release cleanup lock: %v", err)
			}
		}()
	}

	deleted, err := h.orders.CleanupUnpaidOrders(ctx, req.Hours)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"deleted": deleted})
}

func (h *OrderHandler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	if h.reconcileLock != nil {
		if err := h.reconcileLock.Lock(); err != nil {
			http.Error(w, "reconcile lock unavailable", http.StatusServiceUnavailable)
			return
		}
		defer func() {
			if err := h.reconcileLock.Unlock(); err != nil {
				log.Printf("ERROR: failed to release reconcile lock: %v", err)
			}
		}()
	}

	delivered, err := h.orders.ProcessUndelivered(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"delivered": delivered})
}

func (h *OrderHandler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Price       float64 `json:"price"`
		PaymentType string  `json:"payment_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	product, err := h.products.Create(ctx, req.Name, req.Description, req.Price, req.PaymentType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, product)
}

func (h *OrderHandler) handleGenerateCards(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req struct {
		ProductID int64  `json:"product_id"`
		Count     int    `json:"count"`
		Prefix    string `json:"prefix"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cards, err := h.cards.Generate(ctx, req.ProductID, req.Count, req.Prefix)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"generated": len(cards), "cards": cards})
}

func (h *OrderHandler) handleImportCards(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req struct {
		ProductID int64    `json:"product_id"`
		Lines     []string `json:"lines"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.cards.Import(ctx, req.ProductID, req.Lines)
	if err != nil {
		var importErr *cardapp.ImportError
		if errors.As(err, &importErr) {
			// 整批零成功：把逐行原因还给调用方
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":   "no card codes imported",
				"skipped": importErr.Skipped,
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"accepted": len(result.Accepted),
		"skipped":  result.Skipped,
	})
}

func (h *OrderHandler) handleListCards(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	productID, err := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	if err != nil {
		http.Error(w, "product_id is required", http.StatusBadRequest)
		return
	}
	cards, err := h.cards.ListByProduct(ctx, productID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, cards)
}

func (h *OrderHandler) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req struct {
		CardID int64 `json:"card_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.cards.Delete(ctx, req.CardID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"deleted": req.CardID})
}

func extractTraceContext(r *http.Request) context.Context {
	propagator := otel.GetTextMapPropagator()
	return propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

// writeError 根据错误类型返回不同的 HTTP 状态码
func writeError(w http.ResponseWriter, err error) {
	var statusCode int
	switch {
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, productdomain.ErrProductNotFound),
		errors.Is(err, carddomain.ErrCardNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, carddomain.ErrCardAlreadyUsed):
		statusCode = http.StatusConflict
	case errors.Is(err, productdomain.ErrProductInactive):
		statusCode = http.StatusUnprocessableEntity
	case errors.Is(err, accountdomain.ErrBadPassword):
		statusCode = http.StatusUnauthorized
	default:
		statusCode = http.StatusInternalServerError
	}
	http.Error(w, err.Error(), statusCode)
}
