package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"pawmart-be/internal/catalog"
	"pawmart-be/internal/logger"
	"pawmart-be/internal/order"
	"pawmart-be/internal/user"
	"pawmart-be/internal/utils"

	"go.uber.org/zap"
)

// Handler exposes the storefront and back-office JSON endpoints over the
// domain services.
type Handler struct {
	OrderSvc   order.Service
	CatalogSvc catalog.Service
	UserSvc    user.Service

	internalKey string
}

func NewHandler(orderSvc order.Service, catalogSvc catalog.Service, userSvc user.Service, internalKey string) *Handler {
	return &Handler{
		OrderSvc:    orderSvc,
		CatalogSvc:  catalogSvc,
		UserSvc:     userSvc,
		internalKey: internalKey,
	}
}

type checkoutResponse struct {
	OrderID     uint   `json:"orderId"`
	OrderCode   int64  `json:"orderCode"`
	Total       int64  `json:"total"`
	Status      string `json:"status"`
	CheckoutURL string `json:"checkoutUrl,omitempty"`
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var input order.CheckoutInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	o, sess, err := h.OrderSvc.CreateOrder(ctx, input)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrValidation):
			utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, catalog.ErrProductNotFound):
			utils.WriteJSONError(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, catalog.ErrInsufficientStock):
			utils.WriteJSONError(w, err.Error(), http.StatusConflict)
		default:
			logger.FromCtx(ctx).Error("checkout failed", zap.Error(err))
			utils.WriteJSONError(w, "order failed", http.StatusInternalServerError)
		}
		return
	}

	resp := checkoutResponse{
		OrderID:   o.ID,
		OrderCode: o.OrderCode,
		Total:     o.Total,
		Status:    string(o.Status),
	}
	if sess != nil {
		resp.CheckoutURL = sess.CheckoutURL
	}

	utils.WriteJSON(w, resp, http.StatusCreated)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := utils.GetUserIDFromContext(ctx); !ok {
		utils.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var filter order.OrderFilterInput
	q := r.URL.Query()
	if s := q.Get("search"); s != "" {
		filter.Search = &s
	}
	if s := q.Get("status"); s != "" {
		st := order.OrderStatus(s)
		filter.Status = &st
	}
	if s := q.Get("paymentMethod"); s != "" {
		pm := order.PaymentMethod(s)
		filter.PaymentMethod = &pm
	}

	var limit, page *int32
	if n, err := utils.ToUint(q.Get("limit")); err == nil && n > 0 {
		v := int32(n)
		limit = &v
	}
	if n, err := utils.ToUint(q.Get("page")); err == nil && n > 0 {
		v := int32(n)
		page = &v
	}

	orders, err := h.OrderSvc.GetOrders(ctx, &filter, nil, limit, page)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to list orders", zap.Error(err))
		utils.WriteJSONError(w, "failed to list orders", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, orders, http.StatusOK)
}

func (h *Handler) OrderDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID, err := utils.ToUint(r.PathValue("id"))
	if err != nil {
		utils.WriteJSONError(w, "invalid order id", http.StatusBadRequest)
		return
	}

	o, err := h.OrderSvc.GetOrderDetail(ctx, orderID)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrOrderNotFound):
			utils.WriteJSONError(w, "order not found", http.StatusNotFound)
		case errors.Is(err, order.ErrUnauthorized):
			utils.WriteJSONError(w, "forbidden", http.StatusForbidden)
		default:
			utils.WriteJSONError(w, "failed to load order", http.StatusInternalServerError)
		}
		return
	}

	utils.WriteJSON(w, o, http.StatusOK)
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID, err := utils.ToUint(r.PathValue("id"))
	if err != nil {
		utils.WriteJSONError(w, "invalid order id", http.StatusBadRequest)
		return
	}

	o, err := h.OrderSvc.CancelOrder(ctx, orderID)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrOrderNotFound):
			utils.WriteJSONError(w, "order not found", http.StatusNotFound)
		case errors.Is(err, order.ErrUnauthorized):
			utils.WriteJSONError(w, "forbidden", http.StatusForbidden)
		case errors.Is(err, order.ErrCannotCancel):
			utils.WriteJSONError(w, err.Error(), http.StatusConflict)
		default:
			logger.FromCtx(ctx).Error("cancel failed", zap.Error(err))
			utils.WriteJSONError(w, "failed to cancel order", http.StatusInternalServerError)
		}
		return
	}

	utils.WriteJSON(w, o, http.StatusOK)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID, err := utils.ToUint(r.PathValue("id"))
	if err != nil {
		utils.WriteJSONError(w, "invalid order id", http.StatusBadRequest)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err = h.OrderSvc.UpdateOrderStatus(ctx, orderID, order.OrderStatus(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, order.ErrOrderNotFound):
			utils.WriteJSONError(w, "order not found", http.StatusNotFound)
		case errors.Is(err, order.ErrInvalidStatus):
			utils.WriteJSONError(w, err.Error(), http.StatusConflict)
		default:
			utils.WriteJSONError(w, "failed to update status", http.StatusInternalServerError)
		}
		return
	}

	utils.WriteJSON(w, map[string]string{"status": req.Status}, http.StatusOK)
}

// SweepExpired is the scheduler's trigger. Guarded by the internal service
// key; everything else gets a 403.
func (h *Handler) SweepExpired(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.internalKey == "" || r.Header.Get("X-Service-Auth") != h.internalKey {
		utils.WriteJSONError(w, "forbidden", http.StatusForbidden)
		return
	}

	count, err := h.OrderSvc.SweepExpiredOrders(ctx, time.Now())
	if err != nil {
		logger.FromCtx(ctx).Error("sweep failed", zap.Error(err))
		utils.WriteJSONError(w, "sweep failed", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, map[string]int{"removed": count}, http.StatusOK)
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.CatalogSvc.ListProducts(r.Context())
	if err != nil {
		utils.WriteJSONError(w, "failed to list products", http.StatusInternalServerError)
		return
	}
	utils.WriteJSON(w, products, http.StatusOK)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Password string `json:"password"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	u, err := h.UserSvc.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrEmailExists) {
			utils.WriteJSONError(w, err.Error(), http.StatusConflict)
			return
		}
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	utils.WriteJSON(w, map[string]interface{}{"id": u.ID, "email": u.Email}, http.StatusCreated)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	token, u, err := h.UserSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrInvalidCredentials) {
			utils.WriteJSONError(w, err.Error(), http.StatusUnauthorized)
			return
		}
		utils.WriteJSONError(w, "login failed", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	utils.WriteJSON(w, map[string]interface{}{
		"token": token,
		"user":  map[string]interface{}{"id": u.ID, "email": u.Email, "role": u.Role},
	}, http.StatusOK)
}
