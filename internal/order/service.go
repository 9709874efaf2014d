package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pawmart-be/internal/catalog"
	"pawmart-be/internal/logger"
	"pawmart-be/internal/payment"
	"pawmart-be/internal/utils"

	"go.uber.org/zap"
)

const (
	// Unpaid bank-transfer orders live this long before the sweep removes them.
	bankingExpiry = 5 * time.Minute

	// Flat shipping surcharge added to the payment session when the order
	// total sits under the free-shipping threshold.
	surchargeAmount    int64 = 30_000
	surchargeThreshold int64 = 500_000
)

type CartLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type ShippingInfo struct {
	CustomerName string `json:"name"`
	Phone        string `json:"phone"`
	Email        string `json:"email,omitempty"`
	Address      string `json:"address"`
	Province     string `json:"province"`
	District     string `json:"district"`
	Ward         string `json:"ward"`
}

type CheckoutInput struct {
	Lines         []CartLine    `json:"items"`
	Shipping      ShippingInfo  `json:"shipping"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
}

type Service interface {
	// CreateOrder snapshots catalog prices into line items and persists the
	// order. Banking orders get a payment session (the response carries the
	// checkout URL); COD orders take their stock immediately.
	CreateOrder(ctx context.Context, input CheckoutInput) (*Order, *payment.SessionResponse, error)

	// SettlePayment handles the gateway callback. Replays are no-op
	// successes; the stock decrement only ever runs on the paid false->true
	// transition.
	SettlePayment(ctx context.Context, notif *payment.WebhookPayload) error

	// SweepExpiredOrders hard-deletes stale unpaid banking orders and
	// returns how many were removed.
	SweepExpiredOrders(ctx context.Context, now time.Time) (int, error)

	CancelOrder(ctx context.Context, orderID uint) (*Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uint, status OrderStatus) error
	GetOrders(ctx context.Context, filter *OrderFilterInput, sort *OrderSortInput, limit, page *int32) ([]*Order, error)
	GetOrderDetail(ctx context.Context, orderID uint) (*Order, error)
}

type service struct {
	repo        Repository
	catalogSvc  catalog.Service
	paymentRepo payment.Repository
	paymentGate payment.Gateway
}

func NewService(repo Repository, catalogSvc catalog.Service, payRepo payment.Repository, payGate payment.Gateway) Service {
	return &service{
		repo:        repo,
		catalogSvc:  catalogSvc,
		paymentRepo: payRepo,
		paymentGate: payGate,
	}
}

func (s *service) CreateOrder(ctx context.Context, input CheckoutInput) (*Order, *payment.SessionResponse, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreateOrder"),
		zap.Int("item_count", len(input.Lines)),
		zap.String("payment_method", string(input.PaymentMethod)),
	)

	if err := validateCheckout(&input); err != nil {
		log.Warn("checkout rejected", zap.Error(err))
		return nil, nil, err
	}

	ids := make([]string, 0, len(input.Lines))
	for _, line := range input.Lines {
		ids = append(ids, line.ProductID)
	}

	products, err := s.catalogSvc.FindProductsByIDs(ctx, ids)
	if err != nil {
		log.Error("failed to load products for checkout", zap.Error(err))
		return nil, nil, err
	}

	priceByID := make(map[string]int64, len(products))
	for _, p := range products {
		priceByID[p.ID] = p.Price
	}

	// Unknown products fail the whole checkout. The storefront this replaced
	// silently priced them at zero, which understates the total.
	var total int64
	items := make([]OrderItem, 0, len(input.Lines))
	for _, line := range input.Lines {
		price, ok := priceByID[line.ProductID]
		if !ok {
			log.Warn("unknown product in cart", zap.String("product_id", line.ProductID))
			return nil, nil, fmt.Errorf("%w: %s", catalog.ErrProductNotFound, line.ProductID)
		}
		total += price * int64(line.Quantity)
		items = append(items, OrderItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Price:     price,
		})
	}

	var userID *uint
	if id, ok := utils.GetUserIDFromContext(ctx); ok {
		userID = &id
	}

	o := &Order{
		OrderCode:     utils.GenerateOrderCode(),
		UserID:        userID,
		Status:        StatusPending,
		Paid:          false,
		Total:         total,
		PaymentMethod: input.PaymentMethod,
		CustomerName:  input.Shipping.CustomerName,
		Phone:         input.Shipping.Phone,
		Email:         input.Shipping.Email,
		Address:       input.Shipping.Address,
		Province:      input.Shipping.Province,
		District:      input.Shipping.District,
		Ward:          input.Shipping.Ward,
		Items:         items,
	}

	if input.PaymentMethod == PaymentBanking {
		expiry := time.Now().Add(bankingExpiry)
		o.ExpireBankingAt = &expiry
	}

	if err := s.repo.CreateOrderTx(ctx, o); err != nil {
		log.Error("failed to persist order", zap.Error(err))
		return nil, nil, err
	}

	log = log.With(
		zap.Uint("order_id", o.ID),
		zap.Int64("order_code", o.OrderCode),
		zap.Int64("total", total),
	)

	if input.PaymentMethod == PaymentCOD {
		// COD takes stock at placement, one conditional update per line.
		for _, item := range o.Items {
			if _, err := s.catalogSvc.AdjustStock(ctx, item.ProductID, -item.Quantity, item.Quantity); err != nil {
				log.Error("stock decrement failed for COD order",
					zap.String("product_id", item.ProductID),
					zap.Error(err),
				)
				return nil, nil, err
			}
		}

		log.Info("COD order placed")
		return o, nil, nil
	}

	amount := total
	if total < surchargeThreshold {
		amount += surchargeAmount
	}

	sess, err := s.paymentGate.CreatePaymentSession(ctx, payment.SessionRequest{
		OrderCode:   o.OrderCode,
		Amount:      amount,
		Description: fmt.Sprintf("PAWMART %d", o.OrderCode),
	})
	if err != nil {
		// The order stays PENDING so the buyer can retry checkout; the sweep
		// removes it if they never do.
		log.Error("failed to create payment session", zap.Error(err))
		return o, nil, fmt.Errorf("failed to create payment session: %w", err)
	}

	p := &payment.Payment{
		OrderID:       o.ID,
		OrderCode:     o.OrderCode,
		PaymentLinkID: sess.PaymentLinkID,
		CheckoutURL:   sess.CheckoutURL,
		Amount:        amount,
		Status:        payment.StatusPending,
	}
	if err := s.paymentRepo.SavePayment(ctx, p); err != nil {
		log.Error("failed to save payment record", zap.Error(err))
		return o, sess, fmt.Errorf("failed to save payment: %w", err)
	}

	log.Info("banking order placed", zap.Int64("session_amount", amount))

	return o, sess, nil
}

func validateCheckout(input *CheckoutInput) error {
	if len(input.Lines) == 0 {
		return fmt.Errorf("%w: cart is empty", ErrValidation)
	}
	for _, line := range input.Lines {
		if line.ProductID == "" {
			return fmt.Errorf("%w: missing product id", ErrValidation)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: quantity must be greater than zero", ErrValidation)
		}
	}

	sh := input.Shipping
	required := map[string]string{
		"name":     sh.CustomerName,
		"phone":    sh.Phone,
		"address":  sh.Address,
		"province": sh.Province,
		"district": sh.District,
		"ward":     sh.Ward,
	}
	for field, val := range required {
		if val == "" {
			return fmt.Errorf("%w: %s is required", ErrValidation, field)
		}
	}

	switch input.PaymentMethod {
	case PaymentBanking, PaymentCOD:
		return nil
	default:
		return fmt.Errorf("%w: unknown payment method %q", ErrValidation, input.PaymentMethod)
	}
}

func (s *service) SettlePayment(ctx context.Context, notif *payment.WebhookPayload) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "SettlePayment"),
		zap.Int64("order_code", notif.Data.OrderCode),
		zap.String("code", notif.Code),
	)

	if notif.Code != payment.CodeSuccess {
		// Acknowledge without touching the order; the sweep picks it up if
		// the buyer never pays.
		log.Info("non-success payment notification acknowledged")
		return nil
	}

	o, alreadyPaid, err := s.repo.MarkPaidByCode(ctx, notif.Data.OrderCode)
	if err != nil {
		log.Error("failed to settle payment", zap.Error(err))
		return err
	}
	if alreadyPaid {
		log.Info("settlement replay, nothing to do")
		return nil
	}

	// Each line is its own conditional update. On simultaneous depletion an
	// order can land half-applied; the failures are reported, not reversed.
	var errs []error
	for _, item := range o.Items {
		if _, err := s.catalogSvc.AdjustStock(ctx, item.ProductID, -item.Quantity, item.Quantity); err != nil {
			log.Error("stock decrement failed at settlement",
				zap.String("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("product %s: %w", item.ProductID, err))
		}
	}

	if err := s.paymentRepo.UpdateStatusByOrderCode(ctx, o.OrderCode, payment.StatusPaid); err != nil {
		log.Error("failed to update payment record", zap.Error(err))
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	log.Info("order settled", zap.Uint("order_id", o.ID))
	return nil
}

func (s *service) SweepExpiredOrders(ctx context.Context, now time.Time) (int, error) {
	count, err := s.repo.SweepExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	if count > 0 {
		logger.FromCtx(ctx).Info("expired banking orders swept",
			zap.Int("count", count),
		)
	}

	return count, nil
}

func (s *service) CancelOrder(ctx context.Context, orderID uint) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CancelOrder"),
		zap.Uint("order_id", orderID),
	)

	o, err := s.repo.GetOrderDetail(ctx, orderID)
	if err != nil {
		return nil, err
	}

	userID, authed := utils.GetUserIDFromContext(ctx)
	isAdmin := utils.IsAdminFromContext(ctx)

	if !isAdmin {
		if !authed || o.UserID == nil || *o.UserID != userID {
			log.Warn("cancel rejected, not the order owner")
			return nil, ErrUnauthorized
		}
	}

	if o.Status != StatusPending && o.Status != StatusProcessing {
		return nil, fmt.Errorf("%w: status is %s", ErrCannotCancel, o.Status)
	}

	// Whether stock goes back is decided inside the transaction, from the
	// row's own paid flag; this snapshot may be stale by the time the
	// transaction runs.
	restocked, err := s.repo.CancelOrderTx(ctx, o)
	if err != nil {
		log.Error("failed to cancel order", zap.Error(err))
		return nil, err
	}

	o.Status = StatusCancelled
	log.Info("order cancelled", zap.Bool("restocked", restocked))

	return o, nil
}

var statusTransitions = map[OrderStatus]OrderStatus{
	StatusPending:    StatusProcessing,
	StatusProcessing: StatusShipped,
	StatusShipped:    StatusDelivered,
}

func (s *service) UpdateOrderStatus(ctx context.Context, orderID uint, status OrderStatus) error {
	o, err := s.repo.GetOrderDetail(ctx, orderID)
	if err != nil {
		return err
	}

	if next, ok := statusTransitions[o.Status]; !ok || next != status {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, o.Status, status)
	}

	return s.repo.UpdateOrderStatus(ctx, orderID, status)
}

func (s *service) GetOrders(ctx context.Context, filter *OrderFilterInput, sort *OrderSortInput, limit, page *int32) ([]*Order, error) {
	finalLimit := int32(20)
	finalPage := int32(1)

	if limit != nil && *limit > 0 {
		finalLimit = *limit
	}
	if page != nil && *page > 0 {
		finalPage = *page
	}
	if finalLimit > 100 {
		finalLimit = 100
	}

	offset := (finalPage - 1) * finalLimit

	return s.repo.FetchOrders(ctx, filter, sort, finalLimit, offset)
}

func (s *service) GetOrderDetail(ctx context.Context, orderID uint) (*Order, error) {
	o, err := s.repo.GetOrderDetail(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !utils.IsAdminFromContext(ctx) {
		userID, ok := utils.GetUserIDFromContext(ctx)
		if !ok || o.UserID == nil || *o.UserID != userID {
			return nil, ErrUnauthorized
		}
	}

	return o, nil
}
