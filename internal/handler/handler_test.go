package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karim1556/ecom-core/internal/domain/auth"
	"github.com/karim1556/ecom-core/internal/domain/cart"
	"github.com/karim1556/ecom-core/internal/domain/coupon"
	"github.com/karim1556/ecom-core/internal/domain/order"
	"github.com/karim1556/ecom-core/internal/domain/product"
)

type memProductRepo struct {
	products map[string]product.Product
}

func (m *memProductRepo) List(_ context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, nil
}

func (m *memProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *memProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memProductRepo) GetStock(_ context.Context, id string) (*product.Stock, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &product.Stock{Quantity: p.StockQuantity, Tracked: p.TrackStock, Threshold: p.LowStockThreshold}, nil
}

func (m *memProductRepo) AdjustStock(_ context.Context, id string, qty int, op product.StockOp) (int, error) {
	p, ok := m.products[id]
	if !ok {
		return 0, product.ErrNotFound
	}
	if op == product.StockSubtract {
		if p.TrackStock && p.StockQuantity < qty {
			return 0, &product.InsufficientStockError{ProductID: id, Requested: qty}
		}
		p.StockQuantity -= qty
	} else {
		p.StockQuantity += qty
	}
	m.products[id] = p
	return p.StockQuantity, nil
}

type memCartRepo struct {
	lines []cart.Line
}

func (m *memCartRepo) ListByUser(_ context.Context, userID string) ([]cart.Line, error) {
	var out []cart.Line
	for _, l := range m.lines {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memCartRepo) Add(_ context.Context, line cart.Line) error {
	for i, l := range m.lines {
		if l.UserID == line.UserID && l.ProductID == line.ProductID {
			m.lines[i].Quantity += line.Quantity
			return nil
		}
	}
	m.lines = append(m.lines, line)
	return nil
}

func (m *memCartRepo) SetQuantity(_ context.Context, userID, productID string, qty int) error {
	for i, l := range m.lines {
		if l.UserID == userID && l.ProductID == productID {
			m.lines[i].Quantity = qty
			return nil
		}
	}
	return cart.ErrLineNotFound
}

func (m *memCartRepo) Remove(_ context.Context, userID, productID string) error {
	for i, l := range m.lines {
		if l.UserID == userID && l.ProductID == productID {
			m.lines = append(m.lines[:i], m.lines[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memCartRepo) Clear(_ context.Context, userID string) error {
	var kept []cart.Line
	for _, l := range m.lines {
		if l.UserID != userID {
			kept = append(kept, l)
		}
	}
	m.lines = kept
	return nil
}

type memCouponRepo struct {
	rules map[string]*coupon.Rule
}

func (m *memCouponRepo) FindByCode(_ context.Context, code string) (*coupon.Rule, error) {
	rule, ok := m.rules[coupon.CanonicalCode(code)]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return rule, nil
}

func (m *memCouponRepo) IncrementUsage(_ context.Context, couponID string) (int, error) {
	for _, r := range m.rules {
		if r.ID == couponID {
			r.UsedCount++
			return r.UsedCount, nil
		}
	}
	return 0, coupon.ErrNotFound
}

type memOrderRepo struct {
	orders map[string]*order.Order
}

func (m *memOrderRepo) Create(_ context.Context, o *order.Order) error {
	m.orders[o.ID] = o
	return nil
}

func (m *memOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrderRepo) UpdateStatus(_ context.Context, id string, from []order.Status, to order.Status) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	for _, f := range from {
		if o.Status == f {
			o.Status = to
			cp := *o
			return &cp, nil
		}
	}
	return nil, order.ErrStaleStatus
}

// memFulfiller decrements stock and bumps coupon usage like the real
// transactional implementation, minus the transaction.
type memFulfiller struct {
	orders   *memOrderRepo
	products *memProductRepo
	coupons  *memCouponRepo
}

func (m *memFulfiller) Fulfill(ctx context.Context, o *order.Order) error {
	stored, ok := m.orders.orders[o.ID]
	if !ok {
		return order.ErrNotFound
	}
	if stored.Status != order.StatusPending && stored.Status != order.StatusProcessing {
		return order.ErrStaleStatus
	}
	for _, line := range o.Lines {
		p, ok := m.products.products[line.ProductID]
		if !ok || !p.TrackStock {
			continue
		}
		if _, err := m.products.AdjustStock(ctx, line.ProductID, line.Quantity, product.StockSubtract); err != nil {
			return err
		}
	}
	if o.CouponID != "" {
		if _, err := m.coupons.IncrementUsage(ctx, o.CouponID); err != nil {
			return err
		}
	}
	stored.Status = order.StatusCompleted
	return nil
}

type memAPIKeyRepo struct {
	keys map[string]*auth.APIKeyInfo
}

func (m *memAPIKeyRepo) FindByHash(_ context.Context, keyHash string) (*auth.APIKeyInfo, error) {
	info, ok := m.keys[keyHash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return info, nil
}

const (
	testAPIKey = "test-admin-key"
	testPepper = "test-pepper"
)

func hashKey(key, pepper string) string {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

type fixture struct {
	router   http.Handler
	products *memProductRepo
	carts    *memCartRepo
	coupons  *memCouponRepo
	orders   *memOrderRepo
}

func newFixture() *fixture {
	products := &memProductRepo{products: map[string]product.Product{
		"p1": {ID: "p1", Name: "Mouse", Price: decimal.NewFromInt(500), Category: "electronics", TrackStock: true, StockQuantity: 10, LowStockThreshold: 2},
		"p2": {ID: "p2", Name: "Bottle", Price: decimal.NewFromInt(100), Category: "home", TrackStock: true, StockQuantity: 3, LowStockThreshold: 1},
	}}
	carts := &memCartRepo{}
	coupons := &memCouponRepo{rules: map[string]*coupon.Rule{
		"SAVE20": {
			ID:           "c1",
			Code:         "SAVE20",
			DiscountType: coupon.DiscountPercentage,
			Value:        decimal.NewFromInt(20),
			MaxDiscount:  decimal.NewFromInt(50),
			Active:       true,
		},
	}}
	orders := &memOrderRepo{orders: map[string]*order.Order{}}

	cartSvc := cart.NewService(carts, products)
	checkoutSvc := order.NewCheckoutService(cartSvc, carts, products, coupons, orders, order.PricingConfig{
		ShippingFee:      decimal.NewFromInt(49),
		FreeShippingOver: decimal.NewFromInt(499),
		TaxPercent:       decimal.NewFromInt(10),
	})
	lifecycle := order.NewLifecycle(orders, &memFulfiller{orders: orders, products: products, coupons: coupons})

	h := NewHandler(products, coupons, cartSvc, checkoutSvc, lifecycle, orders)
	security := NewSecurity(&memAPIKeyRepo{keys: map[string]*auth.APIKeyInfo{
		hashKey(testAPIKey, testPepper): {
			ID:      "default",
			KeyHash: hashKey(testAPIKey, testPepper),
			Name:    "test key",
			Scopes:  []string{"admin"},
		},
	}}, []byte(testPepper))

	return &fixture{
		router:   h.Routes(security),
		products: products,
		carts:    carts,
		coupons:  coupons,
		orders:   orders,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func adminHeaders() map[string]string {
	return map[string]string{"X-Api-Key": testAPIKey}
}

func TestProductEndpoints(t *testing.T) {
	t.Run("list products", func(t *testing.T) {
		f := newFixture()

		rec := f.do(t, http.MethodGet, "/products", nil, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		got := decodeResponse[[]productResponse](t, rec)
		assert.Len(t, got, 2)
	})

	t.Run("get product", func(t *testing.T) {
		f := newFixture()

		rec := f.do(t, http.MethodGet, "/products/p1", nil, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		got := decodeResponse[productResponse](t, rec)
		assert.Equal(t, "p1", got.ID)
		assert.InDelta(t, 500.0, got.EffectivePrice, 0.001)
	})

	t.Run("unknown product is 404", func(t *testing.T) {
		f := newFixture()

		rec := f.do(t, http.MethodGet, "/products/ghost", nil, nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("stock snapshot reports low flag", func(t *testing.T) {
		f := newFixture()
		p := f.products.products["p2"]
		p.StockQuantity = 1
		f.products.products["p2"] = p

		rec := f.do(t, http.MethodGet, "/products/p2/stock", nil, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		got := decodeResponse[stockResponse](t, rec)
		assert.Equal(t, 1, got.Quantity)
		assert.True(t, got.Low)
	})
}

func TestCartEndpoints(t *testing.T) {
	t.Run("add then get", func(t *testing.T) {
		f := newFixture()

		rec := f.do(t, http.MethodPost, "/cart/u1/items",
			map[string]any{"productId": "p1", "quantity": 2}, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = f.do(t, http.MethodGet, "/cart/u1/", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		got := decodeResponse[cartResponse](t, rec)
		require.Len(t, got.Lines, 1)
		assert.Equal(t, 2, got.Lines[0].Quantity)
		assert.InDelta(t, 1000.0, got.Subtotal, 0.001)
	})

	t.Run("add unknown product is 404", func(t *testing.T) {
		f := newFixture()

		rec := f.do(t, http.MethodPost, "/cart/u1/items",
			map[string]any{"productId": "ghost", "quantity": 1}, nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("add zero quantity is 422", func(t *testing.T) {
		f := newFixture()

		rec := f.do(t, http.MethodPost, "/cart/u1/items",
			map[string]any{"productId": "p1", "quantity": 0}, nil)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("update and remove", func(t *testing.T) {
		f := newFixture()
		f.carts.lines = []cart.Line{{UserID: "u1", ProductID: "p1", Quantity: 1}}

		rec := f.do(t, http.MethodPut, "/cart/u1/items/p1",
			map[string]any{"quantity": 5}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		got := decodeResponse[cartResponse](t, rec)
		require.Len(t, got.Lines, 1)
		assert.Equal(t, 5, got.Lines[0].Quantity)

		rec = f.do(t, http.MethodDelete, "/cart/u1/items/p1", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		got = decodeResponse[cartResponse](t, rec)
		assert.Empty(t, got.Lines)
	})
}

func TestCheckoutEndpoint(t *testing.T) {
	t.Run("successful checkout", func(t *testing.T) {
		f := newFixture()
		f.carts.lines = []cart.Line{{UserID: "u1", ProductID: "p1", Quantity: 2}}

		rec := f.do(t, http.MethodPost, "/checkout", map[string]any{
			"userId":     "u1",
			"couponCode": "SAVE20",
			"shippingAddress": map[string]any{
				"name": "Pat", "line1": "1 Main St", "city": "Springfield",
				"state": "IL", "postalCode": "62704", "country": "US",
			},
		}, nil)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		got := decodeResponse[checkoutResponse](t, rec)
		assert.InDelta(t, 1000.0, got.Subtotal, 0.001)
		assert.InDelta(t, 0.0, got.Shipping, 0.001)
		assert.InDelta(t, 100.0, got.Tax, 0.001)
		assert.InDelta(t, 50.0, got.Discount, 0.001)
		assert.InDelta(t, 1050.0, got.Total, 0.001)

		// Order is pending, cart is cleared, stock untouched.
		o, err := f.orders.GetByID(context.Background(), got.OrderID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusPending, o.Status)
		assert.Empty(t, f.carts.lines)
		assert.Equal(t, 10, f.products.products["p1"].StockQuantity)
		assert.Equal(t, 0, f.coupons.rules["SAVE20"].UsedCount)
	})

	t.Run("empty cart is 400", func(t *testing.T) {
		f := newFixture()

		rec := f.do(t, http.MethodPost, "/checkout",
			map[string]any{"userId": "u1"}, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("out of stock is 409", func(t *testing.T) {
		f := newFixture()
		f.carts.lines = []cart.Line{{UserID: "u1", ProductID: "p2", Quantity: 99}}

		rec := f.do(t, http.MethodPost, "/checkout",
			map[string]any{"userId": "u1"}, nil)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("rejected coupon is 422", func(t *testing.T) {
		f := newFixture()
		f.carts.lines = []cart.Line{{UserID: "u1", ProductID: "p1", Quantity: 1}}
		f.coupons.rules["SAVE20"].Active = false

		rec := f.do(t, http.MethodPost, "/checkout",
			map[string]any{"userId": "u1", "couponCode": "SAVE20"}, nil)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("missing userId is 400", func(t *testing.T) {
		f := newFixture()

		rec := f.do(t, http.MethodPost, "/checkout", map[string]any{}, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestValidateCouponEndpoint(t *testing.T) {
	t.Run("valid code", func(t *testing.T) {
		f := newFixture()

		rec := f.do(t, http.MethodPost, "/coupons/validate", map[string]any{
			"code":      "save20",
			"cartTotal": 1000.0,
		}, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		got := decodeResponse[validateCouponResponse](t, rec)
		assert.True(t, got.Valid)
		require.NotNil(t, got.Coupon)
		assert.Equal(t, "SAVE20", got.Coupon.Code)
		assert.InDelta(t, 50.0, got.Coupon.DiscountAmount, 0.001)
	})

	t.Run("unknown code is valid=false, not an error", func(t *testing.T) {
		f := newFixture()

		rec := f.do(t, http.MethodPost, "/coupons/validate", map[string]any{
			"code":      "GHOST",
			"cartTotal": 1000.0,
		}, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		got := decodeResponse[validateCouponResponse](t, rec)
		assert.False(t, got.Valid)
		assert.NotEmpty(t, got.Error)
	})

	t.Run("rejected code reports the reason", func(t *testing.T) {
		f := newFixture()
		f.coupons.rules["SAVE20"].Active = false

		rec := f.do(t, http.MethodPost, "/coupons/validate", map[string]any{
			"code":      "SAVE20",
			"cartTotal": 1000.0,
		}, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		got := decodeResponse[validateCouponResponse](t, rec)
		assert.False(t, got.Valid)
		assert.Contains(t, got.Error, "inactive")
	})

	t.Run("validation never consumes a use", func(t *testing.T) {
		f := newFixture()

		for range 3 {
			rec := f.do(t, http.MethodPost, "/coupons/validate", map[string]any{
				"code":      "SAVE20",
				"cartTotal": 1000.0,
			}, nil)
			require.Equal(t, http.StatusOK, rec.Code)
		}

		assert.Equal(t, 0, f.coupons.rules["SAVE20"].UsedCount)
	})
}

func TestOrderEndpoints(t *testing.T) {
	placeOrder := func(t *testing.T, f *fixture, couponCode string) string {
		t.Helper()
		f.carts.lines = []cart.Line{{UserID: "u1", ProductID: "p1", Quantity: 2}}
		body := map[string]any{"userId": "u1"}
		if couponCode != "" {
			body["couponCode"] = couponCode
		}
		rec := f.do(t, http.MethodPost, "/checkout", body, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		return decodeResponse[checkoutResponse](t, rec).OrderID
	}

	t.Run("get order", func(t *testing.T) {
		f := newFixture()
		id := placeOrder(t, f, "")

		rec := f.do(t, http.MethodGet, "/orders/"+id, nil, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		got := decodeResponse[orderResponse](t, rec)
		assert.Equal(t, id, got.ID)
		assert.Equal(t, "pending", got.Status)
	})

	t.Run("transition requires an API key", func(t *testing.T) {
		f := newFixture()
		id := placeOrder(t, f, "")

		rec := f.do(t, http.MethodPost, "/admin/orders/"+id+"/status",
			map[string]any{"status": "processing"}, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = f.do(t, http.MethodPost, "/admin/orders/"+id+"/status",
			map[string]any{"status": "processing"}, map[string]string{"X-Api-Key": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("completing decrements stock and consumes the coupon once", func(t *testing.T) {
		f := newFixture()
		id := placeOrder(t, f, "SAVE20")

		rec := f.do(t, http.MethodPost, "/admin/orders/"+id+"/status",
			map[string]any{"status": "completed"}, adminHeaders())

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		got := decodeResponse[orderResponse](t, rec)
		assert.Equal(t, "completed", got.Status)
		assert.Equal(t, 8, f.products.products["p1"].StockQuantity)
		assert.Equal(t, 1, f.coupons.rules["SAVE20"].UsedCount)

		// Idempotent retry: no second decrement, no second use.
		rec = f.do(t, http.MethodPost, "/admin/orders/"+id+"/status",
			map[string]any{"status": "completed"}, adminHeaders())
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 8, f.products.products["p1"].StockQuantity)
		assert.Equal(t, 1, f.coupons.rules["SAVE20"].UsedCount)
	})

	t.Run("invalid transition is 409", func(t *testing.T) {
		f := newFixture()
		id := placeOrder(t, f, "")

		rec := f.do(t, http.MethodPost, "/admin/orders/"+id+"/status",
			map[string]any{"status": "cancelled"}, adminHeaders())
		require.Equal(t, http.StatusOK, rec.Code)

		rec = f.do(t, http.MethodPost, "/admin/orders/"+id+"/status",
			map[string]any{"status": "completed"}, adminHeaders())
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("unknown status is 400", func(t *testing.T) {
		f := newFixture()
		id := placeOrder(t, f, "")

		rec := f.do(t, http.MethodPost, "/admin/orders/"+id+"/status",
			map[string]any{"status": "shipped"}, adminHeaders())

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("fulfillment failure is 409 and keeps the order pending", func(t *testing.T) {
		f := newFixture()
		id := placeOrder(t, f, "")
		p := f.products.products["p1"]
		p.StockQuantity = 1
		f.products.products["p1"] = p

		rec := f.do(t, http.MethodPost, "/admin/orders/"+id+"/status",
			map[string]any{"status": "completed"}, adminHeaders())

		assert.Equal(t, http.StatusConflict, rec.Code)
		o, err := f.orders.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, order.StatusPending, o.Status)
	})
}

func TestAdminStockAdjust(t *testing.T) {
	t.Run("add and subtract", func(t *testing.T) {
		f := newFixture()

		rec := f.do(t, http.MethodPost, "/admin/stock/adjust",
			map[string]any{"productId": "p1", "quantity": 5, "operation": "add"}, adminHeaders())
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 15, f.products.products["p1"].StockQuantity)

		rec = f.do(t, http.MethodPost, "/admin/stock/adjust",
			map[string]any{"productId": "p1", "quantity": 3, "operation": "subtract"}, adminHeaders())
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 12, f.products.products["p1"].StockQuantity)
	})

	t.Run("subtract below zero is 409", func(t *testing.T) {
		f := newFixture()

		rec := f.do(t, http.MethodPost, "/admin/stock/adjust",
			map[string]any{"productId": "p2", "quantity": 99, "operation": "subtract"}, adminHeaders())

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, 3, f.products.products["p2"].StockQuantity)
	})

	t.Run("bad operation is 400", func(t *testing.T) {
		f := newFixture()

		rec := f.do(t, http.MethodPost, "/admin/stock/adjust",
			map[string]any{"productId": "p1", "quantity": 5, "operation": "set"}, adminHeaders())

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
