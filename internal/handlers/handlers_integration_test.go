package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gigmarket/internal/handlers"
	"gigmarket/internal/middleware"
	"gigmarket/internal/models"
	"gigmarket/internal/repositories"
	"gigmarket/internal/services"
	"gigmarket/pkg/ledger"
	"gigmarket/pkg/storage"
)

// testEnv wires the full HTTP stack against an in-memory sqlite database
// and a mock ledger gateway.
type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	gateway  *ledger.MockGateway
	uploader *storage.MemoryUploader
	userRepo repositories.UserRepository
	auth     *services.AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Gig{}, &models.CartItem{},
		&models.Order{}, &models.EscrowTransaction{}, &models.ReconciliationItem{},
	))

	orderRepo := repositories.NewGORMOrderRepository(db)
	gigRepo := repositories.NewGORMGigRepository(db)
	cartRepo := repositories.NewGORMCartRepository(db)
	userRepo := repositories.NewGORMUserRepository(db)

	gateway := ledger.NewMockGateway()
	uploader := storage.NewMemoryUploader()

	escrowService := services.NewEscrowService(gateway, userRepo, "escrow-account", 0)
	orderService := services.NewOrderService(orderRepo, userRepo, escrowService, nil, 5.0)
	gigService := services.NewGigService(gigRepo)
	proofService := services.NewProofService(orderRepo, uploader, nil)
	disputeService := services.NewDisputeService(orderRepo, userRepo, orderService, escrowService, nil)
	checkoutService := services.NewCheckoutService(cartRepo, gigRepo, orderRepo, orderService, escrowService, gateway, 0)
	authService := services.NewAuthService(userRepo, "test_jwt_secret")

	app := fiber.New()
	apiV1 := app.Group("/api/v1")
	handlers.NewAuthHandler(authService).RegisterRoutes(apiV1)

	protected := apiV1.Group("", middleware.AuthRequired(authService))
	handlers.NewGigHandler(gigService).RegisterRoutes(protected)
	handlers.NewCartHandler(cartRepo, gigRepo).RegisterRoutes(protected)
	handlers.NewCheckoutHandler(checkoutService).RegisterRoutes(protected)
	handlers.NewOrderHandler(orderService, proofService, disputeService).RegisterRoutes(protected)

	return &testEnv{
		app:      app,
		db:       db,
		gateway:  gateway,
		uploader: uploader,
		userRepo: userRepo,
		auth:     authService,
	}
}

// request performs one JSON request against the app and decodes the response
// body into a generic map.
func (e *testEnv) request(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]interface{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp.StatusCode, decoded
}

// registerAndLogin creates a user through the public auth endpoints and
// returns its id and a bearer token.
func (e *testEnv) registerAndLogin(t *testing.T, username, role, wallet string) (string, string) {
	t.Helper()

	status, body := e.request(t, http.MethodPost, "/api/v1/auth/register", "", fiber.Map{
		"username":       username,
		"email":          username + "@example.com",
		"password":       "password123",
		"role":           role,
		"wallet_address": wallet,
	})
	require.Equal(t, http.StatusCreated, status, "register %s: %v", username, body)
	user := body["user"].(map[string]interface{})
	userID := user["id"].(string)

	status, body = e.request(t, http.MethodPost, "/api/v1/auth/login", "", fiber.Map{
		"username": username,
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, status)
	return userID, body["token"].(string)
}

// loginAdmin provisions an admin directly in the database (self-registration
// as admin is rejected) and logs it in.
func (e *testEnv) loginAdmin(t *testing.T) (string, string) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	require.NoError(t, err)
	admin := &models.User{
		Username: "admin", Email: "admin@example.com",
		Password: string(hash), Role: models.RoleAdmin, WalletAddress: "admin-wallet",
	}
	require.NoError(t, e.userRepo.Create(admin))

	status, body := e.request(t, http.MethodPost, "/api/v1/auth/login", "", fiber.Map{
		"username": "admin",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, status)
	return admin.ID, body["token"].(string)
}

// createGig publishes a gig as the given seller and returns its id.
func (e *testEnv) createGig(t *testing.T, sellerToken string, price float64) string {
	t.Helper()
	status, body := e.request(t, http.MethodPost, "/api/v1/gigs/", sellerToken, fiber.Map{
		"title":         "Logo design",
		"description":   "A logo",
		"price_sol":     price,
		"delivery_days": 3,
	})
	require.Equal(t, http.StatusCreated, status, "create gig: %v", body)
	return body["id"].(string)
}

// checkout carts the gig and pays for it server-side, returning the funded
// order id and the payment signature.
func (e *testEnv) checkout(t *testing.T, buyerToken, gigID string) (orderID, signature string) {
	t.Helper()

	status, body := e.request(t, http.MethodPost, "/api/v1/cart/", buyerToken, fiber.Map{
		"gig_id":   gigID,
		"quantity": 1,
	})
	require.Equal(t, http.StatusCreated, status, "add to cart: %v", body)

	status, body = e.request(t, http.MethodPost, "/api/v1/checkout/", buyerToken, fiber.Map{
		"wallet_address": "buyer-wallet",
	})
	require.Equal(t, http.StatusCreated, status, "checkout: %v", body)

	orders := body["orders"].([]interface{})
	require.Len(t, orders, 1)
	order := orders[0].(map[string]interface{})
	return order["id"].(string), body["transaction_signature"].(string)
}

func TestAPI_RequiresAuthentication(t *testing.T) {
	e := newTestEnv(t)

	status, _ := e.request(t, http.MethodGet, "/api/v1/orders/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = e.request(t, http.MethodGet, "/api/v1/orders/", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAPI_FullOrderLifecycle(t *testing.T) {
	e := newTestEnv(t)
	_, sellerToken := e.registerAndLogin(t, "seller", "seller", "seller-wallet")
	_, buyerToken := e.registerAndLogin(t, "buyer", "buyer", "buyer-wallet")

	gigID := e.createGig(t, sellerToken, 2.0)
	orderID, _ := e.checkout(t, buyerToken, gigID)

	// The funded order is in_progress with a deposit on its ledger.
	status, body := e.request(t, http.MethodGet, "/api/v1/orders/"+orderID, buyerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "in_progress", body["status"])

	// Seller submits proof of work.
	status, body = e.request(t, http.MethodPost, "/api/v1/orders/"+orderID+"/proof", sellerToken, fiber.Map{
		"description": "final deliverables attached",
	})
	require.Equal(t, http.StatusOK, status, "submit proof: %v", body)
	assert.Equal(t, "proof_submitted", body["status"])

	// Buyer approves; escrow is released and the order completes.
	status, body = e.request(t, http.MethodPost, "/api/v1/orders/"+orderID+"/approve", buyerToken, nil)
	require.Equal(t, http.StatusOK, status, "approve: %v", body)
	assert.Equal(t, "completed", body["status"])

	order := body["order"].(map[string]interface{})
	assert.Equal(t, true, order["escrow_released"])
	assert.InDelta(t, 0.1, order["platform_fee_sol"].(float64), 1e-9)

	// The custody history shows deposit then release.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+orderID+"/escrow", nil)
	req.Header.Set("Authorization", "Bearer "+buyerToken)
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var txs []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&txs))
	require.Len(t, txs, 2)
	assert.Equal(t, "deposit", txs[0]["transaction_type"])
	assert.Equal(t, "release", txs[1]["transaction_type"])
}

func TestAPI_CreateOrderIsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	sellerID, _ := e.registerAndLogin(t, "seller", "seller", "seller-wallet")
	_, buyerToken := e.registerAndLogin(t, "buyer", "buyer", "buyer-wallet")

	payload := fiber.Map{
		"gigId":                "gig-1",
		"sellerId":             sellerID,
		"amount":               1.5,
		"deliveryDays":         3,
		"transactionSignature": "sig-direct",
		"escrowAddress":        "escrow-account",
	}

	status, body := e.request(t, http.MethodPost, "/api/v1/orders/", buyerToken, payload)
	require.Equal(t, http.StatusCreated, status, "create order: %v", body)
	firstID := body["orderId"].(string)

	// The verified deposit is acknowledged immediately: the order starts
	// its working life instead of idling in pending.
	order := body["order"].(map[string]interface{})
	assert.Equal(t, "in_progress", order["status"])

	// The retry is a success, not a conflict, and returns the same order.
	status, body = e.request(t, http.MethodPost, "/api/v1/orders/", buyerToken, payload)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, firstID, body["orderId"])
}

func TestAPI_CreateOrderRequiresConfirmedPayment(t *testing.T) {
	e := newTestEnv(t)
	sellerID, _ := e.registerAndLogin(t, "seller", "seller", "seller-wallet")
	_, buyerToken := e.registerAndLogin(t, "buyer", "buyer", "buyer-wallet")

	// The ledger never confirms the claimed signature.
	e.gateway.ConfirmErr = ledger.ErrTimedOut
	status, _ := e.request(t, http.MethodPost, "/api/v1/orders/", buyerToken, fiber.Map{
		"gigId":                "gig-1",
		"sellerId":             sellerID,
		"amount":               1.5,
		"deliveryDays":         3,
		"transactionSignature": "fabricated-signature",
		"escrowAddress":        "escrow-account",
	})
	assert.Equal(t, http.StatusAccepted, status)

	// No order exists for the unconfirmed payment.
	orders, err := repositories.NewGORMOrderRepository(e.db).ListBySignature("fabricated-signature")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestAPI_DisputeResolutionIsAdminOnly(t *testing.T) {
	e := newTestEnv(t)
	_, sellerToken := e.registerAndLogin(t, "seller", "seller", "seller-wallet")
	_, buyerToken := e.registerAndLogin(t, "buyer", "buyer", "buyer-wallet")
	_, adminToken := e.loginAdmin(t)

	gigID := e.createGig(t, sellerToken, 2.0)
	orderID, _ := e.checkout(t, buyerToken, gigID)

	status, body := e.request(t, http.MethodPost, "/api/v1/orders/"+orderID+"/dispute", buyerToken, fiber.Map{
		"reason": "nothing was delivered",
	})
	require.Equal(t, http.StatusOK, status, "dispute: %v", body)
	assert.Equal(t, "disputed", body["status"])

	// The parties cannot resolve their own dispute.
	for _, token := range []string{buyerToken, sellerToken} {
		status, _ = e.request(t, http.MethodPost, "/api/v1/orders/"+orderID+"/resolve", token, fiber.Map{
			"action": "refund",
			"reason": "in my favor",
		})
		assert.Equal(t, http.StatusForbidden, status)
	}

	status, body = e.request(t, http.MethodPost, "/api/v1/orders/"+orderID+"/resolve", adminToken, fiber.Map{
		"action": "refund",
		"reason": "seller unresponsive",
	})
	require.Equal(t, http.StatusOK, status, "resolve: %v", body)
	assert.Equal(t, "cancelled", body["status"])

	order := body["order"].(map[string]interface{})
	assert.Equal(t, false, order["escrow_released"])
	assert.InDelta(t, 2.0, order["refund_amount_sol"].(float64), 1e-9)
}

func TestAPI_ProofValidation(t *testing.T) {
	e := newTestEnv(t)
	_, sellerToken := e.registerAndLogin(t, "seller", "seller", "seller-wallet")
	_, buyerToken := e.registerAndLogin(t, "buyer", "buyer", "buyer-wallet")

	gigID := e.createGig(t, sellerToken, 2.0)
	orderID, _ := e.checkout(t, buyerToken, gigID)

	// An empty description is rejected and the order does not move.
	status, _ := e.request(t, http.MethodPost, "/api/v1/orders/"+orderID+"/proof", sellerToken, fiber.Map{
		"description": "   ",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	// Only the seller may submit proof.
	status, _ = e.request(t, http.MethodPost, "/api/v1/orders/"+orderID+"/proof", buyerToken, fiber.Map{
		"description": "I made it myself",
	})
	assert.Equal(t, http.StatusForbidden, status)

	status, body := e.request(t, http.MethodGet, "/api/v1/orders/"+orderID, buyerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "in_progress", body["status"])
}

func TestAPI_OrderVisibility(t *testing.T) {
	e := newTestEnv(t)
	_, sellerToken := e.registerAndLogin(t, "seller", "seller", "seller-wallet")
	_, buyerToken := e.registerAndLogin(t, "buyer", "buyer", "buyer-wallet")
	_, strangerToken := e.registerAndLogin(t, "stranger", "buyer", "stranger-wallet")
	_, adminToken := e.loginAdmin(t)

	gigID := e.createGig(t, sellerToken, 2.0)
	orderID, _ := e.checkout(t, buyerToken, gigID)

	for token, expected := range map[string]int{
		buyerToken:    http.StatusOK,
		sellerToken:   http.StatusOK,
		adminToken:    http.StatusOK,
		strangerToken: http.StatusForbidden,
	} {
		status, _ := e.request(t, http.MethodGet, "/api/v1/orders/"+orderID, token, nil)
		assert.Equal(t, expected, status)
	}
}

func TestAPI_ReconciliationQueueIsAdminOnly(t *testing.T) {
	e := newTestEnv(t)
	_, buyerToken := e.registerAndLogin(t, "buyer", "buyer", "buyer-wallet")
	_, adminToken := e.loginAdmin(t)

	status, _ := e.request(t, http.MethodGet, "/api/v1/admin/reconciliation", buyerToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/reconciliation", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_CheckoutConfirmRecoversTimedOutPayment(t *testing.T) {
	e := newTestEnv(t)
	_, sellerToken := e.registerAndLogin(t, "seller", "seller", "seller-wallet")
	_, buyerToken := e.registerAndLogin(t, "buyer", "buyer", "buyer-wallet")

	gigID := e.createGig(t, sellerToken, 2.0)
	status, body := e.request(t, http.MethodPost, "/api/v1/cart/", buyerToken, fiber.Map{
		"gig_id":   gigID,
		"quantity": 1,
	})
	require.Equal(t, http.StatusCreated, status, "add to cart: %v", body)

	// The ledger stalls past the polling bound: checkout parks with 202 and
	// the signature instead of failing or double-charging.
	e.gateway.ConfirmErr = ledger.ErrTimedOut
	status, body = e.request(t, http.MethodPost, "/api/v1/checkout/", buyerToken, fiber.Map{
		"wallet_address": "buyer-wallet",
	})
	require.Equal(t, http.StatusAccepted, status, "checkout: %v", body)
	signature := body["transaction_signature"].(string)
	require.NotEmpty(t, signature)

	// The transfer lands later; manual confirmation finishes the checkout.
	e.gateway.ConfirmErr = nil
	status, body = e.request(t, http.MethodPost, "/api/v1/checkout/confirm", buyerToken, fiber.Map{
		"transaction_signature": signature,
	})
	require.Equal(t, http.StatusOK, status, "confirm: %v", body)
	orders := body["orders"].([]interface{})
	assert.Len(t, orders, 1)
}
