package services_test

import (
	"context"
	"testing"
	"time"

	"gigmarket/internal/models"
	"gigmarket/internal/repositories"
	"gigmarket/internal/services"
	"gigmarket/pkg/ledger"
	"gigmarket/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture wires the order lifecycle services against in-memory repositories
// and a mock ledger gateway, with a buyer, seller, and admin seeded.
type fixture struct {
	orderRepo *repositories.MockOrderRepository
	userRepo  *repositories.MockUserRepository
	gigRepo   *repositories.MockGigRepository
	cartRepo  *repositories.MockCartRepository
	gateway   *ledger.MockGateway
	uploader  *storage.MemoryUploader

	escrow   *services.EscrowService
	orders   *services.OrderService
	proofs   *services.ProofService
	disputes *services.DisputeService
	checkout *services.CheckoutService

	buyer  *models.User
	seller *models.User
	admin  *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		orderRepo: repositories.NewMockOrderRepository(),
		userRepo:  repositories.NewMockUserRepository(),
		gigRepo:   repositories.NewMockGigRepository(),
		cartRepo:  repositories.NewMockCartRepository(),
		gateway:   ledger.NewMockGateway(),
		uploader:  storage.NewMemoryUploader(),
	}

	f.buyer = &models.User{Username: "buyer", Email: "buyer@example.com", Password: "x", Role: models.RoleBuyer, WalletAddress: "buyer-wallet"}
	f.seller = &models.User{Username: "seller", Email: "seller@example.com", Password: "x", Role: models.RoleSeller, WalletAddress: "seller-wallet"}
	f.admin = &models.User{Username: "admin", Email: "admin@example.com", Password: "x", Role: models.RoleAdmin, WalletAddress: "admin-wallet"}
	for _, u := range []*models.User{f.buyer, f.seller, f.admin} {
		require.NoError(t, f.userRepo.Create(u))
	}

	f.escrow = services.NewEscrowService(f.gateway, f.userRepo, "escrow-account", 0)
	f.orders = services.NewOrderService(f.orderRepo, f.userRepo, f.escrow, nil, 5.0)
	f.proofs = services.NewProofService(f.orderRepo, f.uploader, nil)
	f.disputes = services.NewDisputeService(f.orderRepo, f.userRepo, f.orders, f.escrow, nil)
	f.checkout = services.NewCheckoutService(f.cartRepo, f.gigRepo, f.orderRepo, f.orders, f.escrow, f.gateway, 0)
	return f
}

func (f *fixture) createRequest() services.CreateOrderRequest {
	return services.CreateOrderRequest{
		GigID:                "gig-1",
		BuyerID:              f.buyer.ID,
		SellerID:             f.seller.ID,
		Amount:               2.0,
		DeliveryDays:         3,
		TransactionSignature: "sig-abc",
		EscrowAddress:        "escrow-account",
	}
}

// createInProgressOrder walks a fresh order through creation and the escrow
// lock acknowledgement.
func (f *fixture) createInProgressOrder(t *testing.T) *models.Order {
	t.Helper()
	order, created, err := f.orders.CreateOrder(f.createRequest())
	require.NoError(t, err)
	require.True(t, created)
	order, err = f.orders.AcknowledgeEscrowLock(order.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusInProgress, order.Status)
	return order
}

func TestOrderService_CreateOrder(t *testing.T) {
	f := newFixture(t)

	order, created, err := f.orders.CreateOrder(f.createRequest())
	assert.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.Equal(t, 3, order.DeliveryDays)
	assert.NotNil(t, order.PaymentConfirmedAt)
	assert.NotNil(t, order.ExpectedDeliveryDate)
	assert.False(t, order.EscrowReleased)
}

func TestOrderService_CreateOrder_DuplicateReturnsExisting(t *testing.T) {
	f := newFixture(t)

	first, created, err := f.orders.CreateOrder(f.createRequest())
	require.NoError(t, err)
	require.True(t, created)

	// A retry with the same signature, gig, and buyer is not an error; it
	// returns the order the first call made.
	second, created, err := f.orders.CreateOrder(f.createRequest())
	assert.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	orders, err := f.orderRepo.ListBySignature("sig-abc")
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestOrderService_CreateOrder_DifferentGigSamePayment(t *testing.T) {
	f := newFixture(t)

	_, created, err := f.orders.CreateOrder(f.createRequest())
	require.NoError(t, err)
	require.True(t, created)

	// One payment signature may fund several line items; only the exact
	// tuple is deduplicated.
	req := f.createRequest()
	req.GigID = "gig-2"
	_, created, err = f.orders.CreateOrder(req)
	assert.NoError(t, err)
	assert.True(t, created)

	orders, err := f.orderRepo.ListBySignature("sig-abc")
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}

func TestOrderService_CreateOrder_Validation(t *testing.T) {
	f := newFixture(t)

	req := f.createRequest()
	req.Amount = 0
	_, _, err := f.orders.CreateOrder(req)
	assert.ErrorIs(t, err, models.ErrValidation)

	req = f.createRequest()
	req.TransactionSignature = ""
	_, _, err = f.orders.CreateOrder(req)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestOrderService_CreateConfirmedOrder_RejectsUnverifiedPayment(t *testing.T) {
	f := newFixture(t)
	// The ledger never confirms the claimed signature.
	f.gateway.ConfirmErr = ledger.ErrTimedOut

	req := f.createRequest()
	req.TransactionSignature = "fabricated-signature"
	_, _, err := f.orders.CreateConfirmedOrder(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrConfirmationTimeout)

	// Nothing was inserted for the unconfirmed payment.
	orders, err := f.orderRepo.ListBySignature("fabricated-signature")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestOrderService_CreateConfirmedOrder_AcknowledgesDeposit(t *testing.T) {
	f := newFixture(t)

	order, created, err := f.orders.CreateConfirmedOrder(context.Background(), f.createRequest())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.StatusInProgress, order.Status)

	txs, err := f.orders.ListEscrowTransactions(order.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.EscrowTxDeposit, txs[0].Type)

	// A retry re-verifies the payment and returns the same order.
	again, created, err := f.orders.CreateConfirmedOrder(context.Background(), f.createRequest())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, order.ID, again.ID)
	assert.Equal(t, models.StatusInProgress, again.Status)
}

func TestOrderService_AcknowledgeEscrowLock_RecordsDeposit(t *testing.T) {
	f := newFixture(t)
	order := f.createInProgressOrder(t)

	txs, err := f.orders.ListEscrowTransactions(order.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.EscrowTxDeposit, txs[0].Type)
	assert.Equal(t, order.AmountSol, txs[0].AmountSol)
	assert.Equal(t, "sig-abc", txs[0].TransactionSignature)
}

func TestOrderService_GetOrder_Visibility(t *testing.T) {
	f := newFixture(t)
	order := f.createInProgressOrder(t)

	_, err := f.orders.GetOrder(order.ID, f.buyer.ID, models.RoleBuyer)
	assert.NoError(t, err)
	_, err = f.orders.GetOrder(order.ID, f.seller.ID, models.RoleSeller)
	assert.NoError(t, err)
	_, err = f.orders.GetOrder(order.ID, f.admin.ID, models.RoleAdmin)
	assert.NoError(t, err)

	_, err = f.orders.GetOrder(order.ID, "someone-else", models.RoleBuyer)
	assert.ErrorIs(t, err, models.ErrNotAuthorized)
}

func TestOrderService_ApproveDelivery_ReleasesEscrow(t *testing.T) {
	f := newFixture(t)
	order := f.createInProgressOrder(t)

	_, err := f.proofs.Submit(order.ID, f.seller.ID, "work done", nil)
	require.NoError(t, err)

	order, err = f.orders.ApproveDelivery(context.Background(), order.ID, f.buyer.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, order.Status)
	assert.True(t, order.EscrowReleased)
	assert.NotNil(t, order.CompletedAt)
	require.NotNil(t, order.PlatformFeeSol)
	assert.InDelta(t, 0.1, *order.PlatformFeeSol, 1e-9) // 5% of 2 SOL

	txs, err := f.orders.ListEscrowTransactions(order.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, models.EscrowTxRelease, txs[1].Type)
	assert.InDelta(t, 1.9, txs[1].AmountSol, 1e-9)

	// The payout went from escrow to the seller's wallet.
	transfer, ok := f.gateway.Submitted(txs[1].TransactionSignature)
	require.True(t, ok)
	assert.Equal(t, "escrow-account", transfer.From)
	assert.Equal(t, "seller-wallet", transfer.To)
}

func TestOrderService_ApproveDelivery_OnlyBuyer(t *testing.T) {
	f := newFixture(t)
	order := f.createInProgressOrder(t)
	_, err := f.proofs.Submit(order.ID, f.seller.ID, "work done", nil)
	require.NoError(t, err)

	_, err = f.orders.ApproveDelivery(context.Background(), order.ID, f.seller.ID)
	assert.ErrorIs(t, err, models.ErrNotAuthorized)
}

func TestOrderService_ApproveDelivery_RequiresProof(t *testing.T) {
	f := newFixture(t)
	order := f.createInProgressOrder(t)

	_, err := f.orders.ApproveDelivery(context.Background(), order.ID, f.buyer.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestOrderService_ExecuteRelease_RewinsClaimBeforePaying(t *testing.T) {
	f := newFixture(t)
	order := f.createInProgressOrder(t)
	_, err := f.proofs.Submit(order.ID, f.seller.ID, "work done", nil)
	require.NoError(t, err)

	claimed, err := f.orderRepo.GetByID(order.ID)
	require.NoError(t, err)
	require.NoError(t, f.orders.Transition(claimed, models.StatusApprovedForRelease, nil))

	// Two retries hold the same claimed copy; only the first may pay.
	stale := *claimed
	_, err = f.orders.ExecuteRelease(context.Background(), claimed, "")
	require.NoError(t, err)
	_, err = f.orders.ExecuteRelease(context.Background(), &stale, "")
	assert.ErrorIs(t, err, models.ErrVersionConflict)

	txs, err := f.orders.ListEscrowTransactions(order.ID)
	require.NoError(t, err)
	releases := 0
	for _, tx := range txs {
		if tx.Type == models.EscrowTxRelease {
			releases++
		}
	}
	assert.Equal(t, 1, releases)
}

func TestOrderService_ExecuteRelease_RequiresClaim(t *testing.T) {
	f := newFixture(t)
	order := f.createInProgressOrder(t)

	_, err := f.orders.ExecuteRelease(context.Background(), order, "")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.False(t, order.EscrowReleased)
}

func TestOrderService_RaiseDispute(t *testing.T) {
	f := newFixture(t)
	order := f.createInProgressOrder(t)

	disputed, err := f.orders.RaiseDispute(order.ID, f.buyer.ID, "never heard back")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDisputed, disputed.Status)
	assert.Equal(t, "never heard back", disputed.DisputeReason)
	assert.NotNil(t, disputed.DisputedAt)
}

func TestOrderService_RaiseDispute_Guards(t *testing.T) {
	f := newFixture(t)
	order := f.createInProgressOrder(t)

	_, err := f.orders.RaiseDispute(order.ID, f.buyer.ID, "   ")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.orders.RaiseDispute(order.ID, "stranger", "not mine")
	assert.ErrorIs(t, err, models.ErrNotAuthorized)
}

func TestOrderService_CompletedOrderIsImmutable(t *testing.T) {
	f := newFixture(t)
	order := f.createInProgressOrder(t)
	_, err := f.proofs.Submit(order.ID, f.seller.ID, "work done", nil)
	require.NoError(t, err)
	_, err = f.orders.ApproveDelivery(context.Background(), order.ID, f.buyer.ID)
	require.NoError(t, err)

	_, err = f.orders.RaiseDispute(order.ID, f.buyer.ID, "too late")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestOrderService_StaleTransitionLosesVersionRace(t *testing.T) {
	f := newFixture(t)
	order := f.createInProgressOrder(t)

	// Two readers load the same version; only the first write lands.
	stale, err := f.orderRepo.GetByID(order.ID)
	require.NoError(t, err)

	_, err = f.orders.RaiseDispute(order.ID, f.buyer.ID, "first writer")
	require.NoError(t, err)

	stale.Status = models.StatusProofSubmitted
	now := time.Now()
	stale.DeliveredAt = &now
	err = f.orderRepo.UpdateTransition(stale)
	assert.ErrorIs(t, err, models.ErrVersionConflict)

	current, err := f.orderRepo.GetByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDisputed, current.Status)
}

func TestOrderService_SetAdminNotes(t *testing.T) {
	f := newFixture(t)
	order := f.createInProgressOrder(t)

	updated, err := f.orders.SetAdminNotes(order.ID, f.admin.ID, "contacted both parties")
	require.NoError(t, err)
	assert.Equal(t, "contacted both parties", updated.AdminNotes)

	_, err = f.orders.SetAdminNotes(order.ID, f.buyer.ID, "sneaky")
	assert.ErrorIs(t, err, models.ErrNotAuthorized)
}
