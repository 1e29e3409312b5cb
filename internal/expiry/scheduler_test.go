package expiry

import (
	"context"
	"errors"
	"testing"
	"time"

	"tokopaya-be/internal/gateway"
	"tokopaya-be/internal/metrics"
	"tokopaya-be/internal/order"
	"tokopaya-be/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) FindExpiredPending(ctx context.Context, now time.Time) ([]*payment.Payment, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*payment.Payment), args.Error(1)
}

func (m *MockStore) ExpirePaymentTx(ctx context.Context, paymentID, orderID int64) (bool, error) {
	args := m.Called(ctx, paymentID, orderID)
	return args.Bool(0), args.Error(1)
}

type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) BroadcastPaymentUpdate(orderID int64, ps gateway.PaymentStatus, os order.Status) {
	m.Called(orderID, ps, os)
}

func TestScheduler_SweepOnce(t *testing.T) {
	t.Run("ExpiresAllStalePayments", func(t *testing.T) {
		store := new(MockStore)
		bc := new(MockBroadcaster)
		mtr := &metrics.Reconciliation{}
		s := NewScheduler(store, bc, mtr, time.Minute)

		store.On("FindExpiredPending", mock.Anything, mock.Anything).Return([]*payment.Payment{
			{ID: 5, OrderID: 42},
			{ID: 6, OrderID: 43},
		}, nil)
		store.On("ExpirePaymentTx", mock.Anything, int64(5), int64(42)).Return(true, nil)
		store.On("ExpirePaymentTx", mock.Anything, int64(6), int64(43)).Return(true, nil)
		bc.On("BroadcastPaymentUpdate", int64(42), gateway.StatusExpire, order.StatusExpired).Return()
		bc.On("BroadcastPaymentUpdate", int64(43), gateway.StatusExpire, order.StatusExpired).Return()

		n, err := s.SweepOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, uint64(2), mtr.PaymentsExpired.Load())
		store.AssertExpectations(t)
	})

	t.Run("OneFailureDoesNotStopSweep", func(t *testing.T) {
		store := new(MockStore)
		s := NewScheduler(store, nil, &metrics.Reconciliation{}, time.Minute)

		store.On("FindExpiredPending", mock.Anything, mock.Anything).Return([]*payment.Payment{
			{ID: 5, OrderID: 42},
			{ID: 6, OrderID: 43},
		}, nil)
		store.On("ExpirePaymentTx", mock.Anything, int64(5), int64(42)).Return(false, errors.New("deadlock"))
		store.On("ExpirePaymentTx", mock.Anything, int64(6), int64(43)).Return(true, nil)

		n, err := s.SweepOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("WebhookWonRace_NotCountedOrAnnounced", func(t *testing.T) {
		store := new(MockStore)
		bc := new(MockBroadcaster)
		mtr := &metrics.Reconciliation{}
		s := NewScheduler(store, bc, mtr, time.Minute)

		// payment settled between the scan and the guarded update
		store.On("FindExpiredPending", mock.Anything, mock.Anything).Return([]*payment.Payment{
			{ID: 5, OrderID: 42},
		}, nil)
		store.On("ExpirePaymentTx", mock.Anything, int64(5), int64(42)).Return(false, nil)

		n, err := s.SweepOnce(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Zero(t, mtr.PaymentsExpired.Load())
		bc.AssertNotCalled(t, "BroadcastPaymentUpdate")
	})

	t.Run("NothingStale", func(t *testing.T) {
		store := new(MockStore)
		s := NewScheduler(store, nil, &metrics.Reconciliation{}, time.Minute)

		store.On("FindExpiredPending", mock.Anything, mock.Anything).Return([]*payment.Payment{}, nil)

		n, err := s.SweepOnce(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("QueryFailure", func(t *testing.T) {
		store := new(MockStore)
		s := NewScheduler(store, nil, &metrics.Reconciliation{}, time.Minute)

		store.On("FindExpiredPending", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

		_, err := s.SweepOnce(context.Background())
		assert.Error(t, err)
	})
}
