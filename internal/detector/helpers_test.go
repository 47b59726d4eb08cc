package detector

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/velobank/fraudwatch/internal/geo"
	"github.com/velobank/fraudwatch/pkg/models"
)

// fakeGeocoder resolves locations from a fixed table.
type fakeGeocoder struct {
	points map[string]geo.Point
}

func (f *fakeGeocoder) Geocode(_ context.Context, location string) (geo.Point, error) {
	if p, ok := f.points[location]; ok {
		return p, nil
	}
	return geo.Point{}, geo.ErrNotFound
}

// fakeHistory serves a canned transaction list.
type fakeHistory struct {
	transactions []models.Transaction
	err          error
}

func (f *fakeHistory) RecentTransactions(_ context.Context, _ uuid.UUID, _ time.Time, limit int) ([]models.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && len(f.transactions) > limit {
		return f.transactions[:limit], nil
	}
	return f.transactions, nil
}

// fakeBalances serves one balance for any account.
type fakeBalances struct {
	balance float64
	err     error
	calls   int
}

func (f *fakeBalances) GetBalance(context.Context, uuid.UUID) (float64, error) {
	f.calls++
	return f.balance, f.err
}

func testSugar() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// snapshotFor builds a minimal snapshot for one transfer.
func snapshotFor(amount, senderBalance float64, location string) *models.TransactionSnapshot {
	senderID := uuid.New()
	return &models.TransactionSnapshot{
		Request: models.TransactionRequest{
			SenderAccountID:   senderID,
			ReceiverAccountID: uuid.New(),
			Amount:            amount,
			Location:          location,
			Currency:          "EUR",
		},
		Sender: models.Account{
			ID:      senderID,
			UserID:  uuid.New(),
			Balance: senderBalance,
			Status:  models.AccountActive,
		},
		Receiver: models.Account{
			ID:     uuid.New(),
			UserID: uuid.New(),
			Status: models.AccountActive,
		},
		CapturedAt: time.Now().UTC(),
	}
}

// historyTx builds a prior transaction for the snapshot's sender.
func historyTx(senderID uuid.UUID, createdAt time.Time, location string) models.Transaction {
	return models.Transaction{
		ID:              uuid.New(),
		SenderAccountID: senderID,
		Location:        location,
		Status:          models.TransactionCompleted,
		CreatedAt:       createdAt,
	}
}
