package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/walletchat/groupwallet-service/internal/logger"
	"github.com/walletchat/groupwallet-service/internal/model"
	"github.com/walletchat/groupwallet-service/internal/repo"
)

type testServices struct {
	wallets      *WalletService
	transactions *TransactionService
	approvals    *ApprovalService
}

func newTestServices(t *testing.T) (testServices, context.Context) {
	// SQLite in-memory DB, one per test
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&model.Wallet{}, &model.WalletMember{},
		&model.Transaction{}, &model.Vote{}, &model.OutboxEvent{},
	))

	// Redis mock with no expectations: cache misses fall through to the DB
	// and cache write failures are only logged.
	rdb, _ := redismock.NewClientMock()

	writer := &kafka.Writer{} // not used here
	log, _ := logger.NewLogger()
	repository := repo.NewRepository(db, rdb, writer, log)

	return testServices{
		wallets:      NewWalletService(repository, log),
		transactions: NewTransactionService(repository, log),
		approvals:    NewApprovalService(repository, log),
	}, context.Background()
}

func TestCreateWallet_Validation(t *testing.T) {
	svcs, ctx := newTestServices(t)

	// threshold below 2
	_, err := svcs.wallets.CreateWallet(ctx, "Trip", model.CurrencyUSDC, 1, []string{"a", "b"}, nil)
	assert.ErrorIs(t, err, ErrValidation)

	// threshold above member count
	_, err = svcs.wallets.CreateWallet(ctx, "Trip", model.CurrencyUSDC, 3, []string{"a", "b"}, nil)
	assert.ErrorIs(t, err, ErrValidation)

	// empty member set
	_, err = svcs.wallets.CreateWallet(ctx, "Trip", model.CurrencyUSDC, 2, nil, nil)
	assert.ErrorIs(t, err, ErrValidation)

	// unknown currency
	_, err = svcs.wallets.CreateWallet(ctx, "Trip", model.Currency("DOGE"), 2, []string{"a", "b"}, nil)
	assert.ErrorIs(t, err, ErrValidation)

	// duplicate member ids collapse before validation
	_, err = svcs.wallets.CreateWallet(ctx, "Trip", model.CurrencyUSDC, 3, []string{"a", "b", "b"}, nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateWallet_Success(t *testing.T) {
	svcs, ctx := newTestServices(t)

	chatID := "chat-1"
	w, err := svcs.wallets.CreateWallet(ctx, "Trip", model.CurrencyUSDC, 2, []string{"a", "b", "c"}, &chatID)
	assert.NoError(t, err)
	assert.True(t, w.Balance.IsZero())
	assert.Equal(t, 2, w.RequiredSignatures)
	assert.Equal(t, []string{"a", "b", "c"}, w.Members)
	assert.Equal(t, &chatID, w.ChatID)

	got, err := svcs.wallets.GetWallet(ctx, w.ID)
	assert.NoError(t, err)
	assert.Equal(t, w.ID, got.ID)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, got.Members)
}

func TestGetWallet_NotFound(t *testing.T) {
	svcs, ctx := newTestServices(t)

	_, err := svcs.wallets.GetWallet(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListWalletsForUser(t *testing.T) {
	svcs, ctx := newTestServices(t)

	w1, err := svcs.wallets.CreateWallet(ctx, "One", model.CurrencyUSD, 2, []string{"a", "b"}, nil)
	assert.NoError(t, err)
	w2, err := svcs.wallets.CreateWallet(ctx, "Two", model.CurrencyBTC, 2, []string{"a", "c"}, nil)
	assert.NoError(t, err)

	ws, err := svcs.wallets.ListWalletsForUser(ctx, "a")
	assert.NoError(t, err)
	assert.Len(t, ws, 2)
	assert.Equal(t, w1.ID, ws[0].ID)
	assert.Equal(t, w2.ID, ws[1].ID)

	ws, err = svcs.wallets.ListWalletsForUser(ctx, "c")
	assert.NoError(t, err)
	assert.Len(t, ws, 1)

	// unknown user gets an empty slice, not an error
	ws, err = svcs.wallets.ListWalletsForUser(ctx, "nobody")
	assert.NoError(t, err)
	assert.Empty(t, ws)
}

func TestUpdateWallet_ThresholdInvariant(t *testing.T) {
	svcs, ctx := newTestServices(t)

	w, err := svcs.wallets.CreateWallet(ctx, "Trip", model.CurrencyUSDC, 2, []string{"a", "b", "c"}, nil)
	assert.NoError(t, err)

	// raising the threshold above the member count is rejected
	four := 4
	_, err = svcs.wallets.UpdateWallet(ctx, w.ID, UpdateWalletInput{RequiredSignatures: &four})
	assert.ErrorIs(t, err, ErrValidation)

	// shrinking members below the threshold is rejected
	_, err = svcs.wallets.UpdateWallet(ctx, w.ID, UpdateWalletInput{Members: []string{"a"}})
	assert.ErrorIs(t, err, ErrValidation)

	// the failed updates left the wallet unchanged
	got, err := svcs.wallets.GetWallet(ctx, w.ID)
	assert.NoError(t, err)
	assert.Equal(t, 2, got.RequiredSignatures)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, got.Members)

	// a consistent update of threshold and members together succeeds
	three := 3
	name := "Road Trip"
	updated, err := svcs.wallets.UpdateWallet(ctx, w.ID, UpdateWalletInput{
		Name:               &name,
		RequiredSignatures: &three,
		Members:            []string{"a", "b", "c", "d"},
	})
	assert.NoError(t, err)
	assert.Equal(t, "Road Trip", updated.Name)
	assert.Equal(t, 3, updated.RequiredSignatures)
	assert.Len(t, updated.Members, 4)
}

func TestDeleteWallet(t *testing.T) {
	svcs, ctx := newTestServices(t)

	w, err := svcs.wallets.CreateWallet(ctx, "Trip", model.CurrencyUSDC, 2, []string{"a", "b"}, nil)
	assert.NoError(t, err)

	// fund the wallet through a settled deposit
	tx, err := svcs.transactions.CreateTransaction(ctx, w.ID, model.TransactionTypeDeposit, dec(100), "seed", "a")
	assert.NoError(t, err)
	_, err = svcs.approvals.CastVote(ctx, tx.ID, "a", model.VoteApprove, "")
	assert.NoError(t, err)
	_, err = svcs.approvals.CastVote(ctx, tx.ID, "b", model.VoteApprove, "")
	assert.NoError(t, err)

	err = svcs.wallets.DeleteWallet(ctx, w.ID)
	assert.ErrorIs(t, err, ErrInvariantViolation)

	// drain the balance, then deletion succeeds
	out, err := svcs.transactions.CreateTransaction(ctx, w.ID, model.TransactionTypeWithdrawal, dec(100), "drain", "a")
	assert.NoError(t, err)
	_, err = svcs.approvals.CastVote(ctx, out.ID, "a", model.VoteApprove, "")
	assert.NoError(t, err)
	_, err = svcs.approvals.CastVote(ctx, out.ID, "b", model.VoteApprove, "")
	assert.NoError(t, err)

	assert.NoError(t, svcs.wallets.DeleteWallet(ctx, w.ID))

	_, err = svcs.wallets.GetWallet(ctx, w.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
