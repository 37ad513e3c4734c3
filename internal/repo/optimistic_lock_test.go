package repo

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/walletchat/groupwallet-service/internal/logger"
	"github.com/walletchat/groupwallet-service/internal/model"
)

func TestUpdateWalletBalance_OptimisticLock(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:optlock?mode=memory&cache=shared"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&model.Wallet{}))

	// seed wallet
	seed := &model.Wallet{
		ID: "w1", Name: "Trip", Currency: model.CurrencyUSDC,
		Balance: decimal.NewFromInt(100), RequiredSignatures: 2,
	}
	assert.NoError(t, db.Create(seed).Error)

	r := NewRepository(db, nil, &kafka.Writer{}, must(logger.NewLogger()))
	ctx := context.Background()

	w, err := r.GetWallet(ctx, db, "w1")
	assert.NoError(t, err)

	// first writer wins
	err = r.UpdateWalletBalance(ctx, db, "w1", w.Balance.Add(decimal.NewFromInt(10)), w.Version)
	assert.NoError(t, err)

	// a second writer holding the stale version loses
	err = r.UpdateWalletBalance(ctx, db, "w1", w.Balance.Sub(decimal.NewFromInt(10)), w.Version)
	assert.ErrorIs(t, err, ErrOptimisticLock)

	var final model.Wallet
	assert.NoError(t, db.First(&final, "id = ?", "w1").Error)
	assert.Equal(t, "110", final.Balance.StringFixed(0))
	assert.Equal(t, uint64(1), final.Version)
}

func TestVote_CompositeKeyRejectsDuplicates(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:votedup?mode=memory&cache=shared"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&model.Vote{}))

	r := NewRepository(db, nil, &kafka.Writer{}, must(logger.NewLogger()))
	ctx := context.Background()

	v := &model.Vote{TransactionID: "t1", UserID: "a", Choice: model.VoteApprove}
	assert.NoError(t, r.CreateVote(ctx, db, v))

	// same user, opposite choice: the primary key makes this impossible
	dup := &model.Vote{TransactionID: "t1", UserID: "a", Choice: model.VoteReject}
	assert.Error(t, r.CreateVote(ctx, db, dup))

	n, err := r.CountVotes(ctx, db, "t1", model.VoteApprove)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func must(l *zap.SugaredLogger, err error) *zap.SugaredLogger {
	if err != nil {
		panic(err)
	}
	return l
}
