package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/walletchat/groupwallet-service/internal/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RepositoryInterface restricts Repo methods so services can be unit-tested
// against a narrow surface.
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB

	CreateWallet(ctx context.Context, tx *gorm.DB, w *model.Wallet, memberIDs []string) error
	GetWallet(ctx context.Context, tx *gorm.DB, walletID string) (*model.Wallet, error)
	GetWalletForUpdate(ctx context.Context, tx *gorm.DB, walletID string) (*model.Wallet, error)
	SaveWallet(ctx context.Context, tx *gorm.DB, w *model.Wallet) error
	UpdateWalletBalance(ctx context.Context, tx *gorm.DB, walletID string, newBalance decimal.Decimal, oldVersion uint64) error
	DeleteWallet(ctx context.Context, tx *gorm.DB, walletID string) error
	ListWalletsForUser(ctx context.Context, userID string) ([]model.Wallet, error)

	ListMembers(ctx context.Context, tx *gorm.DB, walletID string) ([]string, error)
	IsMember(ctx context.Context, tx *gorm.DB, walletID, userID string) (bool, error)
	ReplaceMembers(ctx context.Context, tx *gorm.DB, walletID string, memberIDs []string) error

	CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error
	GetTransactionForUpdate(ctx context.Context, tx *gorm.DB, txID string) (*model.Transaction, error)
	SaveTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error
	DeleteTransaction(ctx context.Context, tx *gorm.DB, txID string) error
	ListTransactionsForWallet(ctx context.Context, walletID string) ([]model.Transaction, error)

	CreateVote(ctx context.Context, tx *gorm.DB, v *model.Vote) error
	HasVoted(ctx context.Context, tx *gorm.DB, txID, userID string) (bool, error)
	CountVotes(ctx context.Context, tx *gorm.DB, txID string, choice model.VoteChoice) (int64, error)
	ListVotes(ctx context.Context, tx *gorm.DB, txID string) ([]model.Vote, error)

	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error

	CacheBalance(ctx context.Context, walletID string, bal decimal.Decimal) error
	GetCachedBalance(ctx context.Context, walletID string) (decimal.Decimal, error)
}

// Repository implements RepositoryInterface.
type Repository struct {
	db     *gorm.DB
	rdb    *redis.Client
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// CreateWallet inserts the wallet row and its member rows.
func (r *Repository) CreateWallet(ctx context.Context, tx *gorm.DB, w *model.Wallet, memberIDs []string) error {
	if err := tx.WithContext(ctx).Create(w).Error; err != nil {
		return err
	}
	for _, uid := range memberIDs {
		m := model.WalletMember{WalletID: w.ID, UserID: uid}
		if err := tx.WithContext(ctx).Create(&m).Error; err != nil {
			return err
		}
	}
	return nil
}

// GetWallet fetches a wallet by id.
func (r *Repository) GetWallet(ctx context.Context, tx *gorm.DB, walletID string) (*model.Wallet, error) {
	var w model.Wallet
	if err := tx.WithContext(ctx).Where("id = ?", walletID).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWalletForUpdate locks wallet row.
func (r *Repository) GetWalletForUpdate(ctx context.Context, tx *gorm.DB, walletID string) (*model.Wallet, error) {
	var w model.Wallet
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", walletID).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// SaveWallet persists field changes on an already-loaded wallet.
func (r *Repository) SaveWallet(ctx context.Context, tx *gorm.DB, w *model.Wallet) error {
	return tx.WithContext(ctx).Save(w).Error
}

// UpdateWalletBalance applies a settlement with an optimistic lock on the
// wallet version.
func (r *Repository) UpdateWalletBalance(ctx context.Context, tx *gorm.DB, walletID string, newBalance decimal.Decimal, oldVersion uint64) error {
	res := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("id = ? AND version = ?", walletID, oldVersion).
		Updates(map[string]interface{}{
			"balance":    newBalance,
			"version":    oldVersion + 1,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	return nil
}

// DeleteWallet removes the wallet row and its member rows.
func (r *Repository) DeleteWallet(ctx context.Context, tx *gorm.DB, walletID string) error {
	if err := tx.WithContext(ctx).Where("wallet_id = ?", walletID).Delete(&model.WalletMember{}).Error; err != nil {
		return err
	}
	return tx.WithContext(ctx).Where("id = ?", walletID).Delete(&model.Wallet{}).Error
}

// ListWalletsForUser returns every wallet the user is a member of, stable by
// creation time.
func (r *Repository) ListWalletsForUser(ctx context.Context, userID string) ([]model.Wallet, error) {
	var ws []model.Wallet
	err := r.db.WithContext(ctx).
		Joins("JOIN wallet_member ON wallet_member.wallet_id = wallet.id").
		Where("wallet_member.user_id = ?", userID).
		Order("wallet.created_at").
		Find(&ws).Error
	return ws, err
}

// ListMembers returns the member ids of a wallet.
func (r *Repository) ListMembers(ctx context.Context, tx *gorm.DB, walletID string) ([]string, error) {
	var ids []string
	err := tx.WithContext(ctx).
		Model(&model.WalletMember{}).
		Where("wallet_id = ?", walletID).
		Order("created_at").
		Pluck("user_id", &ids).Error
	return ids, err
}

// IsMember checks wallet membership.
func (r *Repository) IsMember(ctx context.Context, tx *gorm.DB, walletID, userID string) (bool, error) {
	var n int64
	err := tx.WithContext(ctx).
		Model(&model.WalletMember{}).
		Where("wallet_id = ? AND user_id = ?", walletID, userID).
		Count(&n).Error
	return n > 0, err
}

// ReplaceMembers swaps the wallet's member set.
func (r *Repository) ReplaceMembers(ctx context.Context, tx *gorm.DB, walletID string, memberIDs []string) error {
	if err := tx.WithContext(ctx).Where("wallet_id = ?", walletID).Delete(&model.WalletMember{}).Error; err != nil {
		return err
	}
	for _, uid := range memberIDs {
		m := model.WalletMember{WalletID: walletID, UserID: uid}
		if err := tx.WithContext(ctx).Create(&m).Error; err != nil {
			return err
		}
	}
	return nil
}

// CreateTransaction inserts record.
func (r *Repository) CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	return tx.WithContext(ctx).Create(t).Error
}

// GetTransactionForUpdate locks the transaction row for the vote evaluation.
func (r *Repository) GetTransactionForUpdate(ctx context.Context, tx *gorm.DB, txID string) (*model.Transaction, error) {
	var t model.Transaction
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", txID).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveTransaction persists status changes.
func (r *Repository) SaveTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	return tx.WithContext(ctx).Save(t).Error
}

// DeleteTransaction removes a transaction and its votes.
func (r *Repository) DeleteTransaction(ctx context.Context, tx *gorm.DB, txID string) error {
	if err := tx.WithContext(ctx).Where("transaction_id = ?", txID).Delete(&model.Vote{}).Error; err != nil {
		return err
	}
	return tx.WithContext(ctx).Where("id = ?", txID).Delete(&model.Transaction{}).Error
}

// ListTransactionsForWallet returns the wallet's transactions newest first.
// The ordering is a contract the chat UI depends on.
func (r *Repository) ListTransactionsForWallet(ctx context.Context, walletID string) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at desc").
		Find(&txs).Error
	return txs, err
}

// CreateVote inserts a vote row. The composite primary key rejects a second
// vote by the same user.
func (r *Repository) CreateVote(ctx context.Context, tx *gorm.DB, v *model.Vote) error {
	return tx.WithContext(ctx).Create(v).Error
}

// HasVoted checks both vote sets at once.
func (r *Repository) HasVoted(ctx context.Context, tx *gorm.DB, txID, userID string) (bool, error) {
	var n int64
	err := tx.WithContext(ctx).
		Model(&model.Vote{}).
		Where("transaction_id = ? AND user_id = ?", txID, userID).
		Count(&n).Error
	return n > 0, err
}

// CountVotes tallies one side of a transaction's vote sets.
func (r *Repository) CountVotes(ctx context.Context, tx *gorm.DB, txID string, choice model.VoteChoice) (int64, error) {
	var n int64
	err := tx.WithContext(ctx).
		Model(&model.Vote{}).
		Where("transaction_id = ? AND choice = ?", txID, choice).
		Count(&n).Error
	return n, err
}

// ListVotes returns all votes for a transaction in submission order.
func (r *Repository) ListVotes(ctx context.Context, tx *gorm.DB, txID string) ([]model.Vote, error) {
	var vs []model.Vote
	err := tx.WithContext(ctx).
		Where("transaction_id = ?", txID).
		Order("created_at").
		Find(&vs).Error
	return vs, err
}

// CreateOutboxEvent writes event.
func (r *Repository) CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error {
	return tx.WithContext(ctx).Create(evt).Error
}

// PollOutbox pulls unprocessed events.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).Where("processed=false").Order("created_at").Limit(limit).Find(&evts).Error
	return evts, err
}

// MarkOutboxProcessed sets processed flag.
func (r *Repository) MarkOutboxProcessed(ctx context.Context, id uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id=?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
}

// PublishEvent sends to Kafka.
func (r *Repository) PublishEvent(ctx context.Context, evt model.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%s:%d", evt.AggregateID, evt.ID)),
		Value: []byte(evt.Payload),
		Time:  time.Now(),
	}
	return r.writer.WriteMessages(ctx, msg)
}

// CacheBalance writes Redis.
func (r *Repository) CacheBalance(ctx context.Context, walletID string, bal decimal.Decimal) error {
	return r.rdb.Set(ctx, "balance:"+walletID, bal.String(), 5*time.Minute).Err()
}

// GetCachedBalance reads Redis.
func (r *Repository) GetCachedBalance(ctx context.Context, walletID string) (decimal.Decimal, error) {
	str, err := r.rdb.Get(ctx, "balance:"+walletID).Result()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(str)
}
