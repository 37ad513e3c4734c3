package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/walletchat/groupwallet-service/internal/model"
	"github.com/walletchat/groupwallet-service/internal/repo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TransactionService is the ledger: it creates pending transactions and lists
// a wallet's history. Status changes are the approval service's job.
type TransactionService struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

// NewTransactionService returns TransactionService.
func NewTransactionService(r repo.RepositoryInterface, logger *zap.SugaredLogger) *TransactionService {
	return &TransactionService{repo: r, log: logger}
}

// CreateTransaction records a proposed balance movement in pending state with
// empty vote sets. The balance does not change until the approval threshold
// is crossed.
func (s *TransactionService) CreateTransaction(ctx context.Context, walletID string, txType model.TransactionType, amount decimal.Decimal, description, createdBy string) (*model.Transaction, error) {
	if !txType.Valid() {
		return nil, fmt.Errorf("%w: unknown transaction type %q", ErrValidation, txType)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	t := &model.Transaction{
		ID:          uuid.NewString(),
		WalletID:    walletID,
		Type:        txType,
		Amount:      amount,
		Description: description,
		CreatedBy:   createdBy,
		Status:      model.TransactionStatusPending,
	}
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.repo.GetWallet(ctx, tx, walletID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		member, err := s.repo.IsMember(ctx, tx, walletID, createdBy)
		if err != nil {
			return err
		}
		if !member {
			return fmt.Errorf("%w: creator %s is not a member", ErrValidation, createdBy)
		}
		if err := s.repo.CreateTransaction(ctx, tx, t); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"transaction_id": t.ID, "wallet_id": walletID,
			"type": t.Type, "amount": amount, "created_by": createdBy,
		})
		evt := &model.OutboxEvent{
			Aggregate: "Transaction", AggregateID: t.ID,
			EventType: model.EventTransactionCreated, Payload: string(payload),
		}
		return s.repo.CreateOutboxEvent(ctx, tx, evt)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	t.ApprovedBy = []string{}
	t.RejectedBy = []string{}
	return t, nil
}

// ListTransactionsForWallet returns the wallet's transactions newest first
// with vote sets attached. Unknown wallets yield an empty slice so list views
// stay resilient.
func (s *TransactionService) ListTransactionsForWallet(ctx context.Context, walletID string) ([]model.Transaction, error) {
	txs, err := s.repo.ListTransactionsForWallet(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	db := s.repo.DB(ctx)
	for i := range txs {
		if err := attachVotes(ctx, s.repo, db, &txs[i]); err != nil {
			return nil, err
		}
	}
	return txs, nil
}

// DeleteTransaction removes a pending transaction. Only the creator may
// delete, and settled or rejected records are kept as history.
func (s *TransactionService) DeleteTransaction(ctx context.Context, txID, userID string) error {
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.repo.GetTransactionForUpdate(ctx, tx, txID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if t.CreatedBy != userID {
			return ErrForbidden
		}
		if t.Status.Terminal() {
			return ErrInvalidState
		}
		return s.repo.DeleteTransaction(ctx, tx, txID)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrInvalidState) {
			return err
		}
		return fmt.Errorf("delete transaction: %w", err)
	}
	return nil
}

// attachVotes fills a transaction's ApprovedBy/RejectedBy slices from vote
// rows, in submission order.
func attachVotes(ctx context.Context, r repo.RepositoryInterface, db *gorm.DB, t *model.Transaction) error {
	votes, err := r.ListVotes(ctx, db, t.ID)
	if err != nil {
		return fmt.Errorf("list votes: %w", err)
	}
	t.ApprovedBy = []string{}
	t.RejectedBy = []string{}
	for _, v := range votes {
		if v.Choice == model.VoteApprove {
			t.ApprovedBy = append(t.ApprovedBy, v.UserID)
		} else {
			t.RejectedBy = append(t.RejectedBy, v.UserID)
		}
	}
	return nil
}
