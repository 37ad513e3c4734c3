package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/walletchat/groupwallet-service/internal/model"
	"github.com/walletchat/groupwallet-service/internal/repo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ApprovalService is the approval state machine. CastVote is the only way a
// transaction leaves the pending state, and the settlement inside it is the
// single balance-mutating point of the whole service.
type ApprovalService struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger

	// Per-transaction locks: at most one CastVote evaluation runs per
	// transaction id. Votes on different transactions proceed in parallel.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewApprovalService returns ApprovalService.
func NewApprovalService(r repo.RepositoryInterface, logger *zap.SugaredLogger) *ApprovalService {
	return &ApprovalService{repo: r, log: logger, locks: make(map[string]*sync.Mutex)}
}

func (s *ApprovalService) lockFor(txID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[txID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[txID] = l
	}
	return l
}

// CastVote records one member's approve/reject vote and evaluates the
// threshold. Crossing the approval threshold settles the wallet balance
// exactly once and marks the transaction completed; crossing the rejection
// threshold marks it rejected with no balance change. Rejection uses the same
// threshold as approval.
//
// The signature string is stored opaquely alongside the vote; it is never
// verified.
func (s *ApprovalService) CastVote(ctx context.Context, txID, userID string, choice model.VoteChoice, signature string) (*model.Transaction, error) {
	if choice != model.VoteApprove && choice != model.VoteReject {
		return nil, fmt.Errorf("%w: unknown vote choice %q", ErrValidation, choice)
	}

	l := s.lockFor(txID)
	l.Lock()
	defer l.Unlock()

	var out *model.Transaction
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.repo.GetTransactionForUpdate(ctx, tx, txID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if t.Status.Terminal() {
			return ErrInvalidState
		}
		member, err := s.repo.IsMember(ctx, tx, t.WalletID, userID)
		if err != nil {
			return err
		}
		if !member {
			return ErrForbidden
		}
		voted, err := s.repo.HasVoted(ctx, tx, txID, userID)
		if err != nil {
			return err
		}
		if voted {
			return ErrDuplicateVote
		}

		v := &model.Vote{TransactionID: txID, UserID: userID, Choice: choice, Signature: signature}
		if err := s.repo.CreateVote(ctx, tx, v); err != nil {
			return err
		}

		w, err := s.repo.GetWalletForUpdate(ctx, tx, t.WalletID)
		if err != nil {
			return err
		}

		switch choice {
		case model.VoteApprove:
			approvals, err := s.repo.CountVotes(ctx, tx, txID, model.VoteApprove)
			if err != nil {
				return err
			}
			if approvals >= int64(w.RequiredSignatures) {
				if err := s.settle(ctx, tx, t, w); err != nil {
					return err
				}
			}
		case model.VoteReject:
			rejections, err := s.repo.CountVotes(ctx, tx, txID, model.VoteReject)
			if err != nil {
				return err
			}
			if rejections >= int64(w.RequiredSignatures) {
				t.Status = model.TransactionStatusRejected
				if err := s.repo.SaveTransaction(ctx, tx, t); err != nil {
					return err
				}
				payload, _ := json.Marshal(map[string]interface{}{
					"transaction_id": t.ID, "wallet_id": t.WalletID, "rejections": rejections,
				})
				evt := &model.OutboxEvent{
					Aggregate: "Transaction", AggregateID: t.ID,
					EventType: model.EventTransactionRejected, Payload: string(payload),
				}
				if err := s.repo.CreateOutboxEvent(ctx, tx, evt); err != nil {
					return err
				}
			}
		}

		if err := attachVotes(ctx, s.repo, tx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidState),
			errors.Is(err, ErrForbidden), errors.Is(err, ErrDuplicateVote),
			errors.Is(err, ErrValidation):
			return nil, err
		}
		return nil, fmt.Errorf("cast vote: %w", err)
	}
	return out, nil
}

// settle applies the balance mutation for an approved transaction and marks
// it completed, all inside the caller's DB transaction. The pending check in
// CastVote makes re-evaluation after the threshold has crossed impossible, so
// the mutation runs at most once per transaction.
func (s *ApprovalService) settle(ctx context.Context, tx *gorm.DB, t *model.Transaction, w *model.Wallet) error {
	newBal := w.Balance
	switch t.Type {
	case model.TransactionTypeDeposit:
		newBal = newBal.Add(t.Amount)
	case model.TransactionTypeWithdrawal:
		newBal = newBal.Sub(t.Amount)
	}
	if err := s.repo.UpdateWalletBalance(ctx, tx, w.ID, newBal, w.Version); err != nil {
		return err
	}

	// approved and completed collapse into one transition: settlement is
	// immediate, the stored terminal status is completed.
	t.Status = model.TransactionStatusCompleted
	if err := s.repo.SaveTransaction(ctx, tx, t); err != nil {
		return err
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"transaction_id": t.ID, "wallet_id": w.ID, "type": t.Type,
		"amount": t.Amount, "balance": newBal,
		"status_path": []model.TransactionStatus{model.TransactionStatusApproved, model.TransactionStatusCompleted},
	})
	evt := &model.OutboxEvent{
		Aggregate: "Transaction", AggregateID: t.ID,
		EventType: model.EventTransactionSettled, Payload: string(payload),
	}
	if err := s.repo.CreateOutboxEvent(ctx, tx, evt); err != nil {
		return err
	}

	if err := s.repo.CacheBalance(ctx, w.ID, newBal); err != nil {
		s.log.Warnf("cache balance %s: %v", w.ID, err)
	}
	return nil
}
