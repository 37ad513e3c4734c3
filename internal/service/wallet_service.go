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

// WalletService owns wallet records: creation with a required-signature
// threshold, lookup, membership-scoped listing, partial update and deletion.
type WalletService struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

// NewWalletService returns WalletService.
func NewWalletService(r repo.RepositoryInterface, logger *zap.SugaredLogger) *WalletService {
	return &WalletService{repo: r, log: logger}
}

// UpdateWalletInput carries the fields a wallet update may change. Nil
// pointers and a nil member slice mean "leave as is".
type UpdateWalletInput struct {
	Name               *string
	Currency           *model.Currency
	RequiredSignatures *int
	Members            []string
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func validateThreshold(required int, members []string) error {
	if len(members) == 0 {
		return fmt.Errorf("%w: wallet needs at least one member", ErrValidation)
	}
	if required < 2 {
		return fmt.Errorf("%w: required signatures must be at least 2", ErrValidation)
	}
	if required > len(members) {
		return fmt.Errorf("%w: required signatures %d exceed member count %d", ErrValidation, required, len(members))
	}
	return nil
}

// CreateWallet creates a group wallet with a zero balance. The threshold
// invariant 2 <= requiredSignatures <= |members| is enforced here and on
// every update.
func (s *WalletService) CreateWallet(ctx context.Context, name string, currency model.Currency, requiredSignatures int, members []string, chatID *string) (*model.Wallet, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: wallet name is required", ErrValidation)
	}
	if !currency.Valid() {
		return nil, fmt.Errorf("%w: unsupported currency %q", ErrValidation, currency)
	}
	members = dedupe(members)
	if err := validateThreshold(requiredSignatures, members); err != nil {
		return nil, err
	}

	w := &model.Wallet{
		ID:                 uuid.NewString(),
		Name:               name,
		Currency:           currency,
		Balance:            decimal.Zero,
		RequiredSignatures: requiredSignatures,
		ChatID:             chatID,
	}
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.CreateWallet(ctx, tx, w, members); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"wallet_id": w.ID, "name": w.Name, "currency": w.Currency,
			"required_signatures": w.RequiredSignatures, "members": members,
		})
		evt := &model.OutboxEvent{
			Aggregate: "Wallet", AggregateID: w.ID,
			EventType: model.EventWalletCreated, Payload: string(payload),
		}
		return s.repo.CreateOutboxEvent(ctx, tx, evt)
	})
	if err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	w.Members = members
	return w, nil
}

// GetWallet fetches a wallet with its member set.
func (s *WalletService) GetWallet(ctx context.Context, id string) (*model.Wallet, error) {
	db := s.repo.DB(ctx)
	w, err := s.repo.GetWallet(ctx, db, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	members, err := s.repo.ListMembers(ctx, db, id)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	w.Members = members
	return w, nil
}

// GetBalance returns the wallet balance, preferring the cache.
func (s *WalletService) GetBalance(ctx context.Context, walletID string) (decimal.Decimal, error) {
	if bal, err := s.repo.GetCachedBalance(ctx, walletID); err == nil {
		return bal, nil
	}
	w, err := s.repo.GetWallet(ctx, s.repo.DB(ctx), walletID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	if err := s.repo.CacheBalance(ctx, walletID, w.Balance); err != nil {
		s.log.Warnf("cache balance %s: %v", walletID, err)
	}
	return w.Balance, nil
}

// ListWalletsForUser returns every wallet the user belongs to, stable by
// creation time. Unknown users yield an empty slice, not an error.
func (s *WalletService) ListWalletsForUser(ctx context.Context, userID string) ([]model.Wallet, error) {
	ws, err := s.repo.ListWalletsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	db := s.repo.DB(ctx)
	for i := range ws {
		members, err := s.repo.ListMembers(ctx, db, ws[i].ID)
		if err != nil {
			return nil, fmt.Errorf("list members: %w", err)
		}
		ws[i].Members = members
	}
	return ws, nil
}

// UpdateWallet merges the provided fields and re-validates the threshold
// invariant against the possibly-new member set. A failing validation leaves
// the wallet untouched.
func (s *WalletService) UpdateWallet(ctx context.Context, id string, upd UpdateWalletInput) (*model.Wallet, error) {
	var out *model.Wallet
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := s.repo.GetWalletForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		members, err := s.repo.ListMembers(ctx, tx, id)
		if err != nil {
			return err
		}

		if upd.Name != nil {
			w.Name = *upd.Name
		}
		if upd.Currency != nil {
			if !upd.Currency.Valid() {
				return fmt.Errorf("%w: unsupported currency %q", ErrValidation, *upd.Currency)
			}
			w.Currency = *upd.Currency
		}
		if upd.RequiredSignatures != nil {
			w.RequiredSignatures = *upd.RequiredSignatures
		}
		if upd.Members != nil {
			members = dedupe(upd.Members)
		}
		if err := validateThreshold(w.RequiredSignatures, members); err != nil {
			return err
		}

		if upd.Members != nil {
			if err := s.repo.ReplaceMembers(ctx, tx, id, members); err != nil {
				return err
			}
		}
		if err := s.repo.SaveWallet(ctx, tx, w); err != nil {
			return err
		}
		w.Members = members
		out = w
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("update wallet: %w", err)
	}
	return out, nil
}

// DeleteWallet removes a wallet. Wallets still holding funds cannot be
// deleted.
func (s *WalletService) DeleteWallet(ctx context.Context, id string) error {
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := s.repo.GetWalletForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !w.Balance.IsZero() {
			return fmt.Errorf("%w: wallet balance is %s, must be zero", ErrInvariantViolation, w.Balance)
		}
		return s.repo.DeleteWallet(ctx, tx, id)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvariantViolation) {
			return err
		}
		return fmt.Errorf("delete wallet: %w", err)
	}
	return nil
}

// Repo exposes underlying repository (unit tests helper).
func (s *WalletService) Repo() repo.RepositoryInterface {
	return s.repo
}
