package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStore is the PostgreSQL-backed Store.
type GormStore struct {
	db *gorm.DB
}

// OpenGorm connects and migrates the schema.
func OpenGorm(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := db.AutoMigrate(
		&User{},
		&SessionToken{},
		&Match{},
		&MatchParticipant{},
		&Deposit{},
		&Payout{},
		&Refund{},
	); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// NewGormStore wraps an existing connection (tests supply their own).
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) UpsertUserByWallet(ctx context.Context, wallet string) (*User, error) {
	user := User{
		ID:          uuid.NewString(),
		Wallet:      wallet,
		DisplayName: shortWalletName(wallet),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "wallet"}}, DoNothing: true}).
		Create(&user).Error
	if err != nil {
		return nil, fmt.Errorf("store: upsert user: %w", err)
	}
	var out User
	if err := s.db.WithContext(ctx).Where("wallet = ?", wallet).First(&out).Error; err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func (s *GormStore) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *GormStore) UpdateProfile(ctx context.Context, id, displayName string, avatar []byte) error {
	updates := map[string]any{}
	if displayName != "" {
		updates["display_name"] = displayName
	}
	if avatar != nil {
		updates["avatar"] = avatar
	}
	if len(updates) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) AddMatchStats(ctx context.Context, userID string, won bool, earningsMinor int64) error {
	updates := map[string]any{
		"matches_played": gorm.Expr("matches_played + 1"),
		"earnings_minor": gorm.Expr("earnings_minor + ?", earningsMinor),
	}
	if won {
		updates["wins"] = gorm.Expr("wins + 1")
	}
	res := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) InsertSessionToken(ctx context.Context, token *SessionToken) error {
	return translate(s.db.WithContext(ctx).Create(token).Error)
}

func (s *GormStore) GetSessionToken(ctx context.Context, token string) (*SessionToken, error) {
	var out SessionToken
	if err := s.db.WithContext(ctx).First(&out, "token = ?", token).Error; err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func (s *GormStore) DeleteSessionToken(ctx context.Context, token string) error {
	return translate(s.db.WithContext(ctx).Delete(&SessionToken{}, "token = ?", token).Error)
}

func (s *GormStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Delete(&SessionToken{}, "expires_at < ?", now)
	return res.RowsAffected, translate(res.Error)
}

func (s *GormStore) CreateMatch(ctx context.Context, match *Match, participants []MatchParticipant) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(match).Error; err != nil {
			return translate(err)
		}
		if len(participants) > 0 {
			if err := tx.Create(&participants).Error; err != nil {
				return translate(err)
			}
		}
		return nil
	})
}

func (s *GormStore) CompleteMatch(ctx context.Context, matchID, winnerID string, endTick uint64) error {
	res := s.db.WithContext(ctx).Model(&Match{}).
		Where("id = ? AND state = ?", matchID, MatchRunning).
		Updates(map[string]any{"state": MatchComplete, "winner_id": winnerID, "end_tick": endTick})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *GormStore) VoidMatch(ctx context.Context, matchID string, endTick uint64) error {
	res := s.db.WithContext(ctx).Model(&Match{}).
		Where("id = ? AND state = ?", matchID, MatchRunning).
		Updates(map[string]any{"state": MatchVoided, "end_tick": endTick})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *GormStore) ListRunningMatches(ctx context.Context) ([]Match, error) {
	var out []Match
	err := s.db.WithContext(ctx).Where("state = ?", MatchRunning).Find(&out).Error
	return out, translate(err)
}

func (s *GormStore) MatchParticipants(ctx context.Context, matchID string) ([]MatchParticipant, error) {
	var out []MatchParticipant
	err := s.db.WithContext(ctx).Where("match_id = ?", matchID).Order("user_id").Find(&out).Error
	return out, translate(err)
}

func (s *GormStore) CreateDeposit(ctx context.Context, deposit *Deposit) error {
	err := s.db.WithContext(ctx).Create(deposit).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrExists
	}
	return translate(err)
}

func (s *GormStore) GetDeposit(ctx context.Context, id string) (*Deposit, error) {
	var out Deposit
	if err := s.db.WithContext(ctx).First(&out, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func (s *GormStore) GetDepositByTx(ctx context.Context, txHash string) (*Deposit, error) {
	var out Deposit
	if err := s.db.WithContext(ctx).First(&out, "tx_hash = ?", txHash).Error; err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func (s *GormStore) SetDepositState(ctx context.Context, id string, from, to DepositState, confirmations uint64) error {
	res := s.db.WithContext(ctx).Model(&Deposit{}).
		Where("id = ? AND state = ?", id, from).
		Updates(map[string]any{"state": to, "confirmations": confirmations})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *GormStore) CreatePayout(ctx context.Context, payout *Payout) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "match_id"}}, DoNothing: true}).
		Create(payout).Error
	return translate(err)
}

func (s *GormStore) GetPayoutByMatch(ctx context.Context, matchID string) (*Payout, error) {
	var out Payout
	if err := s.db.WithContext(ctx).First(&out, "match_id = ?", matchID).Error; err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func (s *GormStore) MarkPayoutSent(ctx context.Context, id, txHash string) error {
	return s.markTransfer(ctx, &Payout{}, id, map[string]any{"state": TransferSent, "tx_hash": txHash})
}

func (s *GormStore) MarkPayoutFailed(ctx context.Context, id, lastError string) error {
	return s.markTransfer(ctx, &Payout{}, id, map[string]any{
		"state":      TransferFailed,
		"last_error": lastError,
		"attempts":   gorm.Expr("attempts + 1"),
	})
}

func (s *GormStore) ListPendingPayouts(ctx context.Context) ([]Payout, error) {
	var out []Payout
	err := s.db.WithContext(ctx).Where("state = ?", TransferPending).Order("created_at").Find(&out).Error
	return out, translate(err)
}

func (s *GormStore) CreateRefund(ctx context.Context, refund *Refund) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "deposit_id"}}, DoNothing: true}).
		Create(refund).Error
	return translate(err)
}

func (s *GormStore) GetRefundByDeposit(ctx context.Context, depositID string) (*Refund, error) {
	var out Refund
	if err := s.db.WithContext(ctx).First(&out, "deposit_id = ?", depositID).Error; err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func (s *GormStore) MarkRefundSent(ctx context.Context, id, txHash string) error {
	return s.markTransfer(ctx, &Refund{}, id, map[string]any{"state": TransferSent, "tx_hash": txHash})
}

func (s *GormStore) MarkRefundFailed(ctx context.Context, id, lastError string) error {
	return s.markTransfer(ctx, &Refund{}, id, map[string]any{
		"state":      TransferFailed,
		"last_error": lastError,
		"attempts":   gorm.Expr("attempts + 1"),
	})
}

func (s *GormStore) ListPendingRefunds(ctx context.Context) ([]Refund, error) {
	var out []Refund
	err := s.db.WithContext(ctx).Where("state = ?", TransferPending).Order("created_at").Find(&out).Error
	return out, translate(err)
}

// markTransfer moves a payout or refund out of pending/failed. A transfer
// already marked sent never transitions again.
func (s *GormStore) markTransfer(ctx context.Context, model any, id string, updates map[string]any) error {
	res := s.db.WithContext(ctx).Model(model).
		Where("id = ? AND state <> ?", id, TransferSent).
		Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrExists
	default:
		return err
	}
}

func shortWalletName(wallet string) string {
	if len(wallet) <= 10 {
		return wallet
	}
	return wallet[:6] + "…" + wallet[len(wallet)-4:]
}
