package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Account struct {
	UserID       int64           `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Currency     string          `gorm:"type:varchar(8);not null" json:"currency"`
	MainBalance  decimal.Decimal `gorm:"type:numeric(24,8);not null;default:0" json:"main_balance"`
	BonusBalance decimal.Decimal `gorm:"type:numeric(24,8);not null;default:0" json:"bonus_balance"`
	TotalWagered decimal.Decimal `gorm:"type:numeric(24,8);not null;default:0" json:"total_wagered"`
	Points       decimal.Decimal `gorm:"type:numeric(24,8);not null;default:0" json:"points"`
	Active       bool            `gorm:"not null;default:true" json:"active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (a *Account) Total() decimal.Decimal {
	return a.MainBalance.Add(a.BonusBalance)
}

type IdempotencyState string

const (
	StatePending   IdempotencyState = "pending"
	StateCommitted IdempotencyState = "committed"
)

// IdempotencyRecord is written on first sight of a tid and completed once
// the outcome is known. Request and Response keep the wire field order.
type IdempotencyRecord struct {
	ID       uint             `gorm:"primaryKey" json:"id"`
	TID      string           `gorm:"column:tid;size:128;not null;uniqueIndex" json:"tid"`
	Type     string           `gorm:"size:16;not null;index:idx_idem_action,priority:4" json:"type"`
	Subtype  string           `gorm:"size:16;not null;default:'';index:idx_idem_action,priority:5" json:"subtype"`
	UserID   int64            `gorm:"not null;index:idx_idem_action,priority:1" json:"user_id"`
	Currency string           `gorm:"size:8" json:"currency"`
	Amount   decimal.Decimal  `gorm:"type:numeric(24,8);not null;default:0" json:"amount"`
	RoundID  string           `gorm:"size:128;index:idx_idem_action,priority:2" json:"round_id"`
	ActionID string           `gorm:"size:128;index:idx_idem_action,priority:3" json:"action_id"`
	State    IdempotencyState `gorm:"size:16;not null;default:'pending'" json:"state"`
	Request  datatypes.JSON   `json:"request"`
	Response datatypes.JSON   `json:"response"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type BonusStatus string

const (
	BonusActive    BonusStatus = "active"
	BonusWagering  BonusStatus = "wagering"
	BonusCompleted BonusStatus = "completed"
	BonusExpired   BonusStatus = "expired"
)

// WagerBonus is a promotional bonus granted by deposit/promotion logic.
type WagerBonus struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	UserID         int64           `gorm:"not null;index:idx_wager_user_status,priority:1" json:"user_id"`
	RequiredWager  decimal.Decimal `gorm:"type:numeric(24,8);not null;default:0" json:"required_wager"`
	CompletedWager decimal.Decimal `gorm:"type:numeric(24,8);not null;default:0" json:"completed_wager"`
	WinAmount      decimal.Decimal `gorm:"type:numeric(24,8);not null;default:0" json:"win_amount"`
	Status         BonusStatus     `gorm:"size:16;not null;default:'active';index:idx_wager_user_status,priority:2" json:"status"`
	ExpiresAt      *time.Time      `gorm:"index" json:"expires_at"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// FreeroundBonus is a grant of free spins on one game. Its winnings sit on
// the bonus balance until wagered.
type FreeroundBonus struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	UserID         int64           `gorm:"not null;index:idx_freeround_user_game,priority:1" json:"user_id"`
	GameID         string          `gorm:"size:128;not null;index:idx_freeround_user_game,priority:2" json:"game_id"`
	Token          string          `gorm:"size:128;index" json:"token"`
	Multiplier     decimal.Decimal `gorm:"type:numeric(12,4);not null;default:0" json:"multiplier"`
	WinAmount      decimal.Decimal `gorm:"type:numeric(24,8);not null;default:0" json:"win_amount"`
	RequiredWager  decimal.Decimal `gorm:"type:numeric(24,8);not null;default:0" json:"required_wager"`
	CompletedWager decimal.Decimal `gorm:"type:numeric(24,8);not null;default:0" json:"completed_wager"`
	Status         BonusStatus     `gorm:"size:16;not null;default:'active'" json:"status"`
	ExpiresAt      *time.Time      `gorm:"index" json:"expires_at"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type EntryKind string

const (
	EntryBet           EntryKind = "bet"
	EntryWin           EntryKind = "win"
	EntryRollback      EntryKind = "rollback"
	EntryBonusTransfer EntryKind = "bonus_transfer"
	EntryBonusForfeit  EntryKind = "bonus_forfeit"
	EntryDeposit       EntryKind = "deposit"
	EntryWithdrawal    EntryKind = "withdrawal"
)

// LedgerEntry is append-only. Amounts are in the account currency;
// MainDelta and BonusDelta record how each balance moved.
type LedgerEntry struct {
	ID              string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID          int64           `gorm:"not null;index:idx_entry_round,priority:1" json:"user_id"`
	Kind            EntryKind       `gorm:"size:24;not null;index:idx_entry_round,priority:4" json:"kind"`
	Amount          decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"amount"`
	MainDelta       decimal.Decimal `gorm:"type:numeric(24,8);not null;default:0" json:"main_delta"`
	BonusDelta      decimal.Decimal `gorm:"type:numeric(24,8);not null;default:0" json:"bonus_delta"`
	PointsDelta     decimal.Decimal `gorm:"type:numeric(24,8);not null;default:0" json:"points_delta"`
	Currency        string          `gorm:"size:8;not null" json:"currency"`
	RequestAmount   decimal.Decimal `gorm:"type:numeric(24,8);not null;default:0" json:"request_amount"`
	RequestCurrency string          `gorm:"size:8" json:"request_currency"`
	TID             string          `gorm:"column:tid;size:128;index" json:"tid"`
	RoundID         string          `gorm:"size:128;index:idx_entry_round,priority:2" json:"round_id"`
	ActionID        string          `gorm:"size:128;index:idx_entry_round,priority:3" json:"action_id"`
	GameID          string          `gorm:"size:128" json:"game_id"`
	BonusID         *uint           `json:"bonus_id,omitempty"`
	ReversesID      *string         `gorm:"type:varchar(36);index" json:"reverses_id,omitempty"`
	CreatedAt       time.Time       `gorm:"index" json:"created_at"`
}

func (e *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// GameRound aggregates the bets and wins of one round for one user.
type GameRound struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UserID    int64           `gorm:"not null;uniqueIndex:idx_round_user,priority:1" json:"user_id"`
	RoundID   string          `gorm:"size:128;not null;uniqueIndex:idx_round_user,priority:2" json:"round_id"`
	GameID    string          `gorm:"size:128" json:"game_id"`
	BetTotal  decimal.Decimal `gorm:"type:numeric(24,8);not null;default:0" json:"bet_total"`
	WinTotal  decimal.Decimal `gorm:"type:numeric(24,8);not null;default:0" json:"win_total"`
	Debits    int             `gorm:"not null;default:0" json:"debits"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
