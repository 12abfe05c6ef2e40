package service

import (
	"context"
	"time"

	"github.com/Fi44er/casino_ledger/internal/models"
	"github.com/Fi44er/casino_ledger/utils"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository interface {
	InTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error

	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, userID int64, tx *gorm.DB) (*models.Account, error)
	LockAccount(ctx context.Context, tx *gorm.DB, userID int64) (*models.Account, error)
	SaveAccount(ctx context.Context, tx *gorm.DB, account *models.Account) error

	GetRecordByTID(ctx context.Context, tid string) (*models.IdempotencyRecord, error)
	GetRecordByAction(ctx context.Context, userID int64, roundID, actionID, reqType, subtype string) (*models.IdempotencyRecord, error)
	CreateRecord(ctx context.Context, record *models.IdempotencyRecord) error
	CompleteRecord(ctx context.Context, tx *gorm.DB, id uint, response datatypes.JSON) error
	ReleaseRecord(ctx context.Context, id uint) error
	SettledRecordForAction(ctx context.Context, tx *gorm.DB, record *models.IdempotencyRecord) (*models.IdempotencyRecord, error)

	GetFreeroundBonus(ctx context.Context, tx *gorm.DB, id uint) (*models.FreeroundBonus, error)
	ActiveWagerBonuses(ctx context.Context, tx *gorm.DB, userID int64, now time.Time) ([]*models.WagerBonus, error)
	WageringFreerounds(ctx context.Context, tx *gorm.DB, userID int64, now time.Time) ([]*models.FreeroundBonus, error)
	OpenFreeroundsForGame(ctx context.Context, tx *gorm.DB, userID int64, gameID string, now time.Time) ([]*models.FreeroundBonus, error)
	GetFreeroundByToken(ctx context.Context, tx *gorm.DB, userID int64, token string, now time.Time) (*models.FreeroundBonus, error)
	SaveWagerBonus(ctx context.Context, tx *gorm.DB, bonus *models.WagerBonus) error
	SaveFreeroundBonus(ctx context.Context, tx *gorm.DB, bonus *models.FreeroundBonus) error
	UsersWithExpiredBonuses(ctx context.Context, now time.Time) ([]int64, error)
	ExpiredWagerBonuses(ctx context.Context, tx *gorm.DB, userID int64, now time.Time) ([]*models.WagerBonus, error)
	ExpiredFreerounds(ctx context.Context, tx *gorm.DB, userID int64, now time.Time) ([]*models.FreeroundBonus, error)

	AppendEntry(ctx context.Context, tx *gorm.DB, entry *models.LedgerEntry) error
	FindEntryByTID(ctx context.Context, tx *gorm.DB, userID int64, tid string) (*models.LedgerEntry, error)
	FindLatestEntryByAction(ctx context.Context, tx *gorm.DB, userID int64, roundID, actionID string, kind models.EntryKind) (*models.LedgerEntry, error)
	IsReversed(ctx context.Context, tx *gorm.DB, entryID string) (bool, error)

	GetRound(ctx context.Context, tx *gorm.DB, userID int64, roundID string) (*models.GameRound, error)
	GetOrCreateRound(ctx context.Context, tx *gorm.DB, userID int64, roundID, gameID string) (*models.GameRound, error)
	SaveRound(ctx context.Context, tx *gorm.DB, round *models.GameRound) error
}

type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// Notifier delivers operational alerts to whoever watches the ledger.
type Notifier interface {
	Notify(message string)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}

type Service struct {
	repo            Repository
	converter       Converter
	notifier        Notifier
	logger          *utils.Logger
	pointsRate      decimal.Decimal
	defaultCurrency string
	now             func() time.Time
}

type Options struct {
	PointsRate      decimal.Decimal
	DefaultCurrency string
	Notifier        Notifier
}

func NewLedgerService(repo Repository, converter Converter, opts Options, logger *utils.Logger) *Service {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{
		repo:            repo,
		converter:       converter,
		notifier:        notifier,
		logger:          logger,
		pointsRate:      opts.PointsRate,
		defaultCurrency: opts.DefaultCurrency,
		now:             time.Now,
	}
}

func (s *Service) Notifier() Notifier {
	return s.notifier
}

// SetNotifier replaces the alert sink. Call it before serving requests.
func (s *Service) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.notifier = n
}
