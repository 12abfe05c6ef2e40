package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Fi44er/casino_ledger/internal/currency"
	"github.com/Fi44er/casino_ledger/internal/models"
	"github.com/Fi44er/casino_ledger/internal/service"
	"github.com/shopspring/decimal"
)

const (
	TypePing      = "ping"
	TypeBalance   = "balance"
	TypeDebit     = "debit"
	TypeCredit    = "credit"
	TypeRollback  = "rollback"
	TypeRoundInfo = "roundinfo"

	SubtypeCancel = "cancel"
)

// flexString accepts both JSON strings and numbers; ids arrive as either.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = flexString(n.String())
	return nil
}

// Request is the aggregator's callback body.
type Request struct {
	Type        string          `json:"type"`
	Subtype     string          `json:"subtype"`
	UserID      flexString      `json:"userid"`
	Currency    string          `json:"currency"`
	Amount      decimal.Decimal `json:"amount"`
	TID         flexString      `json:"tid"`
	RoundID     flexString      `json:"i_gameid"`
	ActionID    flexString      `json:"i_actionid"`
	RollbackTID flexString      `json:"i_rollback"`
	GameID      flexString      `json:"game_id"`
	FreeroundID flexString      `json:"freeround_id"`
	HMAC        string          `json:"hmac"`
}

var (
	errUnsupportedType = errors.New("unsupported type")
	errBadUserID       = errors.New("malformed userid")
	errMissingTID      = errors.New("missing tid")
)

// parseUserID splits "<id>" or "<id>_<CCY>".
func parseUserID(raw string) (int64, string, error) {
	idPart, suffix, _ := strings.Cut(strings.TrimSpace(raw), "_")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", errBadUserID
	}
	return id, currency.Normalize(suffix), nil
}

// Action is the closed set of request variants. Each variant is handled in
// Dispatcher.dispatch.
type Action interface {
	action()
}

type PingAction struct{}

type RoundInfoAction struct {
	TID string
}

type BalanceAction struct {
	TID      string
	UserID   int64
	Currency string
}

type DebitAction struct {
	Op service.Operation
}

type CreditAction struct {
	Op service.Operation
}

type RollbackAction struct {
	Op service.RollbackOp
}

func (PingAction) action()      {}
func (RoundInfoAction) action() {}
func (BalanceAction) action()   {}
func (DebitAction) action()     {}
func (CreditAction) action()    {}
func (RollbackAction) action()  {}

// Classify turns a request into its variant. A debit or credit that cancels
// or references an earlier transaction becomes a rollback aimed at the
// opposite kind of action.
func Classify(req *Request) (Action, error) {
	switch req.Type {
	case TypePing:
		return PingAction{}, nil
	case TypeRoundInfo:
		return RoundInfoAction{TID: string(req.TID)}, nil
	case TypeBalance, TypeDebit, TypeCredit, TypeRollback:
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedType, req.Type)
	}

	userID, suffix, err := parseUserID(string(req.UserID))
	if err != nil {
		return nil, err
	}
	code := currency.Normalize(req.Currency)
	if code == "" {
		code = suffix
	}

	if req.Type == TypeBalance {
		return BalanceAction{TID: string(req.TID), UserID: userID, Currency: code}, nil
	}

	if req.TID == "" {
		return nil, errMissingTID
	}

	op := service.Operation{
		UserID:         userID,
		Amount:         req.Amount,
		Currency:       code,
		TID:            string(req.TID),
		RoundID:        string(req.RoundID),
		ActionID:       string(req.ActionID),
		GameID:         string(req.GameID),
		FreeroundToken: string(req.FreeroundID),
	}

	cancel := req.Subtype == SubtypeCancel || req.RollbackTID != ""
	switch {
	case req.Type == TypeRollback:
		return RollbackAction{Op: service.RollbackOp{Operation: op, ReferenceTID: string(req.RollbackTID)}}, nil
	case req.Type == TypeDebit && cancel:
		return RollbackAction{Op: service.RollbackOp{Operation: op, ReferenceTID: string(req.RollbackTID), Target: models.EntryWin}}, nil
	case req.Type == TypeCredit && cancel:
		return RollbackAction{Op: service.RollbackOp{Operation: op, ReferenceTID: string(req.RollbackTID), Target: models.EntryBet}}, nil
	case req.Type == TypeDebit:
		return DebitAction{Op: op}, nil
	default:
		return CreditAction{Op: op}, nil
	}
}

// record builds the idempotency record for a mutating request.
func record(req *Request, body []byte, userID int64, code string) *models.IdempotencyRecord {
	return &models.IdempotencyRecord{
		TID:      string(req.TID),
		Type:     req.Type,
		Subtype:  req.Subtype,
		UserID:   userID,
		Currency: code,
		Amount:   req.Amount,
		RoundID:  string(req.RoundID),
		ActionID: string(req.ActionID),
		Request:  body,
	}
}
