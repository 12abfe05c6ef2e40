package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Fi44er/casino_ledger/internal/currency"
	"github.com/Fi44er/casino_ledger/internal/models"
	"github.com/Fi44er/casino_ledger/internal/service"
	"github.com/Fi44er/casino_ledger/utils"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Wire error codes.
const (
	CodeMalformed           = "MALFORMED_REQUEST"
	CodeHMACMissing         = "HMAC_MISSING"
	CodeHMACMismatch        = "HMAC_MISMATCH"
	CodeBadRequest          = "BAD_REQUEST"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeInsufficient        = "INSUFFICIENT_FUNDS"
	CodeMismatch            = "PARAMETERS_MISMATCH"
	CodeTimeout             = "TIMEOUT"
	CodeInvalidAmount       = "INVALID_AMOUNT"
	CodeUnsupportedType     = "UNSUPPORTED_TYPE"
	CodeUnsupportedCurrency = "UNSUPPORTED_CURRENCY"
	CodeInternal            = "INTERNAL_ERROR"
	statusOK                = "OK"
	outcomeReplay           = "replay"
	outcomeOK               = "ok"
	outcomeAuthFailure      = "auth_failure"
	outcomeMalformed        = "malformed"
	outcomeInternalFault    = "internal_error"
)

// Ledger is the part of the ledger service the dispatcher drives.
type Ledger interface {
	Reserve(ctx context.Context, incoming *models.IdempotencyRecord) (*service.Lookup, error)
	Complete(ctx context.Context, record *models.IdempotencyRecord, response datatypes.JSON) error
	Release(ctx context.Context, record *models.IdempotencyRecord)

	Debit(ctx context.Context, op service.Operation, record *models.IdempotencyRecord, respond service.Responder) (*service.Outcome, error)
	Credit(ctx context.Context, op service.Operation, record *models.IdempotencyRecord, respond service.Responder) (*service.Outcome, error)
	Rollback(ctx context.Context, op service.RollbackOp, record *models.IdempotencyRecord, respond service.Responder) (*service.Outcome, error)
	Balance(ctx context.Context, userID int64, code string) (decimal.Decimal, string, error)
}

// Reply is the HTTP answer to one callback.
type Reply struct {
	Status  int
	Body    []byte
	Type    string
	Outcome string
}

type Dispatcher struct {
	ledger   Ledger
	signer   *Signer
	notifier service.Notifier
	logger   *utils.Logger
}

func NewDispatcher(ledger Ledger, signer *Signer, notifier service.Notifier, logger *utils.Logger) *Dispatcher {
	return &Dispatcher{ledger: ledger, signer: signer, notifier: notifier, logger: logger}
}

// Handle authenticates, classifies and executes one callback body.
func (d *Dispatcher) Handle(ctx context.Context, body []byte) Reply {
	fields, err := ParseFields(body)
	if err != nil {
		d.logger.Warnf("Malformed callback: %v", err)
		return unsigned(http.StatusBadRequest, CodeMalformed, "", outcomeMalformed)
	}
	reqType, _ := fields.GetString("type")

	if err := d.signer.Verify(fields); err != nil {
		d.logger.Warnf("Rejected %s callback: %v", reqType, err)
		code := CodeHMACMismatch
		if errors.Is(err, ErrSignatureMissing) {
			code = CodeHMACMissing
		}
		return unsigned(http.StatusUnauthorized, code, reqType, outcomeAuthFailure)
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		d.logger.Warnf("Undecodable %s callback: %v", reqType, err)
		return unsigned(http.StatusBadRequest, CodeMalformed, reqType, outcomeMalformed)
	}

	action, err := Classify(&req)
	if err != nil {
		return d.classifyError(&req, err)
	}

	reply := d.dispatch(ctx, &req, body, action)
	reply.Type = req.Type
	return reply
}

func (d *Dispatcher) classifyError(req *Request, err error) Reply {
	var code string
	switch {
	case errors.Is(err, errUnsupportedType):
		code = fmt.Sprintf("%s:%s", CodeUnsupportedType, req.Type)
	case errors.Is(err, errBadUserID):
		code = CodeUserNotFound
	default:
		code = CodeBadRequest
	}
	d.logger.Warnf("Refused %q callback: %v", req.Type, err)
	reply := d.sign(Fields{}.MustSet("error", code), code)
	reply.Type = req.Type
	return reply
}

func (d *Dispatcher) dispatch(ctx context.Context, req *Request, body []byte, action Action) Reply {
	switch a := action.(type) {
	case PingAction, RoundInfoAction:
		return d.sign(Fields{}.MustSet("status", statusOK), outcomeOK)
	case BalanceAction:
		return d.balance(ctx, a)
	case DebitAction:
		return d.settle(ctx, req, body, a.Op, func(rec *models.IdempotencyRecord, respond service.Responder) (*service.Outcome, error) {
			return d.ledger.Debit(ctx, a.Op, rec, respond)
		})
	case CreditAction:
		return d.settle(ctx, req, body, a.Op, func(rec *models.IdempotencyRecord, respond service.Responder) (*service.Outcome, error) {
			return d.ledger.Credit(ctx, a.Op, rec, respond)
		})
	case RollbackAction:
		return d.settle(ctx, req, body, a.Op.Operation, func(rec *models.IdempotencyRecord, respond service.Responder) (*service.Outcome, error) {
			return d.ledger.Rollback(ctx, a.Op, rec, respond)
		})
	}
	panic(fmt.Sprintf("protocol: unhandled action %T", action))
}

func (d *Dispatcher) balance(ctx context.Context, a BalanceAction) Reply {
	balance, code, err := d.ledger.Balance(ctx, a.UserID, a.Currency)
	if err != nil {
		return d.failure(ctx, a.UserID, a.Currency, err)
	}
	fields := Fields{}.MustSet("status", statusOK)
	if a.TID != "" {
		fields = fields.MustSet("tid", a.TID)
	}
	fields = fields.MustSet("balance", currency.Format(balance, code))
	return d.sign(fields, outcomeOK)
}

type runFunc func(rec *models.IdempotencyRecord, respond service.Responder) (*service.Outcome, error)

// settle runs a mutating request behind the idempotency store.
func (d *Dispatcher) settle(ctx context.Context, req *Request, body []byte, op service.Operation, run runFunc) Reply {
	for attempt := 0; ; attempt++ {
		incoming := record(req, body, op.UserID, op.Currency)

		lookup, err := d.ledger.Reserve(ctx, incoming)
		if err != nil {
			d.internalFault(req, err)
			return d.errorReply(ctx, op.UserID, op.Currency, CodeInternal, outcomeInternalFault)
		}

		switch lookup.Resolution {
		case service.ConflictDetected:
			d.logger.Warnf("tid %s (%s) conflicts with recorded tid %s", incoming.TID, req.Type, lookup.Record.TID)
			d.notifier.Notify(fmt.Sprintf("Parameters mismatch: %s tid %s for user %d conflicts with recorded tid %s",
				req.Type, incoming.TID, op.UserID, lookup.Record.TID))
			return d.errorReply(ctx, op.UserID, op.Currency, CodeMismatch, CodeMismatch)
		case service.Pending:
			d.logger.Infof("tid %s still in flight (recorded as %s)", incoming.TID, lookup.Record.TID)
			return d.errorReply(ctx, op.UserID, op.Currency, CodeTimeout, CodeTimeout)
		case service.Committed:
			return d.replay(ctx, lookup.Record, incoming.TID, op)
		}

		rec := lookup.Record
		respond := func(out *service.Outcome) (datatypes.JSON, error) {
			return successFields(rec.TID, out).MarshalJSON()
		}

		out, err := run(rec, respond)
		if err == nil {
			return d.sign(successFields(rec.TID, out), outcomeOK)
		}

		// Another tid of the same action settled first. Drop this
		// reservation and answer from the settled one.
		if errors.Is(err, service.ErrDuplicateAction) && attempt == 0 {
			d.logger.Infof("tid %s: %v", rec.TID, err)
			d.ledger.Release(ctx, rec)
			continue
		}

		if service.IsFinal(err) {
			fields := d.errorFields(ctx, op.UserID, op.Currency, errorCode(err))
			stored, merr := fields.MarshalJSON()
			if merr == nil {
				merr = d.ledger.Complete(ctx, rec, stored)
			}
			if merr != nil {
				d.logger.Errorf("Failed to persist %s response for tid %s: %v", errorCode(err), rec.TID, merr)
			}
			return d.sign(fields, errorCode(err))
		}

		d.internalFault(req, err)
		d.ledger.Release(ctx, rec)
		return d.errorReply(ctx, op.UserID, op.Currency, CodeInternal, outcomeInternalFault)
	}
}

// replay answers a repeated request with the stored response, reporting the
// balance as it is now.
func (d *Dispatcher) replay(ctx context.Context, rec *models.IdempotencyRecord, tid string, op service.Operation) Reply {
	fields, err := ParseFields(rec.Response)
	if err != nil {
		d.logger.Errorf("Stored response for tid %s is unreadable: %v", rec.TID, err)
		return d.errorReply(ctx, op.UserID, op.Currency, CodeInternal, outcomeInternalFault)
	}

	if _, ok := fields.Get("tid"); ok {
		fields = fields.MustSet("tid", tid)
	}
	if _, ok := fields.Get("balance"); ok {
		if balance, ok := d.currentBalance(ctx, op.UserID, op.Currency); ok {
			fields = fields.MustSet("balance", balance)
		} else {
			d.logger.Errorf("Failed to read balance for replay of tid %s", rec.TID)
		}
	}
	d.logger.Debugf("Replayed response of tid %s", rec.TID)
	return d.sign(fields, outcomeReplay)
}

func (d *Dispatcher) failure(ctx context.Context, userID int64, code string, err error) Reply {
	if service.IsFinal(err) {
		return d.errorReply(ctx, userID, code, errorCode(err), errorCode(err))
	}
	d.logger.Errorf("Balance query for user %d failed: %v", userID, err)
	return d.errorReply(ctx, userID, code, CodeInternal, outcomeInternalFault)
}

func (d *Dispatcher) internalFault(req *Request, err error) {
	d.logger.Errorf("Internal fault on %s tid %s: %v", req.Type, req.TID, err)
	d.notifier.Notify(fmt.Sprintf("Ledger internal error on %s tid %s: %v", req.Type, req.TID, err))
}

func (d *Dispatcher) errorReply(ctx context.Context, userID int64, code, errCode, outcome string) Reply {
	return d.sign(d.errorFields(ctx, userID, code, errCode), outcome)
}

// errorFields carries the current balance whenever the account can be read.
func (d *Dispatcher) errorFields(ctx context.Context, userID int64, code, errCode string) Fields {
	fields := Fields{}.MustSet("error", errCode)
	if errCode == CodeUserNotFound {
		return fields
	}
	if balance, ok := d.currentBalance(ctx, userID, code); ok {
		fields = fields.MustSet("balance", balance)
	}
	return fields
}

// currentBalance renders the balance in code, or in the account currency
// when code is not one the ledger can convert to.
func (d *Dispatcher) currentBalance(ctx context.Context, userID int64, code string) (string, bool) {
	balance, balanceCode, err := d.ledger.Balance(ctx, userID, code)
	if errors.Is(err, currency.ErrUnknownCurrency) {
		balance, balanceCode, err = d.ledger.Balance(ctx, userID, "")
	}
	if err != nil {
		return "", false
	}
	return currency.Format(balance, balanceCode), true
}

func (d *Dispatcher) sign(fields Fields, outcome string) Reply {
	signed, err := d.signer.Sign(fields)
	if err != nil {
		d.logger.Errorf("Failed to sign response: %v", err)
		return unsigned(http.StatusInternalServerError, CodeInternal, "", outcomeInternalFault)
	}
	body, err := signed.MarshalJSON()
	if err != nil {
		d.logger.Errorf("Failed to encode response: %v", err)
		return unsigned(http.StatusInternalServerError, CodeInternal, "", outcomeInternalFault)
	}
	return Reply{Status: http.StatusOK, Body: body, Outcome: outcome}
}

func unsigned(status int, code, reqType, outcome string) Reply {
	body, _ := Fields{}.MustSet("error", code).MarshalJSON()
	return Reply{Status: status, Body: body, Type: reqType, Outcome: outcome}
}

func successFields(tid string, out *service.Outcome) Fields {
	return Fields{}.
		MustSet("status", statusOK).
		MustSet("tid", tid).
		MustSet("balance", currency.Format(out.Balance, out.Currency))
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrUnknownAccount):
		return CodeUserNotFound
	case errors.Is(err, service.ErrInsufficientFunds):
		return CodeInsufficient
	case errors.Is(err, service.ErrInvalidAmount):
		return CodeInvalidAmount
	case errors.Is(err, currency.ErrUnknownCurrency):
		return CodeUnsupportedCurrency
	}
	return CodeInternal
}
