package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/vereinsledger/internal/finance"
	"github.com/mmynk/vereinsledger/internal/models"
)

// ReconciliationServiceName is the fully-qualified name of the
// reconciliation service.
const ReconciliationServiceName = "vereinsledger.v1.ReconciliationService"

// ReconciliationService imports bank statements and works the unmatched
// queue.
type ReconciliationService struct {
	engine *finance.Service
}

func NewReconciliationService(engine *finance.Service) *ReconciliationService {
	return &ReconciliationService{engine: engine}
}

// NewReconciliationServiceHandler returns the mount path and handler of the
// reconciliation service.
func NewReconciliationServiceHandler(svc *ReconciliationService, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	handle(mux, ReconciliationServiceName, "ImportStatement", svc.ImportStatement, opts)
	handle(mux, ReconciliationServiceName, "ImportStatementFile", svc.ImportStatementFile, opts)
	handle(mux, ReconciliationServiceName, "ListUnmatched", svc.ListUnmatched, opts)
	handle(mux, ReconciliationServiceName, "MatchToMember", svc.MatchToMember, opts)
	handle(mux, ReconciliationServiceName, "SkipTransaction", svc.SkipTransaction, opts)
	return "/" + ReconciliationServiceName + "/", mux
}

type ImportStatementRequest struct {
	BankAccountID int64           `json:"bank_account_id"`
	Rows          []*StatementRow `json:"rows"`
}

type ImportStatementFileRequest struct {
	BankAccountID int64  `json:"bank_account_id"`
	Filename      string `json:"filename"`
	// Content is the raw CSV or XLSX file, base64 in JSON.
	Content []byte `json:"content"`
}

type ListUnmatchedResponse struct {
	Transactions []*BankTransaction `json:"transactions"`
}

type MatchToMemberRequest struct {
	BankTransactionID int64 `json:"bank_transaction_id"`
	MemberID          int64 `json:"member_id"`
}

type SkipTransactionRequest struct {
	BankTransactionID int64  `json:"bank_transaction_id"`
	Reason            string `json:"reason"`
}

// ImportStatement imports already parsed statement rows.
func (s *ReconciliationService) ImportStatement(ctx context.Context, req *ImportStatementRequest) (*ImportResult, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]models.StatementRow, len(req.Rows))
	for i, r := range req.Rows {
		bookingDate, err := parseDate(fmt.Sprintf("rows[%d].booking_date", i), r.BookingDate)
		if err != nil {
			return nil, err
		}
		rows[i] = models.StatementRow{
			BookingDate:      bookingDate,
			Amount:           r.Amount,
			CounterpartyName: r.CounterpartyName,
			CounterpartyIBAN: r.CounterpartyIBAN,
			RemittanceText:   r.RemittanceText,
			Reference:        r.Reference,
		}
	}

	slog.Info("ImportStatement request received",
		"association_id", assoc,
		"bank_account_id", req.BankAccountID,
		"rows", len(rows),
	)

	result, err := s.engine.ImportStatement(ctx, assoc, req.BankAccountID, rows)
	if err != nil {
		return nil, err
	}
	return toImportResult(result), nil
}

// ImportStatementFile parses and imports a bank export.
func (s *ReconciliationService) ImportStatementFile(ctx context.Context, req *ImportStatementFileRequest) (*ImportResult, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("ImportStatementFile request received",
		"association_id", assoc,
		"bank_account_id", req.BankAccountID,
		"filename", req.Filename,
		"bytes", len(req.Content),
	)

	result, err := s.engine.ImportStatementFile(ctx, assoc, req.BankAccountID, req.Filename, req.Content)
	if err != nil {
		return nil, err
	}
	return toImportResult(result), nil
}

func (s *ReconciliationService) ListUnmatched(ctx context.Context, _ *Empty) (*ListUnmatchedResponse, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	txns, err := s.engine.GetUnmatched(ctx, assoc)
	if err != nil {
		return nil, err
	}
	return &ListUnmatchedResponse{Transactions: toBankTransactions(txns)}, nil
}

// MatchToMember resolves an unmatched transaction by hand.
func (s *ReconciliationService) MatchToMember(ctx context.Context, req *MatchToMemberRequest) (*PaymentResult, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	result, err := s.engine.MatchToMember(ctx, assoc, req.BankTransactionID, req.MemberID)
	if err != nil {
		return nil, err
	}
	return toPaymentResult(result), nil
}

func (s *ReconciliationService) SkipTransaction(ctx context.Context, req *SkipTransactionRequest) (*Empty, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.engine.SkipTransaction(ctx, assoc, req.BankTransactionID, req.Reason); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}
