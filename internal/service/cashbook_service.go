package service

import (
	"context"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"

	"github.com/mmynk/vereinsledger/internal/finance"
	"github.com/mmynk/vereinsledger/internal/middleware"
	"github.com/mmynk/vereinsledger/internal/models"
)

// CashBookServiceName is the fully-qualified name of the cash book service.
const CashBookServiceName = "vereinsledger.v1.CashBookService"

// CashBookService serves the cash book, year closings and the pass-through
// and donation sub-ledgers.
type CashBookService struct {
	engine *finance.Service
}

func NewCashBookService(engine *finance.Service) *CashBookService {
	return &CashBookService{engine: engine}
}

// NewCashBookServiceHandler returns the mount path and handler of the cash
// book service.
func NewCashBookServiceHandler(svc *CashBookService, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	handle(mux, CashBookServiceName, "PostEntry", svc.PostEntry, opts)
	handle(mux, CashBookServiceName, "ListEntries", svc.ListEntries, opts)
	handle(mux, CashBookServiceName, "CloseYear", svc.CloseYear, opts)
	handle(mux, CashBookServiceName, "ReviewClosing", svc.ReviewClosing, opts)
	handle(mux, CashBookServiceName, "GetClosing", svc.GetClosing, opts)
	handle(mux, CashBookServiceName, "GetYearBalance", svc.GetYearBalance, opts)
	handle(mux, CashBookServiceName, "RecordInflow", svc.RecordInflow, opts)
	handle(mux, CashBookServiceName, "RecordOutflow", svc.RecordOutflow, opts)
	handle(mux, CashBookServiceName, "ListOpenPassThrough", svc.ListOpenPassThrough, opts)
	handle(mux, CashBookServiceName, "RecordDonation", svc.RecordDonation, opts)
	handle(mux, CashBookServiceName, "GetDonation", svc.GetDonation, opts)
	return "/" + CashBookServiceName + "/", mux
}

type PostEntryRequest struct {
	// Year defaults to the voucher date's year.
	Year              int             `json:"year,omitempty"`
	VoucherDate       string          `json:"voucher_date"`
	AccountCode       string          `json:"account_code"`
	Description       string          `json:"description"`
	Column            string          `json:"column"`
	Amount            decimal.Decimal `json:"amount"`
	MemberID          *int64          `json:"member_id,omitempty"`
	PaymentID         *int64          `json:"payment_id,omitempty"`
	BankTransactionID *int64          `json:"bank_transaction_id,omitempty"`
}

type EntryResponse struct {
	Entry *Entry `json:"entry"`
}

type YearRequest struct {
	Year int `json:"year"`
}

type ListEntriesResponse struct {
	Entries []*Entry `json:"entries"`
}

type CloseYearRequest struct {
	Year int `json:"year"`
	// Opening overrides the carried-forward balances. Only allowed where no
	// prior closing binds the year.
	Opening *Balances `json:"opening,omitempty"`
	// Review closes and reviews in one step, with the caller as reviewer.
	Review bool `json:"review"`
}

type ClosingResponse struct {
	Closing *Closing `json:"closing"`
}

type YearBalanceResponse struct {
	Year     int          `json:"year"`
	Opening  Balances     `json:"opening"`
	Totals   ColumnTotals `json:"totals"`
	Current  Balances     `json:"current"`
	Closed   bool         `json:"closed"`
	Reviewed bool         `json:"reviewed"`
}

type RecordInflowRequest struct {
	Date        string          `json:"date"`
	AccountCode string          `json:"account_code"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Medium      string          `json:"medium"`
}

type RecordOutflowRequest struct {
	ItemID      int64  `json:"item_id"`
	Date        string `json:"date,omitempty"`
	AccountCode string `json:"account_code,omitempty"`
	Description string `json:"description,omitempty"`
	Medium      string `json:"medium"`
}

type PassThroughResponse struct {
	Item *PassThroughItem `json:"item"`
}

type ListPassThroughResponse struct {
	Items []*PassThroughItem `json:"items"`
}

type RecordDonationRequest struct {
	Date          string            `json:"date,omitempty"`
	Occasion      string            `json:"occasion"`
	TotalAmount   decimal.Decimal   `json:"total_amount"`
	CountedBy     string            `json:"counted_by,omitempty"`
	Details       []*DonationDetail `json:"details"`
	PostToAccount string            `json:"post_to_account,omitempty"`
}

type DonationRequest struct {
	ProtocolID int64 `json:"protocol_id"`
}

type DonationResponse struct {
	Donation *Donation `json:"donation"`
}

// PostEntry books a standard entry under the next voucher number.
func (s *CashBookService) PostEntry(ctx context.Context, req *PostEntryRequest) (*EntryResponse, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	voucherDate, err := parseDate("voucher_date", req.VoucherDate)
	if err != nil {
		return nil, err
	}
	entry, err := s.engine.PostEntry(ctx, finance.EntryInput{
		AssociationID: assoc,
		Year:          req.Year,
		VoucherDate:   voucherDate,
		AccountCode:   req.AccountCode,
		Description:   req.Description,
		Column:        models.Column(req.Column),
		Amount:        req.Amount,
		Links: models.EntryLinks{
			MemberID:          req.MemberID,
			PaymentID:         req.PaymentID,
			BankTransactionID: req.BankTransactionID,
		},
	})
	if err != nil {
		return nil, err
	}
	return &EntryResponse{Entry: toEntry(entry)}, nil
}

func (s *CashBookService) ListEntries(ctx context.Context, req *YearRequest) (*ListEntriesResponse, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.engine.ListEntries(ctx, assoc, req.Year)
	if err != nil {
		return nil, err
	}
	out := make([]*Entry, len(entries))
	for i, e := range entries {
		out[i] = toEntry(e)
	}
	return &ListEntriesResponse{Entries: out}, nil
}

// CloseYear computes and stores the closing of a year.
func (s *CashBookService) CloseYear(ctx context.Context, req *CloseYearRequest) (*ClosingResponse, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	var opening *models.Balances
	if req.Opening != nil {
		opening = &models.Balances{Cash: req.Opening.Cash, Bank: req.Opening.Bank, Savings: req.Opening.Savings}
	}
	var reviewer string
	if req.Review {
		if reviewer, err = reviewerOf(ctx); err != nil {
			return nil, err
		}
	}
	closing, err := s.engine.CloseYear(ctx, assoc, req.Year, opening, reviewer)
	if err != nil {
		return nil, err
	}
	return &ClosingResponse{Closing: toClosing(closing)}, nil
}

// ReviewClosing marks a closed year reviewed by the caller.
func (s *CashBookService) ReviewClosing(ctx context.Context, req *YearRequest) (*ClosingResponse, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	reviewer, err := reviewerOf(ctx)
	if err != nil {
		return nil, err
	}
	closing, err := s.engine.ReviewClosing(ctx, assoc, req.Year, reviewer)
	if err != nil {
		return nil, err
	}
	return &ClosingResponse{Closing: toClosing(closing)}, nil
}

func (s *CashBookService) GetClosing(ctx context.Context, req *YearRequest) (*ClosingResponse, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	closing, err := s.engine.GetClosing(ctx, assoc, req.Year)
	if err != nil {
		return nil, err
	}
	return &ClosingResponse{Closing: toClosing(closing)}, nil
}

func (s *CashBookService) GetYearBalance(ctx context.Context, req *YearRequest) (*YearBalanceResponse, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	b, err := s.engine.YearBalances(ctx, assoc, req.Year)
	if err != nil {
		return nil, err
	}
	return &YearBalanceResponse{
		Year:     b.Year,
		Opening:  toBalances(b.Opening),
		Totals:   toTotals(b.Totals),
		Current:  toBalances(b.Current),
		Closed:   b.Closed,
		Reviewed: b.Reviewed,
	}, nil
}

// RecordInflow opens a pass-through item.
func (s *CashBookService) RecordInflow(ctx context.Context, req *RecordInflowRequest) (*PassThroughResponse, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return nil, err
	}
	item, err := s.engine.RecordInflow(ctx, finance.InflowInput{
		AssociationID: assoc,
		Date:          date,
		AccountCode:   req.AccountCode,
		Description:   req.Description,
		Amount:        req.Amount,
		Medium:        models.Medium(req.Medium),
	})
	if err != nil {
		return nil, err
	}
	return &PassThroughResponse{Item: toPassThrough(item)}, nil
}

// RecordOutflow passes the money of an open item on and settles it.
func (s *CashBookService) RecordOutflow(ctx context.Context, req *RecordOutflowRequest) (*PassThroughResponse, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return nil, err
	}
	item, err := s.engine.RecordOutflow(ctx, assoc, req.ItemID, finance.OutflowInput{
		Date:        date,
		AccountCode: req.AccountCode,
		Description: req.Description,
		Medium:      models.Medium(req.Medium),
	})
	if err != nil {
		return nil, err
	}
	return &PassThroughResponse{Item: toPassThrough(item)}, nil
}

func (s *CashBookService) ListOpenPassThrough(ctx context.Context, _ *Empty) (*ListPassThroughResponse, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.engine.ListOpenPassThrough(ctx, assoc)
	if err != nil {
		return nil, err
	}
	out := make([]*PassThroughItem, len(items))
	for i, item := range items {
		out[i] = toPassThrough(item)
	}
	return &ListPassThroughResponse{Items: out}, nil
}

// RecordDonation stores a counted donation. Subtotals in the request are
// ignored and recomputed.
func (s *CashBookService) RecordDonation(ctx context.Context, req *RecordDonationRequest) (*DonationResponse, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return nil, err
	}
	details := make([]models.DonationDetail, len(req.Details))
	for i, d := range req.Details {
		if d == nil {
			return nil, invalidArgument(fmt.Sprintf("details[%d]", i), fmt.Errorf("missing denomination"))
		}
		details[i] = models.DonationDetail{Value: d.Value, Count: d.Count}
	}
	protocol, err := s.engine.RecordDonation(ctx, finance.DonationInput{
		AssociationID: assoc,
		Date:          date,
		Occasion:      req.Occasion,
		TotalAmount:   req.TotalAmount,
		CountedBy:     req.CountedBy,
		Details:       details,
		PostToAccount: req.PostToAccount,
	})
	if err != nil {
		return nil, err
	}
	return &DonationResponse{Donation: toDonation(protocol)}, nil
}

func (s *CashBookService) GetDonation(ctx context.Context, req *DonationRequest) (*DonationResponse, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	protocol, err := s.engine.GetDonation(ctx, assoc, req.ProtocolID)
	if err != nil {
		return nil, err
	}
	return &DonationResponse{Donation: toDonation(protocol)}, nil
}

// reviewerOf names the caller for the closing record.
func reviewerOf(ctx context.Context) (string, error) {
	subject := middleware.GetSubject(ctx)
	if subject == "" {
		return "", connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("token has no subject to record as reviewer"))
	}
	return subject, nil
}
