package service

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"

	"github.com/mmynk/vereinsledger/internal/finance"
	"github.com/mmynk/vereinsledger/internal/models"
)

// ClaimServiceName is the fully-qualified name of the claim service.
const ClaimServiceName = "vereinsledger.v1.ClaimService"

// ClaimService serves claims, payments and their allocations.
type ClaimService struct {
	engine *finance.Service
	now    func() time.Time
}

// NewClaimService creates a new ClaimService.
func NewClaimService(engine *finance.Service) *ClaimService {
	return &ClaimService{engine: engine, now: time.Now}
}

// NewClaimServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself.
func NewClaimServiceHandler(svc *ClaimService, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	handle(mux, ClaimServiceName, "CreateClaim", svc.CreateClaim, opts)
	handle(mux, ClaimServiceName, "GetClaim", svc.GetClaim, opts)
	handle(mux, ClaimServiceName, "ListClaims", svc.ListClaims, opts)
	handle(mux, ClaimServiceName, "ListOverdueClaims", svc.ListOverdueClaims, opts)
	handle(mux, ClaimServiceName, "DeleteClaim", svc.DeleteClaim, opts)
	handle(mux, ClaimServiceName, "RecomputeStatus", svc.RecomputeStatus, opts)
	handle(mux, ClaimServiceName, "RecordPayment", svc.RecordPayment, opts)
	handle(mux, ClaimServiceName, "Allocate", svc.Allocate, opts)
	handle(mux, ClaimServiceName, "AutoAllocate", svc.AutoAllocate, opts)
	handle(mux, ClaimServiceName, "Deallocate", svc.Deallocate, opts)
	handle(mux, ClaimServiceName, "ListAllocations", svc.ListAllocations, opts)
	handle(mux, ClaimServiceName, "GetCreditBalance", svc.GetCreditBalance, opts)
	return "/" + ClaimServiceName + "/", mux
}

type CreateClaimRequest struct {
	MemberID    int64           `json:"member_id"`
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency,omitempty"`
	DueDate     string          `json:"due_date"`
	Period      string          `json:"period,omitempty"`
	Description string          `json:"description,omitempty"`
}

type ClaimRequest struct {
	ClaimID int64 `json:"claim_id"`
}

type ClaimResponse struct {
	Claim *Claim `json:"claim"`
}

type ListClaimsRequest struct {
	MemberID int64 `json:"member_id"`
}

type ListOverdueClaimsRequest struct {
	// AsOf defaults to today.
	AsOf string `json:"as_of,omitempty"`
}

type ListClaimsResponse struct {
	Claims []*Claim `json:"claims"`
}

type RecordPaymentRequest struct {
	MemberID       int64           `json:"member_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency,omitempty"`
	Direction      string          `json:"direction,omitempty"`
	PaymentDate    string          `json:"payment_date,omitempty"`
	Method         string          `json:"method,omitempty"`
	Reference      string          `json:"reference,omitempty"`
	PostToCashBook bool            `json:"post_to_cash_book"`
	AutoAllocate   bool            `json:"auto_allocate"`
}

type AllocateRequest struct {
	PaymentID int64           `json:"payment_id"`
	ClaimID   int64           `json:"claim_id"`
	Amount    decimal.Decimal `json:"amount"`
}

type AllocationResponse struct {
	Allocation *Allocation `json:"allocation"`
}

type AutoAllocateRequest struct {
	PaymentID int64 `json:"payment_id"`
}

type DeallocateRequest struct {
	AllocationID int64 `json:"allocation_id"`
	// Amount is the new allocated amount; zero removes the allocation.
	Amount decimal.Decimal `json:"amount"`
}

type ListAllocationsRequest struct {
	ClaimID   int64 `json:"claim_id,omitempty"`
	PaymentID int64 `json:"payment_id,omitempty"`
}

type AllocationsResponse struct {
	Allocations []*Allocation `json:"allocations"`
}

type CreditBalanceRequest struct {
	MemberID int64 `json:"member_id"`
}

type CreditBalanceResponse struct {
	MemberID int64           `json:"member_id"`
	Balance  decimal.Decimal `json:"balance"`
}

// CreateClaim records an amount a member owes.
func (s *ClaimService) CreateClaim(ctx context.Context, req *CreateClaimRequest) (*ClaimResponse, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	dueDate, err := parseDate("due_date", req.DueDate)
	if err != nil {
		return nil, err
	}
	in := finance.NewClaim{
		AssociationID: assoc,
		MemberID:      req.MemberID,
		Kind:          models.ClaimKind(req.Kind),
		Amount:        req.Amount,
		Currency:      req.Currency,
		DueDate:       dueDate,
		Description:   req.Description,
	}
	if req.Period != "" {
		period, err := models.ParsePeriod(req.Period)
		if err != nil {
			return nil, invalidArgument("period", err)
		}
		in.Period = &period
	}

	claim, err := s.engine.CreateClaim(ctx, in)
	if err != nil {
		return nil, err
	}
	return &ClaimResponse{Claim: toClaim(claim, s.now())}, nil
}

func (s *ClaimService) GetClaim(ctx context.Context, req *ClaimRequest) (*ClaimResponse, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	claim, err := s.engine.GetClaim(ctx, assoc, req.ClaimID)
	if err != nil {
		return nil, err
	}
	return &ClaimResponse{Claim: toClaim(claim, s.now())}, nil
}

func (s *ClaimService) ListClaims(ctx context.Context, req *ListClaimsRequest) (*ListClaimsResponse, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	claims, err := s.engine.ListClaims(ctx, assoc, req.MemberID)
	if err != nil {
		return nil, err
	}
	return &ListClaimsResponse{Claims: toClaims(claims, s.now())}, nil
}

// ListOverdueClaims lists the association's claims past their due date.
func (s *ClaimService) ListOverdueClaims(ctx context.Context, req *ListOverdueClaimsRequest) (*ListClaimsResponse, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	asOf, err := parseDate("as_of", req.AsOf)
	if err != nil {
		return nil, err
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	claims, err := s.engine.OverdueClaims(ctx, assoc, asOf)
	if err != nil {
		return nil, err
	}
	return &ListClaimsResponse{Claims: toClaims(claims, asOf)}, nil
}

func (s *ClaimService) DeleteClaim(ctx context.Context, req *ClaimRequest) (*Empty, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.engine.DeleteClaim(ctx, assoc, req.ClaimID); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

// RecomputeStatus re-derives a claim's status from its allocations.
func (s *ClaimService) RecomputeStatus(ctx context.Context, req *ClaimRequest) (*ClaimResponse, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	claim, err := s.engine.RecomputeStatus(ctx, assoc, req.ClaimID)
	if err != nil {
		return nil, err
	}
	return &ClaimResponse{Claim: toClaim(claim, s.now())}, nil
}

// RecordPayment records a payment that did not arrive through a statement
// import, optionally booking and allocating it.
func (s *ClaimService) RecordPayment(ctx context.Context, req *RecordPaymentRequest) (*PaymentResult, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	paymentDate, err := parseDate("payment_date", req.PaymentDate)
	if err != nil {
		return nil, err
	}

	slog.Info("RecordPayment request received",
		"association_id", assoc,
		"member_id", req.MemberID,
		"amount", models.FormatMoney(req.Amount),
	)

	result, err := s.engine.RecordPayment(ctx, finance.NewPayment{
		AssociationID:  assoc,
		MemberID:       req.MemberID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Direction:      models.PaymentDirection(req.Direction),
		PaymentDate:    paymentDate,
		Method:         models.PaymentMethod(req.Method),
		Reference:      req.Reference,
		PostToCashBook: req.PostToCashBook,
		AutoAllocate:   req.AutoAllocate,
	})
	if err != nil {
		return nil, err
	}
	return toPaymentResult(result), nil
}

func (s *ClaimService) Allocate(ctx context.Context, req *AllocateRequest) (*AllocationResponse, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	allocation, err := s.engine.Allocate(ctx, assoc, req.PaymentID, req.ClaimID, req.Amount)
	if err != nil {
		return nil, err
	}
	return &AllocationResponse{Allocation: toAllocations([]*models.Allocation{allocation})[0]}, nil
}

// AutoAllocate applies a payment's unallocated amount to the member's open
// claims, oldest due date first.
func (s *ClaimService) AutoAllocate(ctx context.Context, req *AutoAllocateRequest) (*AllocationsResponse, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	allocations, err := s.engine.AutoAllocate(ctx, assoc, req.PaymentID)
	if err != nil {
		return nil, err
	}
	return &AllocationsResponse{Allocations: toAllocations(allocations)}, nil
}

func (s *ClaimService) Deallocate(ctx context.Context, req *DeallocateRequest) (*Empty, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Deallocate(ctx, assoc, req.AllocationID, req.Amount); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (s *ClaimService) ListAllocations(ctx context.Context, req *ListAllocationsRequest) (*AllocationsResponse, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	allocations, err := s.engine.ListAllocations(ctx, assoc, req.ClaimID, req.PaymentID)
	if err != nil {
		return nil, err
	}
	return &AllocationsResponse{Allocations: toAllocations(allocations)}, nil
}

// GetCreditBalance returns what the member has paid beyond their claims.
func (s *ClaimService) GetCreditBalance(ctx context.Context, req *CreditBalanceRequest) (*CreditBalanceResponse, error) {
	assoc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	balance, err := s.engine.CreditBalance(ctx, assoc, req.MemberID)
	if err != nil {
		return nil, err
	}
	return &CreditBalanceResponse{MemberID: req.MemberID, Balance: balance}, nil
}
