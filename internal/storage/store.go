// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/vereinsledger/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate record")
)

// Store is the persistent state of the settlement engine.
//
// All reads and writes happen inside WithTx. A transaction is a single-writer
// unit: no other transaction observes or changes the same rows until it
// commits, which is what the voucher sequence and the allocation sums rely on.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the finance layer.
type Store interface {
	// WithTx runs fn in a transaction. It commits if fn returns nil and rolls
	// back otherwise, returning fn's error unchanged.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any resources held by the store.
	Close() error
}

// Tx is the set of operations available inside a transaction.
type Tx interface {
	Members
	Accounts
	Claims
	Payments
	Allocations
	BankTransactions
	CashBook
	SubLedgers
}

// Members is the store side of the member directory.
type Members interface {
	CreateMember(ctx context.Context, m *models.Member) error
	GetMember(ctx context.Context, memberID int64) (*models.Member, error)
	ListActiveMembers(ctx context.Context, associationID int64) ([]*models.Member, error)

	// FindMembersByName returns active members whose normalized full name
	// equals the normalized name (see models.NormalizeName).
	FindMembersByName(ctx context.Context, associationID int64, name string) ([]*models.Member, error)

	AddMemberBankAccount(ctx context.Context, memberID int64, iban string) error

	// FindMembersByBankAccount returns the active members of the association
	// owning the IBAN. A shared account yields several members.
	FindMembersByBankAccount(ctx context.Context, associationID int64, iban string) ([]*models.Member, error)
}

// Accounts covers the chart of accounts and the association's bank accounts.
type Accounts interface {
	CreateAccount(ctx context.Context, a *models.Account) error
	GetAccount(ctx context.Context, code string) (*models.Account, error)
	CreateBankAccount(ctx context.Context, a *models.BankAccount) error
	GetBankAccount(ctx context.Context, bankAccountID int64) (*models.BankAccount, error)
}

// Claims persists claims. Reads fill in Claim.Allocated.
type Claims interface {
	CreateClaim(ctx context.Context, c *models.Claim) error
	GetClaim(ctx context.Context, claimID int64) (*models.Claim, error)
	ListClaimsByMember(ctx context.Context, memberID int64) ([]*models.Claim, error)

	// ListOpenClaims returns claims of the member that are neither PAID nor
	// deleted, oldest due date first.
	ListOpenClaims(ctx context.Context, memberID int64) ([]*models.Claim, error)

	// ListUnpaidClaims returns the association's claims that are not PAID
	// and not deleted, oldest due date first.
	ListUnpaidClaims(ctx context.Context, associationID int64) ([]*models.Claim, error)

	// UpdateClaimStatus stores the derived status and settlement time.
	UpdateClaimStatus(ctx context.Context, claimID int64, status models.ClaimStatus, settledAt *time.Time) error

	SoftDeleteClaim(ctx context.Context, claimID int64) error
}

// Payments persists payments. Reads fill in Payment.Allocated.
type Payments interface {
	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPayment(ctx context.Context, paymentID int64) (*models.Payment, error)
	ListPaymentsByMember(ctx context.Context, memberID int64) ([]*models.Payment, error)
}

// Allocations persists claim/payment links.
type Allocations interface {
	GetAllocation(ctx context.Context, allocationID int64) (*models.Allocation, error)

	// FindAllocation returns the allocation of the pair, or ErrNotFound.
	FindAllocation(ctx context.Context, claimID, paymentID int64) (*models.Allocation, error)

	CreateAllocation(ctx context.Context, a *models.Allocation) error
	UpdateAllocationAmount(ctx context.Context, allocationID int64, amount decimal.Decimal) error
	DeleteAllocation(ctx context.Context, allocationID int64) error

	SumAllocatedForClaim(ctx context.Context, claimID int64) (decimal.Decimal, error)
	SumAllocatedForPayment(ctx context.Context, paymentID int64) (decimal.Decimal, error)

	ListAllocationsByClaim(ctx context.Context, claimID int64) ([]*models.Allocation, error)
	ListAllocationsByPayment(ctx context.Context, paymentID int64) ([]*models.Allocation, error)
}

// BankTransactions persists imported statement rows.
type BankTransactions interface {
	// InsertBankTransaction stores a new row. It returns ErrDuplicate when a
	// row with the same bank account, booking date, amount and reference
	// already exists.
	InsertBankTransaction(ctx context.Context, t *models.BankTransaction) error

	GetBankTransaction(ctx context.Context, id int64) (*models.BankTransaction, error)
	ListUnmatched(ctx context.Context, associationID int64) ([]*models.BankTransaction, error)
	MarkMatched(ctx context.Context, id, memberID, paymentID int64, rule string) error
	MarkSkipped(ctx context.Context, id int64, reason string) error
}

// CashBook persists the ledger and its year closings.
type CashBook interface {
	// NextVoucherNumber returns MAX(voucher_number)+1 for the year.
	NextVoucherNumber(ctx context.Context, associationID int64, year int) (int, error)

	InsertEntry(ctx context.Context, e *models.CashBookEntry) error
	ListEntries(ctx context.Context, associationID int64, year int) ([]*models.CashBookEntry, error)

	// GetClosing returns the closing of the year, or ErrNotFound.
	GetClosing(ctx context.Context, associationID int64, year int) (*models.YearClosing, error)

	// HasClosings reports whether the association has closed any year.
	HasClosings(ctx context.Context, associationID int64) (bool, error)

	// HasEntriesBefore reports whether any entry was posted to a year
	// earlier than the given one.
	HasEntriesBefore(ctx context.Context, associationID int64, year int) (bool, error)

	// InsertClosing returns ErrDuplicate if the year is already closed.
	InsertClosing(ctx context.Context, c *models.YearClosing) error

	// UpdateClosing overwrites the balances and totals of an existing closing.
	UpdateClosing(ctx context.Context, c *models.YearClosing) error

	MarkClosingReviewed(ctx context.Context, associationID int64, year int, reviewer string, at time.Time) error
}

// SubLedgers persists pass-through items and donation protocols.
type SubLedgers interface {
	CreatePassThrough(ctx context.Context, p *models.PassThroughItem) error
	GetPassThrough(ctx context.Context, id int64) (*models.PassThroughItem, error)
	SettlePassThrough(ctx context.Context, id int64, outflowDate time.Time, outflowEntryID int64) error
	ListOpenPassThrough(ctx context.Context, associationID int64) ([]*models.PassThroughItem, error)

	CreateDonation(ctx context.Context, d *models.DonationProtocol) error
	GetDonation(ctx context.Context, id int64) (*models.DonationProtocol, error)
}
