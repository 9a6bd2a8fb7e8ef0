// Package finance is the settlement engine of an association: claims and
// payments, their allocations, bank statement reconciliation, the cash book
// with its year closings, and the pass-through and donation sub-ledgers.
//
// Every operation that checks a balance rule and writes runs inside a single
// storage transaction, re-reading the sums it checks.
package finance

import (
	"context"
	"time"

	"github.com/mmynk/vereinsledger/internal/matcher"
	"github.com/mmynk/vereinsledger/internal/metrics"
	"github.com/mmynk/vereinsledger/internal/models"
	"github.com/mmynk/vereinsledger/internal/storage"
)

// DefaultMemberPaymentAccount is the chart-of-accounts code member payments
// are booked to when nothing else is configured.
const DefaultMemberPaymentAccount = "4000"

// Options configure a Service. Zero values select the defaults.
type Options struct {
	// MemberPaymentAccount is the account code of cash book entries created
	// for matched bank transactions and recorded payments.
	MemberPaymentAccount string

	DefaultCurrency string
	FuzzyThreshold  float64

	// Directory replaces the store-backed member directory, e.g. when members
	// live in another system.
	Directory matcher.Directory

	Metrics *metrics.Metrics

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Service runs the engine's operations against a store.
type Service struct {
	store    storage.Store
	matcher  *matcher.Matcher
	metrics  *metrics.Metrics
	account  string
	currency string
	now      func() time.Time
}

// New creates a Service.
func New(store storage.Store, opts Options) *Service {
	if opts.MemberPaymentAccount == "" {
		opts.MemberPaymentAccount = DefaultMemberPaymentAccount
	}
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = models.DefaultCurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	lookup := &storeLookup{store: store}
	var directory matcher.Directory = lookup
	if opts.Directory != nil {
		directory = opts.Directory
	}

	return &Service{
		store:    store,
		matcher:  matcher.New(directory, lookup, opts.FuzzyThreshold),
		metrics:  opts.Metrics,
		account:  opts.MemberPaymentAccount,
		currency: opts.DefaultCurrency,
		now:      opts.Now,
	}
}

// storeLookup serves the matcher's reads from the store, one short
// transaction per lookup.
type storeLookup struct {
	store storage.Store
}

func (l *storeLookup) FindMembersByName(ctx context.Context, associationID int64, name string) (members []*models.Member, err error) {
	err = l.store.WithTx(ctx, func(tx storage.Tx) error {
		members, err = tx.FindMembersByName(ctx, associationID, name)
		return err
	})
	return members, err
}

func (l *storeLookup) FindMembersByBankAccount(ctx context.Context, associationID int64, iban string) (members []*models.Member, err error) {
	err = l.store.WithTx(ctx, func(tx storage.Tx) error {
		members, err = tx.FindMembersByBankAccount(ctx, associationID, iban)
		return err
	})
	return members, err
}

func (l *storeLookup) ListActiveMembers(ctx context.Context, associationID int64) (members []*models.Member, err error) {
	err = l.store.WithTx(ctx, func(tx storage.Tx) error {
		members, err = tx.ListActiveMembers(ctx, associationID)
		return err
	})
	return members, err
}

func (l *storeLookup) GetClaim(ctx context.Context, claimID int64) (claim *models.Claim, err error) {
	err = l.store.WithTx(ctx, func(tx storage.Tx) error {
		claim, err = tx.GetClaim(ctx, claimID)
		return err
	})
	return claim, err
}

func (l *storeLookup) ListOpenClaims(ctx context.Context, memberID int64) (claims []*models.Claim, err error) {
	err = l.store.WithTx(ctx, func(tx storage.Tx) error {
		claims, err = tx.ListOpenClaims(ctx, memberID)
		return err
	})
	return claims, err
}

// today is the service clock truncated to the date.
func (s *Service) today() time.Time {
	return models.Day(s.now())
}
