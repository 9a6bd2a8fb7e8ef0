// Package matcher decides which member an imported bank transaction belongs
// to.
//
// Matching runs in stages, in priority order:
//  1. claim reference token "F<claimID>-<year>" in the remittance text
//  2. counterparty IBAN registered as a member's bank account
//  3. exact normalized counterparty name plus an amount equal to one of that
//     member's open claim remainders; the claim is only named when exactly
//     one remainder equals the amount
//  4. fuzzy counterparty name (token overlap, typo tolerant)
//
// Every stage returns a tagged Result. The first Unique result wins; an
// Ambiguous result at any stage ends matching, because a tie is never
// resolved by guessing.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mmynk/vereinsledger/internal/models"
	"github.com/mmynk/vereinsledger/internal/storage"
)

// Outcome tags the result of a matching stage.
type Outcome int

const (
	NoMatch Outcome = iota
	Unique
	Ambiguous
)

func (o Outcome) String() string {
	switch o {
	case Unique:
		return "unique"
	case Ambiguous:
		return "ambiguous"
	default:
		return "no_match"
	}
}

// Rule names the stage that produced a match.
type Rule string

const (
	RuleReference Rule = "REFERENCE"
	RuleIBAN      Rule = "IBAN"
	RuleExactName Rule = "EXACT_NAME"
	RuleFuzzyName Rule = "FUZZY_NAME"
	RuleManual    Rule = "MANUAL"
)

// Result is what a matching stage decided.
type Result struct {
	Outcome Outcome
	Rule    Rule

	// MemberID is set for Unique results.
	MemberID int64

	// ClaimID is set when the stage also identified the claim being paid.
	ClaimID int64

	// Candidates lists the competing member IDs of an Ambiguous result.
	Candidates []int64
}

func unique(rule Rule, memberID, claimID int64) Result {
	return Result{Outcome: Unique, Rule: rule, MemberID: memberID, ClaimID: claimID}
}

func ambiguous(rule Rule, candidates []int64) Result {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
	return Result{Outcome: Ambiguous, Rule: rule, Candidates: candidates}
}

// Directory is the member lookup the matcher needs.
type Directory interface {
	// FindMembersByName returns the active members whose normalized full
	// name equals the normalized name.
	FindMembersByName(ctx context.Context, associationID int64, name string) ([]*models.Member, error)

	// FindMembersByBankAccount returns the active members owning the IBAN.
	FindMembersByBankAccount(ctx context.Context, associationID int64, iban string) ([]*models.Member, error)

	// ListActiveMembers returns all active members of the association.
	ListActiveMembers(ctx context.Context, associationID int64) ([]*models.Member, error)
}

// ClaimSource is the claim lookup the matcher needs.
type ClaimSource interface {
	GetClaim(ctx context.Context, claimID int64) (*models.Claim, error)

	// ListOpenClaims returns the member's claims that are not PAID and not
	// deleted, with Allocated filled in.
	ListOpenClaims(ctx context.Context, memberID int64) ([]*models.Claim, error)
}

// DefaultFuzzyThreshold is the share of a member's name tokens that must be
// found in the counterparty name for a fuzzy match.
const DefaultFuzzyThreshold = 0.8

// Matcher runs the matching stages against a directory and the open claims.
type Matcher struct {
	directory Directory
	claims    ClaimSource
	threshold float64
}

// New creates a Matcher. A threshold outside (0, 1] falls back to
// DefaultFuzzyThreshold.
func New(directory Directory, claims ClaimSource, threshold float64) *Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultFuzzyThreshold
	}
	return &Matcher{directory: directory, claims: claims, threshold: threshold}
}

type stage func(ctx context.Context, txn *models.BankTransaction) (Result, error)

// Match runs all stages for the transaction and returns the deciding result.
// A NoMatch result means the transaction goes to the unmatched queue, and so
// does an Ambiguous one.
func (m *Matcher) Match(ctx context.Context, txn *models.BankTransaction) (Result, error) {
	stages := []stage{m.byReference, m.byBankAccount, m.byExactName, m.byFuzzyName}
	for _, run := range stages {
		res, err := run(ctx, txn)
		if err != nil {
			return Result{}, err
		}
		switch res.Outcome {
		case Unique:
			return res, nil
		case Ambiguous:
			slog.Info("Ambiguous bank transaction match",
				"bank_transaction_id", txn.ID,
				"rule", res.Rule,
				"candidates", res.Candidates,
			)
			return res, nil
		}
	}
	return Result{Outcome: NoMatch}, nil
}

func (m *Matcher) byReference(ctx context.Context, txn *models.BankTransaction) (Result, error) {
	if !txn.IsInflow() {
		return Result{Outcome: NoMatch, Rule: RuleReference}, nil
	}

	refs := ParseClaimReferences(txn.RemittanceText + " " + txn.Reference)
	members := make(map[int64]int64) // member -> first referenced claim
	for _, ref := range refs {
		claim, err := m.claims.GetClaim(ctx, ref.ClaimID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("failed to resolve claim reference %s: %w", ref, err)
		}
		if claim.AssociationID != txn.AssociationID || claim.Deleted || claim.ReferenceYear() != ref.Year {
			continue
		}
		if _, seen := members[claim.MemberID]; !seen {
			claimID := claim.ID
			if claim.Status == models.ClaimPaid {
				claimID = 0
			}
			members[claim.MemberID] = claimID
		}
	}

	switch len(members) {
	case 0:
		return Result{Outcome: NoMatch, Rule: RuleReference}, nil
	case 1:
		for memberID, claimID := range members {
			return unique(RuleReference, memberID, claimID), nil
		}
	}
	candidates := make([]int64, 0, len(members))
	for memberID := range members {
		candidates = append(candidates, memberID)
	}
	return ambiguous(RuleReference, candidates), nil
}

func (m *Matcher) byBankAccount(ctx context.Context, txn *models.BankTransaction) (Result, error) {
	iban := models.NormalizeIBAN(txn.CounterpartyIBAN)
	if iban == "" {
		return Result{Outcome: NoMatch, Rule: RuleIBAN}, nil
	}
	members, err := m.directory.FindMembersByBankAccount(ctx, txn.AssociationID, iban)
	if err != nil {
		return Result{}, fmt.Errorf("failed to look up member bank account: %w", err)
	}
	switch len(members) {
	case 0:
		return Result{Outcome: NoMatch, Rule: RuleIBAN}, nil
	case 1:
		return unique(RuleIBAN, members[0].ID, 0), nil
	}
	ids := make([]int64, len(members))
	for i, mem := range members {
		ids[i] = mem.ID
	}
	return ambiguous(RuleIBAN, ids), nil
}

func (m *Matcher) byExactName(ctx context.Context, txn *models.BankTransaction) (Result, error) {
	if !txn.IsInflow() || models.NormalizeName(txn.CounterpartyName) == "" {
		return Result{Outcome: NoMatch, Rule: RuleExactName}, nil
	}

	members, err := m.directory.FindMembersByName(ctx, txn.AssociationID, txn.CounterpartyName)
	if err != nil {
		return Result{}, fmt.Errorf("failed to look up member by name: %w", err)
	}
	if len(members) == 0 {
		return Result{Outcome: NoMatch, Rule: RuleExactName}, nil
	}
	if len(members) > 1 {
		ids := make([]int64, len(members))
		for i, mem := range members {
			ids[i] = mem.ID
		}
		return ambiguous(RuleExactName, ids), nil
	}

	member := members[0]
	open, err := m.claims.ListOpenClaims(ctx, member.ID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list open claims: %w", err)
	}

	var hits []*models.Claim
	for _, c := range open {
		if c.Remaining().Equal(txn.Amount) {
			hits = append(hits, c)
		}
	}
	switch len(hits) {
	case 0:
		return Result{Outcome: NoMatch, Rule: RuleExactName}, nil
	case 1:
		return unique(RuleExactName, member.ID, hits[0].ID), nil
	default:
		// The member is certain but the claim is not; allocation goes oldest first.
		return unique(RuleExactName, member.ID, 0), nil
	}
}

func (m *Matcher) byFuzzyName(ctx context.Context, txn *models.BankTransaction) (Result, error) {
	if !txn.IsInflow() || models.NormalizeName(txn.CounterpartyName) == "" {
		return Result{Outcome: NoMatch, Rule: RuleFuzzyName}, nil
	}

	members, err := m.directory.ListActiveMembers(ctx, txn.AssociationID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list members: %w", err)
	}

	var hits []int64
	for _, member := range members {
		if NameSimilarity(txn.CounterpartyName, member.FullName()) >= m.threshold {
			hits = append(hits, member.ID)
		}
	}

	switch len(hits) {
	case 0:
		return Result{Outcome: NoMatch, Rule: RuleFuzzyName}, nil
	case 1:
		return unique(RuleFuzzyName, hits[0], 0), nil
	default:
		return ambiguous(RuleFuzzyName, hits), nil
	}
}
