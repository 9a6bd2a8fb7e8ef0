package matcher

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/vereinsledger/internal/models"
	"github.com/mmynk/vereinsledger/internal/storage"
)

// fakeDirectory serves members and claims from memory.
type fakeDirectory struct {
	members []*models.Member
	ibans   map[string][]int64
	claims  map[int64]*models.Claim
}

func (f *fakeDirectory) FindMembersByName(_ context.Context, associationID int64, name string) ([]*models.Member, error) {
	var out []*models.Member
	for _, m := range f.members {
		if m.AssociationID == associationID && m.Active && models.NormalizeName(m.FullName()) == models.NormalizeName(name) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeDirectory) FindMembersByBankAccount(_ context.Context, associationID int64, iban string) ([]*models.Member, error) {
	var out []*models.Member
	for _, id := range f.ibans[models.NormalizeIBAN(iban)] {
		for _, m := range f.members {
			if m.ID == id && m.AssociationID == associationID && m.Active {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func (f *fakeDirectory) ListActiveMembers(_ context.Context, associationID int64) ([]*models.Member, error) {
	var out []*models.Member
	for _, m := range f.members {
		if m.AssociationID == associationID && m.Active {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeDirectory) GetClaim(_ context.Context, claimID int64) (*models.Claim, error) {
	c, ok := f.claims[claimID]
	if !ok {
		return nil, fmt.Errorf("claim %d: %w", claimID, storage.ErrNotFound)
	}
	return c, nil
}

func (f *fakeDirectory) ListOpenClaims(_ context.Context, memberID int64) ([]*models.Claim, error) {
	var out []*models.Claim
	for _, c := range f.claims {
		if c.MemberID == memberID && c.Status != models.ClaimPaid && !c.Deleted {
			out = append(out, c)
		}
	}
	return out, nil
}

func newFixture() *fakeDirectory {
	claim := func(id, member int64, amount string, due time.Time) *models.Claim {
		return &models.Claim{
			ID: id, AssociationID: 1, MemberID: member, Amount: decimal.RequireFromString(amount),
			Allocated: decimal.Zero, DueDate: due, Status: models.ClaimOpen,
		}
	}
	return &fakeDirectory{
		members: []*models.Member{
			{ID: 1, AssociationID: 1, FirstName: "Jürgen", LastName: "Müller", Active: true},
			{ID: 2, AssociationID: 1, FirstName: "Anna", LastName: "Schmidt", Active: true},
			{ID: 3, AssociationID: 1, FirstName: "Anna", LastName: "Schmidt", Active: true},
			{ID: 4, AssociationID: 1, FirstName: "Karl-Heinz", LastName: "Östermann", Active: true},
			{ID: 5, AssociationID: 1, FirstName: "Petra", LastName: "Weber", Active: false},
		},
		ibans: map[string][]int64{
			"DE02120300000000202051": {4},
			"DE89370400440532013000": {2, 3},
			"DE44500105175407324931": {5},
		},
		claims: map[int64]*models.Claim{
			10: claim(10, 1, "40", models.Date(2025, time.February, 1)),
			11: claim(11, 1, "50", models.Date(2025, time.January, 1)),
			12: claim(12, 2, "30", models.Date(2025, time.January, 1)),
			13: claim(13, 1, "25", models.Date(2025, time.March, 1)),
			14: claim(14, 1, "25", models.Date(2025, time.April, 1)),
		},
	}
}

func TestMatch(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		txn        models.BankTransaction
		wantResult Result
	}{
		{
			name: "reference token wins over name",
			txn: models.BankTransaction{
				Amount: decimal.RequireFromString("30"), CounterpartyName: "Jürgen Müller",
				RemittanceText: "Beitrag f12-2025",
			},
			wantResult: Result{Outcome: Unique, Rule: RuleReference, MemberID: 2, ClaimID: 12},
		},
		{
			name: "reference with wrong year is ignored",
			txn: models.BankTransaction{
				Amount: decimal.RequireFromString("17"), RemittanceText: "F12-2024",
			},
			wantResult: Result{Outcome: NoMatch},
		},
		{
			name: "references of two members are ambiguous",
			txn: models.BankTransaction{
				Amount: decimal.RequireFromString("80"), RemittanceText: "F10-2025 F12-2025",
			},
			wantResult: Result{Outcome: Ambiguous, Rule: RuleReference, Candidates: []int64{1, 2}},
		},
		{
			name: "registered IBAN",
			txn: models.BankTransaction{
				Amount: decimal.RequireFromString("12.34"), CounterpartyIBAN: "de02 1203 0000 0000 2020 51",
			},
			wantResult: Result{Outcome: Unique, Rule: RuleIBAN, MemberID: 4},
		},
		{
			name: "shared IBAN is ambiguous",
			txn: models.BankTransaction{
				Amount: decimal.RequireFromString("30"), CounterpartyIBAN: "DE89370400440532013000",
			},
			wantResult: Result{Outcome: Ambiguous, Rule: RuleIBAN, Candidates: []int64{2, 3}},
		},
		{
			name: "IBAN of an inactive member is ignored",
			txn: models.BankTransaction{
				Amount: decimal.RequireFromString("20"), CounterpartyIBAN: "DE44500105175407324931",
			},
			wantResult: Result{Outcome: NoMatch},
		},
		{
			name: "transliterated name falls through to fuzzy",
			txn: models.BankTransaction{
				Amount: decimal.RequireFromString("50.00"), CounterpartyName: "MUELLER JUERGEN",
			},
			wantResult: Result{Outcome: Unique, Rule: RuleFuzzyName, MemberID: 1},
		},
		{
			name: "exact normalized name with matching amount",
			txn: models.BankTransaction{
				Amount: decimal.RequireFromString("50"), CounterpartyName: "jurgen muller",
			},
			wantResult: Result{Outcome: Unique, Rule: RuleExactName, MemberID: 1, ClaimID: 11},
		},
		{
			name: "exact name with tied remainders names no claim",
			txn: models.BankTransaction{
				Amount: decimal.RequireFromString("25"), CounterpartyName: "Jürgen Müller",
			},
			wantResult: Result{Outcome: Unique, Rule: RuleExactName, MemberID: 1},
		},
		{
			name: "duplicate names are ambiguous",
			txn: models.BankTransaction{
				Amount: decimal.RequireFromString("30"), CounterpartyName: "Anna Schmidt",
			},
			wantResult: Result{Outcome: Ambiguous, Rule: RuleExactName, Candidates: []int64{2, 3}},
		},
		{
			name: "fuzzy name tolerates a typo and word order",
			txn: models.BankTransaction{
				Amount: decimal.RequireFromString("99"), CounterpartyName: "Herr Ostermannn Karl Heinz",
			},
			wantResult: Result{Outcome: Unique, Rule: RuleFuzzyName, MemberID: 4},
		},
		{
			name: "inactive member is never matched by name",
			txn: models.BankTransaction{
				Amount: decimal.RequireFromString("20"), CounterpartyName: "Petra Weber",
			},
			wantResult: Result{Outcome: NoMatch},
		},
		{
			name: "outflow is not matched by name",
			txn: models.BankTransaction{
				Amount: decimal.RequireFromString("-50"), CounterpartyName: "Jürgen Müller",
			},
			wantResult: Result{Outcome: NoMatch},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := newFixture()
			m := New(dir, dir, 0)
			tt.txn.AssociationID = 1

			got, err := m.Match(ctx, &tt.txn)
			if err != nil {
				t.Fatalf("Match failed: %v", err)
			}
			if got.Outcome != tt.wantResult.Outcome {
				t.Fatalf("Outcome = %s, want %s", got.Outcome, tt.wantResult.Outcome)
			}
			if got.Outcome == NoMatch {
				return
			}
			if got.Rule != tt.wantResult.Rule || got.MemberID != tt.wantResult.MemberID || got.ClaimID != tt.wantResult.ClaimID {
				t.Errorf("Match = %+v, want %+v", got, tt.wantResult)
			}
			if fmt.Sprint(got.Candidates) != fmt.Sprint(tt.wantResult.Candidates) {
				t.Errorf("Candidates = %v, want %v", got.Candidates, tt.wantResult.Candidates)
			}
		})
	}
}

func TestParseClaimReferences(t *testing.T) {
	refs := ParseClaimReferences("Mitgliedsbeitrag F42-2025, f42-2025 und F7-2024; XF9-2025 F0-2025")
	want := []ClaimReference{{ClaimID: 42, Year: 2025}, {ClaimID: 7, Year: 2024}}
	if len(refs) != len(want) {
		t.Fatalf("Expected %d references, got %v", len(want), refs)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("reference %d = %s, want %s", i, refs[i], want[i])
		}
	}
}

func TestNameSimilarity(t *testing.T) {
	tests := []struct {
		counterparty string
		member       string
		want         float64
	}{
		{"Jürgen Müller", "Jürgen Müller", 1},
		{"MUELLER, JUERGEN", "Jürgen Müller", 1},
		{"Jürgen Meier", "Jürgen Müller", 0.5},
		{"Fam. Schmidtt", "Anna Schmidt", 0.5},
		{"Eheleute Weber und Meier", "Petra Weber", 0.5},
		{"", "Petra Weber", 0},
	}

	for _, tt := range tests {
		t.Run(tt.counterparty+"/"+tt.member, func(t *testing.T) {
			if got := NameSimilarity(tt.counterparty, tt.member); got != tt.want {
				t.Errorf("NameSimilarity(%q, %q) = %v, want %v", tt.counterparty, tt.member, got, tt.want)
			}
		})
	}
}
