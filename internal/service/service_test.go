package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"

	"github.com/mmynk/vereinsledger/internal/auth"
	"github.com/mmynk/vereinsledger/internal/finance"
	"github.com/mmynk/vereinsledger/internal/middleware"
	"github.com/mmynk/vereinsledger/internal/models"
	"github.com/mmynk/vereinsledger/internal/storage"
	"github.com/mmynk/vereinsledger/internal/storage/sqlite"
)

const testSecret = "test-secret"

type testServer struct {
	url    string
	tokens *auth.JWTManager
	token  string
	member *models.Member
	bank   *models.BankAccount
}

// setupTestServer starts all three services behind the production
// interceptor chain on a fresh database with one member, the accounts 4000
// and 1800, and one bank account.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "vereinsledger-service-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := sqlite.New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ts := &testServer{tokens: auth.NewJWTManager(testSecret, time.Hour)}
	ctx := context.Background()
	err = store.WithTx(ctx, func(tx storage.Tx) error {
		ts.member = &models.Member{AssociationID: 1, FirstName: "Jürgen", LastName: "Müller", Active: true}
		if err := tx.CreateMember(ctx, ts.member); err != nil {
			return err
		}
		for _, a := range []*models.Account{
			{Code: "4000", Name: "Mitgliedsbeiträge", Active: true},
			{Code: "1800", Name: "Durchlaufende Posten", Active: true},
		} {
			if err := tx.CreateAccount(ctx, a); err != nil {
				return err
			}
		}
		ts.bank = &models.BankAccount{AssociationID: 1, Name: "Girokonto", IBAN: "DE89370400440532013000"}
		return tx.CreateBankAccount(ctx, ts.bank)
	})
	if err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}

	engine := finance.New(store, finance.Options{})
	interceptors := connect.WithInterceptors(
		middleware.LoggingInterceptor(),
		middleware.RequireAssociation(ts.tokens),
	)

	mux := http.NewServeMux()
	mux.Handle(NewClaimServiceHandler(NewClaimService(engine), interceptors))
	mux.Handle(NewReconciliationServiceHandler(NewReconciliationService(engine), interceptors))
	mux.Handle(NewCashBookServiceHandler(NewCashBookService(engine), interceptors))

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	ts.url = server.URL

	ts.token = ts.tokenFor(t, 1)
	return ts
}

func (ts *testServer) tokenFor(t *testing.T, associationID int64) string {
	t.Helper()
	token, err := ts.tokens.Generate("kassenwart@example.org", associationID, "Kassenwart")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return token
}

// call invokes one procedure with the given bearer token.
func call[Req, Res any](ts *testServer, token, service, method string, req *Req) (*Res, error) {
	client := connect.NewClient[Req, Res](http.DefaultClient, ts.url+"/"+service+"/"+method, Codec())
	r := connect.NewRequest(req)
	if token != "" {
		r.Header().Set("Authorization", "Bearer "+token)
	}
	resp, err := client.CallUnary(context.Background(), r)
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func expectCode(t *testing.T, err error, want connect.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v, got success", want)
	}
	if got := connect.CodeOf(err); got != want {
		t.Fatalf("expected %v, got %v (%v)", want, got, err)
	}
}

func TestAuthentication(t *testing.T) {
	ts := setupTestServer(t)
	req := &ListClaimsRequest{MemberID: ts.member.ID}

	_, err := call[ListClaimsRequest, ListClaimsResponse](ts, "", ClaimServiceName, "ListClaims", req)
	expectCode(t, err, connect.CodeUnauthenticated)

	_, err = call[ListClaimsRequest, ListClaimsResponse](ts, "not-a-token", ClaimServiceName, "ListClaims", req)
	expectCode(t, err, connect.CodeUnauthenticated)

	forged, err := auth.NewJWTManager("other-secret", time.Hour).Generate("x", 1, "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	_, err = call[ListClaimsRequest, ListClaimsResponse](ts, forged, ClaimServiceName, "ListClaims", req)
	expectCode(t, err, connect.CodeUnauthenticated)

	resp, err := call[ListClaimsRequest, ListClaimsResponse](ts, ts.token, ClaimServiceName, "ListClaims", req)
	if err != nil {
		t.Fatalf("ListClaims failed: %v", err)
	}
	if len(resp.Claims) != 0 {
		t.Errorf("Expected no claims, got %d", len(resp.Claims))
	}
}

func TestClaimsAndPayments(t *testing.T) {
	ts := setupTestServer(t)

	created, err := call[CreateClaimRequest, ClaimResponse](ts, ts.token, ClaimServiceName, "CreateClaim", &CreateClaimRequest{
		MemberID: ts.member.ID,
		Kind:     string(models.KindMembershipFee),
		Amount:   dec("100"),
		DueDate:  "2025-01-31",
		Period:   "2025",
	})
	if err != nil {
		t.Fatalf("CreateClaim failed: %v", err)
	}
	claim := created.Claim
	if claim.Status != string(models.ClaimOpen) || claim.Currency != "EUR" || claim.Period != "2025" {
		t.Errorf("Unexpected claim: %+v", claim)
	}
	if want := fmt.Sprintf("F%d-2025", claim.ID); claim.Reference != want {
		t.Errorf("Reference = %s, want %s", claim.Reference, want)
	}

	paid, err := call[RecordPaymentRequest, PaymentResult](ts, ts.token, ClaimServiceName, "RecordPayment", &RecordPaymentRequest{
		MemberID:       ts.member.ID,
		Amount:         dec("60"),
		PaymentDate:    "2025-02-10",
		Method:         string(models.MethodCash),
		PostToCashBook: true,
		AutoAllocate:   true,
	})
	if err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}
	if len(paid.Allocations) != 1 || !paid.Allocations[0].Amount.Equal(dec("60")) {
		t.Fatalf("Unexpected allocations: %+v", paid.Allocations)
	}
	if paid.Entry == nil || paid.Entry.VoucherNumber != 1 || paid.Entry.Column != string(models.ColumnCashIn) {
		t.Errorf("Unexpected entry: %+v", paid.Entry)
	}

	got, err := call[ClaimRequest, ClaimResponse](ts, ts.token, ClaimServiceName, "GetClaim", &ClaimRequest{ClaimID: claim.ID})
	if err != nil {
		t.Fatalf("GetClaim failed: %v", err)
	}
	if got.Claim.Status != string(models.ClaimPartiallyPaid) || !got.Claim.Remaining.Equal(dec("40")) {
		t.Errorf("Unexpected claim after payment: %+v", got.Claim)
	}

	overdue, err := call[ListOverdueClaimsRequest, ListClaimsResponse](ts, ts.token, ClaimServiceName, "ListOverdueClaims", &ListOverdueClaimsRequest{AsOf: "2025-03-01"})
	if err != nil {
		t.Fatalf("ListOverdueClaims failed: %v", err)
	}
	if len(overdue.Claims) != 1 || !overdue.Claims[0].Overdue {
		t.Errorf("Expected the claim to be overdue, got %+v", overdue.Claims)
	}

	// The payment is fully allocated, so another allocation overdraws it.
	_, err = call[AllocateRequest, AllocationResponse](ts, ts.token, ClaimServiceName, "Allocate", &AllocateRequest{
		PaymentID: paid.Payment.ID,
		ClaimID:   claim.ID,
		Amount:    dec("10"),
	})
	expectCode(t, err, connect.CodeFailedPrecondition)

	_, err = call[DeallocateRequest, Empty](ts, ts.token, ClaimServiceName, "Deallocate", &DeallocateRequest{
		AllocationID: paid.Allocations[0].ID,
		Amount:       dec("50"),
	})
	if err != nil {
		t.Fatalf("Deallocate failed: %v", err)
	}

	credit, err := call[CreditBalanceRequest, CreditBalanceResponse](ts, ts.token, ClaimServiceName, "GetCreditBalance", &CreditBalanceRequest{MemberID: ts.member.ID})
	if err != nil {
		t.Fatalf("GetCreditBalance failed: %v", err)
	}
	if !credit.Balance.Equal(dec("10")) {
		t.Errorf("Credit balance = %s, want 10", credit.Balance)
	}

	t.Run("validation errors", func(t *testing.T) {
		_, err := call[CreateClaimRequest, ClaimResponse](ts, ts.token, ClaimServiceName, "CreateClaim", &CreateClaimRequest{
			MemberID: ts.member.ID, Kind: "BIRTHDAY", Amount: dec("10"), DueDate: "2025-01-31",
		})
		expectCode(t, err, connect.CodeInvalidArgument)

		_, err = call[CreateClaimRequest, ClaimResponse](ts, ts.token, ClaimServiceName, "CreateClaim", &CreateClaimRequest{
			MemberID: ts.member.ID, Kind: string(models.KindAdHoc), Amount: dec("10"), DueDate: "31.01.2025",
		})
		expectCode(t, err, connect.CodeInvalidArgument)

		_, err = call[CreateClaimRequest, ClaimResponse](ts, ts.token, ClaimServiceName, "CreateClaim", &CreateClaimRequest{
			MemberID: ts.member.ID, Kind: string(models.KindAdHoc), Amount: dec("10"), DueDate: "2025-01-31", Period: "2025-Q7",
		})
		expectCode(t, err, connect.CodeInvalidArgument)
	})

	t.Run("other association", func(t *testing.T) {
		other := ts.tokenFor(t, 2)
		_, err := call[ClaimRequest, ClaimResponse](ts, other, ClaimServiceName, "GetClaim", &ClaimRequest{ClaimID: claim.ID})
		expectCode(t, err, connect.CodeNotFound)
	})
}

func TestReconciliation(t *testing.T) {
	ts := setupTestServer(t)

	created, err := call[CreateClaimRequest, ClaimResponse](ts, ts.token, ClaimServiceName, "CreateClaim", &CreateClaimRequest{
		MemberID: ts.member.ID,
		Kind:     string(models.KindMembershipFee),
		Amount:   dec("50"),
		DueDate:  "2025-01-31",
	})
	if err != nil {
		t.Fatalf("CreateClaim failed: %v", err)
	}

	csv := "Buchungstag;Auftraggeber/Empfänger;Verwendungszweck;Betrag\n" +
		fmt.Sprintf("03.02.2025;Jürgen Müller;%s;50,00\n", created.Claim.Reference) +
		"05.02.2025;Unbekannt;Spende;10,00\n" +
		"06.02.2025;Stadtwerke;Strom;-80,00\n"

	imported, err := call[ImportStatementFileRequest, ImportResult](ts, ts.token, ReconciliationServiceName, "ImportStatementFile", &ImportStatementFileRequest{
		BankAccountID: ts.bank.ID,
		Filename:      "umsaetze.csv",
		Content:       []byte(csv),
	})
	if err != nil {
		t.Fatalf("ImportStatementFile failed: %v", err)
	}
	if imported.SuccessCount != 1 || imported.UnmatchedCount != 2 || imported.Batch == "" {
		t.Fatalf("Unexpected import result: %+v", imported)
	}
	if imported.Details[0].Rule != "REFERENCE" {
		t.Errorf("Rule = %s, want REFERENCE", imported.Details[0].Rule)
	}

	again, err := call[ImportStatementFileRequest, ImportResult](ts, ts.token, ReconciliationServiceName, "ImportStatementFile", &ImportStatementFileRequest{
		BankAccountID: ts.bank.ID,
		Filename:      "umsaetze.csv",
		Content:       []byte(csv),
	})
	if err != nil {
		t.Fatalf("Second import failed: %v", err)
	}
	if again.SkippedCount != 3 {
		t.Errorf("Expected 3 skipped rows on re-import, got %+v", again)
	}

	unmatched, err := call[Empty, ListUnmatchedResponse](ts, ts.token, ReconciliationServiceName, "ListUnmatched", &Empty{})
	if err != nil {
		t.Fatalf("ListUnmatched failed: %v", err)
	}
	if len(unmatched.Transactions) != 2 {
		t.Fatalf("Expected 2 unmatched transactions, got %d", len(unmatched.Transactions))
	}

	var donation, electricity *BankTransaction
	for _, txn := range unmatched.Transactions {
		if txn.Amount.IsPositive() {
			donation = txn
		} else {
			electricity = txn
		}
	}

	matched, err := call[MatchToMemberRequest, PaymentResult](ts, ts.token, ReconciliationServiceName, "MatchToMember", &MatchToMemberRequest{
		BankTransactionID: donation.ID,
		MemberID:          ts.member.ID,
	})
	if err != nil {
		t.Fatalf("MatchToMember failed: %v", err)
	}
	if matched.Entry == nil || matched.Entry.VoucherNumber != 2 || matched.Entry.Column != string(models.ColumnBankIn) {
		t.Errorf("Unexpected entry: %+v", matched.Entry)
	}

	_, err = call[MatchToMemberRequest, PaymentResult](ts, ts.token, ReconciliationServiceName, "MatchToMember", &MatchToMemberRequest{
		BankTransactionID: donation.ID,
		MemberID:          ts.member.ID,
	})
	expectCode(t, err, connect.CodeFailedPrecondition)

	_, err = call[SkipTransactionRequest, Empty](ts, ts.token, ReconciliationServiceName, "SkipTransaction", &SkipTransactionRequest{BankTransactionID: electricity.ID})
	expectCode(t, err, connect.CodeInvalidArgument)

	_, err = call[SkipTransactionRequest, Empty](ts, ts.token, ReconciliationServiceName, "SkipTransaction", &SkipTransactionRequest{
		BankTransactionID: electricity.ID,
		Reason:            "Vereinsheim, separat gebucht",
	})
	if err != nil {
		t.Fatalf("SkipTransaction failed: %v", err)
	}

	_, err = call[ImportStatementFileRequest, ImportResult](ts, ts.token, ReconciliationServiceName, "ImportStatementFile", &ImportStatementFileRequest{
		BankAccountID: ts.bank.ID,
		Filename:      "umsaetze.pdf",
		Content:       []byte("%PDF"),
	})
	expectCode(t, err, connect.CodeInvalidArgument)
}

func TestCashBook(t *testing.T) {
	ts := setupTestServer(t)

	posted, err := call[PostEntryRequest, EntryResponse](ts, ts.token, CashBookServiceName, "PostEntry", &PostEntryRequest{
		VoucherDate: "2024-11-20",
		AccountCode: "4000",
		Description: "Beitrag bar",
		Column:      string(models.ColumnCashIn),
		Amount:      dec("120.50"),
	})
	if err != nil {
		t.Fatalf("PostEntry failed: %v", err)
	}
	if posted.Entry.Year != 2024 || posted.Entry.VoucherNumber != 1 {
		t.Errorf("Unexpected entry: %+v", posted.Entry)
	}

	_, err = call[PostEntryRequest, EntryResponse](ts, ts.token, CashBookServiceName, "PostEntry", &PostEntryRequest{
		VoucherDate: "2024-11-20",
		AccountCode: "4000",
		Column:      "SAVINGS_IN",
		Amount:      dec("1"),
	})
	expectCode(t, err, connect.CodeInvalidArgument)

	closed, err := call[CloseYearRequest, ClosingResponse](ts, ts.token, CashBookServiceName, "CloseYear", &CloseYearRequest{Year: 2024})
	if err != nil {
		t.Fatalf("CloseYear failed: %v", err)
	}
	if !closed.Closing.Closing.Cash.Equal(dec("120.50")) || closed.Closing.Reviewed {
		t.Errorf("Unexpected closing: %+v", closed.Closing)
	}

	_, err = call[CloseYearRequest, ClosingResponse](ts, ts.token, CashBookServiceName, "CloseYear", &CloseYearRequest{Year: 2024})
	expectCode(t, err, connect.CodeAlreadyExists)

	reviewed, err := call[YearRequest, ClosingResponse](ts, ts.token, CashBookServiceName, "ReviewClosing", &YearRequest{Year: 2024})
	if err != nil {
		t.Fatalf("ReviewClosing failed: %v", err)
	}
	if !reviewed.Closing.Reviewed || reviewed.Closing.ReviewedBy != "kassenwart@example.org" {
		t.Errorf("Unexpected review: %+v", reviewed.Closing)
	}

	_, err = call[PostEntryRequest, EntryResponse](ts, ts.token, CashBookServiceName, "PostEntry", &PostEntryRequest{
		VoucherDate: "2024-12-31",
		AccountCode: "4000",
		Column:      string(models.ColumnCashOut),
		Amount:      dec("5"),
	})
	expectCode(t, err, connect.CodeFailedPrecondition)

	balance, err := call[YearRequest, YearBalanceResponse](ts, ts.token, CashBookServiceName, "GetYearBalance", &YearRequest{Year: 2025})
	if err != nil {
		t.Fatalf("GetYearBalance failed: %v", err)
	}
	if !balance.Opening.Cash.Equal(dec("120.50")) || balance.Closed {
		t.Errorf("Unexpected 2025 balance: %+v", balance)
	}

	t.Run("pass-through", func(t *testing.T) {
		opened, err := call[RecordInflowRequest, PassThroughResponse](ts, ts.token, CashBookServiceName, "RecordInflow", &RecordInflowRequest{
			Date:        "2025-03-01",
			AccountCode: "1800",
			Description: "Sammelbestellung Trikots",
			Amount:      dec("240"),
			Medium:      string(models.MediumBank),
		})
		if err != nil {
			t.Fatalf("RecordInflow failed: %v", err)
		}

		open, err := call[Empty, ListPassThroughResponse](ts, ts.token, CashBookServiceName, "ListOpenPassThrough", &Empty{})
		if err != nil {
			t.Fatalf("ListOpenPassThrough failed: %v", err)
		}
		if len(open.Items) != 1 {
			t.Fatalf("Expected 1 open item, got %d", len(open.Items))
		}

		settled, err := call[RecordOutflowRequest, PassThroughResponse](ts, ts.token, CashBookServiceName, "RecordOutflow", &RecordOutflowRequest{
			ItemID: opened.Item.ID,
			Date:   "2025-03-10",
			Medium: string(models.MediumBank),
		})
		if err != nil {
			t.Fatalf("RecordOutflow failed: %v", err)
		}
		if settled.Item.Status != string(models.PassThroughSettled) || settled.Item.OutflowDate != "2025-03-10" {
			t.Errorf("Unexpected item: %+v", settled.Item)
		}

		_, err = call[RecordOutflowRequest, PassThroughResponse](ts, ts.token, CashBookServiceName, "RecordOutflow", &RecordOutflowRequest{
			ItemID: opened.Item.ID,
			Date:   "2025-03-11",
			Medium: string(models.MediumBank),
		})
		expectCode(t, err, connect.CodeFailedPrecondition)
	})

	t.Run("donations", func(t *testing.T) {
		_, err := call[RecordDonationRequest, DonationResponse](ts, ts.token, CashBookServiceName, "RecordDonation", &RecordDonationRequest{
			Date:        "2025-04-20",
			Occasion:    "Osterkollekte",
			TotalAmount: dec("100"),
			Details:     []*DonationDetail{{Value: dec("20"), Count: 2}, {Value: dec("0.50"), Count: 10}},
		})
		expectCode(t, err, connect.CodeInvalidArgument)

		recorded, err := call[RecordDonationRequest, DonationResponse](ts, ts.token, CashBookServiceName, "RecordDonation", &RecordDonationRequest{
			Date:          "2025-04-20",
			Occasion:      "Osterkollekte",
			TotalAmount:   dec("45"),
			CountedBy:     "Anna Schmidt, Otto Fremd",
			Details:       []*DonationDetail{{Value: dec("20"), Count: 2}, {Value: dec("0.50"), Count: 10}},
			PostToAccount: "4000",
		})
		if err != nil {
			t.Fatalf("RecordDonation failed: %v", err)
		}
		if recorded.Donation.CashBookEntryID == nil || !recorded.Donation.Details[1].Subtotal.Equal(dec("5")) {
			t.Errorf("Unexpected donation: %+v", recorded.Donation)
		}

		got, err := call[DonationRequest, DonationResponse](ts, ts.token, CashBookServiceName, "GetDonation", &DonationRequest{ProtocolID: recorded.Donation.ID})
		if err != nil {
			t.Fatalf("GetDonation failed: %v", err)
		}
		if !got.Donation.TotalAmount.Equal(dec("45")) || len(got.Donation.Details) != 2 {
			t.Errorf("Unexpected donation: %+v", got.Donation)
		}
	})
}
