package finance

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/vereinsledger/internal/metrics"
	"github.com/mmynk/vereinsledger/internal/models"
	"github.com/mmynk/vereinsledger/internal/storage"
	"github.com/mmynk/vereinsledger/internal/storage/sqlite"
)

const (
	assoc      int64 = 1
	otherAssoc int64 = 2

	accountMembers     = "4000"
	accountPassThrough = "1800"
	accountDonations   = "2000"
	accountRetired     = "9999"
)

// testEnv is a service on a fresh SQLite database with a small association:
// two members, a foreign member, the accounts used by the tests and one
// bank account.
type testEnv struct {
	svc   *Service
	store *sqlite.SQLiteStore

	juergen *models.Member
	anna    *models.Member
	foreign *models.Member
	bank    *models.BankAccount
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "vereinsledger-finance-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := sqlite.New(filepath.Join(tempDir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	env := &testEnv{store: store}
	ctx := context.Background()
	err = store.WithTx(ctx, func(tx storage.Tx) error {
		env.juergen = &models.Member{AssociationID: assoc, FirstName: "Jürgen", LastName: "Müller", Active: true}
		env.anna = &models.Member{AssociationID: assoc, FirstName: "Anna", LastName: "Schmidt", Active: true}
		env.foreign = &models.Member{AssociationID: otherAssoc, FirstName: "Otto", LastName: "Fremd", Active: true}
		for _, m := range []*models.Member{env.juergen, env.anna, env.foreign} {
			if err := tx.CreateMember(ctx, m); err != nil {
				return err
			}
		}
		if err := tx.AddMemberBankAccount(ctx, env.anna.ID, "DE02 1203 0000 0000 2020 51"); err != nil {
			return err
		}

		accounts := []*models.Account{
			{Code: accountMembers, Name: "Mitgliedsbeiträge", Active: true},
			{Code: accountPassThrough, Name: "Durchlaufende Posten", Active: true},
			{Code: accountDonations, Name: "Spenden", Active: true},
			{Code: accountRetired, Name: "Alt", Active: false},
		}
		for _, a := range accounts {
			if err := tx.CreateAccount(ctx, a); err != nil {
				return err
			}
		}

		env.bank = &models.BankAccount{AssociationID: assoc, Name: "Girokonto", IBAN: "DE89370400440532013000"}
		return tx.CreateBankAccount(ctx, env.bank)
	})
	require.NoError(t, err)

	clock := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)
	env.svc = New(store, Options{
		Metrics: metrics.New(prometheus.NewRegistry()),
		Now:     func() time.Time { return clock },
	})
	return env
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(year int, month time.Month, d int) time.Time {
	return models.Date(year, month, d)
}

func (env *testEnv) claim(t *testing.T, member *models.Member, amount string, due time.Time) *models.Claim {
	t.Helper()
	c, err := env.svc.CreateClaim(context.Background(), NewClaim{
		AssociationID: assoc,
		MemberID:      member.ID,
		Kind:          models.KindMembershipFee,
		Amount:        dec(amount),
		DueDate:       due,
	})
	require.NoError(t, err)
	return c
}

func (env *testEnv) payment(t *testing.T, member *models.Member, amount string) *models.Payment {
	t.Helper()
	res, err := env.svc.RecordPayment(context.Background(), NewPayment{
		AssociationID: assoc,
		MemberID:      member.ID,
		Amount:        dec(amount),
		PaymentDate:   day(2025, time.March, 1),
	})
	require.NoError(t, err)
	return res.Payment
}

func (env *testEnv) getClaim(t *testing.T, id int64) *models.Claim {
	t.Helper()
	c, err := env.svc.GetClaim(context.Background(), assoc, id)
	require.NoError(t, err)
	return c
}

func (env *testEnv) post(t *testing.T, date time.Time, column models.Column, amount string) *models.CashBookEntry {
	t.Helper()
	e, err := env.svc.PostEntry(context.Background(), EntryInput{
		AssociationID: assoc,
		Year:          date.Year(),
		VoucherDate:   date,
		AccountCode:   accountMembers,
		Description:   "Buchung",
		Column:        column,
		Amount:        dec(amount),
	})
	require.NoError(t, err)
	return e
}
