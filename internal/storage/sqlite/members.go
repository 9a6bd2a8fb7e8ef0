package sqlite

import (
	"context"
	"fmt"

	"github.com/mmynk/vereinsledger/internal/models"
	"github.com/mmynk/vereinsledger/internal/storage"
)

const memberColumns = `id, association_id, first_name, last_name, active`

func scanMember(row interface{ Scan(...any) error }) (*models.Member, error) {
	m := &models.Member{}
	var active int
	if err := row.Scan(&m.ID, &m.AssociationID, &m.FirstName, &m.LastName, &active); err != nil {
		return nil, err
	}
	m.Active = active != 0
	return m, nil
}

// CreateMember inserts a member. The name key used for lookups is derived
// from the normalized full name.
func (t *sqlTx) CreateMember(ctx context.Context, m *models.Member) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO members (association_id, first_name, last_name, name_key, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.AssociationID, m.FirstName, m.LastName, models.NormalizeName(m.FullName()), boolToInt(m.Active), now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert member: %w", err)
	}
	m.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read member id: %w", err)
	}
	return nil
}

// GetMember retrieves a member by ID.
func (t *sqlTx) GetMember(ctx context.Context, memberID int64) (*models.Member, error) {
	m, err := scanMember(t.tx.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = ?`, memberID))
	if err != nil {
		return nil, notFound(err, "member", memberID)
	}
	return m, nil
}

// ListActiveMembers returns the active members of an association ordered by ID.
func (t *sqlTx) ListActiveMembers(ctx context.Context, associationID int64) ([]*models.Member, error) {
	return t.queryMembers(ctx,
		`SELECT `+memberColumns+` FROM members WHERE association_id = ? AND active = 1 ORDER BY id`,
		associationID)
}

// FindMembersByName returns the active members whose normalized name equals
// the normalized name given.
func (t *sqlTx) FindMembersByName(ctx context.Context, associationID int64, name string) ([]*models.Member, error) {
	key := models.NormalizeName(name)
	if key == "" {
		return nil, nil
	}
	return t.queryMembers(ctx,
		`SELECT `+memberColumns+` FROM members
		 WHERE association_id = ? AND active = 1 AND name_key = ? ORDER BY id`,
		associationID, key)
}

func (t *sqlTx) queryMembers(ctx context.Context, query string, args ...any) ([]*models.Member, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	return members, nil
}

// AddMemberBankAccount links an IBAN to a member. Adding the same IBAN twice
// is a no-op.
func (t *sqlTx) AddMemberBankAccount(ctx context.Context, memberID int64, iban string) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO member_bank_accounts (member_id, iban) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		memberID, models.NormalizeIBAN(iban),
	)
	if err != nil {
		return fmt.Errorf("failed to insert member bank account: %w", err)
	}
	return nil
}

// FindMembersByBankAccount returns the active members of the association
// owning the IBAN, ordered by id.
func (t *sqlTx) FindMembersByBankAccount(ctx context.Context, associationID int64, iban string) ([]*models.Member, error) {
	return t.queryMembers(ctx,
		`SELECT m.id, m.association_id, m.first_name, m.last_name, m.active
		 FROM members m JOIN member_bank_accounts b ON b.member_id = m.id
		 WHERE m.association_id = ? AND b.iban = ? AND m.active = 1 ORDER BY m.id`,
		associationID, models.NormalizeIBAN(iban))
}

// CreateAccount inserts a chart-of-accounts entry.
func (t *sqlTx) CreateAccount(ctx context.Context, a *models.Account) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO accounts (code, name, active) VALUES (?, ?, ?)`,
		a.Code, a.Name, boolToInt(a.Active),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("account %s: %w", a.Code, storage.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// GetAccount retrieves an account by code.
func (t *sqlTx) GetAccount(ctx context.Context, code string) (*models.Account, error) {
	a := &models.Account{}
	var active int
	err := t.tx.QueryRowContext(ctx,
		`SELECT code, name, active FROM accounts WHERE code = ?`, code,
	).Scan(&a.Code, &a.Name, &active)
	if err != nil {
		return nil, notFound(err, "account", code)
	}
	a.Active = active != 0
	return a, nil
}

// CreateBankAccount inserts one of the association's bank accounts.
func (t *sqlTx) CreateBankAccount(ctx context.Context, a *models.BankAccount) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO bank_accounts (association_id, name, iban) VALUES (?, ?, ?)`,
		a.AssociationID, a.Name, models.NormalizeIBAN(a.IBAN),
	)
	if err != nil {
		return fmt.Errorf("failed to insert bank account: %w", err)
	}
	a.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read bank account id: %w", err)
	}
	return nil
}

// GetBankAccount retrieves a bank account by ID.
func (t *sqlTx) GetBankAccount(ctx context.Context, bankAccountID int64) (*models.BankAccount, error) {
	a := &models.BankAccount{}
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, association_id, name, iban FROM bank_accounts WHERE id = ?`, bankAccountID,
	).Scan(&a.ID, &a.AssociationID, &a.Name, &a.IBAN)
	if err != nil {
		return nil, notFound(err, "bank account", bankAccountID)
	}
	return a, nil
}
