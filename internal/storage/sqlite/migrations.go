package sqlite

import "database/sql"

// schema contains the SQL statements to set up the database schema.
// These run on startup to ensure tables exist.
// Money columns hold integer cents. Dates are TEXT in 2006-01-02 form,
// timestamps are Unix seconds.
// IMPORTANT: referenced tables must be created before the tables referencing them.
const schema = `
CREATE TABLE IF NOT EXISTS members (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    association_id INTEGER NOT NULL,
    first_name TEXT NOT NULL,
    last_name TEXT NOT NULL,
    name_key TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS member_bank_accounts (
    member_id INTEGER NOT NULL,
    iban TEXT NOT NULL,
    PRIMARY KEY (member_id, iban),
    FOREIGN KEY (member_id) REFERENCES members(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS accounts (
    code TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS bank_accounts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    association_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    iban TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS claims (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    association_id INTEGER NOT NULL,
    member_id INTEGER NOT NULL,
    kind TEXT NOT NULL,
    amount INTEGER NOT NULL CHECK (amount > 0),
    currency TEXT NOT NULL,
    period TEXT,
    due_date TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    settled_at INTEGER,
    deleted INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (member_id) REFERENCES members(id)
);

CREATE TABLE IF NOT EXISTS bank_transactions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    association_id INTEGER NOT NULL,
    bank_account_id INTEGER NOT NULL,
    booking_date TEXT NOT NULL,
    amount INTEGER NOT NULL,
    counterparty_name TEXT NOT NULL DEFAULT '',
    counterparty_iban TEXT NOT NULL DEFAULT '',
    remittance_text TEXT NOT NULL DEFAULT '',
    reference TEXT NOT NULL DEFAULT '',
    import_batch TEXT NOT NULL,
    match_state TEXT NOT NULL,
    match_rule TEXT NOT NULL DEFAULT '',
    skip_reason TEXT NOT NULL DEFAULT '',
    payment_id INTEGER,
    member_id INTEGER,
    created_at INTEGER NOT NULL,
    UNIQUE (bank_account_id, booking_date, amount, reference),
    FOREIGN KEY (bank_account_id) REFERENCES bank_accounts(id)
);

CREATE TABLE IF NOT EXISTS payments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    association_id INTEGER NOT NULL,
    member_id INTEGER NOT NULL,
    amount INTEGER NOT NULL CHECK (amount > 0),
    currency TEXT NOT NULL,
    direction TEXT NOT NULL,
    payment_date TEXT NOT NULL,
    method TEXT NOT NULL,
    reference TEXT NOT NULL DEFAULT '',
    bank_account_id INTEGER,
    bank_transaction_id INTEGER UNIQUE,
    status TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (member_id) REFERENCES members(id),
    FOREIGN KEY (bank_account_id) REFERENCES bank_accounts(id),
    FOREIGN KEY (bank_transaction_id) REFERENCES bank_transactions(id)
);

CREATE TABLE IF NOT EXISTS allocations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    claim_id INTEGER NOT NULL,
    payment_id INTEGER NOT NULL,
    amount INTEGER NOT NULL CHECK (amount > 0),
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    UNIQUE (claim_id, payment_id),
    FOREIGN KEY (claim_id) REFERENCES claims(id),
    FOREIGN KEY (payment_id) REFERENCES payments(id)
);

CREATE TABLE IF NOT EXISTS cash_book_entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    association_id INTEGER NOT NULL,
    year INTEGER NOT NULL,
    voucher_number INTEGER NOT NULL CHECK (voucher_number > 0),
    voucher_date TEXT NOT NULL,
    account_code TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    cash_in INTEGER NOT NULL DEFAULT 0,
    cash_out INTEGER NOT NULL DEFAULT 0,
    bank_in INTEGER NOT NULL DEFAULT 0,
    bank_out INTEGER NOT NULL DEFAULT 0,
    member_id INTEGER,
    payment_id INTEGER,
    bank_transaction_id INTEGER,
    created_at INTEGER NOT NULL,
    UNIQUE (association_id, year, voucher_number),
    FOREIGN KEY (account_code) REFERENCES accounts(code),
    FOREIGN KEY (member_id) REFERENCES members(id),
    FOREIGN KEY (payment_id) REFERENCES payments(id),
    FOREIGN KEY (bank_transaction_id) REFERENCES bank_transactions(id)
);

CREATE TABLE IF NOT EXISTS year_closings (
    association_id INTEGER NOT NULL,
    year INTEGER NOT NULL,
    opening_cash INTEGER NOT NULL,
    opening_bank INTEGER NOT NULL,
    opening_savings INTEGER NOT NULL,
    closing_cash INTEGER NOT NULL,
    closing_bank INTEGER NOT NULL,
    closing_savings INTEGER NOT NULL,
    total_cash_in INTEGER NOT NULL,
    total_cash_out INTEGER NOT NULL,
    total_bank_in INTEGER NOT NULL,
    total_bank_out INTEGER NOT NULL,
    entry_count INTEGER NOT NULL,
    closing_date TEXT NOT NULL,
    reviewed INTEGER NOT NULL DEFAULT 0,
    reviewed_by TEXT NOT NULL DEFAULT '',
    reviewed_at INTEGER,
    PRIMARY KEY (association_id, year)
);

CREATE TABLE IF NOT EXISTS pass_through_items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    association_id INTEGER NOT NULL,
    account_code TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    amount INTEGER NOT NULL CHECK (amount > 0),
    status TEXT NOT NULL,
    inflow_date TEXT NOT NULL,
    inflow_entry_id INTEGER NOT NULL,
    outflow_date TEXT,
    outflow_entry_id INTEGER UNIQUE,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (account_code) REFERENCES accounts(code),
    FOREIGN KEY (inflow_entry_id) REFERENCES cash_book_entries(id),
    FOREIGN KEY (outflow_entry_id) REFERENCES cash_book_entries(id)
);

CREATE TABLE IF NOT EXISTS donation_protocols (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    association_id INTEGER NOT NULL,
    date TEXT NOT NULL,
    occasion TEXT NOT NULL DEFAULT '',
    total INTEGER NOT NULL,
    counted_by TEXT NOT NULL DEFAULT '',
    cash_book_entry_id INTEGER,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (cash_book_entry_id) REFERENCES cash_book_entries(id)
);

CREATE TABLE IF NOT EXISTS donation_details (
    protocol_id INTEGER NOT NULL,
    position INTEGER NOT NULL,
    value INTEGER NOT NULL,
    count INTEGER NOT NULL,
    subtotal INTEGER NOT NULL,
    PRIMARY KEY (protocol_id, position),
    FOREIGN KEY (protocol_id) REFERENCES donation_protocols(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_members_association ON members(association_id, name_key);
CREATE INDEX IF NOT EXISTS idx_member_bank_accounts_iban ON member_bank_accounts(iban);
CREATE INDEX IF NOT EXISTS idx_claims_member ON claims(member_id, status);
CREATE INDEX IF NOT EXISTS idx_claims_association ON claims(association_id, status);
CREATE INDEX IF NOT EXISTS idx_payments_member ON payments(member_id);
CREATE INDEX IF NOT EXISTS idx_allocations_payment ON allocations(payment_id);
CREATE INDEX IF NOT EXISTS idx_bank_transactions_state ON bank_transactions(association_id, match_state);
CREATE INDEX IF NOT EXISTS idx_cash_book_entries_year ON cash_book_entries(association_id, year);
CREATE INDEX IF NOT EXISTS idx_pass_through_status ON pass_through_items(association_id, status);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
