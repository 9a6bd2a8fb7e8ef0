// Package models defines the domain models of the association ledger.
//
// # Entities
//
// The settlement engine works on these records:
//   - Claim: an amount a member owes the association (Forderung)
//   - Payment: money received from or paid out to a member (Zahlung)
//   - Allocation: the share of a payment applied to a claim
//   - BankTransaction: one imported bank statement row (BankBuchung)
//   - CashBookEntry: one voucher-numbered ledger line (Kassenbuch)
//   - YearClosing: the annual balance snapshot (Jahresabschluss)
//   - PassThroughItem: a paired inflow/outflow (Durchlaufende Posten)
//   - DonationProtocol: a counted donation with its denomination breakdown
//
// # Money
//
// Amounts are decimal.Decimal values with at most two fractional digits.
// Storage keeps them as integer cents so that sums and equality (and the
// uniqueness constraints built on it) are exact.
//
// # Relationships
//
// Models refer to each other by int64 IDs, never by pointers. Statuses that
// depend on other records (a claim's status depends on its allocations) are
// derived by the finance package and stored only as a cache of that
// derivation.
package models
