/*
Copyright 2025 Shilingi Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ReconciliationStatus is the lifecycle state of an imported bank transaction.
// Transitions are driven only by explicit operations, never by suggestion
// generation.
type ReconciliationStatus string

const (
	StatusUnmatched ReconciliationStatus = "unmatched"
	StatusSuggested ReconciliationStatus = "suggested"
	StatusMatched   ReconciliationStatus = "matched"
	StatusIgnored   ReconciliationStatus = "ignored"
)

// ParseReconciliationStatus validates a status string coming from the API or
// a query filter.
func ParseReconciliationStatus(s string) (ReconciliationStatus, error) {
	switch ReconciliationStatus(s) {
	case StatusUnmatched, StatusSuggested, StatusMatched, StatusIgnored:
		return ReconciliationStatus(s), nil
	}
	return "", fmt.Errorf("invalid reconciliation status: %q", s)
}

// Direction says which side of the bank account a transaction sits on.
type Direction string

const (
	DirectionDebit  Direction = "debit"  // money out, matches expenses
	DirectionCredit Direction = "credit" // money in, matches invoice payments
)

// BankTransaction is one row of an imported bank statement.
//
// Exactly one of Debit/Credit is set, both positive. A transaction in
// StatusMatched carries a non-nil MatchedID/MatchedKind pair; every other
// status carries nil for both.
type BankTransaction struct {
	ID            int64                `json:"-"`
	TransactionID string               `json:"transaction_id"`
	OrgID         string               `json:"org_id"`
	ImportID      string               `json:"import_id"`
	Date          time.Time            `json:"date"`
	Description   string               `json:"description"`
	Debit         *decimal.Decimal     `json:"debit,omitempty"`
	Credit        *decimal.Decimal     `json:"credit,omitempty"`
	Balance       *decimal.Decimal     `json:"balance,omitempty"`
	Reference     string               `json:"reference"`
	Status        ReconciliationStatus `json:"status"`
	MatchedID     *string              `json:"matched_id,omitempty"`
	MatchedKind   *CandidateKind       `json:"matched_kind,omitempty"`
	MatchedAt     *time.Time           `json:"matched_at,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

// Amount returns the absolute value of whichever of debit/credit is set.
func (t *BankTransaction) Amount() decimal.Decimal {
	if t.Debit != nil {
		return t.Debit.Abs()
	}
	if t.Credit != nil {
		return t.Credit.Abs()
	}
	return decimal.Zero
}

// Direction reports whether the transaction is money out or money in.
// Validate guarantees exactly one side is set for stored transactions.
func (t *BankTransaction) Direction() Direction {
	if t.Debit != nil {
		return DirectionDebit
	}
	return DirectionCredit
}

// Validate enforces the row-level invariants before a transaction is stored.
func (t *BankTransaction) Validate() error {
	if t.OrgID == "" {
		return errors.New("org id is required")
	}
	if t.ImportID == "" {
		return errors.New("import id is required")
	}
	if t.Date.IsZero() {
		return errors.New("transaction date is required")
	}
	if t.Debit == nil && t.Credit == nil {
		return errors.New("one of debit or credit is required")
	}
	if t.Debit != nil && t.Credit != nil {
		return errors.New("debit and credit are mutually exclusive")
	}
	if t.Debit != nil && t.Debit.Sign() <= 0 {
		return errors.New("debit must be positive")
	}
	if t.Credit != nil && t.Credit.Sign() <= 0 {
		return errors.New("credit must be positive")
	}
	return t.validateLink()
}

// validateLink checks the status/match-reference pairing.
func (t *BankTransaction) validateLink() error {
	if t.Status == StatusMatched {
		if t.MatchedID == nil || t.MatchedKind == nil {
			return errors.New("matched transaction requires a match reference")
		}
		return nil
	}
	if t.MatchedID != nil || t.MatchedKind != nil {
		return fmt.Errorf("status %s must not carry a match reference", t.Status)
	}
	return nil
}

// StatementImport is the parent record of a bulk statement upload. Its child
// transactions are created in one transaction, so a half-parsed file is never
// visible to reconciliation.
type StatementImport struct {
	ID          int64     `json:"-"`
	ImportID    string    `json:"import_id"`
	OrgID       string    `json:"org_id"`
	Filename    string    `json:"filename"`
	MappingID   string    `json:"mapping_id,omitempty"`
	TotalRows   int       `json:"total_rows"`
	FailedRows  int       `json:"failed_rows"`
	RowErrors   []RowError `json:"row_errors,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RowError reports a single rejected statement row. Row numbers are 1-based
// and count the header row for CSV sources.
type RowError struct {
	Row int    `json:"row"`
	Err string `json:"error"`
}

// TargetField is the closed set of canonical fields a statement column can
// map to. Kept closed so the importer's contract is checkable at parse time
// instead of failing row by row.
type TargetField string

const (
	FieldDate        TargetField = "date"
	FieldDescription TargetField = "description"
	FieldDebit       TargetField = "debit"
	FieldCredit      TargetField = "credit"
	FieldAmount      TargetField = "amount" // single signed column
	FieldBalance     TargetField = "balance"
	FieldReference   TargetField = "reference"
	FieldIgnored     TargetField = "ignored"
)

// ParseTargetField validates a target field string from a mapping payload.
func ParseTargetField(s string) (TargetField, error) {
	switch TargetField(s) {
	case FieldDate, FieldDescription, FieldDebit, FieldCredit,
		FieldAmount, FieldBalance, FieldReference, FieldIgnored:
		return TargetField(s), nil
	}
	return "", fmt.Errorf("invalid target field: %q", s)
}

// ColumnMapping is a user-supplied mapping from statement columns to
// canonical fields, persisted per organization. Source column names are
// matched case-insensitively against the statement header.
type ColumnMapping struct {
	ID         int64                  `json:"-"`
	MappingID  string                 `json:"mapping_id"`
	OrgID      string                 `json:"org_id"`
	Name       string                 `json:"name"`
	Columns    map[string]TargetField `json:"columns"`
	DateLayout string                 `json:"date_layout"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// Validate checks that the mapping can produce valid transactions: one date
// column, one description column, and either a single signed amount column
// or at least one of debit/credit.
func (m *ColumnMapping) Validate() error {
	if m.Name == "" {
		return errors.New("mapping name is required")
	}
	if len(m.Columns) == 0 {
		return errors.New("at least one column mapping is required")
	}

	counts := make(map[TargetField]int)
	for col, field := range m.Columns {
		if col == "" {
			return errors.New("source column name cannot be empty")
		}
		if _, err := ParseTargetField(string(field)); err != nil {
			return err
		}
		counts[field]++
	}

	for _, f := range []TargetField{FieldDate, FieldDescription, FieldDebit, FieldCredit, FieldAmount, FieldBalance, FieldReference} {
		if counts[f] > 1 {
			return fmt.Errorf("target field %q mapped more than once", f)
		}
	}
	if counts[FieldDate] == 0 {
		return errors.New("a date column is required")
	}
	if counts[FieldDescription] == 0 {
		return errors.New("a description column is required")
	}
	if counts[FieldAmount] > 0 && (counts[FieldDebit] > 0 || counts[FieldCredit] > 0) {
		return errors.New("amount column is mutually exclusive with debit/credit columns")
	}
	if counts[FieldAmount] == 0 && counts[FieldDebit] == 0 && counts[FieldCredit] == 0 {
		return errors.New("an amount column or debit/credit columns are required")
	}
	return nil
}
