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
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CandidateKind distinguishes the two ledger-side record types a bank
// transaction can reconcile against.
type CandidateKind string

const (
	KindExpense CandidateKind = "expense"
	KindInvoice CandidateKind = "invoice"
)

// ParseCandidateKind validates a kind string coming from the API.
func ParseCandidateKind(s string) (CandidateKind, error) {
	switch CandidateKind(s) {
	case KindExpense, KindInvoice:
		return CandidateKind(s), nil
	}
	return "", fmt.Errorf("invalid candidate kind: %q", s)
}

// Candidate is the ledger-side view the matcher scores against. It is
// transient: built from an expense or invoice, never persisted itself.
// Seq preserves the candidate's creation order for deterministic tie-breaks.
type Candidate struct {
	CandidateID string          `json:"candidate_id"`
	OrgID       string          `json:"org_id"`
	Kind        CandidateKind   `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Name        string          `json:"name"`
	Reference   string          `json:"reference"`
	Seq         int64           `json:"-"`
}

// ScoredCandidate is a candidate annotated with the matcher's confidence
// score in [0,100] and the human-readable reasons that produced it.
type ScoredCandidate struct {
	Candidate
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}

// Expense is the minimal ledger-side expense record the reconciliation
// subsystem reads. The surrounding accounting CRUD owns the rest of its
// shape.
type Expense struct {
	ID                  int64           `json:"-"`
	ExpenseID           string          `json:"expense_id"`
	OrgID               string          `json:"org_id"`
	Amount              decimal.Decimal `json:"amount"`
	ExpenseDate         time.Time       `json:"expense_date"`
	Vendor              string          `json:"vendor"`
	Reference           string          `json:"reference"`
	LinkedTransactionID *string         `json:"linked_transaction_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

// ToCandidate converts the expense into the matcher's candidate shape.
func (e *Expense) ToCandidate() Candidate {
	return Candidate{
		CandidateID: e.ExpenseID,
		OrgID:       e.OrgID,
		Kind:        KindExpense,
		Amount:      e.Amount,
		Date:        e.ExpenseDate,
		Name:        e.Vendor,
		Reference:   e.Reference,
		Seq:         e.ID,
	}
}

// Invoice is the minimal ledger-side invoice record the reconciliation
// subsystem reads. A credit transaction matches against the balance due,
// not the invoice total.
type Invoice struct {
	ID                  int64           `json:"-"`
	InvoiceID           string          `json:"invoice_id"`
	OrgID               string          `json:"org_id"`
	Total               decimal.Decimal `json:"total"`
	AmountPaid          decimal.Decimal `json:"amount_paid"`
	IssueDate           time.Time       `json:"issue_date"`
	DueDate             *time.Time      `json:"due_date,omitempty"`
	Contact             string          `json:"contact"`
	Number              string          `json:"number"`
	LinkedTransactionID *string         `json:"linked_transaction_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

// BalanceDue is the invoice total minus payments already recorded.
func (i *Invoice) BalanceDue() decimal.Decimal {
	return i.Total.Sub(i.AmountPaid)
}

// ToCandidate converts the invoice into the matcher's candidate shape,
// preferring the due date for proximity scoring when one is set.
func (i *Invoice) ToCandidate() Candidate {
	date := i.IssueDate
	if i.DueDate != nil {
		date = *i.DueDate
	}
	return Candidate{
		CandidateID: i.InvoiceID,
		OrgID:       i.OrgID,
		Kind:        KindInvoice,
		Amount:      i.BalanceDue(),
		Date:        date,
		Name:        i.Contact,
		Reference:   i.Number,
		Seq:         i.ID,
	}
}
