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
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/shilingihq/shilingi/model"
)

// CreateColumnMapping is the request body for defining how a bank's CSV
// columns map onto canonical statement fields.
type CreateColumnMapping struct {
	Name       string            `json:"name"`
	Columns    map[string]string `json:"columns"`
	DateLayout string            `json:"date_layout"`
}

func (m *CreateColumnMapping) ValidateCreateColumnMapping() error {
	return validation.ValidateStruct(m,
		validation.Field(&m.Name, validation.Required),
		validation.Field(&m.Columns, validation.Required, validation.By(func(value interface{}) error {
			columns, ok := value.(map[string]string)
			if !ok {
				return errors.New("invalid columns type")
			}
			for _, field := range columns {
				if _, err := model.ParseTargetField(field); err != nil {
					return err
				}
			}
			return nil
		})),
		validation.Field(&m.DateLayout, validation.Required),
	)
}

// ToColumnMapping converts the request into the domain shape.
func (m *CreateColumnMapping) ToColumnMapping(orgID string) *model.ColumnMapping {
	columns := make(map[string]model.TargetField, len(m.Columns))
	for col, field := range m.Columns {
		columns[col] = model.TargetField(field)
	}
	return &model.ColumnMapping{
		OrgID:      orgID,
		Name:       m.Name,
		Columns:    columns,
		DateLayout: m.DateLayout,
	}
}

// ApplyMatchRequest commits a suggested or manual match.
type ApplyMatchRequest struct {
	CandidateID string `json:"candidate_id"`
	Kind        string `json:"kind"`
}

func (r *ApplyMatchRequest) ValidateApplyMatch() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.CandidateID, validation.Required),
		validation.Field(&r.Kind, validation.Required, validation.By(func(value interface{}) error {
			kind, ok := value.(string)
			if !ok {
				return errors.New("invalid kind type")
			}
			_, err := model.ParseCandidateKind(kind)
			return err
		})),
	)
}

// CreateExpense records a ledger-side expense.
type CreateExpense struct {
	Amount      decimal.Decimal `json:"amount"`
	ExpenseDate time.Time       `json:"expense_date"`
	Vendor      string          `json:"vendor"`
	Reference   string          `json:"reference"`
}

func (e *CreateExpense) ValidateCreateExpense() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.Amount, validation.Required, validation.By(positiveDecimal)),
		validation.Field(&e.ExpenseDate, validation.Required),
		validation.Field(&e.Vendor, validation.Required),
	)
}

func (e *CreateExpense) ToExpense(orgID string) *model.Expense {
	return &model.Expense{
		OrgID:       orgID,
		Amount:      e.Amount,
		ExpenseDate: e.ExpenseDate,
		Vendor:      e.Vendor,
		Reference:   e.Reference,
	}
}

// CreateInvoice records a ledger-side invoice. The matcher scores credits
// against the balance due, not the total.
type CreateInvoice struct {
	Total      decimal.Decimal `json:"total"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	IssueDate  time.Time       `json:"issue_date"`
	DueDate    *time.Time      `json:"due_date,omitempty"`
	Contact    string          `json:"contact"`
	Number     string          `json:"number"`
}

func (i *CreateInvoice) ValidateCreateInvoice() error {
	return validation.ValidateStruct(i,
		validation.Field(&i.Total, validation.Required, validation.By(positiveDecimal)),
		validation.Field(&i.IssueDate, validation.Required),
		validation.Field(&i.Contact, validation.Required),
	)
}

func (i *CreateInvoice) ToInvoice(orgID string) *model.Invoice {
	return &model.Invoice{
		OrgID:      orgID,
		Total:      i.Total,
		AmountPaid: i.AmountPaid,
		IssueDate:  i.IssueDate,
		DueDate:    i.DueDate,
		Contact:    i.Contact,
		Number:     i.Number,
	}
}

func positiveDecimal(value interface{}) error {
	d, ok := value.(decimal.Decimal)
	if !ok {
		return errors.New("invalid amount type")
	}
	if d.Sign() <= 0 {
		return errors.New("must be greater than zero")
	}
	return nil
}
