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

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"

	"github.com/shilingihq/shilingi/internal/apierror"
	"github.com/shilingihq/shilingi/model"
)

// CreateExpense inserts a ledger-side expense record.
func (d Datasource) CreateExpense(ctx context.Context, expense *model.Expense) (*model.Expense, error) {
	ctx, span := otel.Tracer("Candidate").Start(ctx, "Saving expense to db")
	defer span.End()

	expense.ExpenseID = model.GenerateUUIDWithSuffix("exp")
	expense.CreatedAt = time.Now()

	err := d.Conn.QueryRowContext(ctx,
		`INSERT INTO expenses(expense_id, org_id, amount, expense_date, vendor, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		expense.ExpenseID, expense.OrgID, expense.Amount, expense.ExpenseDate,
		expense.Vendor, expense.Reference, expense.CreatedAt,
	).Scan(&expense.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Expense with ID '%s' already exists", expense.ExpenseID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create expense", err)
	}
	return expense, nil
}

// GetExpense retrieves an expense by ID scoped to the organization.
func (d Datasource) GetExpense(ctx context.Context, orgID, id string) (*model.Expense, error) {
	ctx, span := otel.Tracer("Candidate").Start(ctx, "Fetching expense from db")
	defer span.End()

	expense := &model.Expense{}
	var linked sql.NullString
	err := d.Conn.QueryRowContext(ctx, `
		SELECT id, expense_id, org_id, amount, expense_date, vendor, reference, linked_transaction_id, created_at
		FROM expenses
		WHERE expense_id = $1 AND org_id = $2
	`, id, orgID).Scan(
		&expense.ID, &expense.ExpenseID, &expense.OrgID, &expense.Amount,
		&expense.ExpenseDate, &expense.Vendor, &expense.Reference, &linked, &expense.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Expense with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve expense", err)
	}
	if linked.Valid {
		expense.LinkedTransactionID = &linked.String
	}
	return expense, nil
}

// GetOpenExpenses retrieves an organization's expenses that are not yet
// linked to a bank transaction, in insertion order for deterministic
// candidate sequencing.
func (d Datasource) GetOpenExpenses(ctx context.Context, orgID string) ([]*model.Expense, error) {
	ctx, span := otel.Tracer("Candidate").Start(ctx, "Fetching open expenses from db")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, expense_id, org_id, amount, expense_date, vendor, reference, linked_transaction_id, created_at
		FROM expenses
		WHERE org_id = $1 AND linked_transaction_id IS NULL
		ORDER BY id ASC
	`, orgID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve open expenses", err)
	}
	defer rows.Close()

	expenses := []*model.Expense{}
	for rows.Next() {
		expense := &model.Expense{}
		var linked sql.NullString
		err = rows.Scan(
			&expense.ID, &expense.ExpenseID, &expense.OrgID, &expense.Amount,
			&expense.ExpenseDate, &expense.Vendor, &expense.Reference, &linked, &expense.CreatedAt,
		)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan expense", err)
		}
		if linked.Valid {
			expense.LinkedTransactionID = &linked.String
		}
		expenses = append(expenses, expense)
	}
	return expenses, nil
}

// CreateInvoice inserts a ledger-side invoice record.
func (d Datasource) CreateInvoice(ctx context.Context, invoice *model.Invoice) (*model.Invoice, error) {
	ctx, span := otel.Tracer("Candidate").Start(ctx, "Saving invoice to db")
	defer span.End()

	invoice.InvoiceID = model.GenerateUUIDWithSuffix("inv")
	invoice.CreatedAt = time.Now()

	err := d.Conn.QueryRowContext(ctx,
		`INSERT INTO invoices(invoice_id, org_id, total, amount_paid, issue_date, due_date, contact, number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		invoice.InvoiceID, invoice.OrgID, invoice.Total, invoice.AmountPaid,
		invoice.IssueDate, invoice.DueDate, invoice.Contact, invoice.Number, invoice.CreatedAt,
	).Scan(&invoice.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Invoice with ID '%s' already exists", invoice.InvoiceID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create invoice", err)
	}
	return invoice, nil
}

// GetInvoice retrieves an invoice by ID scoped to the organization.
func (d Datasource) GetInvoice(ctx context.Context, orgID, id string) (*model.Invoice, error) {
	ctx, span := otel.Tracer("Candidate").Start(ctx, "Fetching invoice from db")
	defer span.End()

	invoice := &model.Invoice{}
	var dueDate sql.NullTime
	var linked sql.NullString
	err := d.Conn.QueryRowContext(ctx, `
		SELECT id, invoice_id, org_id, total, amount_paid, issue_date, due_date, contact, number, linked_transaction_id, created_at
		FROM invoices
		WHERE invoice_id = $1 AND org_id = $2
	`, id, orgID).Scan(
		&invoice.ID, &invoice.InvoiceID, &invoice.OrgID, &invoice.Total, &invoice.AmountPaid,
		&invoice.IssueDate, &dueDate, &invoice.Contact, &invoice.Number, &linked, &invoice.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Invoice with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve invoice", err)
	}
	if dueDate.Valid {
		invoice.DueDate = &dueDate.Time
	}
	if linked.Valid {
		invoice.LinkedTransactionID = &linked.String
	}
	return invoice, nil
}

// GetOpenInvoices retrieves an organization's invoices that still have a
// balance due and are not linked to a bank transaction, in insertion order.
func (d Datasource) GetOpenInvoices(ctx context.Context, orgID string) ([]*model.Invoice, error) {
	ctx, span := otel.Tracer("Candidate").Start(ctx, "Fetching open invoices from db")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, invoice_id, org_id, total, amount_paid, issue_date, due_date, contact, number, linked_transaction_id, created_at
		FROM invoices
		WHERE org_id = $1 AND linked_transaction_id IS NULL AND total > amount_paid
		ORDER BY id ASC
	`, orgID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve open invoices", err)
	}
	defer rows.Close()

	invoices := []*model.Invoice{}
	for rows.Next() {
		invoice := &model.Invoice{}
		var dueDate sql.NullTime
		var linked sql.NullString
		err = rows.Scan(
			&invoice.ID, &invoice.InvoiceID, &invoice.OrgID, &invoice.Total, &invoice.AmountPaid,
			&invoice.IssueDate, &dueDate, &invoice.Contact, &invoice.Number, &linked, &invoice.CreatedAt,
		)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan invoice", err)
		}
		if dueDate.Valid {
			invoice.DueDate = &dueDate.Time
		}
		if linked.Valid {
			invoice.LinkedTransactionID = &linked.String
		}
		invoices = append(invoices, invoice)
	}
	return invoices, nil
}
