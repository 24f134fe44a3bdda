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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/shilingihq/shilingi/internal/apierror"
	"github.com/shilingihq/shilingi/model"
)

func TestCreateExpense_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	expense := &model.Expense{
		OrgID:       "org_1",
		Amount:      decimal.RequireFromString("5000.00"),
		ExpenseDate: time.Now(),
		Vendor:      "Savannah Office Mart",
		Reference:   "SH12345678",
	}

	mock.ExpectQuery("INSERT INTO expenses").
		WithArgs(sqlmock.AnyArg(), "org_1", sqlmock.AnyArg(), sqlmock.AnyArg(),
			"Savannah Office Mart", "SH12345678", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	created, err := ds.CreateExpense(context.Background(), expense)
	assert.NoError(t, err)
	assert.Contains(t, created.ExpenseID, "exp_")
	assert.Equal(t, int64(7), created.ID)
}

func TestGetOpenExpenses_ExcludesLinked(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	rows := sqlmock.NewRows([]string{"id", "expense_id", "org_id", "amount", "expense_date", "vendor", "reference", "linked_transaction_id", "created_at"}).
		AddRow(1, "exp_1", "org_1", "5000.00", time.Now(), "Savannah Office Mart", "SH12345678", nil, time.Now()).
		AddRow(2, "exp_2", "org_1", "750.00", time.Now(), "Nairobi Couriers", "", nil, time.Now())

	mock.ExpectQuery("SELECT id, expense_id, org_id, amount, expense_date").
		WithArgs("org_1").
		WillReturnRows(rows)

	expenses, err := ds.GetOpenExpenses(context.Background(), "org_1")
	assert.NoError(t, err)
	assert.Len(t, expenses, 2)
	assert.Nil(t, expenses[0].LinkedTransactionID)
	assert.True(t, expenses[0].Amount.Equal(decimal.RequireFromString("5000.00")))
}

func TestCreateInvoice_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	invoice := &model.Invoice{
		OrgID:     "org_1",
		Total:     decimal.RequireFromString("12000.00"),
		IssueDate: time.Now(),
		Contact:   "Acme Distributors",
		Number:    "INV-0042",
	}

	mock.ExpectQuery("INSERT INTO invoices").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

	created, err := ds.CreateInvoice(context.Background(), invoice)
	assert.NoError(t, err)
	assert.Contains(t, created.InvoiceID, "inv_")
	assert.True(t, created.BalanceDue().Equal(decimal.RequireFromString("12000.00")))
}

func TestGetOpenInvoices_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	due := time.Now().Add(7 * 24 * time.Hour)
	rows := sqlmock.NewRows([]string{"id", "invoice_id", "org_id", "total", "amount_paid", "issue_date", "due_date", "contact", "number", "linked_transaction_id", "created_at"}).
		AddRow(3, "inv_1", "org_1", "12000.00", "2000.00", time.Now(), due, "Acme Distributors", "INV-0042", nil, time.Now())

	mock.ExpectQuery("SELECT id, invoice_id, org_id, total, amount_paid").
		WithArgs("org_1").
		WillReturnRows(rows)

	invoices, err := ds.GetOpenInvoices(context.Background(), "org_1")
	assert.NoError(t, err)
	assert.Len(t, invoices, 1)
	assert.True(t, invoices[0].BalanceDue().Equal(decimal.RequireFromString("10000.00")))
	assert.NotNil(t, invoices[0].DueDate)
}

func TestGetInvoice_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT id, invoice_id, org_id, total, amount_paid").
		WithArgs("inv_missing", "org_1").
		WillReturnError(sql.ErrNoRows)

	_, err = ds.GetInvoice(context.Background(), "org_1", "inv_missing")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}
