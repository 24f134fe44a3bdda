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
	"github.com/stretchr/testify/assert"

	"github.com/shilingihq/shilingi/internal/apierror"
	"github.com/shilingihq/shilingi/model"
)

var txnColumns = []string{
	"id", "transaction_id", "org_id", "import_id", "date", "description",
	"debit", "credit", "balance", "reference", "status", "matched_id",
	"matched_kind", "matched_at", "created_at",
}

func matchedTxnRow(txnID, orgID string) *sqlmock.Rows {
	return sqlmock.NewRows(txnColumns).
		AddRow(1, txnID, orgID, "imp_1", time.Now(), "OFFICE SUPPLIES", "5000.00", nil, nil,
			"SH12345678", "matched", "exp_1", "expense", time.Now(), time.Now())
}

func unmatchedTxnRow(txnID, orgID string) *sqlmock.Rows {
	return sqlmock.NewRows(txnColumns).
		AddRow(1, txnID, orgID, "imp_1", time.Now(), "OFFICE SUPPLIES", "5000.00", nil, nil,
			"SH12345678", "unmatched", nil, nil, nil, time.Now())
}

func TestApplyMatch_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM bank_transactions").
		WithArgs("txn_1", "org_1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("unmatched"))
	mock.ExpectQuery("SELECT linked_transaction_id FROM expenses").
		WithArgs("exp_1", "org_1").
		WillReturnRows(sqlmock.NewRows([]string{"linked_transaction_id"}).AddRow(nil))
	mock.ExpectExec("UPDATE bank_transactions").
		WithArgs("txn_1", "org_1", "exp_1", "expense", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE expenses SET linked_transaction_id").
		WithArgs("exp_1", "org_1", "txn_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT id, transaction_id, org_id, import_id").
		WithArgs("txn_1", "org_1").
		WillReturnRows(matchedTxnRow("txn_1", "org_1"))

	txn, err := ds.ApplyMatch(context.Background(), "org_1", "txn_1", "exp_1", model.KindExpense)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusMatched, txn.Status)
	assert.Equal(t, "exp_1", *txn.MatchedID)
	assert.Equal(t, model.KindExpense, *txn.MatchedKind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyMatch_AlreadyMatched(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM bank_transactions").
		WithArgs("txn_1", "org_1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("matched"))
	mock.ExpectRollback()

	_, err = ds.ApplyMatch(context.Background(), "org_1", "txn_1", "exp_1", model.KindExpense)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
}

func TestApplyMatch_CandidateAlreadyLinked(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM bank_transactions").
		WithArgs("txn_1", "org_1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("suggested"))
	mock.ExpectQuery("SELECT linked_transaction_id FROM invoices").
		WithArgs("inv_1", "org_1").
		WillReturnRows(sqlmock.NewRows([]string{"linked_transaction_id"}).AddRow("txn_other"))
	mock.ExpectRollback()

	_, err = ds.ApplyMatch(context.Background(), "org_1", "txn_1", "inv_1", model.KindInvoice)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
	assert.Contains(t, apiErr.Message, "already linked")
}

func TestApplyMatch_TransactionNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM bank_transactions").
		WithArgs("txn_missing", "org_1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err = ds.ApplyMatch(context.Background(), "org_1", "txn_missing", "exp_1", model.KindExpense)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}

func TestApplyMatch_CandidateNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM bank_transactions").
		WithArgs("txn_1", "org_1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("unmatched"))
	mock.ExpectQuery("SELECT linked_transaction_id FROM expenses").
		WithArgs("exp_missing", "org_1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err = ds.ApplyMatch(context.Background(), "org_1", "txn_1", "exp_missing", model.KindExpense)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}

func TestApplyMatch_InvalidKind(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	_, err = ds.ApplyMatch(context.Background(), "org_1", "txn_1", "x_1", model.CandidateKind("payroll"))
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrInvalidInput, apiErr.Code)
}

func TestUnmatch_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status, matched_id, matched_kind FROM bank_transactions").
		WithArgs("txn_1", "org_1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "matched_id", "matched_kind"}).
			AddRow("matched", "exp_1", "expense"))
	mock.ExpectExec("UPDATE expenses SET linked_transaction_id = NULL").
		WithArgs("exp_1", "org_1", "txn_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE bank_transactions").
		WithArgs("txn_1", "org_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT id, transaction_id, org_id, import_id").
		WithArgs("txn_1", "org_1").
		WillReturnRows(unmatchedTxnRow("txn_1", "org_1"))

	txn, err := ds.Unmatch(context.Background(), "org_1", "txn_1")
	assert.NoError(t, err)
	assert.Equal(t, model.StatusUnmatched, txn.Status)
	assert.Nil(t, txn.MatchedID)
	assert.Nil(t, txn.MatchedKind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnmatch_NotMatched(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status, matched_id, matched_kind FROM bank_transactions").
		WithArgs("txn_1", "org_1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "matched_id", "matched_kind"}).
			AddRow("unmatched", nil, nil))
	mock.ExpectRollback()

	_, err = ds.Unmatch(context.Background(), "org_1", "txn_1")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
}

func TestIgnoreTransaction_Matched(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM bank_transactions").
		WithArgs("txn_1", "org_1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("matched"))
	mock.ExpectRollback()

	_, err = ds.IgnoreTransaction(context.Background(), "org_1", "txn_1")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
	assert.Contains(t, apiErr.Message, "unmatch it first")
}

func TestIgnoreTransaction_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM bank_transactions").
		WithArgs("txn_1", "org_1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("unmatched"))
	mock.ExpectExec("UPDATE bank_transactions SET status").
		WithArgs("txn_1", "org_1", "ignored").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT id, transaction_id, org_id, import_id").
		WithArgs("txn_1", "org_1").
		WillReturnRows(sqlmock.NewRows(txnColumns).
			AddRow(1, "txn_1", "org_1", "imp_1", time.Now(), "BANK FEE", "50.00", nil, nil,
				"", "ignored", nil, nil, nil, time.Now()))

	txn, err := ds.IgnoreTransaction(context.Background(), "org_1", "txn_1")
	assert.NoError(t, err)
	assert.Equal(t, model.StatusIgnored, txn.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewTransaction_NotIgnored(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM bank_transactions").
		WithArgs("txn_1", "org_1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("suggested"))
	mock.ExpectRollback()

	_, err = ds.ReviewTransaction(context.Background(), "org_1", "txn_1")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
}

func TestMarkSuggested_Idempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM bank_transactions").
		WithArgs("txn_1", "org_1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("suggested"))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT id, transaction_id, org_id, import_id").
		WithArgs("txn_1", "org_1").
		WillReturnRows(sqlmock.NewRows(txnColumns).
			AddRow(1, "txn_1", "org_1", "imp_1", time.Now(), "OFFICE SUPPLIES", "5000.00", nil, nil,
				"SH12345678", "suggested", nil, nil, nil, time.Now()))

	txn, err := ds.MarkSuggested(context.Background(), "org_1", "txn_1")
	assert.NoError(t, err)
	assert.Equal(t, model.StatusSuggested, txn.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
