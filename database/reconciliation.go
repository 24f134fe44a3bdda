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

	"go.opentelemetry.io/otel"

	"github.com/shilingihq/shilingi/internal/apierror"
	"github.com/shilingihq/shilingi/model"
)

// candidateTable maps a candidate kind to its table and ID column. Kind is
// validated before it reaches any query string.
func candidateTable(kind model.CandidateKind) (table, idColumn string, err error) {
	switch kind {
	case model.KindExpense:
		return "expenses", "expense_id", nil
	case model.KindInvoice:
		return "invoices", "invoice_id", nil
	}
	return "", "", apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("invalid candidate kind: %q", kind), nil)
}

// ApplyMatch links a bank transaction to a candidate in a single database
// transaction. Both rows are locked, both guards are checked under the lock,
// and both sides are updated or neither is. Conflicts are reported as typed
// errors and never retried here.
func (d Datasource) ApplyMatch(ctx context.Context, orgID, txnID, candidateID string, kind model.CandidateKind) (*model.BankTransaction, error) {
	ctx, span := otel.Tracer("Reconciliation").Start(ctx, "Applying match")
	defer span.End()

	table, idColumn, err := candidateTable(kind)
	if err != nil {
		return nil, err
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var status model.ReconciliationStatus
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM bank_transactions
		WHERE transaction_id = $1 AND org_id = $2
		FOR UPDATE
	`, txnID, orgID).Scan(&status)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with ID '%s' not found", txnID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to lock bank transaction", err)
	}
	switch status {
	case model.StatusMatched:
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Transaction '%s' is already matched", txnID), nil)
	case model.StatusIgnored:
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Transaction '%s' is ignored, review it first", txnID), nil)
	}

	var linked sql.NullString
	err = tx.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT linked_transaction_id FROM %s
		WHERE %s = $1 AND org_id = $2
		FOR UPDATE
	`, table, idColumn), candidateID, orgID).Scan(&linked)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("%s with ID '%s' not found", kind, candidateID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to lock candidate", err)
	}
	if linked.Valid {
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("%s '%s' is already linked to transaction '%s'", kind, candidateID, linked.String), nil)
	}

	matchedAt := time.Now()
	_, err = tx.ExecContext(ctx, `
		UPDATE bank_transactions
		SET status = 'matched', matched_id = $3, matched_kind = $4, matched_at = $5
		WHERE transaction_id = $1 AND org_id = $2
	`, txnID, orgID, candidateID, string(kind), matchedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update bank transaction", err)
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET linked_transaction_id = $3
		WHERE %s = $1 AND org_id = $2
	`, table, idColumn), candidateID, orgID, txnID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to link candidate", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit match", err)
	}

	return d.GetBankTransaction(ctx, orgID, txnID)
}

// Unmatch reverses a match, clearing the link on both the transaction and
// the candidate it pointed at.
func (d Datasource) Unmatch(ctx context.Context, orgID, txnID string) (*model.BankTransaction, error) {
	ctx, span := otel.Tracer("Reconciliation").Start(ctx, "Unmatching transaction")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var status model.ReconciliationStatus
	var matchedID, matchedKind sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT status, matched_id, matched_kind FROM bank_transactions
		WHERE transaction_id = $1 AND org_id = $2
		FOR UPDATE
	`, txnID, orgID).Scan(&status, &matchedID, &matchedKind)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with ID '%s' not found", txnID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to lock bank transaction", err)
	}
	if status != model.StatusMatched {
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Transaction '%s' is not matched", txnID), nil)
	}

	table, idColumn, err := candidateTable(model.CandidateKind(matchedKind.String))
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET linked_transaction_id = NULL
		WHERE %s = $1 AND org_id = $2 AND linked_transaction_id = $3
	`, table, idColumn), matchedID.String, orgID, txnID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unlink candidate", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE bank_transactions
		SET status = 'unmatched', matched_id = NULL, matched_kind = NULL, matched_at = NULL
		WHERE transaction_id = $1 AND org_id = $2
	`, txnID, orgID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update bank transaction", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit unmatch", err)
	}

	return d.GetBankTransaction(ctx, orgID, txnID)
}

// IgnoreTransaction moves an unmatched or suggested transaction to ignored.
// A matched transaction must be unmatched first; ignoring an already-ignored
// transaction is a no-op.
func (d Datasource) IgnoreTransaction(ctx context.Context, orgID, txnID string) (*model.BankTransaction, error) {
	ctx, span := otel.Tracer("Reconciliation").Start(ctx, "Ignoring transaction")
	defer span.End()

	return d.transitionStatus(ctx, orgID, txnID, model.StatusIgnored, func(current model.ReconciliationStatus) error {
		if current == model.StatusMatched {
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Transaction '%s' is matched, unmatch it first", txnID), nil)
		}
		return nil
	})
}

// ReviewTransaction moves an ignored transaction back to unmatched.
func (d Datasource) ReviewTransaction(ctx context.Context, orgID, txnID string) (*model.BankTransaction, error) {
	ctx, span := otel.Tracer("Reconciliation").Start(ctx, "Reviewing ignored transaction")
	defer span.End()

	return d.transitionStatus(ctx, orgID, txnID, model.StatusUnmatched, func(current model.ReconciliationStatus) error {
		if current != model.StatusIgnored {
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Transaction '%s' is not ignored", txnID), nil)
		}
		return nil
	})
}

// MarkSuggested flags an unmatched transaction as suggested. Flagging an
// already-suggested transaction is a no-op.
func (d Datasource) MarkSuggested(ctx context.Context, orgID, txnID string) (*model.BankTransaction, error) {
	ctx, span := otel.Tracer("Reconciliation").Start(ctx, "Marking transaction suggested")
	defer span.End()

	return d.transitionStatus(ctx, orgID, txnID, model.StatusSuggested, func(current model.ReconciliationStatus) error {
		switch current {
		case model.StatusMatched:
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Transaction '%s' is already matched", txnID), nil)
		case model.StatusIgnored:
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Transaction '%s' is ignored, review it first", txnID), nil)
		}
		return nil
	})
}

// transitionStatus performs a guarded status flip inside one database
// transaction. The guard runs against the row's current status while the
// row lock is held.
func (d Datasource) transitionStatus(ctx context.Context, orgID, txnID string, to model.ReconciliationStatus, guard func(model.ReconciliationStatus) error) (*model.BankTransaction, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var status model.ReconciliationStatus
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM bank_transactions
		WHERE transaction_id = $1 AND org_id = $2
		FOR UPDATE
	`, txnID, orgID).Scan(&status)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with ID '%s' not found", txnID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to lock bank transaction", err)
	}

	if status == to {
		if err := tx.Commit(); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit status update", err)
		}
		return d.GetBankTransaction(ctx, orgID, txnID)
	}
	if err := guard(status); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE bank_transactions SET status = $3
		WHERE transaction_id = $1 AND org_id = $2
	`, txnID, orgID, string(to))
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update transaction status", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit status update", err)
	}

	return d.GetBankTransaction(ctx, orgID, txnID)
}
