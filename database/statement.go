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
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"

	"github.com/shilingihq/shilingi/internal/apierror"
	"github.com/shilingihq/shilingi/model"
)

// RecordStatementImport inserts an import record and all of its parsed rows
// in a single database transaction. A half-parsed statement is never visible
// to reconciliation.
func (d Datasource) RecordStatementImport(ctx context.Context, imp *model.StatementImport, txns []*model.BankTransaction) error {
	ctx, span := otel.Tracer("Statement").Start(ctx, "Saving statement import to db")
	defer span.End()

	rowErrorsJSON, err := json.Marshal(imp.RowErrors)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal row errors", err)
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO statement_imports(import_id, org_id, filename, mapping_id, total_rows, failed_rows, row_errors, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		imp.ImportID, imp.OrgID, imp.Filename, nullString(imp.MappingID), imp.TotalRows, imp.FailedRows, rowErrorsJSON, imp.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Import with ID '%s' already exists", imp.ImportID), err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record statement import", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO bank_transactions(transaction_id, org_id, import_id, date, description, debit, credit, balance, reference, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to prepare transaction insert", err)
	}
	defer stmt.Close()

	for _, txn := range txns {
		_, err = stmt.ExecContext(ctx,
			txn.TransactionID, txn.OrgID, txn.ImportID, txn.Date, txn.Description,
			nullDecimal(txn.Debit), nullDecimal(txn.Credit), nullDecimal(txn.Balance),
			txn.Reference, txn.Status, txn.CreatedAt,
		)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record bank transaction", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit statement import", err)
	}
	return nil
}

// GetStatementImport retrieves an import by ID scoped to the organization.
// A wrong-tenant ID reports not found.
func (d Datasource) GetStatementImport(ctx context.Context, orgID, importID string) (*model.StatementImport, error) {
	ctx, span := otel.Tracer("Statement").Start(ctx, "Fetching statement import from db")
	defer span.End()

	imp := &model.StatementImport{}
	var mappingID sql.NullString
	var rowErrorsJSON []byte
	err := d.Conn.QueryRowContext(ctx, `
		SELECT id, import_id, org_id, filename, mapping_id, total_rows, failed_rows, row_errors, created_at
		FROM statement_imports
		WHERE import_id = $1 AND org_id = $2
	`, importID, orgID).Scan(
		&imp.ID, &imp.ImportID, &imp.OrgID, &imp.Filename, &mappingID,
		&imp.TotalRows, &imp.FailedRows, &rowErrorsJSON, &imp.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Import with ID '%s' not found", importID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve statement import", err)
	}
	imp.MappingID = mappingID.String

	if len(rowErrorsJSON) > 0 {
		if err := json.Unmarshal(rowErrorsJSON, &imp.RowErrors); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal row errors", err)
		}
	}
	return imp, nil
}

// GetAllStatementImports retrieves imports for an organization, newest first.
func (d Datasource) GetAllStatementImports(ctx context.Context, orgID string, limit, offset int) ([]model.StatementImport, error) {
	ctx, span := otel.Tracer("Statement").Start(ctx, "Fetching statement imports from db")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, import_id, org_id, filename, mapping_id, total_rows, failed_rows, row_errors, created_at
		FROM statement_imports
		WHERE org_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, orgID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve statement imports", err)
	}
	defer rows.Close()

	imports := []model.StatementImport{}
	for rows.Next() {
		imp := model.StatementImport{}
		var mappingID sql.NullString
		var rowErrorsJSON []byte
		err = rows.Scan(
			&imp.ID, &imp.ImportID, &imp.OrgID, &imp.Filename, &mappingID,
			&imp.TotalRows, &imp.FailedRows, &rowErrorsJSON, &imp.CreatedAt,
		)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan statement import", err)
		}
		imp.MappingID = mappingID.String
		if len(rowErrorsJSON) > 0 {
			if err := json.Unmarshal(rowErrorsJSON, &imp.RowErrors); err != nil {
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal row errors", err)
			}
		}
		imports = append(imports, imp)
	}
	return imports, nil
}

// DeleteStatementImport removes an import and its child transactions. The
// delete is refused while any child transaction is matched, so reconciled
// work cannot be silently destroyed.
func (d Datasource) DeleteStatementImport(ctx context.Context, orgID, importID string) error {
	ctx, span := otel.Tracer("Statement").Start(ctx, "Deleting statement import")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var matched int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM bank_transactions
		WHERE import_id = $1 AND org_id = $2 AND status = 'matched'
	`, importID, orgID).Scan(&matched)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check import for matched transactions", err)
	}
	if matched > 0 {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Import has %d matched transactions, unmatch them first", matched), nil)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM bank_transactions WHERE import_id = $1 AND org_id = $2
	`, importID, orgID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete import transactions", err)
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM statement_imports WHERE import_id = $1 AND org_id = $2
	`, importID, orgID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete statement import", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Import with ID '%s' not found", importID), nil)
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit import delete", err)
	}
	return nil
}

// GetBankTransaction retrieves a single bank transaction scoped to the
// organization.
func (d Datasource) GetBankTransaction(ctx context.Context, orgID, id string) (*model.BankTransaction, error) {
	ctx, span := otel.Tracer("Statement").Start(ctx, "Fetching bank transaction from db")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, transaction_id, org_id, import_id, date, description, debit, credit, balance, reference, status, matched_id, matched_kind, matched_at, created_at
		FROM bank_transactions
		WHERE transaction_id = $1 AND org_id = $2
	`, id, orgID)

	txn, err := scanBankTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve bank transaction", err)
	}
	return txn, nil
}

// GetBankTransactions retrieves bank transactions for an organization,
// optionally filtered by import and status, newest statement date first.
func (d Datasource) GetBankTransactions(ctx context.Context, orgID, importID string, status model.ReconciliationStatus, limit, offset int) ([]*model.BankTransaction, error) {
	ctx, span := otel.Tracer("Statement").Start(ctx, "Fetching bank transactions from db")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, transaction_id, org_id, import_id, date, description, debit, credit, balance, reference, status, matched_id, matched_kind, matched_at, created_at
		FROM bank_transactions
		WHERE org_id = $1
		AND ($2 = '' OR import_id = $2)
		AND ($3 = '' OR status = $3)
		ORDER BY date DESC, id DESC LIMIT $4 OFFSET $5
	`, orgID, importID, string(status), limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve bank transactions", err)
	}
	defer rows.Close()

	transactions := []*model.BankTransaction{}
	for rows.Next() {
		txn, err := scanBankTransaction(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan bank transaction", err)
		}
		transactions = append(transactions, txn)
	}
	return transactions, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBankTransaction(row rowScanner) (*model.BankTransaction, error) {
	txn := &model.BankTransaction{}
	var debit, credit, balance decimal.NullDecimal
	var matchedID, matchedKind sql.NullString
	var matchedAt sql.NullTime

	err := row.Scan(
		&txn.ID, &txn.TransactionID, &txn.OrgID, &txn.ImportID, &txn.Date,
		&txn.Description, &debit, &credit, &balance, &txn.Reference,
		&txn.Status, &matchedID, &matchedKind, &matchedAt, &txn.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if debit.Valid {
		txn.Debit = &debit.Decimal
	}
	if credit.Valid {
		txn.Credit = &credit.Decimal
	}
	if balance.Valid {
		txn.Balance = &balance.Decimal
	}
	if matchedID.Valid {
		txn.MatchedID = &matchedID.String
	}
	if matchedKind.Valid {
		kind := model.CandidateKind(matchedKind.String)
		txn.MatchedKind = &kind
	}
	if matchedAt.Valid {
		txn.MatchedAt = &matchedAt.Time
	}
	return txn, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
