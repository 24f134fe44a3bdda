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

	"github.com/shilingihq/shilingi/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	statement      // Interface for statement import operations
	transaction    // Interface for bank transaction reads
	mapping        // Interface for column mapping operations
	candidate      // Interface for expense and invoice operations
	reconciliation // Interface for reconciliation state transitions
}

// statement defines methods for handling statement imports.
type statement interface {
	RecordStatementImport(ctx context.Context, imp *model.StatementImport, txns []*model.BankTransaction) error // Records an import and its rows in one transaction
	GetStatementImport(ctx context.Context, orgID, importID string) (*model.StatementImport, error)             // Retrieves an import by ID
	GetAllStatementImports(ctx context.Context, orgID string, limit, offset int) ([]model.StatementImport, error)
	DeleteStatementImport(ctx context.Context, orgID, importID string) error // Deletes an import and its rows unless any row is matched
}

// transaction defines read methods for imported bank transactions.
type transaction interface {
	GetBankTransaction(ctx context.Context, orgID, id string) (*model.BankTransaction, error)                                                            // Retrieves a transaction by ID
	GetBankTransactions(ctx context.Context, orgID, importID string, status model.ReconciliationStatus, limit, offset int) ([]*model.BankTransaction, error) // Retrieves transactions filtered by import and status
}

// mapping defines methods for handling column mappings.
type mapping interface {
	CreateColumnMapping(ctx context.Context, m *model.ColumnMapping) (*model.ColumnMapping, error)
	GetColumnMapping(ctx context.Context, orgID, id string) (*model.ColumnMapping, error)
	GetAllColumnMappings(ctx context.Context, orgID string, limit, offset int) ([]model.ColumnMapping, error)
	UpdateColumnMapping(ctx context.Context, m *model.ColumnMapping) error
	DeleteColumnMapping(ctx context.Context, orgID, id string) error
}

// candidate defines methods for the ledger-side records the matcher scores
// against.
type candidate interface {
	CreateExpense(ctx context.Context, expense *model.Expense) (*model.Expense, error)
	GetExpense(ctx context.Context, orgID, id string) (*model.Expense, error)
	GetOpenExpenses(ctx context.Context, orgID string) ([]*model.Expense, error) // Retrieves unlinked expenses for an organization
	CreateInvoice(ctx context.Context, invoice *model.Invoice) (*model.Invoice, error)
	GetInvoice(ctx context.Context, orgID, id string) (*model.Invoice, error)
	GetOpenInvoices(ctx context.Context, orgID string) ([]*model.Invoice, error) // Retrieves unlinked invoices with a balance due
}

// reconciliation defines the guarded state transitions on bank transactions.
type reconciliation interface {
	ApplyMatch(ctx context.Context, orgID, txnID, candidateID string, kind model.CandidateKind) (*model.BankTransaction, error) // Links a transaction to a candidate atomically
	Unmatch(ctx context.Context, orgID, txnID string) (*model.BankTransaction, error)                                           // Clears a matched link on both sides
	IgnoreTransaction(ctx context.Context, orgID, txnID string) (*model.BankTransaction, error)                                 // Moves a non-matched transaction to ignored
	ReviewTransaction(ctx context.Context, orgID, txnID string) (*model.BankTransaction, error)                                 // Moves an ignored transaction back to unmatched
	MarkSuggested(ctx context.Context, orgID, txnID string) (*model.BankTransaction, error)                                     // Flags an unmatched transaction as suggested
}
