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
package mocks

import (
	"context"

	"github.com/shilingihq/shilingi/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Statement methods

func (m *MockDataSource) RecordStatementImport(ctx context.Context, imp *model.StatementImport, txns []*model.BankTransaction) error {
	args := m.Called(ctx, imp, txns)
	return args.Error(0)
}

func (m *MockDataSource) GetStatementImport(ctx context.Context, orgID, importID string) (*model.StatementImport, error) {
	args := m.Called(ctx, orgID, importID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StatementImport), args.Error(1)
}

func (m *MockDataSource) GetAllStatementImports(ctx context.Context, orgID string, limit, offset int) ([]model.StatementImport, error) {
	args := m.Called(ctx, orgID, limit, offset)
	return args.Get(0).([]model.StatementImport), args.Error(1)
}

func (m *MockDataSource) DeleteStatementImport(ctx context.Context, orgID, importID string) error {
	args := m.Called(ctx, orgID, importID)
	return args.Error(0)
}

// Transaction methods

func (m *MockDataSource) GetBankTransaction(ctx context.Context, orgID, id string) (*model.BankTransaction, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BankTransaction), args.Error(1)
}

func (m *MockDataSource) GetBankTransactions(ctx context.Context, orgID, importID string, status model.ReconciliationStatus, limit, offset int) ([]*model.BankTransaction, error) {
	args := m.Called(ctx, orgID, importID, status, limit, offset)
	return args.Get(0).([]*model.BankTransaction), args.Error(1)
}

// Mapping methods

func (m *MockDataSource) CreateColumnMapping(ctx context.Context, mapping *model.ColumnMapping) (*model.ColumnMapping, error) {
	args := m.Called(ctx, mapping)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ColumnMapping), args.Error(1)
}

func (m *MockDataSource) GetColumnMapping(ctx context.Context, orgID, id string) (*model.ColumnMapping, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ColumnMapping), args.Error(1)
}

func (m *MockDataSource) GetAllColumnMappings(ctx context.Context, orgID string, limit, offset int) ([]model.ColumnMapping, error) {
	args := m.Called(ctx, orgID, limit, offset)
	return args.Get(0).([]model.ColumnMapping), args.Error(1)
}

func (m *MockDataSource) UpdateColumnMapping(ctx context.Context, mapping *model.ColumnMapping) error {
	args := m.Called(ctx, mapping)
	return args.Error(0)
}

func (m *MockDataSource) DeleteColumnMapping(ctx context.Context, orgID, id string) error {
	args := m.Called(ctx, orgID, id)
	return args.Error(0)
}

// Candidate methods

func (m *MockDataSource) CreateExpense(ctx context.Context, expense *model.Expense) (*model.Expense, error) {
	args := m.Called(ctx, expense)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Expense), args.Error(1)
}

func (m *MockDataSource) GetExpense(ctx context.Context, orgID, id string) (*model.Expense, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Expense), args.Error(1)
}

func (m *MockDataSource) GetOpenExpenses(ctx context.Context, orgID string) ([]*model.Expense, error) {
	args := m.Called(ctx, orgID)
	return args.Get(0).([]*model.Expense), args.Error(1)
}

func (m *MockDataSource) CreateInvoice(ctx context.Context, invoice *model.Invoice) (*model.Invoice, error) {
	args := m.Called(ctx, invoice)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Invoice), args.Error(1)
}

func (m *MockDataSource) GetInvoice(ctx context.Context, orgID, id string) (*model.Invoice, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Invoice), args.Error(1)
}

func (m *MockDataSource) GetOpenInvoices(ctx context.Context, orgID string) ([]*model.Invoice, error) {
	args := m.Called(ctx, orgID)
	return args.Get(0).([]*model.Invoice), args.Error(1)
}

// Reconciliation methods

func (m *MockDataSource) ApplyMatch(ctx context.Context, orgID, txnID, candidateID string, kind model.CandidateKind) (*model.BankTransaction, error) {
	args := m.Called(ctx, orgID, txnID, candidateID, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BankTransaction), args.Error(1)
}

func (m *MockDataSource) Unmatch(ctx context.Context, orgID, txnID string) (*model.BankTransaction, error) {
	args := m.Called(ctx, orgID, txnID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BankTransaction), args.Error(1)
}

func (m *MockDataSource) IgnoreTransaction(ctx context.Context, orgID, txnID string) (*model.BankTransaction, error) {
	args := m.Called(ctx, orgID, txnID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BankTransaction), args.Error(1)
}

func (m *MockDataSource) ReviewTransaction(ctx context.Context, orgID, txnID string) (*model.BankTransaction, error) {
	args := m.Called(ctx, orgID, txnID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BankTransaction), args.Error(1)
}

func (m *MockDataSource) MarkSuggested(ctx context.Context, orgID, txnID string) (*model.BankTransaction, error) {
	args := m.Called(ctx, orgID, txnID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BankTransaction), args.Error(1)
}
