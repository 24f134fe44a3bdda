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

package shilingi

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shilingihq/shilingi/internal/apierror"
	redlock "github.com/shilingihq/shilingi/internal/lock"
	"github.com/shilingihq/shilingi/internal/notification"
	"github.com/shilingihq/shilingi/model"
)

const (
	suggestionCacheTTL = 5 * time.Minute
	mappingCacheTTL    = time.Hour
	lockTimeout        = 30 * time.Second
	lockWaitTimeout    = 5 * time.Second
)

func suggestionCacheKey(orgID, txnID string) string {
	return fmt.Sprintf("suggest:%s:%s", orgID, txnID)
}

func mappingCacheKey(orgID, mappingID string) string {
	return fmt.Sprintf("mapping:%s:%s", orgID, mappingID)
}

// Suggest scores a transaction against the org's open candidates of the
// compatible direction and returns the ranked suggestions. It mutates
// nothing: committing a match is a separate, explicit call. Results are
// cached briefly and invalidated by any state change on the transaction.
func (s *Shilingi) Suggest(ctx context.Context, orgID, txnID string) ([]model.ScoredCandidate, error) {
	ctx, span := otel.Tracer("shilingi.reconciliation").Start(ctx, "Suggest")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", txnID))

	txn, err := s.datasource.GetBankTransaction(ctx, orgID, txnID)
	if err != nil {
		return nil, err
	}
	switch txn.Status {
	case model.StatusMatched:
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Transaction '%s' is already matched", txnID), nil)
	case model.StatusIgnored:
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Transaction '%s' is ignored, review it first", txnID), nil)
	}

	var cached []model.ScoredCandidate
	cacheKey := suggestionCacheKey(orgID, txnID)
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil && cached != nil {
			return cached, nil
		}
	}

	candidates, err := s.GetOpenCandidates(ctx, orgID, txn.Direction())
	if err != nil {
		return nil, err
	}

	suggestions := SuggestMatches(txn, candidates, s.matchParams)
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, suggestions, suggestionCacheTTL); err != nil {
			logrus.Warnf("failed to cache suggestions for %s: %v", txnID, err)
		}
	}
	return suggestions, nil
}

// GetOpenCandidates returns the org's unlinked expenses (for debits) or
// open invoices (for credits) in candidate shape, ordered by creation.
func (s *Shilingi) GetOpenCandidates(ctx context.Context, orgID string, direction model.Direction) ([]model.Candidate, error) {
	if direction == model.DirectionDebit {
		expenses, err := s.datasource.GetOpenExpenses(ctx, orgID)
		if err != nil {
			return nil, err
		}
		candidates := make([]model.Candidate, 0, len(expenses))
		for _, e := range expenses {
			candidates = append(candidates, e.ToCandidate())
		}
		return candidates, nil
	}

	invoices, err := s.datasource.GetOpenInvoices(ctx, orgID)
	if err != nil {
		return nil, err
	}
	candidates := make([]model.Candidate, 0, len(invoices))
	for _, i := range invoices {
		candidates = append(candidates, i.ToCandidate())
	}
	return candidates, nil
}

// ApplyMatch links a transaction to an expense or invoice. The operation
// is serialized per transaction with a redis lock and applied atomically
// at the storage layer, so two concurrent calls cannot double-book the
// same candidate.
func (s *Shilingi) ApplyMatch(ctx context.Context, orgID, txnID, candidateID string, kind model.CandidateKind) (*model.BankTransaction, error) {
	ctx, span := otel.Tracer("shilingi.reconciliation").Start(ctx, "ApplyMatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("transaction.id", txnID),
		attribute.String("candidate.id", candidateID),
	)

	txn, err := s.withTransactionLock(ctx, txnID, func(ctx context.Context) (*model.BankTransaction, error) {
		return s.datasource.ApplyMatch(ctx, orgID, txnID, candidateID, kind)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.invalidateSuggestions(ctx, orgID, txnID)
	go func() {
		if err := notification.WebhookNotification("transaction.matched", txn); err != nil {
			logrus.Error(err)
		}
	}()
	return txn, nil
}

// Unmatch reverses a committed match, unlinking the candidate and
// returning the transaction to unmatched.
func (s *Shilingi) Unmatch(ctx context.Context, orgID, txnID string) (*model.BankTransaction, error) {
	ctx, span := otel.Tracer("shilingi.reconciliation").Start(ctx, "Unmatch")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", txnID))

	txn, err := s.withTransactionLock(ctx, txnID, func(ctx context.Context) (*model.BankTransaction, error) {
		return s.datasource.Unmatch(ctx, orgID, txnID)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.invalidateSuggestions(ctx, orgID, txnID)
	go func() {
		if err := notification.WebhookNotification("transaction.unmatched", txn); err != nil {
			logrus.Error(err)
		}
	}()
	return txn, nil
}

// Ignore excludes a transaction from reconciliation. A matched transaction
// cannot be ignored without unmatching first.
func (s *Shilingi) Ignore(ctx context.Context, orgID, txnID string) (*model.BankTransaction, error) {
	ctx, span := otel.Tracer("shilingi.reconciliation").Start(ctx, "Ignore")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", txnID))

	txn, err := s.withTransactionLock(ctx, txnID, func(ctx context.Context) (*model.BankTransaction, error) {
		return s.datasource.IgnoreTransaction(ctx, orgID, txnID)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.invalidateSuggestions(ctx, orgID, txnID)
	return txn, nil
}

// Review returns an ignored transaction to unmatched so it can be
// reconciled again.
func (s *Shilingi) Review(ctx context.Context, orgID, txnID string) (*model.BankTransaction, error) {
	ctx, span := otel.Tracer("shilingi.reconciliation").Start(ctx, "Review")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", txnID))

	return s.withTransactionLock(ctx, txnID, func(ctx context.Context) (*model.BankTransaction, error) {
		return s.datasource.ReviewTransaction(ctx, orgID, txnID)
	})
}

// MarkSuggested records that suggestions were surfaced for a transaction.
// Marking an already-suggested transaction is a no-op.
func (s *Shilingi) MarkSuggested(ctx context.Context, orgID, txnID string) (*model.BankTransaction, error) {
	return s.withTransactionLock(ctx, txnID, func(ctx context.Context) (*model.BankTransaction, error) {
		return s.datasource.MarkSuggested(ctx, orgID, txnID)
	})
}

// withTransactionLock serializes state changes on one transaction record.
func (s *Shilingi) withTransactionLock(ctx context.Context, txnID string, fn func(context.Context) (*model.BankTransaction, error)) (*model.BankTransaction, error) {
	if s.redis == nil {
		return fn(ctx)
	}

	locker := redlock.NewLocker(s.redis, fmt.Sprintf("reconcile:%s", txnID), model.GenerateUUIDWithSuffix("loc"))
	if err := locker.WaitLock(ctx, lockTimeout, lockWaitTimeout); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Transaction '%s' is being modified by another request", txnID), err)
	}
	defer func(locker *redlock.Locker, ctx context.Context) {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Error("lock error", err)
		}
	}(locker, ctx)

	return fn(ctx)
}

func (s *Shilingi) invalidateSuggestions(ctx context.Context, orgID, txnID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, suggestionCacheKey(orgID, txnID)); err != nil {
		logrus.Warnf("failed to invalidate suggestions for %s: %v", txnID, err)
	}
}

// GetBankTransaction fetches one transaction scoped to the org.
func (s *Shilingi) GetBankTransaction(ctx context.Context, orgID, txnID string) (*model.BankTransaction, error) {
	return s.datasource.GetBankTransaction(ctx, orgID, txnID)
}

// GetBankTransactions lists transactions with optional import and status
// filters, newest first.
func (s *Shilingi) GetBankTransactions(ctx context.Context, orgID, importID string, status model.ReconciliationStatus, limit, offset int) ([]*model.BankTransaction, error) {
	if status != "" {
		if _, err := model.ParseReconciliationStatus(string(status)); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
		}
	}
	limit, offset = clampPaging(limit, offset)
	return s.datasource.GetBankTransactions(ctx, orgID, importID, status, limit, offset)
}

// clampPaging bounds list queries to sane page sizes.
func clampPaging(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// GetStatementImport fetches one import record scoped to the org.
func (s *Shilingi) GetStatementImport(ctx context.Context, orgID, importID string) (*model.StatementImport, error) {
	return s.datasource.GetStatementImport(ctx, orgID, importID)
}

// GetStatementImports lists the org's imports, newest first.
func (s *Shilingi) GetStatementImports(ctx context.Context, orgID string, limit, offset int) ([]model.StatementImport, error) {
	limit, offset = clampPaging(limit, offset)
	return s.datasource.GetAllStatementImports(ctx, orgID, limit, offset)
}

// DeleteStatementImport cascades deletion of an import and its child
// transactions. Deletion is blocked while any child is matched.
func (s *Shilingi) DeleteStatementImport(ctx context.Context, orgID, importID string) error {
	return s.datasource.DeleteStatementImport(ctx, orgID, importID)
}

// CreateColumnMapping validates and stores a statement column mapping.
func (s *Shilingi) CreateColumnMapping(ctx context.Context, mapping *model.ColumnMapping) (*model.ColumnMapping, error) {
	if mapping.OrgID == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "org id is required", nil)
	}
	if err := mapping.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
	}
	return s.datasource.CreateColumnMapping(ctx, mapping)
}

// GetColumnMapping fetches one mapping scoped to the org. Mappings change
// rarely and are read on every CSV import, so hits are cached.
func (s *Shilingi) GetColumnMapping(ctx context.Context, orgID, mappingID string) (*model.ColumnMapping, error) {
	cacheKey := mappingCacheKey(orgID, mappingID)
	if s.cache != nil {
		var cached model.ColumnMapping
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil && cached.MappingID != "" {
			return &cached, nil
		}
	}

	mapping, err := s.datasource.GetColumnMapping(ctx, orgID, mappingID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, mapping, mappingCacheTTL); err != nil {
			logrus.Warnf("failed to cache mapping %s: %v", mappingID, err)
		}
	}
	return mapping, nil
}

// GetColumnMappings lists the org's mappings.
func (s *Shilingi) GetColumnMappings(ctx context.Context, orgID string, limit, offset int) ([]model.ColumnMapping, error) {
	limit, offset = clampPaging(limit, offset)
	return s.datasource.GetAllColumnMappings(ctx, orgID, limit, offset)
}

// UpdateColumnMapping validates and replaces a mapping's definition.
func (s *Shilingi) UpdateColumnMapping(ctx context.Context, mapping *model.ColumnMapping) (*model.ColumnMapping, error) {
	if err := mapping.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
	}
	if err := s.datasource.UpdateColumnMapping(ctx, mapping); err != nil {
		return nil, err
	}
	s.invalidateMapping(ctx, mapping.OrgID, mapping.MappingID)
	return mapping, nil
}

// DeleteColumnMapping removes a mapping. Mappings referenced by an import
// are kept for auditability and cannot be deleted.
func (s *Shilingi) DeleteColumnMapping(ctx context.Context, orgID, mappingID string) error {
	if err := s.datasource.DeleteColumnMapping(ctx, orgID, mappingID); err != nil {
		return err
	}
	s.invalidateMapping(ctx, orgID, mappingID)
	return nil
}

func (s *Shilingi) invalidateMapping(ctx context.Context, orgID, mappingID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, mappingCacheKey(orgID, mappingID)); err != nil {
		logrus.Warnf("failed to invalidate mapping %s: %v", mappingID, err)
	}
}

// CreateExpense records a ledger-side expense the matcher can score
// against.
func (s *Shilingi) CreateExpense(ctx context.Context, expense *model.Expense) (*model.Expense, error) {
	if expense.OrgID == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "org id is required", nil)
	}
	if expense.Amount.Sign() <= 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "expense amount must be positive", nil)
	}
	if expense.ExpenseDate.IsZero() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "expense date is required", nil)
	}
	return s.datasource.CreateExpense(ctx, expense)
}

// CreateInvoice records a ledger-side invoice the matcher can score
// against.
func (s *Shilingi) CreateInvoice(ctx context.Context, invoice *model.Invoice) (*model.Invoice, error) {
	if invoice.OrgID == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "org id is required", nil)
	}
	if invoice.Total.Sign() <= 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "invoice total must be positive", nil)
	}
	if invoice.AmountPaid.Sign() < 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "amount paid cannot be negative", nil)
	}
	if invoice.IssueDate.IsZero() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "issue date is required", nil)
	}
	return s.datasource.CreateInvoice(ctx, invoice)
}

// GetExpense fetches one expense scoped to the org.
func (s *Shilingi) GetExpense(ctx context.Context, orgID, expenseID string) (*model.Expense, error) {
	return s.datasource.GetExpense(ctx, orgID, expenseID)
}

// GetInvoice fetches one invoice scoped to the org.
func (s *Shilingi) GetInvoice(ctx context.Context, orgID, invoiceID string) (*model.Invoice, error) {
	return s.datasource.GetInvoice(ctx, orgID, invoiceID)
}

// GetOpenExpenses lists the org's expenses not yet linked to a transaction.
func (s *Shilingi) GetOpenExpenses(ctx context.Context, orgID string) ([]*model.Expense, error) {
	return s.datasource.GetOpenExpenses(ctx, orgID)
}

// GetOpenInvoices lists the org's invoices with a balance due and no linked
// transaction.
func (s *Shilingi) GetOpenInvoices(ctx context.Context, orgID string) ([]*model.Invoice, error) {
	return s.datasource.GetOpenInvoices(ctx, orgID)
}
