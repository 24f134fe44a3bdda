package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/wacul/ptr"
)

func TestGenerateUUIDWithSuffix(t *testing.T) {
	module := "txn"
	id := GenerateUUIDWithSuffix(module)
	assert.Contains(t, id, module+"_")
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestBankTransaction_Validate(t *testing.T) {
	base := func() BankTransaction {
		return BankTransaction{
			TransactionID: "txn_1",
			OrgID:         "org_1",
			ImportID:      "imp_1",
			Date:          time.Date(2024, 12, 3, 0, 0, 0, 0, time.UTC),
			Description:   "Office Supplies ABC Ltd",
			Debit:         dec("5000.00"),
			Status:        StatusUnmatched,
		}
	}

	t.Run("valid debit transaction", func(t *testing.T) {
		txn := base()
		assert.NoError(t, txn.Validate())
		assert.Equal(t, DirectionDebit, txn.Direction())
		assert.True(t, txn.Amount().Equal(decimal.RequireFromString("5000.00")))
	})

	t.Run("both debit and credit rejected", func(t *testing.T) {
		txn := base()
		txn.Credit = dec("10.00")
		assert.Error(t, txn.Validate())
	})

	t.Run("neither debit nor credit rejected", func(t *testing.T) {
		txn := base()
		txn.Debit = nil
		assert.Error(t, txn.Validate())
	})

	t.Run("negative debit rejected", func(t *testing.T) {
		txn := base()
		txn.Debit = dec("-5.00")
		assert.Error(t, txn.Validate())
	})

	t.Run("matched requires reference", func(t *testing.T) {
		txn := base()
		txn.Status = StatusMatched
		assert.Error(t, txn.Validate())

		kind := KindExpense
		txn.MatchedID = ptr.String("exp_1")
		txn.MatchedKind = &kind
		assert.NoError(t, txn.Validate())
	})

	t.Run("unmatched must not carry reference", func(t *testing.T) {
		txn := base()
		txn.MatchedID = ptr.String("exp_1")
		assert.Error(t, txn.Validate())
	})

	t.Run("missing date rejected", func(t *testing.T) {
		txn := base()
		txn.Date = time.Time{}
		assert.Error(t, txn.Validate())
	})
}

func TestColumnMapping_Validate(t *testing.T) {
	valid := ColumnMapping{
		Name: "equity csv",
		Columns: map[string]TargetField{
			"Transaction Date": FieldDate,
			"Narrative":        FieldDescription,
			"Money Out":        FieldDebit,
			"Money In":         FieldCredit,
			"Running Balance":  FieldBalance,
			"Ref":              FieldReference,
			"Branch":           FieldIgnored,
		},
		DateLayout: "02/01/2006",
	}
	assert.NoError(t, valid.Validate())

	t.Run("missing date column", func(t *testing.T) {
		m := valid
		m.Columns = map[string]TargetField{"Narrative": FieldDescription, "Amount": FieldAmount}
		assert.Error(t, m.Validate())
	})

	t.Run("amount exclusive with debit/credit", func(t *testing.T) {
		m := valid
		m.Columns = map[string]TargetField{
			"Date":      FieldDate,
			"Narrative": FieldDescription,
			"Amount":    FieldAmount,
			"Money Out": FieldDebit,
		}
		assert.Error(t, m.Validate())
	})

	t.Run("unknown target field", func(t *testing.T) {
		m := valid
		m.Columns = map[string]TargetField{
			"Date":      FieldDate,
			"Narrative": FieldDescription,
			"Amount":    TargetField("total"),
		}
		assert.Error(t, m.Validate())
	})

	t.Run("ignored may repeat", func(t *testing.T) {
		m := valid
		m.Columns = map[string]TargetField{
			"Date":      FieldDate,
			"Narrative": FieldDescription,
			"Amount":    FieldAmount,
			"Branch":    FieldIgnored,
			"Teller":    FieldIgnored,
		}
		assert.NoError(t, m.Validate())
	})
}

func TestParseTargetField(t *testing.T) {
	f, err := ParseTargetField("reference")
	assert.NoError(t, err)
	assert.Equal(t, FieldReference, f)

	_, err = ParseTargetField("narration")
	assert.Error(t, err)
}

func TestParseReconciliationStatus(t *testing.T) {
	s, err := ParseReconciliationStatus("ignored")
	assert.NoError(t, err)
	assert.Equal(t, StatusIgnored, s)

	_, err = ParseReconciliationStatus("reconciled")
	assert.Error(t, err)
}

func TestInvoice_BalanceDue(t *testing.T) {
	inv := Invoice{
		InvoiceID:  "inv_1",
		OrgID:      "org_1",
		Total:      decimal.RequireFromString("12000.00"),
		AmountPaid: decimal.RequireFromString("4500.00"),
		IssueDate:  time.Date(2024, 11, 20, 0, 0, 0, 0, time.UTC),
		Contact:    "ABC Stationery Ltd",
		Number:     "INV-0042",
	}
	assert.True(t, inv.BalanceDue().Equal(decimal.RequireFromString("7500.00")))

	c := inv.ToCandidate()
	assert.Equal(t, KindInvoice, c.Kind)
	assert.True(t, c.Amount.Equal(decimal.RequireFromString("7500.00")))
	assert.Equal(t, inv.IssueDate, c.Date)

	due := time.Date(2024, 12, 5, 0, 0, 0, 0, time.UTC)
	inv.DueDate = &due
	assert.Equal(t, due, inv.ToCandidate().Date)
}

func TestExpense_ToCandidate(t *testing.T) {
	exp := Expense{
		ID:          7,
		ExpenseID:   "exp_1",
		OrgID:       "org_1",
		Amount:      decimal.RequireFromString("5000.00"),
		ExpenseDate: time.Date(2024, 12, 3, 0, 0, 0, 0, time.UTC),
		Vendor:      "ABC Stationery Ltd",
		Reference:   "SH12345678",
	}
	c := exp.ToCandidate()
	assert.Equal(t, KindExpense, c.Kind)
	assert.Equal(t, "exp_1", c.CandidateID)
	assert.Equal(t, int64(7), c.Seq)
	assert.Equal(t, "SH12345678", c.Reference)
}
