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

package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/shilingihq/shilingi"
	"github.com/shilingihq/shilingi/config"
	"github.com/shilingihq/shilingi/database/mocks"
	"github.com/shilingihq/shilingi/internal/apierror"
	"github.com/shilingihq/shilingi/model"
)

type TestRequest struct {
	Payload  io.Reader
	Router   *gin.Engine
	Response interface{}
	Method   string
	Route    string
	Header   map[string]string
}

func SetUpTestRequest(s TestRequest) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(s.Method, s.Route, s.Payload)
	for key, value := range s.Header {
		req.Header.Set(key, value)
	}
	if s.Header["Content-Type"] == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)

	if s.Response != nil {
		if err := json.NewDecoder(resp.Body).Decode(&s.Response); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func setupRouter(t *testing.T) (*gin.Engine, *mocks.MockDataSource) {
	t.Helper()
	config.MockConfig(&config.Configuration{
		Redis:      config.RedisConfig{Dns: "localhost:6379"},
		DataSource: config.DataSourceConfig{Dns: "postgres://postgres:@localhost:5432/shilingi?sslmode=disable"},
	})

	ds := new(mocks.MockDataSource)
	service := shilingi.NewShilingiWithDeps(ds, nil, nil, shilingi.DefaultMatchParams())
	router := NewAPI(service).Router()
	return router, ds
}

func storedTxn(orgID, txnID string, status model.ReconciliationStatus) *model.BankTransaction {
	d := decimal.RequireFromString("5000.00")
	return &model.BankTransaction{
		TransactionID: txnID,
		OrgID:         orgID,
		ImportID:      "imp_1",
		Date:          time.Date(2024, 12, 3, 0, 0, 0, 0, time.UTC),
		Description:   "OFFICE SUPPLIES ABC LTD",
		Reference:     "SH12345678",
		Debit:         &d,
		Status:        status,
	}
}

func TestUploadStatement(t *testing.T) {
	router, ds := setupRouter(t)
	ds.On("RecordStatementImport", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "statement.json")
	assert.NoError(t, err)
	_, err = part.Write([]byte(`[{"date": "2024-12-03", "description": "OFFICE SUPPLIES", "amount": "-5000.00"}]`))
	assert.NoError(t, err)
	assert.NoError(t, writer.Close())

	var response model.StatementImport
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  &body,
		Router:   router,
		Method:   http.MethodPost,
		Route:    "/organizations/org_1/imports",
		Header:   map[string]string{"Content-Type": writer.FormDataContentType()},
		Response: &response,
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "org_1", response.OrgID)
	assert.Equal(t, 1, response.TotalRows)
}

func TestUploadStatementMissingFile(t *testing.T) {
	router, _ := setupRouter(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	assert.NoError(t, writer.Close())

	resp, err := SetUpTestRequest(TestRequest{
		Payload: &body,
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/organizations/org_1/imports",
		Header:  map[string]string{"Content-Type": writer.FormDataContentType()},
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCreateColumnMappingAPI(t *testing.T) {
	router, ds := setupRouter(t)
	ds.On("CreateColumnMapping", mock.Anything, mock.Anything).Return(&model.ColumnMapping{
		MappingID: "map_1",
		OrgID:     "org_1",
		Name:      "Equity Bank CSV",
	}, nil)

	tests := []struct {
		name         string
		payload      map[string]interface{}
		expectedCode int
	}{
		{
			name: "valid mapping",
			payload: map[string]interface{}{
				"name": "Equity Bank CSV",
				"columns": map[string]string{
					"Transaction Date": "date",
					"Narrative":        "description",
					"Withdrawal":       "debit",
					"Deposit":          "credit",
				},
				"date_layout": "02/01/2006",
			},
			expectedCode: http.StatusCreated,
		},
		{
			name: "unknown target field",
			payload: map[string]interface{}{
				"name": "Bad mapping",
				"columns": map[string]string{
					"Transaction Date": "timestamp",
				},
				"date_layout": "02/01/2006",
			},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "missing name",
			payload: map[string]interface{}{
				"columns": map[string]string{
					"Transaction Date": "date",
				},
				"date_layout": "02/01/2006",
			},
			expectedCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := json.Marshal(tt.payload)
			assert.NoError(t, err)

			resp, err := SetUpTestRequest(TestRequest{
				Payload: bytes.NewReader(payload),
				Router:  router,
				Method:  http.MethodPost,
				Route:   "/organizations/org_1/mappings",
			})
			assert.NoError(t, err)
			assert.Equal(t, tt.expectedCode, resp.Code)
		})
	}
}

func TestSuggestMatchesAPI(t *testing.T) {
	router, ds := setupRouter(t)
	txn := storedTxn("org_1", "txn_1", model.StatusUnmatched)
	ds.On("GetBankTransaction", mock.Anything, "org_1", "txn_1").Return(txn, nil)
	ds.On("GetOpenExpenses", mock.Anything, "org_1").Return([]*model.Expense{
		{
			ID: 1, ExpenseID: "exp_1", OrgID: "org_1",
			Amount:      decimal.RequireFromString("5000.00"),
			ExpenseDate: txn.Date,
			Vendor:      "ABC Stationery Ltd",
			Reference:   "SH12345678",
		},
	}, nil)

	var response struct {
		TransactionID string                  `json:"transaction_id"`
		Suggestions   []model.ScoredCandidate `json:"suggestions"`
	}
	resp, err := SetUpTestRequest(TestRequest{
		Router:   router,
		Method:   http.MethodGet,
		Route:    "/organizations/org_1/transactions/txn_1/suggestions",
		Response: &response,
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, response.Suggestions, 1)
	assert.Equal(t, "exp_1", response.Suggestions[0].CandidateID)
	assert.Equal(t, float64(100), response.Suggestions[0].Score)
}

func TestApplyMatchAPI(t *testing.T) {
	router, ds := setupRouter(t)
	matched := storedTxn("org_1", "txn_1", model.StatusMatched)
	ds.On("ApplyMatch", mock.Anything, "org_1", "txn_1", "exp_1", model.KindExpense).Return(matched, nil)

	payload := []byte(`{"candidate_id": "exp_1", "kind": "expense"}`)
	var response model.BankTransaction
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewReader(payload),
		Router:   router,
		Method:   http.MethodPost,
		Route:    "/organizations/org_1/transactions/txn_1/match",
		Response: &response,
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, model.StatusMatched, response.Status)
}

func TestApplyMatchAPIInvalidKind(t *testing.T) {
	router, _ := setupRouter(t)

	payload := []byte(`{"candidate_id": "exp_1", "kind": "payroll"}`)
	resp, err := SetUpTestRequest(TestRequest{
		Payload: bytes.NewReader(payload),
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/organizations/org_1/transactions/txn_1/match",
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestApplyMatchAPIConflict(t *testing.T) {
	router, ds := setupRouter(t)
	ds.On("ApplyMatch", mock.Anything, "org_1", "txn_1", "exp_1", model.KindExpense).
		Return(nil, apierror.Conflict("Expense 'exp_1' is already linked to transaction 'txn_9'"))

	payload := []byte(`{"candidate_id": "exp_1", "kind": "expense"}`)
	resp, err := SetUpTestRequest(TestRequest{
		Payload: bytes.NewReader(payload),
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/organizations/org_1/transactions/txn_1/match",
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestUnmatchAPI(t *testing.T) {
	router, ds := setupRouter(t)
	ds.On("Unmatch", mock.Anything, "org_1", "txn_1").
		Return(storedTxn("org_1", "txn_1", model.StatusUnmatched), nil)

	var response model.BankTransaction
	resp, err := SetUpTestRequest(TestRequest{
		Router:   router,
		Method:   http.MethodPost,
		Route:    "/organizations/org_1/transactions/txn_1/unmatch",
		Response: &response,
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, model.StatusUnmatched, response.Status)
}

func TestIgnoreMatchedTransactionAPI(t *testing.T) {
	router, ds := setupRouter(t)
	ds.On("IgnoreTransaction", mock.Anything, "org_1", "txn_1").
		Return(nil, apierror.Conflict("Transaction 'txn_1' is matched, unmatch it first"))

	resp, err := SetUpTestRequest(TestRequest{
		Router: router,
		Method: http.MethodPost,
		Route:  "/organizations/org_1/transactions/txn_1/ignore",
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestGetBankTransactionNotFoundAPI(t *testing.T) {
	router, ds := setupRouter(t)
	ds.On("GetBankTransaction", mock.Anything, "org_2", "txn_1").
		Return(nil, apierror.NotFound("Transaction 'txn_1' not found"))

	resp, err := SetUpTestRequest(TestRequest{
		Router: router,
		Method: http.MethodGet,
		Route:  "/organizations/org_2/transactions/txn_1",
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestGetBankTransactionsFilterAPI(t *testing.T) {
	router, ds := setupRouter(t)
	ds.On("GetBankTransactions", mock.Anything, "org_1", "imp_1", model.StatusUnmatched, 20, 0).
		Return([]*model.BankTransaction{storedTxn("org_1", "txn_1", model.StatusUnmatched)}, nil)

	var response []model.BankTransaction
	resp, err := SetUpTestRequest(TestRequest{
		Router:   router,
		Method:   http.MethodGet,
		Route:    "/organizations/org_1/transactions?import_id=imp_1&status=unmatched&limit=20",
		Response: &response,
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, response, 1)
}

func TestCreateExpenseAPI(t *testing.T) {
	router, ds := setupRouter(t)
	ds.On("CreateExpense", mock.Anything, mock.Anything).Return(&model.Expense{
		ExpenseID: "exp_1",
		OrgID:     "org_1",
		Amount:    decimal.RequireFromString("5000.00"),
		Vendor:    "ABC Stationery Ltd",
	}, nil)

	payload := []byte(`{"amount": "5000.00", "expense_date": "2024-12-03T00:00:00Z", "vendor": "ABC Stationery Ltd"}`)
	var response model.Expense
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewReader(payload),
		Router:   router,
		Method:   http.MethodPost,
		Route:    "/organizations/org_1/expenses",
		Response: &response,
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "exp_1", response.ExpenseID)
}

func TestCreateInvoiceAPIRejectsZeroTotal(t *testing.T) {
	router, _ := setupRouter(t)

	payload := []byte(`{"total": "0", "issue_date": "2024-12-01T00:00:00Z", "contact": "Savannah Traders"}`)
	resp, err := SetUpTestRequest(TestRequest{
		Payload: bytes.NewReader(payload),
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/organizations/org_1/invoices",
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestDeleteImportBlockedAPI(t *testing.T) {
	router, ds := setupRouter(t)
	ds.On("DeleteStatementImport", mock.Anything, "org_1", "imp_1").
		Return(apierror.Conflict("Import has 3 matched transactions, unmatch them first"))

	resp, err := SetUpTestRequest(TestRequest{
		Router: router,
		Method: http.MethodDelete,
		Route:  "/organizations/org_1/imports/imp_1",
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestMarkTransactionSuggestedAPI(t *testing.T) {
	router, ds := setupRouter(t)
	ds.On("MarkSuggested", mock.Anything, "org_1", "txn_1").
		Return(storedTxn("org_1", "txn_1", model.StatusSuggested), nil)

	var response model.BankTransaction
	resp, err := SetUpTestRequest(TestRequest{
		Router:   router,
		Method:   http.MethodPut,
		Route:    "/organizations/org_1/transactions/txn_1/suggested",
		Response: &response,
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, model.StatusSuggested, response.Status)
}

func TestGetOpenExpensesAPI(t *testing.T) {
	router, ds := setupRouter(t)
	ds.On("GetOpenExpenses", mock.Anything, "org_1").Return([]*model.Expense{
		{ExpenseID: "exp_1", OrgID: "org_1", Amount: decimal.RequireFromString("5000.00"), Vendor: "ABC Ltd"},
	}, nil)

	var response []model.Expense
	resp, err := SetUpTestRequest(TestRequest{
		Router:   router,
		Method:   http.MethodGet,
		Route:    "/organizations/org_1/expenses",
		Response: &response,
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, response, 1)
	assert.Equal(t, "exp_1", response[0].ExpenseID)
}

func TestGetStatementImportsAPI(t *testing.T) {
	router, ds := setupRouter(t)
	ds.On("GetAllStatementImports", mock.Anything, "org_1", 20, 0).Return([]model.StatementImport{
		{ImportID: "imp_1", OrgID: "org_1", Filename: "november.csv", TotalRows: 12},
		{ImportID: "imp_2", OrgID: "org_1", Filename: "december.csv", TotalRows: 8},
	}, nil)

	var response []model.StatementImport
	resp, err := SetUpTestRequest(TestRequest{
		Router:   router,
		Method:   http.MethodGet,
		Route:    "/organizations/org_1/imports?limit=20&offset=0",
		Response: &response,
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, response, 2)
	assert.Equal(t, "imp_1", response[0].ImportID)
	ds.AssertExpectations(t)
}

func TestGetColumnMappingsAPI(t *testing.T) {
	router, ds := setupRouter(t)
	ds.On("GetAllColumnMappings", mock.Anything, "org_1", 50, 0).Return([]model.ColumnMapping{
		{MappingID: "map_1", OrgID: "org_1", Name: "Equity Bank CSV"},
	}, nil)

	var response []model.ColumnMapping
	resp, err := SetUpTestRequest(TestRequest{
		Router:   router,
		Method:   http.MethodGet,
		Route:    "/organizations/org_1/mappings",
		Response: &response,
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, response, 1)
	assert.Equal(t, "Equity Bank CSV", response[0].Name)
	ds.AssertExpectations(t)
}

func TestUpdateColumnMappingAPI(t *testing.T) {
	router, ds := setupRouter(t)
	ds.On("UpdateColumnMapping", mock.Anything, mock.MatchedBy(func(m *model.ColumnMapping) bool {
		return m.MappingID == "map_1" && m.OrgID == "org_1" && m.Name == "Equity Bank CSV v2"
	})).Return(nil)

	payload := []byte(`{
		"name": "Equity Bank CSV v2",
		"columns": {"Txn Date": "date", "Details": "description", "Money Out": "debit", "Money In": "credit"},
		"date_layout": "02/01/2006"
	}`)

	var response model.ColumnMapping
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewReader(payload),
		Router:   router,
		Method:   http.MethodPut,
		Route:    "/organizations/org_1/mappings/map_1",
		Response: &response,
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "map_1", response.MappingID)
	assert.Equal(t, "Equity Bank CSV v2", response.Name)
	ds.AssertExpectations(t)
}

func TestUpdateColumnMappingAPIRejectsUnknownField(t *testing.T) {
	router, _ := setupRouter(t)

	payload := []byte(`{
		"name": "Broken",
		"columns": {"Txn Date": "posted_at"},
		"date_layout": "02/01/2006"
	}`)
	resp, err := SetUpTestRequest(TestRequest{
		Payload: bytes.NewReader(payload),
		Router:  router,
		Method:  http.MethodPut,
		Route:   "/organizations/org_1/mappings/map_1",
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
