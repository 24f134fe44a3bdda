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
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	model2 "github.com/shilingihq/shilingi/api/model"
	"github.com/shilingihq/shilingi/internal/apierror"
	"github.com/shilingihq/shilingi/model"
)

func handleError(c *gin.Context, err error) {
	logrus.Error(err)
	status := apierror.MapErrorToHTTPStatus(err)
	if apiErr, ok := err.(apierror.APIError); ok {
		c.JSON(status, gin.H{"error": apiErr.Message, "code": apiErr.Code})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// UploadStatement accepts a multipart statement upload. CSV uploads carry
// the mapping id in the mapping_id form field.
func (a Api) UploadStatement(c *gin.Context) {
	orgID := c.Param("org_id")
	mappingID := c.PostForm("mapping_id")
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File upload failed"})
		return
	}
	defer file.Close()

	imp, err := a.shilingi.ImportStatement(c.Request.Context(), orgID, file, header.Filename, mappingID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, imp)
}

func (a Api) GetStatementImport(c *gin.Context) {
	imp, err := a.shilingi.GetStatementImport(c.Request.Context(), c.Param("org_id"), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, imp)
}

func (a Api) GetStatementImports(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	imports, err := a.shilingi.GetStatementImports(c.Request.Context(), c.Param("org_id"), limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, imports)
}

func (a Api) DeleteStatementImport(c *gin.Context) {
	if err := a.shilingi.DeleteStatementImport(c.Request.Context(), c.Param("org_id"), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Import deleted successfully"})
}

func (a Api) CreateColumnMapping(c *gin.Context) {
	var req model2.CreateColumnMapping
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.ValidateCreateColumnMapping(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mapping, err := a.shilingi.CreateColumnMapping(c.Request.Context(), req.ToColumnMapping(c.Param("org_id")))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, mapping)
}

func (a Api) GetColumnMapping(c *gin.Context) {
	mapping, err := a.shilingi.GetColumnMapping(c.Request.Context(), c.Param("org_id"), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, mapping)
}

func (a Api) GetColumnMappings(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	mappings, err := a.shilingi.GetColumnMappings(c.Request.Context(), c.Param("org_id"), limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, mappings)
}

func (a Api) UpdateColumnMapping(c *gin.Context) {
	var req model2.CreateColumnMapping
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.ValidateCreateColumnMapping(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mapping := req.ToColumnMapping(c.Param("org_id"))
	mapping.MappingID = c.Param("id")
	updated, err := a.shilingi.UpdateColumnMapping(c.Request.Context(), mapping)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (a Api) DeleteColumnMapping(c *gin.Context) {
	if err := a.shilingi.DeleteColumnMapping(c.Request.Context(), c.Param("org_id"), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Mapping deleted successfully"})
}

// GetBankTransactions lists transactions, filterable by import_id and
// status query params.
func (a Api) GetBankTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	txns, err := a.shilingi.GetBankTransactions(
		c.Request.Context(),
		c.Param("org_id"),
		c.Query("import_id"),
		model.ReconciliationStatus(c.Query("status")),
		limit, offset,
	)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, txns)
}

func (a Api) GetBankTransaction(c *gin.Context) {
	txn, err := a.shilingi.GetBankTransaction(c.Request.Context(), c.Param("org_id"), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

// SuggestMatches returns the scored candidates for a transaction, best
// first. It commits nothing.
func (a Api) SuggestMatches(c *gin.Context) {
	suggestions, err := a.shilingi.Suggest(c.Request.Context(), c.Param("org_id"), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction_id": c.Param("id"), "suggestions": suggestions})
}

func (a Api) ApplyMatch(c *gin.Context) {
	var req model2.ApplyMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.ValidateApplyMatch(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	txn, err := a.shilingi.ApplyMatch(c.Request.Context(), c.Param("org_id"), c.Param("id"), req.CandidateID, model.CandidateKind(req.Kind))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (a Api) Unmatch(c *gin.Context) {
	txn, err := a.shilingi.Unmatch(c.Request.Context(), c.Param("org_id"), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (a Api) IgnoreTransaction(c *gin.Context) {
	txn, err := a.shilingi.Ignore(c.Request.Context(), c.Param("org_id"), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (a Api) ReviewTransaction(c *gin.Context) {
	txn, err := a.shilingi.Review(c.Request.Context(), c.Param("org_id"), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (a Api) MarkTransactionSuggested(c *gin.Context) {
	txn, err := a.shilingi.MarkSuggested(c.Request.Context(), c.Param("org_id"), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (a Api) CreateExpense(c *gin.Context) {
	var req model2.CreateExpense
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.ValidateCreateExpense(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	expense, err := a.shilingi.CreateExpense(c.Request.Context(), req.ToExpense(c.Param("org_id")))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, expense)
}

func (a Api) GetExpense(c *gin.Context) {
	expense, err := a.shilingi.GetExpense(c.Request.Context(), c.Param("org_id"), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, expense)
}

func (a Api) CreateInvoice(c *gin.Context) {
	var req model2.CreateInvoice
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.ValidateCreateInvoice(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	invoice, err := a.shilingi.CreateInvoice(c.Request.Context(), req.ToInvoice(c.Param("org_id")))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, invoice)
}

func (a Api) GetInvoice(c *gin.Context) {
	invoice, err := a.shilingi.GetInvoice(c.Request.Context(), c.Param("org_id"), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func (a Api) GetOpenExpenses(c *gin.Context) {
	expenses, err := a.shilingi.GetOpenExpenses(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, expenses)
}

func (a Api) GetOpenInvoices(c *gin.Context) {
	invoices, err := a.shilingi.GetOpenInvoices(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoices)
}
