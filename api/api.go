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

	"github.com/gin-gonic/gin"

	"github.com/shilingihq/shilingi"
	"github.com/shilingihq/shilingi/api/middleware"
	"github.com/shilingihq/shilingi/config"
)

type Api struct {
	shilingi *shilingi.Shilingi
	router   *gin.Engine
}

// Router wires the reconciliation routes. Every resource is scoped under
// its organization; the org id in the path is the tenant boundary for all
// storage calls.
func (a Api) Router() *gin.Engine {
	router := a.router
	org := router.Group("/organizations/:org_id")

	org.POST("/imports", a.UploadStatement)
	org.GET("/imports", a.GetStatementImports)
	org.GET("/imports/:id", a.GetStatementImport)
	org.DELETE("/imports/:id", a.DeleteStatementImport)

	org.POST("/mappings", a.CreateColumnMapping)
	org.GET("/mappings", a.GetColumnMappings)
	org.GET("/mappings/:id", a.GetColumnMapping)
	org.PUT("/mappings/:id", a.UpdateColumnMapping)
	org.DELETE("/mappings/:id", a.DeleteColumnMapping)

	org.GET("/transactions", a.GetBankTransactions)
	org.GET("/transactions/:id", a.GetBankTransaction)
	org.GET("/transactions/:id/suggestions", a.SuggestMatches)
	org.POST("/transactions/:id/match", a.ApplyMatch)
	org.POST("/transactions/:id/unmatch", a.Unmatch)
	org.POST("/transactions/:id/ignore", a.IgnoreTransaction)
	org.POST("/transactions/:id/review", a.ReviewTransaction)
	org.PUT("/transactions/:id/suggested", a.MarkTransactionSuggested)

	org.POST("/expenses", a.CreateExpense)
	org.GET("/expenses", a.GetOpenExpenses)
	org.GET("/expenses/:id", a.GetExpense)
	org.POST("/invoices", a.CreateInvoice)
	org.GET("/invoices", a.GetOpenInvoices)
	org.GET("/invoices/:id", a.GetInvoice)

	return a.router
}

func NewAPI(s *shilingi.Shilingi) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}
	r.Use(middleware.RateLimitMiddleware(conf))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{shilingi: s, router: r}
}
