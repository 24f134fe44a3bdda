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
	"database/sql"
	"log"
	"sync"

	_ "github.com/lib/pq"

	"github.com/shilingihq/shilingi/config"
	"github.com/shilingihq/shilingi/internal/cache"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con, Cache: nil}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	err = createColumnMappingTable(db)
	if err != nil {
		return nil, err
	}
	err = createStatementImportTable(db)
	if err != nil {
		return nil, err
	}
	err = createBankTransactionTable(db)
	if err != nil {
		return nil, err
	}
	err = createExpenseTable(db)
	if err != nil {
		return nil, err
	}
	err = createInvoiceTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// createColumnMappingTable creates a PostgreSQL table for the ColumnMapping struct
func createColumnMappingTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS column_mappings (
			id SERIAL PRIMARY KEY,
			mapping_id TEXT NOT NULL UNIQUE,
			org_id TEXT NOT NULL,
			name TEXT NOT NULL,
			columns JSONB NOT NULL,
			date_layout TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (org_id, name)
		)
	`)
	log.Println(err)
	return err
}

// createStatementImportTable creates a PostgreSQL table for the StatementImport struct
func createStatementImportTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS statement_imports (
			id SERIAL PRIMARY KEY,
			import_id TEXT NOT NULL UNIQUE,
			org_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			mapping_id TEXT REFERENCES column_mappings(mapping_id),
			total_rows INT NOT NULL DEFAULT 0,
			failed_rows INT NOT NULL DEFAULT 0,
			row_errors JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	log.Println(err)
	return err
}

// createBankTransactionTable creates a PostgreSQL table for the BankTransaction struct
func createBankTransactionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bank_transactions (
			id SERIAL PRIMARY KEY,
			transaction_id TEXT NOT NULL UNIQUE,
			org_id TEXT NOT NULL,
			import_id TEXT NOT NULL REFERENCES statement_imports(import_id),
			date TIMESTAMP NOT NULL,
			description TEXT,
			debit NUMERIC(20,4),
			credit NUMERIC(20,4),
			balance NUMERIC(20,4),
			reference TEXT,
			status TEXT NOT NULL DEFAULT 'unmatched' CHECK (status IN ('unmatched', 'suggested', 'matched', 'ignored')),
			matched_id TEXT,
			matched_kind TEXT CHECK (matched_kind IN ('expense', 'invoice')),
			matched_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			CHECK ((debit IS NULL) != (credit IS NULL)),
			CHECK ((status = 'matched') = (matched_id IS NOT NULL))
		)
	`)
	log.Println(err)
	return err
}

// createExpenseTable creates a PostgreSQL table for the Expense struct
func createExpenseTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS expenses (
			id SERIAL PRIMARY KEY,
			expense_id TEXT NOT NULL UNIQUE,
			org_id TEXT NOT NULL,
			amount NUMERIC(20,4) NOT NULL,
			expense_date TIMESTAMP NOT NULL,
			vendor TEXT,
			reference TEXT,
			linked_transaction_id TEXT REFERENCES bank_transactions(transaction_id),
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	log.Println(err)
	return err
}

// createInvoiceTable creates a PostgreSQL table for the Invoice struct
func createInvoiceTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS invoices (
			id SERIAL PRIMARY KEY,
			invoice_id TEXT NOT NULL UNIQUE,
			org_id TEXT NOT NULL,
			total NUMERIC(20,4) NOT NULL,
			amount_paid NUMERIC(20,4) NOT NULL DEFAULT 0,
			issue_date TIMESTAMP NOT NULL,
			due_date TIMESTAMP,
			contact TEXT,
			number TEXT,
			linked_transaction_id TEXT REFERENCES bank_transactions(transaction_id),
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	log.Println(err)
	return err
}
