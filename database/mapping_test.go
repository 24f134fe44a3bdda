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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/shilingihq/shilingi/internal/apierror"
	"github.com/shilingihq/shilingi/model"
)

func testMapping() *model.ColumnMapping {
	return &model.ColumnMapping{
		OrgID: "org_1",
		Name:  "Equity Bank CSV",
		Columns: map[string]model.TargetField{
			"Transaction Date": model.FieldDate,
			"Narrative":        model.FieldDescription,
			"Withdrawal":       model.FieldDebit,
			"Deposit":          model.FieldCredit,
			"Ref No":           model.FieldReference,
		},
		DateLayout: "02/01/2006",
	}
}

func TestCreateColumnMapping_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	m := testMapping()

	mock.ExpectExec("INSERT INTO column_mappings").
		WithArgs(sqlmock.AnyArg(), "org_1", "Equity Bank CSV", sqlmock.AnyArg(), "02/01/2006", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := ds.CreateColumnMapping(context.Background(), m)
	assert.NoError(t, err)
	assert.NotEmpty(t, created.MappingID)
	assert.Contains(t, created.MappingID, "map_")
	assert.WithinDuration(t, time.Now(), created.CreatedAt, time.Second)
}

func TestCreateColumnMapping_DuplicateName(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	m := testMapping()

	mock.ExpectExec("INSERT INTO column_mappings").
		WillReturnError(&pq.Error{Code: "23505", Message: "unique_violation"})

	_, err = ds.CreateColumnMapping(context.Background(), m)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
}

func TestGetColumnMapping_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	columnsJSON, err := json.Marshal(testMapping().Columns)
	assert.NoError(t, err)

	mock.ExpectQuery("SELECT id, mapping_id, org_id, name, columns").
		WithArgs("map_1", "org_1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "mapping_id", "org_id", "name", "columns", "date_layout", "created_at", "updated_at"}).
			AddRow(1, "map_1", "org_1", "Equity Bank CSV", columnsJSON, "02/01/2006", time.Now(), time.Now()))

	m, err := ds.GetColumnMapping(context.Background(), "org_1", "map_1")
	assert.NoError(t, err)
	assert.Equal(t, "Equity Bank CSV", m.Name)
	assert.Equal(t, model.FieldDebit, m.Columns["Withdrawal"])
	assert.Len(t, m.Columns, 5)
}

func TestGetColumnMapping_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT id, mapping_id, org_id, name, columns").
		WithArgs("map_missing", "org_1").
		WillReturnError(sql.ErrNoRows)

	_, err = ds.GetColumnMapping(context.Background(), "org_1", "map_missing")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}

func TestUpdateColumnMapping_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	m := testMapping()
	m.MappingID = "map_missing"

	mock.ExpectExec("UPDATE column_mappings").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ds.UpdateColumnMapping(context.Background(), m)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}

func TestDeleteColumnMapping_Referenced(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("DELETE FROM column_mappings").
		WithArgs("map_1", "org_1").
		WillReturnError(&pq.Error{Code: "23503", Message: "foreign_key_violation"})

	err = ds.DeleteColumnMapping(context.Background(), "org_1", "map_1")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
}
