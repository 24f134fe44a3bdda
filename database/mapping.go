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
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"

	"github.com/shilingihq/shilingi/internal/apierror"
	"github.com/shilingihq/shilingi/model"
)

// CreateColumnMapping inserts a new column mapping for an organization.
// Mapping names are unique per organization.
func (d Datasource) CreateColumnMapping(ctx context.Context, m *model.ColumnMapping) (*model.ColumnMapping, error) {
	ctx, span := otel.Tracer("Mapping").Start(ctx, "Saving column mapping to db")
	defer span.End()

	m.MappingID = model.GenerateUUIDWithSuffix("map")
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt

	columnsJSON, err := json.Marshal(m.Columns)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal mapping columns", err)
	}

	_, err = d.Conn.ExecContext(ctx,
		`INSERT INTO column_mappings(mapping_id, org_id, name, columns, date_layout, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.MappingID, m.OrgID, m.Name, columnsJSON, m.DateLayout, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Mapping with name '%s' already exists", m.Name), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create column mapping", err)
	}
	return m, nil
}

// GetColumnMapping retrieves a column mapping by ID scoped to the
// organization.
func (d Datasource) GetColumnMapping(ctx context.Context, orgID, id string) (*model.ColumnMapping, error) {
	ctx, span := otel.Tracer("Mapping").Start(ctx, "Fetching column mapping from db")
	defer span.End()

	m := &model.ColumnMapping{}
	var columnsJSON []byte
	err := d.Conn.QueryRowContext(ctx, `
		SELECT id, mapping_id, org_id, name, columns, date_layout, created_at, updated_at
		FROM column_mappings
		WHERE mapping_id = $1 AND org_id = $2
	`, id, orgID).Scan(
		&m.ID, &m.MappingID, &m.OrgID, &m.Name, &columnsJSON,
		&m.DateLayout, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Mapping with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve column mapping", err)
	}

	if err := json.Unmarshal(columnsJSON, &m.Columns); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal mapping columns", err)
	}
	return m, nil
}

// GetAllColumnMappings retrieves an organization's column mappings, newest
// first.
func (d Datasource) GetAllColumnMappings(ctx context.Context, orgID string, limit, offset int) ([]model.ColumnMapping, error) {
	ctx, span := otel.Tracer("Mapping").Start(ctx, "Fetching column mappings from db")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, mapping_id, org_id, name, columns, date_layout, created_at, updated_at
		FROM column_mappings
		WHERE org_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, orgID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve column mappings", err)
	}
	defer rows.Close()

	mappings := []model.ColumnMapping{}
	for rows.Next() {
		m := model.ColumnMapping{}
		var columnsJSON []byte
		err = rows.Scan(
			&m.ID, &m.MappingID, &m.OrgID, &m.Name, &columnsJSON,
			&m.DateLayout, &m.CreatedAt, &m.UpdatedAt,
		)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan column mapping", err)
		}
		if err := json.Unmarshal(columnsJSON, &m.Columns); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal mapping columns", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, nil
}

// UpdateColumnMapping replaces the name, columns and date layout of an
// existing mapping.
func (d Datasource) UpdateColumnMapping(ctx context.Context, m *model.ColumnMapping) error {
	ctx, span := otel.Tracer("Mapping").Start(ctx, "Updating column mapping")
	defer span.End()

	columnsJSON, err := json.Marshal(m.Columns)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal mapping columns", err)
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE column_mappings
		SET name = $3, columns = $4, date_layout = $5, updated_at = NOW()
		WHERE mapping_id = $1 AND org_id = $2
	`, m.MappingID, m.OrgID, m.Name, columnsJSON, m.DateLayout)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Mapping with name '%s' already exists", m.Name), err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update column mapping", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Mapping with ID '%s' not found", m.MappingID), nil)
	}
	return nil
}

// DeleteColumnMapping removes a mapping. Imports keep their mapping_id
// reference, so mappings still referenced by an import cannot be deleted.
func (d Datasource) DeleteColumnMapping(ctx context.Context, orgID, id string) error {
	ctx, span := otel.Tracer("Mapping").Start(ctx, "Deleting column mapping")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		DELETE FROM column_mappings
		WHERE mapping_id = $1 AND org_id = $2
	`, id, orgID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			return apierror.NewAPIError(apierror.ErrConflict, "Mapping is referenced by an import", err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete column mapping", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Mapping with ID '%s' not found", id), nil)
	}
	return nil
}
