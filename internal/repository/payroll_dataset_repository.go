package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-payroll-review/internal/database"
	"github.com/pesio-ai/be-payroll-review/internal/errors"
	"github.com/pesio-ai/be-payroll-review/internal/payroll"
)

// PayrollDatasetRepository stores uploaded payroll snapshots and their
// employee pay records.
type PayrollDatasetRepository struct {
	db *database.DB
}

// NewPayrollDatasetRepository creates a new PayrollDatasetRepository.
func NewPayrollDatasetRepository(db *database.DB) *PayrollDatasetRepository {
	return &PayrollDatasetRepository{db: db}
}

// Create inserts a dataset and all its records in one transaction.
func (r *PayrollDatasetRepository) Create(ctx context.Context, ds *PayrollDataset, records []payroll.Record) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO payroll_datasets
			    (organization_id, dataset_type, pay_period, file_name, record_count, created_by)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at
		`
		ds.RecordCount = len(records)
		err := tx.QueryRow(ctx, query,
			ds.OrganizationID,
			ds.DatasetType,
			ds.PayPeriod,
			ds.FileName,
			ds.RecordCount,
			ds.CreatedBy,
		).Scan(&ds.ID, &ds.CreatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create payroll dataset")
		}

		recordQuery := `
			INSERT INTO employee_pay_records (dataset_id, employee_id, pay_period, fields)
			VALUES ($1, $2, $3, $4)
		`
		batch := &pgx.Batch{}
		for _, rec := range records {
			fieldsJSON, err := json.Marshal(rec.Fields)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal pay record fields")
			}
			period := rec.PayPeriod
			if period == "" {
				period = ds.PayPeriod
			}
			batch.Queue(recordQuery, ds.ID, rec.EmployeeID, period, fieldsJSON)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert pay records")
		}
		return nil
	})
}

// GetByID retrieves a dataset header scoped to an organization.
func (r *PayrollDatasetRepository) GetByID(ctx context.Context, id, organizationID string) (*PayrollDataset, error) {
	if err := checkID("payroll_dataset", id); err != nil {
		return nil, err
	}
	query := `
		SELECT id, organization_id, dataset_type, pay_period, file_name,
		       record_count, created_by, created_at
		FROM payroll_datasets
		WHERE id = $1 AND organization_id = $2
	`

	ds := &PayrollDataset{}
	err := r.db.QueryRow(ctx, query, id, organizationID).Scan(
		&ds.ID,
		&ds.OrganizationID,
		&ds.DatasetType,
		&ds.PayPeriod,
		&ds.FileName,
		&ds.RecordCount,
		&ds.CreatedBy,
		&ds.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("payroll_dataset", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get payroll dataset")
	}
	return ds, nil
}

// ListRecords returns every employee pay record in a dataset ordered by
// employee id.
func (r *PayrollDatasetRepository) ListRecords(ctx context.Context, datasetID string) ([]payroll.Record, error) {
	if err := checkID("payroll_dataset", datasetID); err != nil {
		return nil, err
	}
	query := `
		SELECT employee_id, pay_period, fields
		FROM employee_pay_records
		WHERE dataset_id = $1
		ORDER BY employee_id ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, datasetID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list pay records")
	}
	defer rows.Close()

	var records []payroll.Record
	for rows.Next() {
		var (
			employeeID, period string
			fieldsJSON         []byte
		)
		if err := rows.Scan(&employeeID, &period, &fieldsJSON); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan pay record")
		}
		var fields map[string]payroll.Value
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &fields); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal pay record fields")
			}
		}
		records = append(records, payroll.NewRecord(employeeID, period, fields))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to iterate pay records")
	}
	return records, nil
}
