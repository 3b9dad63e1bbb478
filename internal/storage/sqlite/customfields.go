package sqlite

import (
	"context"
	"database/sql"

	"github.com/radgate/radgate/internal/types"
)

// CreateCustomField inserts a custom field definition and fills in its
// assigned ID.
func (s *Store) CreateCustomField(ctx context.Context, f *types.CustomField) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO custom_fields (dicom_tag, field_type, level, enabled)
		VALUES (?, ?, ?, ?)`,
		f.DicomTag, f.Type, f.Level, boolToInt(f.Enabled))
	if err != nil {
		return wrapDBError("create custom field", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return wrapDBError("create custom field", err)
	}
	f.ID = id
	return nil
}

// GetEnabledCustomFields returns a snapshot of the currently enabled fields.
func (s *Store) GetEnabledCustomFields(ctx context.Context) ([]*types.CustomField, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dicom_tag, field_type, level, enabled
		FROM custom_fields WHERE enabled = 1 ORDER BY id`)
	if err != nil {
		return nil, wrapDBError("get enabled custom fields", err)
	}
	defer rows.Close()

	var out []*types.CustomField
	for rows.Next() {
		f := &types.CustomField{}
		var enabled int
		if err := rows.Scan(&f.ID, &f.DicomTag, &f.Type, &f.Level, &enabled); err != nil {
			return nil, wrapDBError("scan custom field", err)
		}
		f.Enabled = enabled != 0
		out = append(out, f)
	}
	return out, wrapDBError("get enabled custom fields", rows.Err())
}

// SetCustomFieldEnabled toggles a field definition.
func (s *Store) SetCustomFieldEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE custom_fields SET enabled = ? WHERE id = ?`, boolToInt(enabled), id)
	if err != nil {
		return wrapDBError("set custom field enabled", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return wrapDBError("set custom field enabled", sql.ErrNoRows)
	}
	return nil
}

// SetCustomFieldValue replaces the value for the (field, entity) pair.
func (s *Store) SetCustomFieldValue(ctx context.Context, fieldID int64, entityUID, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO custom_field_values (field_id, entity_uid, value)
		VALUES (?, ?, ?)
		ON CONFLICT (field_id, entity_uid) DO UPDATE SET value = excluded.value`,
		fieldID, entityUID, value)
	return wrapDBError("set custom field value", err)
}

// GetCustomFieldValue fetches the stored value for the (field, entity) pair.
func (s *Store) GetCustomFieldValue(ctx context.Context, fieldID int64, entityUID string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM custom_field_values
		WHERE field_id = ? AND entity_uid = ?`, fieldID, entityUID).Scan(&v)
	return v, wrapDBError("get custom field value", err)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
