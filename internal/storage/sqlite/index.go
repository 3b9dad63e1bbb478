package sqlite

import (
	"context"

	"github.com/radgate/radgate/internal/types"
)

// UpsertStudy inserts or updates a study row keyed by study UID.
// Aggregate columns (series_count, instance_count, total_size, modalities)
// are preserved on update when the incoming row carries zero values, so a
// metadata refresh does not wipe aggregates computed earlier.
func (s *Store) UpsertStudy(ctx context.Context, st *types.IndexedStudy) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indexed_studies (
			study_uid, patient_id, patient_name, patient_sex, study_date,
			study_time, accession_number, study_description, modalities,
			institution_name, referring_physician, source_route,
			series_count, instance_count, total_size
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (study_uid) DO UPDATE SET
			patient_id = excluded.patient_id,
			patient_name = excluded.patient_name,
			patient_sex = excluded.patient_sex,
			study_date = excluded.study_date,
			study_time = excluded.study_time,
			accession_number = excluded.accession_number,
			study_description = excluded.study_description,
			modalities = CASE WHEN excluded.modalities != '' THEN excluded.modalities ELSE indexed_studies.modalities END,
			institution_name = excluded.institution_name,
			referring_physician = excluded.referring_physician,
			source_route = excluded.source_route,
			series_count = CASE WHEN excluded.series_count != 0 THEN excluded.series_count ELSE indexed_studies.series_count END,
			instance_count = CASE WHEN excluded.instance_count != 0 THEN excluded.instance_count ELSE indexed_studies.instance_count END,
			total_size = CASE WHEN excluded.total_size != 0 THEN excluded.total_size ELSE indexed_studies.total_size END`,
		st.StudyUID, st.PatientID, st.PatientName, st.PatientSex, st.StudyDate,
		st.StudyTime, st.AccessionNumber, st.StudyDescription, st.Modalities,
		st.InstitutionName, st.ReferringPhysician, st.SourceRoute,
		st.SeriesCount, st.InstanceCount, st.TotalSize)
	return wrapDBError("upsert study", err)
}

// UpsertSeries inserts or updates a series row keyed by series UID.
func (s *Store) UpsertSeries(ctx context.Context, se *types.IndexedSeries) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indexed_series (
			series_uid, study_uid, modality, series_number,
			series_description, body_part, instance_count
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (series_uid) DO UPDATE SET
			study_uid = excluded.study_uid,
			modality = excluded.modality,
			series_number = excluded.series_number,
			series_description = excluded.series_description,
			body_part = excluded.body_part,
			instance_count = CASE WHEN excluded.instance_count != 0 THEN excluded.instance_count ELSE indexed_series.instance_count END`,
		se.SeriesUID, se.StudyUID, se.Modality, se.SeriesNumber,
		se.SeriesDescription, se.BodyPart, se.InstanceCount)
	return wrapDBError("upsert series", err)
}

// UpsertInstance inserts or updates an instance row keyed by SOP instance UID.
func (s *Store) UpsertInstance(ctx context.Context, in *types.IndexedInstance) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indexed_instances (
			sop_instance_uid, series_uid, sop_class_uid, instance_number,
			file_path, file_size, file_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (sop_instance_uid) DO UPDATE SET
			series_uid = excluded.series_uid,
			sop_class_uid = excluded.sop_class_uid,
			instance_number = excluded.instance_number,
			file_path = excluded.file_path,
			file_size = excluded.file_size,
			file_hash = excluded.file_hash`,
		in.SOPInstanceUID, in.SeriesUID, in.SOPClassUID, in.InstanceNumber,
		in.FilePath, in.FileSize, in.FileHash)
	return wrapDBError("upsert instance", err)
}

// GetStudy fetches one study row by UID.
func (s *Store) GetStudy(ctx context.Context, studyUID string) (*types.IndexedStudy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT study_uid, patient_id, patient_name, patient_sex, study_date,
		       study_time, accession_number, study_description, modalities,
		       institution_name, referring_physician, source_route,
		       series_count, instance_count, total_size
		FROM indexed_studies WHERE study_uid = ?`, studyUID)
	st := &types.IndexedStudy{}
	err := row.Scan(&st.StudyUID, &st.PatientID, &st.PatientName, &st.PatientSex,
		&st.StudyDate, &st.StudyTime, &st.AccessionNumber, &st.StudyDescription,
		&st.Modalities, &st.InstitutionName, &st.ReferringPhysician,
		&st.SourceRoute, &st.SeriesCount, &st.InstanceCount, &st.TotalSize)
	if err != nil {
		return nil, wrapDBError("get study", err)
	}
	return st, nil
}

// GetSeriesForStudy returns all series rows of a study ordered by series number.
func (s *Store) GetSeriesForStudy(ctx context.Context, studyUID string) ([]*types.IndexedSeries, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT series_uid, study_uid, modality, series_number,
		       series_description, body_part, instance_count
		FROM indexed_series WHERE study_uid = ? ORDER BY series_number`, studyUID)
	if err != nil {
		return nil, wrapDBError("get series for study", err)
	}
	defer rows.Close()

	var out []*types.IndexedSeries
	for rows.Next() {
		se := &types.IndexedSeries{}
		if err := rows.Scan(&se.SeriesUID, &se.StudyUID, &se.Modality,
			&se.SeriesNumber, &se.SeriesDescription, &se.BodyPart, &se.InstanceCount); err != nil {
			return nil, wrapDBError("scan series", err)
		}
		out = append(out, se)
	}
	return out, wrapDBError("get series for study", rows.Err())
}

// GetInstancesForSeries returns all instance rows of a series ordered by
// instance number.
func (s *Store) GetInstancesForSeries(ctx context.Context, seriesUID string) ([]*types.IndexedInstance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sop_instance_uid, series_uid, sop_class_uid, instance_number,
		       file_path, file_size, file_hash
		FROM indexed_instances WHERE series_uid = ? ORDER BY instance_number`, seriesUID)
	if err != nil {
		return nil, wrapDBError("get instances for series", err)
	}
	defer rows.Close()

	var out []*types.IndexedInstance
	for rows.Next() {
		in := &types.IndexedInstance{}
		if err := rows.Scan(&in.SOPInstanceUID, &in.SeriesUID, &in.SOPClassUID,
			&in.InstanceNumber, &in.FilePath, &in.FileSize, &in.FileHash); err != nil {
			return nil, wrapDBError("scan instance", err)
		}
		out = append(out, in)
	}
	return out, wrapDBError("get instances for series", rows.Err())
}

// CountStudies returns the number of indexed studies.
func (s *Store) CountStudies(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM indexed_studies`).Scan(&n)
	return n, wrapDBError("count studies", err)
}

// ClearIndex deletes all index rows. Custom field values cascade with their
// entities via explicit delete since values are keyed by UID, not FK.
func (s *Store) ClearIndex(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("clear index", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{
		`DELETE FROM custom_field_values`,
		`DELETE FROM indexed_instances`,
		`DELETE FROM indexed_series`,
		`DELETE FROM indexed_studies`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return wrapDBError("clear index", err)
		}
	}
	return wrapDBError("clear index", tx.Commit())
}

// AggregateStudyCounts recomputes per-study aggregates from children in bulk.
// Series instance counts are refreshed first so study instance counts roll
// up through series.
func (s *Store) AggregateStudyCounts(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("aggregate study counts", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmts := []string{
		`UPDATE indexed_series SET instance_count = (
			SELECT COUNT(*) FROM indexed_instances i
			WHERE i.series_uid = indexed_series.series_uid)`,
		`UPDATE indexed_studies SET
			series_count = (
				SELECT COUNT(*) FROM indexed_series se
				WHERE se.study_uid = indexed_studies.study_uid),
			instance_count = (
				SELECT COUNT(*) FROM indexed_instances i
				JOIN indexed_series se ON se.series_uid = i.series_uid
				WHERE se.study_uid = indexed_studies.study_uid),
			total_size = (
				SELECT COALESCE(SUM(i.file_size), 0) FROM indexed_instances i
				JOIN indexed_series se ON se.series_uid = i.series_uid
				WHERE se.study_uid = indexed_studies.study_uid),
			modalities = COALESCE((
				SELECT GROUP_CONCAT(m, '\') FROM (
					SELECT DISTINCT se.modality AS m FROM indexed_series se
					WHERE se.study_uid = indexed_studies.study_uid AND se.modality != ''
					ORDER BY se.modality)), '')`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return wrapDBError("aggregate study counts", err)
		}
	}
	return wrapDBError("aggregate study counts", tx.Commit())
}
