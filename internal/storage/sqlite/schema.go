package sqlite

const schema = `
-- Study-level index
CREATE TABLE IF NOT EXISTS indexed_studies (
    study_uid TEXT PRIMARY KEY,
    patient_id TEXT NOT NULL DEFAULT '',
    patient_name TEXT NOT NULL DEFAULT '',
    patient_sex TEXT NOT NULL DEFAULT '',
    study_date TEXT NOT NULL DEFAULT '',
    study_time TEXT NOT NULL DEFAULT '',
    accession_number TEXT NOT NULL DEFAULT '',
    study_description TEXT NOT NULL DEFAULT '',
    modalities TEXT NOT NULL DEFAULT '',
    institution_name TEXT NOT NULL DEFAULT '',
    referring_physician TEXT NOT NULL DEFAULT '',
    source_route TEXT NOT NULL DEFAULT '',
    series_count INTEGER NOT NULL DEFAULT 0,
    instance_count INTEGER NOT NULL DEFAULT 0,
    total_size INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_studies_patient_id ON indexed_studies(patient_id);
CREATE INDEX IF NOT EXISTS idx_studies_study_date ON indexed_studies(study_date);
CREATE INDEX IF NOT EXISTS idx_studies_source_route ON indexed_studies(source_route);

-- Series-level index
CREATE TABLE IF NOT EXISTS indexed_series (
    series_uid TEXT PRIMARY KEY,
    study_uid TEXT NOT NULL,
    modality TEXT NOT NULL DEFAULT '',
    series_number INTEGER NOT NULL DEFAULT 0,
    series_description TEXT NOT NULL DEFAULT '',
    body_part TEXT NOT NULL DEFAULT '',
    instance_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_series_study_uid ON indexed_series(study_uid);

-- Instance-level index
CREATE TABLE IF NOT EXISTS indexed_instances (
    sop_instance_uid TEXT PRIMARY KEY,
    series_uid TEXT NOT NULL,
    sop_class_uid TEXT NOT NULL DEFAULT '',
    instance_number INTEGER NOT NULL DEFAULT 0,
    file_path TEXT NOT NULL DEFAULT '',
    file_size INTEGER NOT NULL DEFAULT 0,
    file_hash TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_instances_series_uid ON indexed_instances(series_uid);

-- Operator-defined custom fields and their per-entity values
CREATE TABLE IF NOT EXISTS custom_fields (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    dicom_tag TEXT NOT NULL,
    field_type TEXT NOT NULL DEFAULT 'string' CHECK(field_type IN ('string','number','date')),
    level TEXT NOT NULL DEFAULT 'study' CHECK(level IN ('study','series','instance')),
    enabled INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS custom_field_values (
    field_id INTEGER NOT NULL REFERENCES custom_fields(id) ON DELETE CASCADE,
    entity_uid TEXT NOT NULL,
    value TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (field_id, entity_uid)
);

-- Rolled-up activity metrics, one table per resolution
CREATE TABLE IF NOT EXISTS metrics_minute (
    timestamp INTEGER PRIMARY KEY,
    transfers INTEGER NOT NULL DEFAULT 0,
    successful INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    bytes INTEGER NOT NULL DEFAULT 0,
    files INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS metrics_hour (
    timestamp INTEGER PRIMARY KEY,
    transfers INTEGER NOT NULL DEFAULT 0,
    successful INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    bytes INTEGER NOT NULL DEFAULT 0,
    files INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS metrics_day (
    timestamp INTEGER PRIMARY KEY,
    transfers INTEGER NOT NULL DEFAULT 0,
    successful INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    bytes INTEGER NOT NULL DEFAULT 0,
    files INTEGER NOT NULL DEFAULT 0
);

-- Cumulative per-route counters
CREATE TABLE IF NOT EXISTS route_stats (
    ae_title TEXT PRIMARY KEY,
    total_transfers INTEGER NOT NULL DEFAULT 0,
    successful_transfers INTEGER NOT NULL DEFAULT 0,
    failed_transfers INTEGER NOT NULL DEFAULT 0,
    total_bytes INTEGER NOT NULL DEFAULT 0,
    total_files INTEGER NOT NULL DEFAULT 0
);

-- Reindex job bookkeeping
CREATE TABLE IF NOT EXISTS reindex_jobs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    status TEXT NOT NULL DEFAULT 'running' CHECK(status IN ('running','completed','failed','cancelled')),
    total_files INTEGER NOT NULL DEFAULT 0,
    processed INTEGER NOT NULL DEFAULT 0,
    errors INTEGER NOT NULL DEFAULT 0,
    message TEXT NOT NULL DEFAULT '',
    started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    completed_at DATETIME
);
`
