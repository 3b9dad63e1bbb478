// Package types defines core data structures for the radgate DICOM gateway.
package types

import (
	"fmt"
	"strings"
	"time"
)

// TransferStatus is the lifecycle state of a TransferRecord.
type TransferStatus string

const (
	StatusReceived   TransferStatus = "RECEIVED"
	StatusProcessing TransferStatus = "PROCESSING"
	StatusForwarding TransferStatus = "FORWARDING"
	StatusCompleted  TransferStatus = "COMPLETED"
	StatusPartial    TransferStatus = "PARTIAL"
	StatusFailed     TransferStatus = "FAILED"
)

// Terminal reports whether the status is a terminal state. Terminal records
// are immutable and live only in the history files.
func (s TransferStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusPartial || s == StatusFailed
}

// DestinationStatus is the per-destination forwarding state.
type DestinationStatus string

const (
	DestPending    DestinationStatus = "PENDING"
	DestInProgress DestinationStatus = "IN_PROGRESS"
	DestSuccess    DestinationStatus = "SUCCESS"
	DestFailed     DestinationStatus = "FAILED"
)

// Done reports whether the destination has reached a final state.
func (s DestinationStatus) Done() bool {
	return s == DestSuccess || s == DestFailed
}

// DestinationResult tracks forwarding progress for one destination of a
// transfer.
type DestinationResult struct {
	Destination      string            `json:"destination"`
	Status           DestinationStatus `json:"status"`
	Message          string            `json:"message,omitempty"`
	DurationMs       int64             `json:"duration_ms,omitempty"`
	FilesTransferred int               `json:"files_transferred,omitempty"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
}

// TransferRecord tracks one received study from receipt to terminal state.
type TransferRecord struct {
	TransferID           string               `json:"transfer_id"`
	AETitle              string               `json:"ae_title"`
	StudyUID             string               `json:"study_uid"`
	CallingAETitle       string               `json:"calling_ae_title"`
	FileCount            int                  `json:"file_count"`
	TotalSize            int64                `json:"total_size"`
	Status               TransferStatus       `json:"status"`
	ErrorMessage         string               `json:"error_message,omitempty"`
	ReceivedAt           time.Time            `json:"received_at"`
	ProcessingStartedAt  *time.Time           `json:"processing_started_at,omitempty"`
	ForwardingStartedAt  *time.Time           `json:"forwarding_started_at,omitempty"`
	CompletedAt          *time.Time           `json:"completed_at,omitempty"`
	DestinationResults   []*DestinationResult `json:"destination_results,omitempty"`
}

// Clone returns a deep copy so callers can hand out records without exposing
// the registry's mutable state.
func (r *TransferRecord) Clone() *TransferRecord {
	cp := *r
	cp.DestinationResults = make([]*DestinationResult, len(r.DestinationResults))
	for i, d := range r.DestinationResults {
		dc := *d
		cp.DestinationResults[i] = &dc
	}
	return &cp
}

// NewTransferID builds the canonical transfer identifier:
// {aeTitle}_{yyyyMMddHHmmss}_{last 8 chars of studyUid}.
func NewTransferID(aeTitle, studyUID string, at time.Time) string {
	tail := studyUID
	if len(tail) > 8 {
		tail = tail[len(tail)-8:]
	}
	return fmt.Sprintf("%s_%s_%s", aeTitle, at.Format("20060102150405"), tail)
}

// ReviewStatus is the human-review state of an archived study.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "PENDING_REVIEW"
	ReviewApproved ReviewStatus = "APPROVED"
	ReviewRejected ReviewStatus = "REJECTED"
)

// ReviewMetadata is the on-disk review record. Exactly one file exists per
// review: pending_review/study_{uid}/review_metadata.json while pending,
// rejected/study_{uid}/rejection_metadata.json after rejection.
type ReviewMetadata struct {
	ReviewID          string       `json:"review_id"`
	StudyUID          string       `json:"study_uid"`
	AETitle           string       `json:"ae_title"`
	ArchivePath       string       `json:"archive_path"`
	SubmittedAt       time.Time    `json:"submitted_at"`
	Status            ReviewStatus `json:"status"`
	ScriptUsed        string       `json:"script_used,omitempty"`
	PHIFieldsModified int          `json:"phi_fields_modified"`
	Warnings          []string     `json:"warnings,omitempty"`
	ReviewedAt        *time.Time   `json:"reviewed_at,omitempty"`
	ReviewedBy        string       `json:"reviewed_by,omitempty"`
	ReviewNotes       string       `json:"review_notes,omitempty"`
	RejectionReason   string       `json:"rejection_reason,omitempty"`
}

// IndexedStudy is the study-level metadata row. Aggregate fields (counts,
// size, modalities) are recomputed in bulk at the end of an index job and
// are eventually consistent until then.
type IndexedStudy struct {
	StudyUID           string `json:"study_uid"`
	PatientID          string `json:"patient_id,omitempty"`
	PatientName        string `json:"patient_name,omitempty"`
	PatientSex         string `json:"patient_sex,omitempty"`
	StudyDate          string `json:"study_date,omitempty"` // YYYYMMDD
	StudyTime          string `json:"study_time,omitempty"`
	AccessionNumber    string `json:"accession_number,omitempty"`
	StudyDescription   string `json:"study_description,omitempty"`
	Modalities         string `json:"modalities,omitempty"`
	InstitutionName    string `json:"institution_name,omitempty"`
	ReferringPhysician string `json:"referring_physician,omitempty"`
	SourceRoute        string `json:"source_route,omitempty"`
	SeriesCount        int    `json:"series_count"`
	InstanceCount      int    `json:"instance_count"`
	TotalSize          int64  `json:"total_size"`
}

// IndexedSeries is the series-level metadata row.
type IndexedSeries struct {
	SeriesUID         string `json:"series_uid"`
	StudyUID          string `json:"study_uid"`
	Modality          string `json:"modality,omitempty"`
	SeriesNumber      int    `json:"series_number,omitempty"`
	SeriesDescription string `json:"series_description,omitempty"`
	BodyPart          string `json:"body_part,omitempty"`
	InstanceCount     int    `json:"instance_count"`
}

// IndexedInstance is the instance-level metadata row. Pixel data is never
// stored; FilePath points at the source file.
type IndexedInstance struct {
	SOPInstanceUID string `json:"sop_instance_uid"`
	SeriesUID      string `json:"series_uid"`
	SOPClassUID    string `json:"sop_class_uid,omitempty"`
	InstanceNumber int    `json:"instance_number,omitempty"`
	FilePath       string `json:"file_path,omitempty"`
	FileSize       int64  `json:"file_size"`
	FileHash       string `json:"file_hash,omitempty"` // MD5 hex
}

// CustomFieldType restricts how a custom field value is interpreted.
type CustomFieldType string

const (
	FieldString CustomFieldType = "string"
	FieldNumber CustomFieldType = "number"
	FieldDate   CustomFieldType = "date"
)

// CustomFieldLevel is the entity level a custom field attaches to.
type CustomFieldLevel string

const (
	LevelStudy    CustomFieldLevel = "study"
	LevelSeries   CustomFieldLevel = "series"
	LevelInstance CustomFieldLevel = "instance"
)

// CustomField is an operator-defined DICOM tag to index alongside the
// built-in columns.
type CustomField struct {
	ID       int64            `json:"id"`
	DicomTag string           `json:"dicom_tag"` // "gggg,eeee" hex or keyword
	Type     CustomFieldType  `json:"field_type"`
	Level    CustomFieldLevel `json:"level"`
	Enabled  bool             `json:"enabled"`
}

// MetricPoint is one bucket of rolled-up activity. Timestamp is epoch millis
// floored to the bucket boundary; the bucket covers
// [Timestamp, Timestamp+width).
type MetricPoint struct {
	Timestamp  int64 `json:"timestamp"`
	Transfers  int64 `json:"transfers"`
	Successful int64 `json:"successful"`
	Failed     int64 `json:"failed"`
	Bytes      int64 `json:"bytes"`
	Files      int64 `json:"files"`
}

// RouteStats holds cumulative, monotonic per-route counters.
type RouteStats struct {
	AETitle             string `json:"ae_title"`
	TotalTransfers      int64  `json:"total_transfers"`
	SuccessfulTransfers int64  `json:"successful_transfers"`
	FailedTransfers     int64  `json:"failed_transfers"`
	TotalBytes          int64  `json:"total_bytes"`
	TotalFiles          int64  `json:"total_files"`
}

// ReindexJobStatus is the lifecycle state of a reindex job.
type ReindexJobStatus string

const (
	JobRunning   ReindexJobStatus = "running"
	JobCompleted ReindexJobStatus = "completed"
	JobFailed    ReindexJobStatus = "failed"
	JobCancelled ReindexJobStatus = "cancelled"
)

// ReindexJob records the progress of one index scan.
type ReindexJob struct {
	ID          int64            `json:"id"`
	Status      ReindexJobStatus `json:"status"`
	TotalFiles  int              `json:"total_files"`
	Processed   int              `json:"processed"`
	Errors      int              `json:"errors"`
	Message     string           `json:"message,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// SanitizeUID maps a DICOM UID to a filesystem-safe directory component.
// Any character outside [A-Za-z0-9.-] becomes '_'.
func SanitizeUID(uid string) string {
	var b strings.Builder
	b.Grow(len(uid))
	for _, c := range uid {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '.', c == '-':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
