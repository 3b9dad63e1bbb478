// Package archive manages the on-disk staging area for received studies:
// original files, anonymized copies, the audit report, and the archive
// metadata document. Studies are addressed by (route, studyUID) and live
// under one of the lifecycle category directories.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/radgate/radgate/internal/types"
)

// Lifecycle categories a staged study can live under.
const (
	CategoryCompleted     = "completed"
	CategoryFailed        = "failed"
	CategoryPendingReview = "pending_review"
	CategoryRejected      = "rejected"
)

const (
	metadataFileName = "archive_metadata.json"
	auditFileName    = "audit_report.txt"
	originalsDir     = "originals"
	anonymizedDir    = "anonymized"
)

// ErrStudyNotFound is returned when no category holds the requested study.
var ErrStudyNotFound = errors.New("archived study not found")

// searchOrder is the category lookup order for Load.
var searchOrder = []string{CategoryPendingReview, CategoryCompleted, CategoryFailed, CategoryRejected}

// Metadata describes how a study was processed before archival.
type Metadata struct {
	StudyUID          string    `json:"study_uid"`
	AETitle           string    `json:"ae_title"`
	ScriptUsed        string    `json:"script_used"`
	PHIFieldsModified int       `json:"phi_fields_modified"`
	HashUIDs          bool      `json:"hash_uids"`
	Warnings          []string  `json:"warnings,omitempty"`
	ArchivedAt        time.Time `json:"archived_at"`
}

// Study is a loaded view of one archived study directory.
type Study struct {
	AETitle  string
	StudyUID string
	Category string
	Path     string

	// Absolute paths, sorted by base name.
	OriginalFiles   []string
	AnonymizedFiles []string

	// Metadata is nil when the study directory carries no metadata file.
	Metadata *Metadata
}

// Manager owns the archive tree rooted at baseDir.
type Manager struct {
	baseDir string
}

func NewManager(baseDir string) *Manager {
	return &Manager{baseDir: baseDir}
}

// StudyDir returns the directory for a study under the given category.
func (m *Manager) StudyDir(aeTitle, studyUID, category string) string {
	return filepath.Join(m.baseDir, aeTitle, category, "study_"+types.SanitizeUID(studyUID))
}

// Stage creates the study directory with originals/ and anonymized/
// subdirectories and writes the metadata document. Re-staging an existing
// study overwrites its metadata and keeps the files already present.
func (m *Manager) Stage(aeTitle, studyUID, category string, meta *Metadata) (string, error) {
	dir := m.StudyDir(aeTitle, studyUID, category)
	for _, sub := range []string{originalsDir, anonymizedDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o750); err != nil {
			return "", fmt.Errorf("stage study %s: %w", studyUID, err)
		}
	}
	if meta != nil {
		if meta.ArchivedAt.IsZero() {
			meta.ArchivedAt = time.Now()
		}
		if err := writeJSON(filepath.Join(dir, metadataFileName), meta); err != nil {
			return "", err
		}
	}
	return dir, nil
}

// AddOriginal copies a file into the study's originals directory.
func (m *Manager) AddOriginal(aeTitle, studyUID, category, srcPath string) error {
	return m.copyIn(aeTitle, studyUID, category, originalsDir, srcPath)
}

// AddAnonymized copies a file into the study's anonymized directory.
func (m *Manager) AddAnonymized(aeTitle, studyUID, category, srcPath string) error {
	return m.copyIn(aeTitle, studyUID, category, anonymizedDir, srcPath)
}

func (m *Manager) copyIn(aeTitle, studyUID, category, sub, srcPath string) error {
	dstDir := filepath.Join(m.StudyDir(aeTitle, studyUID, category), sub)
	if err := os.MkdirAll(dstDir, 0o750); err != nil {
		return fmt.Errorf("create %s dir: %w", sub, err)
	}
	src, err := os.Open(srcPath) // #nosec G304 - caller-provided staging path
	if err != nil {
		return fmt.Errorf("open source %s: %w", srcPath, err)
	}
	defer src.Close()

	dstPath := filepath.Join(dstDir, filepath.Base(srcPath))
	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640) // #nosec G304
	if err != nil {
		return fmt.Errorf("create %s: %w", dstPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy to %s: %w", dstPath, err)
	}
	return dst.Close()
}

// WriteAuditReport writes (or replaces) the study's audit report.
func (m *Manager) WriteAuditReport(aeTitle, studyUID, category, report string) error {
	dir := m.StudyDir(aeTitle, studyUID, category)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create study dir: %w", err)
	}
	path := filepath.Join(dir, auditFileName)
	if err := os.WriteFile(path, []byte(report), 0o640); err != nil {
		return fmt.Errorf("write audit report: %w", err)
	}
	return nil
}

// ReadAuditReport returns the study's audit report text.
func (m *Manager) ReadAuditReport(aeTitle, studyUID, category string) (string, error) {
	path := filepath.Join(m.StudyDir(aeTitle, studyUID, category), auditFileName)
	data, err := os.ReadFile(path) // #nosec G304
	if os.IsNotExist(err) {
		return "", ErrStudyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read audit report: %w", err)
	}
	return string(data), nil
}

// Load finds the study in any category (pending_review first) and returns
// its file listing and metadata.
func (m *Manager) Load(aeTitle, studyUID string) (*Study, error) {
	for _, category := range searchOrder {
		st, err := m.LoadFrom(aeTitle, studyUID, category)
		if errors.Is(err, ErrStudyNotFound) {
			continue
		}
		return st, err
	}
	return nil, fmt.Errorf("study %s on route %s: %w", studyUID, aeTitle, ErrStudyNotFound)
}

// LoadFrom loads the study from one specific category.
func (m *Manager) LoadFrom(aeTitle, studyUID, category string) (*Study, error) {
	dir := m.StudyDir(aeTitle, studyUID, category)
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return nil, ErrStudyNotFound
	}

	st := &Study{
		AETitle:  aeTitle,
		StudyUID: studyUID,
		Category: category,
		Path:     dir,
	}

	var err error
	if st.OriginalFiles, err = listFiles(filepath.Join(dir, originalsDir)); err != nil {
		return nil, err
	}
	if st.AnonymizedFiles, err = listFiles(filepath.Join(dir, anonymizedDir)); err != nil {
		return nil, err
	}

	metaPath := filepath.Join(dir, metadataFileName)
	if data, err := os.ReadFile(metaPath); err == nil { // #nosec G304
		var meta Metadata
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("parse archive metadata %s: %w", metaPath, err)
		}
		st.Metadata = &meta
	}
	return st, nil
}

// Move relocates a study directory between categories.
func (m *Manager) Move(aeTitle, studyUID, fromCategory, toCategory string) error {
	src := m.StudyDir(aeTitle, studyUID, fromCategory)
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("move study %s: %w", studyUID, ErrStudyNotFound)
	}
	dst := m.StudyDir(aeTitle, studyUID, toCategory)
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("create %s dir: %w", toCategory, err)
	}
	// A leftover destination from an earlier attempt is replaced.
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("clear move target: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("move study %s: %w", studyUID, err)
	}
	return nil
}

// Delete removes the study directory from one category.
func (m *Manager) Delete(aeTitle, studyUID, category string) error {
	dir := m.StudyDir(aeTitle, studyUID, category)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete study %s: %w", studyUID, err)
	}
	return nil
}

// ListStudyDirs returns the study_ directory names under one route category.
func (m *Manager) ListStudyDirs(aeTitle, category string) ([]string, error) {
	dir := filepath.Join(m.baseDir, aeTitle, category)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && len(e.Name()) > len("study_") && e.Name()[:len("study_")] == "study_" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return filepath.Base(files[i]) < filepath.Base(files[j])
	})
	return files, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}
