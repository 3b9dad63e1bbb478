package dicomutil

import (
	"crypto/md5" // #nosec G501 - content fingerprint, not a security boundary
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// IsCandidate reports whether a file looks like a DICOM object: the name
// ends in .dcm/.dicom, or bytes 128..131 equal the ASCII "DICM" marker.
func IsCandidate(path string) bool {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".dcm") || strings.HasSuffix(lower, ".dicom") {
		return true
	}
	f, err := os.Open(path) // #nosec G304 - path comes from a directory walk
	if err != nil {
		return false
	}
	defer f.Close()

	var buf [132]byte
	if _, err := io.ReadFull(f, buf[:]); err != nil {
		return false
	}
	return string(buf[128:132]) == "DICM"
}

// FileMeta is the metadata extracted from one DICOM file; pixel data is
// never read.
type FileMeta struct {
	StudyUID           string
	SeriesUID          string
	SOPInstanceUID     string
	SOPClassUID        string
	PatientID          string
	PatientName        string
	PatientSex         string
	StudyDate          string
	StudyTime          string
	AccessionNumber    string
	StudyDescription   string
	InstitutionName    string
	ReferringPhysician string
	Modality           string
	SeriesNumber       int
	SeriesDescription  string
	BodyPart           string
	InstanceNumber     int
	FileSize           int64
	FileHash           string
}

// ExtractFileMeta parses a DICOM file (skipping pixel data) and returns its
// index metadata plus size and MD5. The returned Dataset can be reused by
// callers that need further tag reads.
func ExtractFileMeta(path string) (*FileMeta, *dicom.Dataset, error) {
	ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}

	m := &FileMeta{
		StudyUID:           ElementString(&ds, tag.StudyInstanceUID),
		SeriesUID:          ElementString(&ds, tag.SeriesInstanceUID),
		SOPInstanceUID:     ElementString(&ds, tag.SOPInstanceUID),
		SOPClassUID:        ElementString(&ds, tag.SOPClassUID),
		PatientID:          ElementString(&ds, tag.PatientID),
		PatientName:        ElementString(&ds, tag.PatientName),
		PatientSex:         ElementString(&ds, tag.PatientSex),
		StudyDate:          ElementString(&ds, tag.StudyDate),
		StudyTime:          ElementString(&ds, tag.StudyTime),
		AccessionNumber:    ElementString(&ds, tag.AccessionNumber),
		StudyDescription:   ElementString(&ds, tag.StudyDescription),
		InstitutionName:    ElementString(&ds, tag.InstitutionName),
		ReferringPhysician: ElementString(&ds, tag.ReferringPhysicianName),
		Modality:           ElementString(&ds, tag.Modality),
		SeriesNumber:       ElementInt(&ds, tag.SeriesNumber),
		SeriesDescription:  ElementString(&ds, tag.SeriesDescription),
		BodyPart:           ElementString(&ds, tag.BodyPartExamined),
		InstanceNumber:     ElementInt(&ds, tag.InstanceNumber),
	}

	size, hash, err := FileSizeAndMD5(path)
	if err != nil {
		return nil, nil, err
	}
	m.FileSize = size
	m.FileHash = hash
	return m, &ds, nil
}

// ElementString reads a tag as a rendered string, "" when absent.
func ElementString(ds *dicom.Dataset, t tag.Tag) string {
	el, err := ds.FindElementByTag(t)
	if err != nil || el == nil {
		return ""
	}
	return strings.TrimSpace(RenderValue(el.Value))
}

// ElementInt reads an integer-valued tag (IS and numeric VRs), 0 when absent
// or unparseable.
func ElementInt(ds *dicom.Dataset, t tag.Tag) int {
	el, err := ds.FindElementByTag(t)
	if err != nil || el == nil {
		return 0
	}
	switch v := el.Value.GetValue().(type) {
	case []int:
		if len(v) > 0 {
			return v[0]
		}
	case []string:
		if len(v) > 0 {
			if n, err := strconv.Atoi(strings.TrimSpace(v[0])); err == nil {
				return n
			}
		}
	}
	return 0
}

// FileSizeAndMD5 returns a file's size and its MD5 as lowercase hex.
func FileSizeAndMD5(path string) (int64, string, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from a directory walk
	if err != nil {
		return 0, "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New() // #nosec G401
	size, err := io.Copy(h, f)
	if err != nil {
		return 0, "", fmt.Errorf("hash %s: %w", path, err)
	}
	return size, hex.EncodeToString(h.Sum(nil)), nil
}
