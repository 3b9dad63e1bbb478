// Package compare builds structured diffs between the original and
// anonymized copies of an archived study: file pairing across series, study
// summaries, and tag-by-tag header comparisons for review.
package compare

import (
	"fmt"
	"log"
	"path/filepath"
	"sort"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/radgate/radgate/internal/archive"
	"github.com/radgate/radgate/internal/crosswalk"
	"github.com/radgate/radgate/internal/dicomutil"
)

// Match strategies, in the order they are attempted.
const (
	MatchCrosswalk      = "crosswalk"
	MatchBasename       = "basename"
	MatchSOPUID         = "sop_uid"
	MatchInstanceNumber = "instance_number"
)

// Engine compares archived studies. crosswalkStore may be nil when no
// de-identification broker is configured.
type Engine struct {
	archive        *archive.Manager
	crosswalkStore crosswalk.Store
	brokerName     string
}

func NewEngine(archiveMgr *archive.Manager, cw crosswalk.Store, brokerName string) *Engine {
	return &Engine{archive: archiveMgr, crosswalkStore: cw, brokerName: brokerName}
}

// fileEntry is one parsed archive file.
type fileEntry struct {
	Path string
	Meta *dicomutil.FileMeta
}

// FilePair is one original file and its matched anonymized counterpart.
// AnonymizedPath is empty when no strategy produced a match.
type FilePair struct {
	OriginalPath   string `json:"original_path"`
	AnonymizedPath string `json:"anonymized_path,omitempty"`
	SOPInstanceUID string `json:"sop_instance_uid,omitempty"`
	InstanceNumber int    `json:"instance_number,omitempty"`
	MatchedBy      string `json:"matched_by,omitempty"`
}

// ScanComparison is the pairing for one original series.
type ScanComparison struct {
	SeriesUID         string     `json:"series_uid"`
	Modality          string     `json:"modality,omitempty"`
	SeriesDescription string     `json:"series_description,omitempty"`
	Pairs             []FilePair `json:"pairs"`
}

// StudyComparison is the review summary for one archived study.
type StudyComparison struct {
	AETitle           string           `json:"ae_title"`
	StudyUID          string           `json:"study_uid"`
	PatientID         string           `json:"patient_id,omitempty"`
	PatientName       string           `json:"patient_name,omitempty"`
	StudyDate         string           `json:"study_date,omitempty"`
	AccessionNumber   string           `json:"accession_number,omitempty"`
	StudyDescription  string           `json:"study_description,omitempty"`
	ScanCount         int              `json:"scan_count"`
	FileCount         int              `json:"file_count"`
	ScriptUsed        string           `json:"script_used,omitempty"`
	PHIFieldsModified int              `json:"phi_fields_modified"`
	Scans             []ScanComparison `json:"scans"`
}

// CompareStudy reads the archived study and pairs every original file with
// its anonymized counterpart.
func (e *Engine) CompareStudy(aeTitle, studyUID string) (*StudyComparison, error) {
	st, err := e.archive.Load(aeTitle, studyUID)
	if err != nil {
		return nil, err
	}

	originals := parseEntries(st.OriginalFiles)
	anonymized := parseEntries(st.AnonymizedFiles)
	if len(originals) == 0 {
		return nil, fmt.Errorf("study %s has no readable original files", studyUID)
	}

	comp := &StudyComparison{
		AETitle:   aeTitle,
		StudyUID:  studyUID,
		FileCount: max(len(st.OriginalFiles), len(st.AnonymizedFiles)),
	}

	first := originals[0].Meta
	comp.PatientID = first.PatientID
	comp.PatientName = first.PatientName
	comp.StudyDate = first.StudyDate
	comp.AccessionNumber = first.AccessionNumber
	comp.StudyDescription = first.StudyDescription

	hashUids := false
	if st.Metadata != nil {
		comp.ScriptUsed = st.Metadata.ScriptUsed
		comp.PHIFieldsModified = st.Metadata.PHIFieldsModified
		hashUids = st.Metadata.HashUIDs
	}

	comp.Scans = e.pairSeries(originals, anonymized, hashUids)
	comp.ScanCount = len(comp.Scans)
	return comp, nil
}

// pairSeries groups originals by series in encounter order, sorts each
// series by instance number, and pairs each file with an anonymized one
// using the first strategy that matches.
func (e *Engine) pairSeries(originals, anonymized []fileEntry, hashUids bool) []ScanComparison {
	byBasename := make(map[string]fileEntry, len(anonymized))
	bySOP := make(map[string]fileEntry, len(anonymized))
	bySeriesInstance := make(map[string]map[int]fileEntry)
	for _, a := range anonymized {
		byBasename[filepath.Base(a.Path)] = a
		if a.Meta.SOPInstanceUID != "" {
			bySOP[a.Meta.SOPInstanceUID] = a
		}
		if a.Meta.SeriesUID != "" {
			m, ok := bySeriesInstance[a.Meta.SeriesUID]
			if !ok {
				m = make(map[int]fileEntry)
				bySeriesInstance[a.Meta.SeriesUID] = m
			}
			m[a.Meta.InstanceNumber] = a
		}
	}

	var seriesOrder []string
	grouped := make(map[string][]fileEntry)
	for _, o := range originals {
		uid := o.Meta.SeriesUID
		if _, seen := grouped[uid]; !seen {
			seriesOrder = append(seriesOrder, uid)
		}
		grouped[uid] = append(grouped[uid], o)
	}

	scans := make([]ScanComparison, 0, len(seriesOrder))
	for _, seriesUID := range seriesOrder {
		files := grouped[seriesUID]
		sort.SliceStable(files, func(i, j int) bool {
			return files[i].Meta.InstanceNumber < files[j].Meta.InstanceNumber
		})

		scan := ScanComparison{
			SeriesUID:         seriesUID,
			Modality:          files[0].Meta.Modality,
			SeriesDescription: files[0].Meta.SeriesDescription,
		}
		for _, o := range files {
			pair := FilePair{
				OriginalPath:   o.Path,
				SOPInstanceUID: o.Meta.SOPInstanceUID,
				InstanceNumber: o.Meta.InstanceNumber,
			}
			if match, how := e.matchAnonymized(o, hashUids, byBasename, bySOP, bySeriesInstance); how != "" {
				pair.AnonymizedPath = match.Path
				pair.MatchedBy = how
			}
			scan.Pairs = append(scan.Pairs, pair)
		}
		scans = append(scans, scan)
	}
	return scans
}

func (e *Engine) matchAnonymized(o fileEntry, hashUids bool, byBasename, bySOP map[string]fileEntry, bySeriesInstance map[string]map[int]fileEntry) (fileEntry, string) {
	if hashUids && e.crosswalkStore != nil && o.Meta.SOPInstanceUID != "" {
		if mapped := e.crosswalkStore.Lookup(e.brokerName, o.Meta.SOPInstanceUID, crosswalk.IDTypeSOPUID); mapped != "" {
			if a, ok := bySOP[mapped]; ok {
				return a, MatchCrosswalk
			}
		}
	}
	if a, ok := byBasename[filepath.Base(o.Path)]; ok {
		return a, MatchBasename
	}
	if o.Meta.SOPInstanceUID != "" {
		if a, ok := bySOP[o.Meta.SOPInstanceUID]; ok {
			return a, MatchSOPUID
		}
	}
	if m, ok := bySeriesInstance[o.Meta.SeriesUID]; ok {
		if a, ok := m[o.Meta.InstanceNumber]; ok {
			return a, MatchInstanceNumber
		}
	}
	return fileEntry{}, ""
}

func parseEntries(paths []string) []fileEntry {
	entries := make([]fileEntry, 0, len(paths))
	for _, p := range paths {
		meta, _, err := dicomutil.ExtractFileMeta(p)
		if err != nil {
			log.Printf("compare: skipping unreadable file %s: %v", p, err)
			continue
		}
		entries = append(entries, fileEntry{Path: p, Meta: meta})
	}
	return entries
}

// CompareHeaders diffs the headers of one (original, anonymized) file pair.
func (e *Engine) CompareHeaders(originalPath, anonymizedPath string) (*HeaderComparison, error) {
	orig, err := dicom.ParseFile(originalPath, nil, dicom.SkipPixelData())
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", originalPath, err)
	}
	anon, err := dicom.ParseFile(anonymizedPath, nil, dicom.SkipPixelData())
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", anonymizedPath, err)
	}
	comp := diffDatasets(&orig, &anon)
	comp.OriginalPath = originalPath
	comp.AnonymizedPath = anonymizedPath
	return comp, nil
}

// TagDiff is one tag's before/after record.
type TagDiff struct {
	Tag             string             `json:"tag"` // "gggg,eeee"
	Keyword         string             `json:"keyword,omitempty"`
	VR              string             `json:"vr,omitempty"`
	Category        dicomutil.Category `json:"category"`
	OriginalValue   string             `json:"original_value,omitempty"`
	AnonymizedValue string             `json:"anonymized_value,omitempty"`
	Changed         bool               `json:"changed"`
	Removed         bool               `json:"removed"`
	Added           bool               `json:"added"`
	IsPHI           bool               `json:"is_phi"`
}

// HeaderComparison is the tag-by-tag diff of one file pair.
type HeaderComparison struct {
	OriginalPath   string    `json:"original_path,omitempty"`
	AnonymizedPath string    `json:"anonymized_path,omitempty"`
	Tags           []TagDiff `json:"tags"`
	ChangedTags    int       `json:"changed_tags"`
	RemovedTags    int       `json:"removed_tags"`
	AddedTags      int       `json:"added_tags"`
	PHITags        int       `json:"phi_tags"`
}

// diffDatasets unions both tag sets (PixelData excluded) and records the
// per-tag outcome.
func diffDatasets(orig, anon *dicom.Dataset) *HeaderComparison {
	origElems := elementsByTag(orig)
	anonElems := elementsByTag(anon)

	tagSet := make(map[int]struct{}, len(origElems)+len(anonElems))
	for packed := range origElems {
		tagSet[packed] = struct{}{}
	}
	for packed := range anonElems {
		tagSet[packed] = struct{}{}
	}

	packedTags := make([]int, 0, len(tagSet))
	for packed := range tagSet {
		packedTags = append(packedTags, packed)
	}
	sort.Ints(packedTags)

	comp := &HeaderComparison{}
	for _, packed := range packedTags {
		t := dicomutil.ToTag(packed)
		oe, inOrig := origElems[packed]
		ae, inAnon := anonElems[packed]

		d := TagDiff{
			Tag:      dicomutil.FormatTag(packed),
			Keyword:  dicomutil.Keyword(t),
			Category: dicomutil.Categorize(t),
			IsPHI:    dicomutil.IsPHI(t),
		}
		if inOrig {
			d.VR = oe.RawValueRepresentation
			d.OriginalValue = dicomutil.RenderValue(oe.Value)
		} else {
			d.VR = ae.RawValueRepresentation
		}
		if inAnon {
			d.AnonymizedValue = dicomutil.RenderValue(ae.Value)
		}

		switch {
		case inOrig && !inAnon:
			d.Removed = true
			comp.RemovedTags++
		case !inOrig && inAnon:
			d.Added = true
			comp.AddedTags++
		case d.OriginalValue != d.AnonymizedValue:
			d.Changed = true
			comp.ChangedTags++
		}
		if d.IsPHI {
			comp.PHITags++
		}
		comp.Tags = append(comp.Tags, d)
	}
	return comp
}

func elementsByTag(ds *dicom.Dataset) map[int]*dicom.Element {
	out := make(map[int]*dicom.Element, len(ds.Elements))
	for _, el := range ds.Elements {
		if el == nil || el.Tag == tag.PixelData {
			continue
		}
		out[dicomutil.PackTag(el.Tag)] = el
	}
	return out
}
