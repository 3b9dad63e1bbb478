package compare

import (
	"strings"
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/radgate/radgate/internal/crosswalk"
	"github.com/radgate/radgate/internal/dicomutil"
)

func mustElem(t *testing.T, tg tag.Tag, values []string) *dicom.Element {
	t.Helper()
	el, err := dicom.NewElement(tg, values)
	if err != nil {
		t.Fatalf("NewElement(%v): %v", tg, err)
	}
	return el
}

func TestDiffRemovedPHIFields(t *testing.T) {
	orig := &dicom.Dataset{Elements: []*dicom.Element{
		mustElem(t, tag.PatientName, []string{"Doe^J"}),
		mustElem(t, tag.PatientID, []string{"P1"}),
		mustElem(t, tag.Modality, []string{"CT"}),
	}}
	anon := &dicom.Dataset{Elements: []*dicom.Element{
		mustElem(t, tag.Modality, []string{"CT"}),
	}}

	comp := diffDatasets(orig, anon)
	if comp.RemovedTags != 2 || comp.ChangedTags != 0 || comp.AddedTags != 0 {
		t.Errorf("counts = %+v", comp)
	}
	if comp.PHITags < 2 {
		t.Errorf("phi tags = %d, want >= 2", comp.PHITags)
	}

	var name *TagDiff
	for i := range comp.Tags {
		if comp.Tags[i].Tag == "0010,0010" {
			name = &comp.Tags[i]
		}
	}
	if name == nil {
		t.Fatal("PatientName diff missing")
	}
	if !name.Removed || !name.IsPHI || name.Category != dicomutil.CategoryPatient {
		t.Errorf("PatientName diff = %+v", name)
	}
	if name.OriginalValue != "Doe^J" || name.AnonymizedValue != "" {
		t.Errorf("values = %q / %q", name.OriginalValue, name.AnonymizedValue)
	}
}

func TestDiffChangedAndAdded(t *testing.T) {
	orig := &dicom.Dataset{Elements: []*dicom.Element{
		mustElem(t, tag.PatientName, []string{"Doe^J"}),
		mustElem(t, tag.Modality, []string{"CT"}),
	}}
	anon := &dicom.Dataset{Elements: []*dicom.Element{
		mustElem(t, tag.PatientName, []string{"ANON^1"}),
		mustElem(t, tag.Modality, []string{"CT"}),
		mustElem(t, tag.DeidentificationMethod, []string{"basic profile"}),
	}}

	comp := diffDatasets(orig, anon)
	if comp.ChangedTags != 1 || comp.AddedTags != 1 || comp.RemovedTags != 0 {
		t.Errorf("counts = %+v", comp)
	}
	for _, d := range comp.Tags {
		switch d.Tag {
		case "0010,0010":
			if !d.Changed || d.OriginalValue != "Doe^J" || d.AnonymizedValue != "ANON^1" {
				t.Errorf("PatientName diff = %+v", d)
			}
		case "0008,0060":
			if d.Changed || d.Removed || d.Added {
				t.Errorf("Modality diff = %+v, want untouched", d)
			}
		case "0012,0063":
			if !d.Added || d.OriginalValue != "" {
				t.Errorf("DeidentificationMethod diff = %+v", d)
			}
		}
	}
}

func TestDiffTagsSortedAndAnnotated(t *testing.T) {
	orig := &dicom.Dataset{Elements: []*dicom.Element{
		mustElem(t, tag.SeriesInstanceUID, []string{"1.2.3.4"}),
		mustElem(t, tag.Modality, []string{"MR"}),
	}}
	comp := diffDatasets(orig, &dicom.Dataset{})
	if len(comp.Tags) != 2 {
		t.Fatalf("tags = %+v", comp.Tags)
	}
	if comp.Tags[0].Tag != "0008,0060" || comp.Tags[1].Tag != "0020,000e" {
		t.Errorf("order = %s, %s", comp.Tags[0].Tag, comp.Tags[1].Tag)
	}
	if comp.Tags[0].Keyword != "Modality" || comp.Tags[0].VR != "CS" {
		t.Errorf("modality diff = %+v", comp.Tags[0])
	}
	if comp.Tags[1].Category != dicomutil.CategorySeries {
		t.Errorf("series uid category = %v", comp.Tags[1].Category)
	}
}

func entry(path, seriesUID, sopUID string, instanceNumber int) fileEntry {
	return fileEntry{
		Path: path,
		Meta: &dicomutil.FileMeta{
			SeriesUID:      seriesUID,
			SOPInstanceUID: sopUID,
			InstanceNumber: instanceNumber,
			Modality:       "CT",
		},
	}
}

func TestPairingStrategies(t *testing.T) {
	e := NewEngine(nil, nil, "")

	originals := []fileEntry{
		entry("/orig/a.dcm", "S1", "1.1", 2),
		entry("/orig/b.dcm", "S1", "1.2", 1),
		entry("/orig/c.dcm", "S2", "1.3", 1),
		entry("/orig/d.dcm", "S2", "1.4", 9),
	}
	anonymized := []fileEntry{
		entry("/anon/a.dcm", "X1", "9.1", 2),  // basename match for a.dcm
		entry("/anon/bb.dcm", "X1", "1.2", 1), // SOP match for b.dcm
		entry("/anon/cc.dcm", "S2", "9.3", 1), // series+instance match for c.dcm
	}

	scans := e.pairSeries(originals, anonymized, false)
	if len(scans) != 2 {
		t.Fatalf("scans = %+v", scans)
	}
	if scans[0].SeriesUID != "S1" || scans[1].SeriesUID != "S2" {
		t.Errorf("series order = %s, %s", scans[0].SeriesUID, scans[1].SeriesUID)
	}

	// Within S1 files sort by instance number: b.dcm (1) then a.dcm (2).
	s1 := scans[0].Pairs
	if s1[0].OriginalPath != "/orig/b.dcm" || s1[1].OriginalPath != "/orig/a.dcm" {
		t.Errorf("S1 order = %+v", s1)
	}
	if s1[0].MatchedBy != MatchSOPUID || s1[0].AnonymizedPath != "/anon/bb.dcm" {
		t.Errorf("b.dcm pair = %+v", s1[0])
	}
	if s1[1].MatchedBy != MatchBasename || s1[1].AnonymizedPath != "/anon/a.dcm" {
		t.Errorf("a.dcm pair = %+v", s1[1])
	}

	s2 := scans[1].Pairs
	if s2[0].MatchedBy != MatchInstanceNumber || s2[0].AnonymizedPath != "/anon/cc.dcm" {
		t.Errorf("c.dcm pair = %+v", s2[0])
	}
	if s2[1].MatchedBy != "" || s2[1].AnonymizedPath != "" {
		t.Errorf("d.dcm pair = %+v, want unmatched", s2[1])
	}
}

func TestPairingCrosswalkPrecedence(t *testing.T) {
	cw := crosswalk.NewMemoryStore()
	cw.Put("broker1", "1.1", crosswalk.IDTypeSOPUID, "9.9")
	e := NewEngine(nil, cw, "broker1")

	originals := []fileEntry{entry("/orig/a.dcm", "S1", "1.1", 1)}
	anonymized := []fileEntry{
		entry("/anon/a.dcm", "X1", "8.8", 1),      // basename would match
		entry("/anon/hashed.dcm", "X1", "9.9", 1), // crosswalk target
	}

	scans := e.pairSeries(originals, anonymized, true)
	pair := scans[0].Pairs[0]
	if pair.MatchedBy != MatchCrosswalk || pair.AnonymizedPath != "/anon/hashed.dcm" {
		t.Errorf("pair = %+v, want crosswalk before basename", pair)
	}

	// Without hashed UIDs the crosswalk is not consulted.
	scans = e.pairSeries(originals, anonymized, false)
	pair = scans[0].Pairs[0]
	if pair.MatchedBy != MatchBasename {
		t.Errorf("pair = %+v, want basename match", pair)
	}
}

func TestRenderTruncationContract(t *testing.T) {
	long := strings.Repeat("x", 400)
	el := mustElem(t, tag.StudyDescription, []string{long})
	got := dicomutil.RenderValue(el.Value)
	if len(got) != 200 || !strings.HasSuffix(got, "...") {
		t.Errorf("rendered len = %d, suffix ok = %v", len(got), strings.HasSuffix(got, "..."))
	}
}
