package dicomutil

import (
	"fmt"
	"testing"

	"github.com/suyashkumar/dicom/pkg/tag"
)

func TestParseTagHex(t *testing.T) {
	if got := ParseTag("0008,0060"); got != 0x00080060 {
		t.Errorf("ParseTag hex = %#x", got)
	}
	if got := ParseTag("(0008,0060)"); got != 0x00080060 {
		t.Errorf("ParseTag parenthesized = %#x", got)
	}
	if got := ParseTag("7FE0,0010"); got != 0x7FE00010 {
		t.Errorf("ParseTag uppercase hex = %#x", got)
	}
}

func TestParseTagKeyword(t *testing.T) {
	if got := ParseTag("Modality"); got != 0x00080060 {
		t.Errorf("ParseTag keyword = %#x", got)
	}
	if got := ParseTag("patient-name"); got != 0x00100010 {
		t.Errorf("ParseTag dashed keyword = %#x", got)
	}
	if got := ParseTag("PATIENT_ID"); got != 0x00100020 {
		t.Errorf("ParseTag underscored keyword = %#x", got)
	}
}

func TestParseTagUnknown(t *testing.T) {
	if got := ParseTag("nope"); got != TagNone {
		t.Errorf("ParseTag unknown = %#x, want TagNone", got)
	}
	if got := ParseTag("zzzz,0000"); got != TagNone {
		t.Errorf("ParseTag bad hex = %#x, want TagNone", got)
	}
}

func TestParseTagRoundTrip(t *testing.T) {
	for _, packed := range keywordTags {
		spec := fmt.Sprintf("%04x,%04x", (packed>>16)&0xFFFF, packed&0xFFFF)
		if got := ParseTag(spec); got != packed {
			t.Errorf("round trip %s = %#x, want %#x", spec, got, packed)
		}
	}
}

func TestBuildDateRange(t *testing.T) {
	cases := []struct{ from, to, want string }{
		{"20240101", "20240131", "20240101-20240131"},
		{"20240101", "", "20240101-"},
		{"", "20240131", "-20240131"},
		{"", "", ""},
	}
	for _, c := range cases {
		if got := BuildDateRange(c.from, c.to); got != c.want {
			t.Errorf("BuildDateRange(%q,%q) = %q, want %q", c.from, c.to, got, c.want)
		}
	}
}

func TestCategorize(t *testing.T) {
	cases := []struct {
		tg   tag.Tag
		want Category
	}{
		{tag.Tag{Group: 0x0010, Element: 0x0010}, CategoryPatient},
		{tag.Tag{Group: 0x0008, Element: 0x0050}, CategoryStudy},
		{tag.Tag{Group: 0x0008, Element: 0x0060}, CategorySeries},
		{tag.Tag{Group: 0x0008, Element: 0x0080}, CategoryEquipment},
		{tag.Tag{Group: 0x0020, Element: 0x0011}, CategorySeries},
		{tag.Tag{Group: 0x0028, Element: 0x0010}, CategoryImage},
		{tag.Tag{Group: 0x7FE0, Element: 0x0010}, CategoryImage},
		{tag.Tag{Group: 0x0040, Element: 0x0006}, CategoryOther},
	}
	for _, c := range cases {
		if got := Categorize(c.tg); got != c.want {
			t.Errorf("Categorize(%04x,%04x) = %s, want %s", c.tg.Group, c.tg.Element, got, c.want)
		}
	}
}

func TestIsPHI(t *testing.T) {
	if !IsPHI(tag.Tag{Group: 0x0010, Element: 0x0010}) {
		t.Error("PatientName should be PHI")
	}
	if !IsPHI(tag.Tag{Group: 0x0008, Element: 0x0050}) {
		t.Error("AccessionNumber should be PHI")
	}
	if IsPHI(tag.Tag{Group: 0x0008, Element: 0x0060}) {
		t.Error("Modality should not be PHI")
	}
}

func TestFormatTag(t *testing.T) {
	if got := FormatTag(0x00080060); got != "0008,0060" {
		t.Errorf("FormatTag = %q", got)
	}
}
