// Package dicomutil holds tag parsing, PHI classification, and value
// rendering shared by the indexer and the comparison engine.
package dicomutil

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// TagNone is the sentinel returned by ParseTag for unrecognized input.
// Callers skip tags they cannot resolve.
const TagNone = -1

// keywordTags maps normalized (lowercase, dashes/underscores stripped) DICOM
// keywords to packed tag values. The set covers the attributes the gateway
// indexes, queries, and classifies; it is not a full data dictionary.
var keywordTags = map[string]int{
	// Identifiers
	"studyinstanceuid":  0x0020000D,
	"seriesinstanceuid": 0x0020000E,
	"sopinstanceuid":    0x00080018,
	"sopclassuid":       0x00080016,
	"queryretrievelevel": 0x00080052,

	// Patient module
	"patientname":             0x00100010,
	"patientid":               0x00100020,
	"patientbirthdate":        0x00100030,
	"patientsex":              0x00100040,
	"patientage":              0x00101010,
	"patientweight":           0x00101030,
	"patientaddress":          0x00101040,
	"patienttelephonenumbers": 0x00102154,
	"otherpatientids":         0x00101000,
	"otherpatientnames":       0x00101001,
	"ethnicgroup":             0x00102160,
	"patientcomments":         0x00104000,
	"medicalrecordlocator":    0x00101090,

	// Study module
	"studydate":                    0x00080020,
	"studytime":                    0x00080030,
	"accessionnumber":              0x00080050,
	"studyid":                      0x00200010,
	"studydescription":             0x00081030,
	"referringphysicianname":       0x00080090,
	"nameofphysiciansreadingstudy": 0x00081060,
	"requestingphysician":          0x00321032,
	"modalitiesinstudy":            0x00080061,
	"numberofstudyrelatedseries":   0x00201206,
	"numberofstudyrelatedinstances": 0x00201208,

	// Series module
	"modality":                        0x00080060,
	"seriesnumber":                    0x00200011,
	"seriesdescription":               0x0008103E,
	"seriesdate":                      0x00080021,
	"seriestime":                      0x00080031,
	"bodypartexamined":                0x00180015,
	"performingphysicianname":         0x00081050,
	"operatorsname":                   0x00081070,
	"protocolname":                    0x00181030,
	"scheduledperformingphysicianname": 0x00400006,

	// Instance module
	"instancenumber":      0x00200013,
	"contentdate":         0x00080023,
	"contenttime":         0x00080033,
	"acquisitiondate":     0x00080022,
	"acquisitiontime":     0x00080032,
	"contentcreatorname":  0x00700084,
	"verifyingobservername": 0x0040A075,
	"personname":          0x0040A123,

	// Equipment module
	"manufacturer":                0x00080070,
	"institutionname":             0x00080080,
	"institutionaddress":          0x00080081,
	"institutionaldepartmentname": 0x00081040,
	"stationname":                 0x00081010,
	"deviceserialnumber":          0x00181000,
	"softwareversions":            0x00181020,

	// Pixel module (classification only; pixel data is never indexed)
	"pixeldata": 0x7FE00010,
	"rows":      0x00280010,
	"columns":   0x00280011,
}

// tagKeywords is the reverse map, built once at init.
var tagKeywords = func() map[int]string {
	m := make(map[int]string, len(keywordTags))
	for k, v := range keywordTags {
		m[v] = k
	}
	return m
}()

// ParseTag resolves a tag spec to a packed (group<<16|element) value.
// Accepted forms: "gggg,eeee" hex, optionally parenthesized, or a
// case-insensitive keyword with dashes and underscores ignored.
// Unknown specs return TagNone.
func ParseTag(spec string) int {
	s := strings.TrimSpace(spec)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")

	if g, e, ok := splitHexPair(s); ok {
		return g<<16 | e
	}

	norm := strings.ToLower(s)
	norm = strings.ReplaceAll(norm, "-", "")
	norm = strings.ReplaceAll(norm, "_", "")
	if t, ok := keywordTags[norm]; ok {
		return t
	}
	// Fall back to the library dictionary for keywords outside the
	// built-in map (exact keyword spelling required).
	if info, err := tag.FindByName(s); err == nil {
		return int(info.Tag.Group)<<16 | int(info.Tag.Element)
	}
	return TagNone
}

func splitHexPair(s string) (group, elem int, ok bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	g, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 16, 16)
	if err != nil {
		return 0, 0, false
	}
	e, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 16, 16)
	if err != nil {
		return 0, 0, false
	}
	return int(g), int(e), true
}

// FormatTag renders a packed tag value as "gggg,eeee".
func FormatTag(t int) string {
	return fmt.Sprintf("%04x,%04x", (t>>16)&0xFFFF, t&0xFFFF)
}

// ToTag converts a packed value to a library tag.
func ToTag(t int) tag.Tag {
	return tag.Tag{Group: uint16((t >> 16) & 0xFFFF), Element: uint16(t & 0xFFFF)}
}

// PackTag converts a library tag to the packed form.
func PackTag(t tag.Tag) int {
	return int(t.Group)<<16 | int(t.Element)
}

// Keyword returns the dictionary keyword for a tag, or "" when unknown.
func Keyword(t tag.Tag) string {
	if info, err := tag.Find(t); err == nil && info.Name != "" {
		return info.Name
	}
	if kw, ok := tagKeywords[PackTag(t)]; ok {
		return kw
	}
	return ""
}

// Category is the review grouping of a tag.
type Category string

const (
	CategoryPatient   Category = "Patient"
	CategoryStudy     Category = "Study"
	CategorySeries    Category = "Series"
	CategoryEquipment Category = "Equipment"
	CategoryImage     Category = "Image"
	CategoryOther     Category = "Other"
)

// series-flavored elements of group 0008
var seriesElements0008 = map[uint16]bool{
	0x0021: true, // SeriesDate
	0x0031: true, // SeriesTime
	0x0060: true, // Modality
	0x103E: true, // SeriesDescription
	0x1050: true, // PerformingPhysicianName
	0x1070: true, // OperatorsName
}

// Categorize derives the review category from the tag's group (and, for
// group 0008, its element).
func Categorize(t tag.Tag) Category {
	switch t.Group {
	case 0x0010:
		return CategoryPatient
	case 0x0008:
		if t.Element >= 0x0070 && t.Element <= 0x0090 {
			return CategoryEquipment
		}
		if seriesElements0008[t.Element] {
			return CategorySeries
		}
		return CategoryStudy
	case 0x0020:
		return CategorySeries
	case 0x0028, 0x7FE0:
		return CategoryImage
	default:
		return CategoryOther
	}
}

// phiTags is the fixed set of tags treated as Protected Health Information.
var phiTags = map[int]bool{
	0x00100010: true, // PatientName
	0x00100020: true, // PatientID
	0x00100030: true, // PatientBirthDate
	0x00100040: true, // PatientSex
	0x00101010: true, // PatientAge
	0x00101030: true, // PatientWeight
	0x00101040: true, // PatientAddress
	0x00102154: true, // PatientTelephoneNumbers
	0x00101000: true, // OtherPatientIDs
	0x00101001: true, // OtherPatientNames
	0x00102160: true, // EthnicGroup
	0x00104000: true, // PatientComments
	0x00080090: true, // ReferringPhysicianName
	0x00081050: true, // PerformingPhysicianName
	0x00081070: true, // OperatorsName
	0x00080080: true, // InstitutionName
	0x00080081: true, // InstitutionAddress
	0x00081040: true, // InstitutionalDepartmentName
	0x00081010: true, // StationName
	0x00080050: true, // AccessionNumber
	0x00200010: true, // StudyID
	0x00081030: true, // StudyDescription
	0x0008103E: true, // SeriesDescription
	0x00321032: true, // RequestingPhysician
	0x00400006: true, // ScheduledPerformingPhysicianName
	0x00081060: true, // NameOfPhysiciansReadingStudy
	0x00101090: true, // MedicalRecordLocator
	0x00700084: true, // ContentCreatorName
	0x0040A075: true, // VerifyingObserverName
	0x0040A123: true, // PersonName
}

// IsPHI reports whether the tag is in the fixed PHI set.
func IsPHI(t tag.Tag) bool {
	return phiTags[PackTag(t)]
}

// BuildDateRange renders a DICOM date-range match value from optional
// YYYYMMDD endpoints: "a-b", "a-", "-b", or "" when both are empty.
func BuildDateRange(from, to string) string {
	switch {
	case from != "" && to != "":
		return from + "-" + to
	case from != "":
		return from + "-"
	case to != "":
		return "-" + to
	default:
		return ""
	}
}
