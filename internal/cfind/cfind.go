// Package cfind queries remote DICOM archives with the C-FIND service
// (StudyRoot Q/R information model, ImplicitVR Little Endian). Responses are
// collected in full before the association is released; processing happens
// on the collected slice.
package cfind

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/grailbio/go-dicom"
	"github.com/grailbio/go-dicom/dicomtag"
	"github.com/grailbio/go-dicom/dicomuid"
	"github.com/grailbio/go-netdicom"
	"github.com/grailbio/go-netdicom/sopclass"
)

// Params identifies a remote query target.
type Params struct {
	Host           string
	Port           int
	CalledAETitle  string
	CallingAETitle string
}

func (p Params) addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// StudyResult is one study-level C-FIND match.
type StudyResult struct {
	StudyUID           string
	PatientID          string
	PatientName        string
	PatientSex         string
	StudyDate          string
	StudyTime          string
	AccessionNumber    string
	StudyDescription   string
	ModalitiesInStudy  string
	InstitutionName    string
	ReferringPhysician string
	NumberOfSeries     int
	NumberOfInstances  int
}

// SeriesResult is one series-level C-FIND match.
type SeriesResult struct {
	SeriesUID         string
	StudyUID          string
	Modality          string
	SeriesNumber      int
	SeriesDescription string
	BodyPart          string
	NumberOfInstances int
}

// Finder is the query surface the indexer depends on; tests substitute a
// canned implementation.
type Finder interface {
	// FindStudies queries study-level matches. dateRange is a DICOM date
	// range value ("YYYYMMDD-YYYYMMDD", open-ended variants, or "" for
	// unconstrained).
	FindStudies(params Params, dateRange string) ([]StudyResult, error)
	// FindSeries queries series-level matches scoped to one study.
	FindSeries(params Params, studyUID string) ([]SeriesResult, error)
}

// Client is the production Finder. One association is established per call.
type Client struct{}

func NewClient() *Client { return &Client{} }

func (c *Client) connect(params Params) (*netdicom.ServiceUser, error) {
	su, err := netdicom.NewServiceUser(netdicom.ServiceUserParams{
		CalledAETitle:  params.CalledAETitle,
		CallingAETitle: params.CallingAETitle,
		SOPClasses:     sopclass.QRFindClasses,
		TransferSyntaxes: []string{
			dicomuid.ImplicitVRLittleEndian,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create service user: %w", err)
	}
	su.Connect(params.addr())
	return su, nil
}

func (c *Client) FindStudies(params Params, dateRange string) ([]StudyResult, error) {
	su, err := c.connect(params)
	if err != nil {
		return nil, err
	}
	defer su.Release()

	filter := []*dicom.Element{
		mustElement(dicomtag.QueryRetrieveLevel, "STUDY"),
		mustElement(dicomtag.StudyInstanceUID, ""),
		mustElement(dicomtag.PatientID, ""),
		mustElement(dicomtag.PatientName, ""),
		mustElement(dicomtag.PatientSex, ""),
		mustElement(dicomtag.StudyDate, dateRange),
		mustElement(dicomtag.StudyTime, ""),
		mustElement(dicomtag.AccessionNumber, ""),
		mustElement(dicomtag.StudyDescription, ""),
		mustElement(dicomtag.ModalitiesInStudy, ""),
		mustElement(dicomtag.InstitutionName, ""),
		mustElement(dicomtag.ReferringPhysicianName, ""),
		mustElement(dicomtag.NumberOfStudyRelatedSeries, ""),
		mustElement(dicomtag.NumberOfStudyRelatedInstances, ""),
	}

	datasets, err := collect(su.CFind(netdicom.QRLevelStudy, filter))
	if err != nil {
		return nil, fmt.Errorf("study query against %s: %w", params.addr(), err)
	}

	studies := make([]StudyResult, 0, len(datasets))
	for _, elems := range datasets {
		r := StudyResult{
			StudyUID:           elementString(elems, dicomtag.StudyInstanceUID),
			PatientID:          elementString(elems, dicomtag.PatientID),
			PatientName:        elementString(elems, dicomtag.PatientName),
			PatientSex:         elementString(elems, dicomtag.PatientSex),
			StudyDate:          elementString(elems, dicomtag.StudyDate),
			StudyTime:          elementString(elems, dicomtag.StudyTime),
			AccessionNumber:    elementString(elems, dicomtag.AccessionNumber),
			StudyDescription:   elementString(elems, dicomtag.StudyDescription),
			ModalitiesInStudy:  elementStrings(elems, dicomtag.ModalitiesInStudy),
			InstitutionName:    elementString(elems, dicomtag.InstitutionName),
			ReferringPhysician: elementString(elems, dicomtag.ReferringPhysicianName),
			NumberOfSeries:     elementInt(elems, dicomtag.NumberOfStudyRelatedSeries),
			NumberOfInstances:  elementInt(elems, dicomtag.NumberOfStudyRelatedInstances),
		}
		if r.StudyUID == "" {
			continue
		}
		studies = append(studies, r)
	}
	return studies, nil
}

func (c *Client) FindSeries(params Params, studyUID string) ([]SeriesResult, error) {
	su, err := c.connect(params)
	if err != nil {
		return nil, err
	}
	defer su.Release()

	filter := []*dicom.Element{
		mustElement(dicomtag.QueryRetrieveLevel, "SERIES"),
		mustElement(dicomtag.StudyInstanceUID, studyUID),
		mustElement(dicomtag.SeriesInstanceUID, ""),
		mustElement(dicomtag.Modality, ""),
		mustElement(dicomtag.SeriesNumber, ""),
		mustElement(dicomtag.SeriesDescription, ""),
		mustElement(dicomtag.BodyPartExamined, ""),
		mustElement(dicomtag.NumberOfSeriesRelatedInstances, ""),
	}

	datasets, err := collect(su.CFind(netdicom.QRLevelSeries, filter))
	if err != nil {
		return nil, fmt.Errorf("series query for %s against %s: %w", studyUID, params.addr(), err)
	}

	series := make([]SeriesResult, 0, len(datasets))
	for _, elems := range datasets {
		r := SeriesResult{
			SeriesUID:         elementString(elems, dicomtag.SeriesInstanceUID),
			StudyUID:          studyUID,
			Modality:          elementString(elems, dicomtag.Modality),
			SeriesNumber:      elementInt(elems, dicomtag.SeriesNumber),
			SeriesDescription: elementString(elems, dicomtag.SeriesDescription),
			BodyPart:          elementString(elems, dicomtag.BodyPartExamined),
			NumberOfInstances: elementInt(elems, dicomtag.NumberOfSeriesRelatedInstances),
		}
		if r.SeriesUID == "" {
			continue
		}
		series = append(series, r)
	}
	return series, nil
}

// collect drains the response channel so the association completes before
// any result is processed. A response error aborts the whole query.
func collect(ch chan netdicom.CFindResult) ([][]*dicom.Element, error) {
	var datasets [][]*dicom.Element
	var firstErr error
	for result := range ch {
		if result.Err != nil {
			if firstErr == nil {
				firstErr = result.Err
			}
			continue
		}
		if len(result.Elements) > 0 {
			datasets = append(datasets, result.Elements)
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return datasets, nil
}

func mustElement(t dicomtag.Tag, value string) *dicom.Element {
	return dicom.MustNewElement(t, value)
}

func findElement(elems []*dicom.Element, t dicomtag.Tag) *dicom.Element {
	for _, e := range elems {
		if e.Tag == t {
			return e
		}
	}
	return nil
}

func elementString(elems []*dicom.Element, t dicomtag.Tag) string {
	e := findElement(elems, t)
	if e == nil {
		return ""
	}
	s, err := e.GetString()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// elementStrings joins a multi-valued element with the DICOM backslash.
func elementStrings(elems []*dicom.Element, t dicomtag.Tag) string {
	e := findElement(elems, t)
	if e == nil {
		return ""
	}
	strs, err := e.GetStrings()
	if err != nil {
		return elementString(elems, t)
	}
	for i := range strs {
		strs[i] = strings.TrimSpace(strs[i])
	}
	return strings.Join(strs, "\\")
}

func elementInt(elems []*dicom.Element, t dicomtag.Tag) int {
	s := elementString(elems, t)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Printf("cfind: non-numeric value %q for %s", s, dicomtag.DebugString(t))
		return 0
	}
	return n
}
