package sdclient

import (
	"encoding/xml"
	"strings"
	"time"

	"github.com/magenta-aps/sdlon/pkg/validity"
)

// Date is an SD wire date (YYYY-MM-DD element text).
type Date struct {
	time.Time
}

func (d *Date) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	var s string
	if err := dec.DecodeElement(&s, &start); err != nil {
		return err
	}
	t, err := validity.ParseSDDate(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// The SD API declares most nested records as one-or-many. Go's XML decoder
// appends repeated elements to slice-typed fields, so declaring every such
// field as a slice is the single normalization point for the whole module; no
// per-call-site list coercion exists anywhere else.

type employmentStatusXML struct {
	ActivationDate       Date   `xml:"ActivationDate"`
	DeactivationDate     Date   `xml:"DeactivationDate"`
	EmploymentStatusCode string `xml:"EmploymentStatusCode"`
}

type employmentDepartmentXML struct {
	ActivationDate           Date   `xml:"ActivationDate"`
	DeactivationDate         Date   `xml:"DeactivationDate"`
	DepartmentIdentifier     string `xml:"DepartmentIdentifier"`
	DepartmentUUIDIdentifier string `xml:"DepartmentUUIDIdentifier"`
}

type professionXML struct {
	ActivationDate        Date   `xml:"ActivationDate"`
	DeactivationDate      Date   `xml:"DeactivationDate"`
	JobPositionIdentifier string `xml:"JobPositionIdentifier"`
	EmploymentName        string `xml:"EmploymentName"`
	AppointmentCode       string `xml:"AppointmentCode"`
}

type workingTimeXML struct {
	ActivationDate   Date   `xml:"ActivationDate"`
	DeactivationDate Date   `xml:"DeactivationDate"`
	OccupationRate   string `xml:"OccupationRate"`
}

type employmentXML struct {
	EmploymentIdentifier string                    `xml:"EmploymentIdentifier"`
	EmploymentDate       Date                      `xml:"EmploymentDate"`
	AnniversaryDate      Date                      `xml:"AnniversaryDate"`
	EmploymentStatus     []employmentStatusXML     `xml:"EmploymentStatus"`
	EmploymentDepartment []employmentDepartmentXML `xml:"EmploymentDepartment"`
	Profession           []professionXML           `xml:"Profession"`
	WorkingTime          []workingTimeXML          `xml:"WorkingTime"`
}

type personXML struct {
	PersonCivilRegistrationIdentifier string          `xml:"PersonCivilRegistrationIdentifier"`
	PersonGivenName                   string          `xml:"PersonGivenName"`
	PersonSurnameName                 string          `xml:"PersonSurnameName"`
	Employment                        []employmentXML `xml:"Employment"`
}

type getEmploymentResponseXML struct {
	XMLName xml.Name    `xml:"GetEmployment20111201"`
	Person  []personXML `xml:"Person"`
}

type getEmploymentChangedResponseXML struct {
	XMLName xml.Name    `xml:"GetEmploymentChangedAtDate20111201"`
	Person  []personXML `xml:"Person"`
}

type getEmploymentChangedOpenResponseXML struct {
	XMLName xml.Name    `xml:"GetEmploymentChanged20111201"`
	Person  []personXML `xml:"Person"`
}

type departmentXML struct {
	ActivationDate            Date   `xml:"ActivationDate"`
	DeactivationDate          Date   `xml:"DeactivationDate"`
	DepartmentIdentifier      string `xml:"DepartmentIdentifier"`
	DepartmentLevelIdentifier string `xml:"DepartmentLevelIdentifier"`
	DepartmentName            string `xml:"DepartmentName"`
	DepartmentUUIDIdentifier  string `xml:"DepartmentUUIDIdentifier"`
}

type getDepartmentResponseXML struct {
	XMLName    xml.Name        `xml:"GetDepartment20111201"`
	Department []departmentXML `xml:"Department"`
}

type departmentParentXML struct {
	DepartmentUUIDIdentifier string `xml:"DepartmentUUIDIdentifier"`
}

type getDepartmentParentResponseXML struct {
	XMLName          xml.Name             `xml:"GetDepartmentParent20190701"`
	DepartmentParent *departmentParentXML `xml:"DepartmentParent"`
}

type institutionXML struct {
	InstitutionIdentifier     string `xml:"InstitutionIdentifier"`
	InstitutionUUIDIdentifier string `xml:"InstitutionUUIDIdentifier"`
}

type getInstitutionResponseXML struct {
	XMLName xml.Name `xml:"GetInstitution20111201"`
	Region  struct {
		Institution institutionXML `xml:"Institution"`
	} `xml:"Region"`
}

// envelopeXML is what SD returns instead of the named response element when a
// request fails.
type envelopeXML struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    string   `xml:",innerxml"`
}
