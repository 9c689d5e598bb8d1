package model

import (
	"strings"
	"time"
)

type NomineeType string

const (
	NomineePerson  NomineeType = "person"
	NomineeCompany NomineeType = "company"
)

func (t NomineeType) String() string { return string(t) }

func (t NomineeType) Valid() bool {
	return t == NomineePerson || t == NomineeCompany
}

// ParseNomineeType normalizes input; empty => person.
func ParseNomineeType(s string) (NomineeType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "person":
		return NomineePerson, true
	case "company":
		return NomineeCompany, true
	default:
		return NomineePerson, false
	}
}

type NominationState string

const (
	NominationSubmittedState NominationState = "submitted"
	NominationApprovedState  NominationState = "approved"
	NominationRejectedState  NominationState = "rejected"
)

func (s NominationState) String() string { return string(s) }

type Subcategory struct {
	ID            string `db:"id"             yaml:"id"`
	Name          string `db:"name"           yaml:"name"`
	CategoryGroup string `db:"category_group" yaml:"group"`
}

type Nominator struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	Firstname string    `db:"firstname"`
	Lastname  string    `db:"lastname"`
	LinkedIn  string    `db:"linkedin"`
	Company   string    `db:"company"`
	JobTitle  string    `db:"job_title"`
	Phone     string    `db:"phone"`
	Country   string    `db:"country"`
	CreatedAt time.Time `db:"created_at"`
}

func (n Nominator) Contact() Contact {
	return Contact{
		Firstname: n.Firstname,
		Lastname:  n.Lastname,
		Email:     n.Email,
		LinkedIn:  n.LinkedIn,
		Company:   n.Company,
		JobTitle:  n.JobTitle,
		Phone:     n.Phone,
		Country:   n.Country,
	}
}

type Nominee struct {
	ID             string      `db:"id"`
	Type           NomineeType `db:"type"`
	Firstname      string      `db:"firstname"`
	Lastname       string      `db:"lastname"`
	Email          string      `db:"email"`
	LinkedIn       string      `db:"linkedin"`
	JobTitle       string      `db:"job_title"`
	CompanyName    string      `db:"company_name"`
	CompanyDomain  string      `db:"company_domain"`
	CompanyWebsite string      `db:"company_website"`
	Country        string      `db:"country"`
	CreatedAt      time.Time   `db:"created_at"`
}

func (n Nominee) Contact() NomineeContact {
	return NomineeContact{
		Firstname:      n.Firstname,
		Lastname:       n.Lastname,
		Email:          n.Email,
		LinkedIn:       n.LinkedIn,
		JobTitle:       n.JobTitle,
		Country:        n.Country,
		CompanyName:    n.CompanyName,
		CompanyDomain:  n.CompanyDomain,
		CompanyWebsite: n.CompanyWebsite,
	}
}

func (n Nominee) DisplayName() string {
	return n.Contact().DisplayName(n.Type)
}

type Nomination struct {
	ID            string          `db:"id"`
	NominatorID   string          `db:"nominator_id"`
	NomineeID     string          `db:"nominee_id"`
	SubcategoryID string          `db:"subcategory_id"`
	State         NominationState `db:"state"`
	LiveURL       *string         `db:"live_url"` // set once approved
	CreatedAt     time.Time       `db:"created_at"`
	ApprovedAt    *time.Time      `db:"approved_at"`
}

type Voter struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	Firstname string    `db:"firstname"`
	Lastname  string    `db:"lastname"`
	LinkedIn  string    `db:"linkedin"`
	Company   string    `db:"company"`
	JobTitle  string    `db:"job_title"`
	Country   string    `db:"country"`
	CreatedAt time.Time `db:"created_at"`
}

func (v Voter) Contact() Contact {
	return Contact{
		Firstname: v.Firstname,
		Lastname:  v.Lastname,
		Email:     v.Email,
		LinkedIn:  v.LinkedIn,
		Company:   v.Company,
		JobTitle:  v.JobTitle,
		Country:   v.Country,
	}
}

type Vote struct {
	ID            string    `db:"id"`
	VoterID       string    `db:"voter_id"`
	NominationID  string    `db:"nomination_id"`
	SubcategoryID string    `db:"subcategory_id"`
	CreatedAt     time.Time `db:"created_at"`
}
