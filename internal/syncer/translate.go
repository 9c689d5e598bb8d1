package syncer

import (
	"github.com/jmehdipour/staffing-awards/internal/adapter"
	"github.com/jmehdipour/staffing-awards/internal/model"
)

func personContact(c model.Contact, role adapter.Role, year, subcategory string) adapter.Contact {
	return adapter.Contact{
		Email:       c.Email,
		Firstname:   c.Firstname,
		Lastname:    c.Lastname,
		LinkedIn:    c.LinkedIn,
		Company:     c.Company,
		JobTitle:    c.JobTitle,
		Phone:       c.Phone,
		Country:     c.Country,
		Role:        role,
		Year:        year,
		Subcategory: subcategory,
	}
}

func nominatorContact(p model.NominationSubmitted, year string) adapter.Contact {
	return personContact(p.Nominator, adapter.RoleNominator, year, p.SubcategoryID)
}

func voterContact(p model.VoteCast, year string) adapter.Contact {
	c := personContact(p.Voter, adapter.RoleVoter, year, p.SubcategoryID)
	c.VotedFor = p.VotedForDisplayName
	return c
}

func liveUpdateContact(p model.NominatorLiveUpdate, year string) adapter.Contact {
	c := personContact(p.Nominator, adapter.RoleNominator, year, p.SubcategoryID)
	c.NomineeURL = p.LiveURL
	c.NomineeName = p.NomineeDisplayName
	return c
}

func nomineeContact(p model.NominationApproved, year string) adapter.Contact {
	n := p.Nominee
	return adapter.Contact{
		Email:       n.Email,
		Firstname:   n.Firstname,
		Lastname:    n.Lastname,
		LinkedIn:    n.LinkedIn,
		Company:     n.CompanyName,
		JobTitle:    n.JobTitle,
		Country:     n.Country,
		Role:        adapter.RoleNominee,
		Year:        year,
		Subcategory: p.SubcategoryID,
		LiveURL:     p.LiveURL,
	}
}

func nomineeCompany(p model.NominationApproved, year string) adapter.Company {
	n := p.Nominee
	return adapter.Company{
		Name:        n.CompanyName,
		Domain:      n.CompanyDomain,
		Website:     n.CompanyWebsite,
		Email:       n.Email,
		Country:     n.Country,
		Role:        adapter.RoleNominee,
		Year:        year,
		Subcategory: p.SubcategoryID,
		LiveURL:     p.LiveURL,
	}
}
