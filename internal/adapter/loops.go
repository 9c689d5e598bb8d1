package adapter

import (
	"context"
	"net/http"
	"strings"

	"github.com/jmehdipour/staffing-awards/internal/config"
	"github.com/jmehdipour/staffing-awards/internal/model"
)

const loopsSource = "World Staffing Awards"

// Loops upserts people into the Loops audience. The userGroup carries the
// role and award year, e.g. "Nominator 2026".
type Loops struct {
	c    *restClient
	year string
}

var _ Adapter = (*Loops)(nil)

func NewLoops(cfg config.IntegrationConfig, year string) *Loops {
	return &Loops{c: newRESTClient(model.TargetLoops, cfg), year: year}
}

func (l *Loops) Target() model.Target { return model.TargetLoops }
func (l *Loops) Health() string       { return l.c.br.State() }
func (l *Loops) Ready() bool          { return l.c.br.Ready() }

func (l *Loops) userGroup(r Role, year string) string {
	return strings.TrimSpace(r.Title() + " " + firstNonEmpty(year, l.year))
}

func (l *Loops) UpsertContact(ctx context.Context, c Contact) error {
	if c.Email == "" {
		return &APIError{Target: model.TargetLoops, Op: "contact.create", Status: http.StatusBadRequest, Body: "contact email is required"}
	}

	body := map[string]any{
		"email":     c.Email,
		"source":    loopsSource,
		"userGroup": l.userGroup(c.Role, c.Year),
	}
	setIf(body, "firstName", c.Firstname)
	setIf(body, "lastName", c.Lastname)
	setIf(body, "linkedin", c.LinkedIn)
	setIf(body, "company", c.Company)
	setIf(body, "jobTitle", c.JobTitle)
	setIf(body, "country", c.Country)
	setIf(body, "subcategory", c.Subcategory)
	setIf(body, "liveUrl", c.LiveURL)
	setIf(body, "nomineeUrl", c.NomineeURL)
	setIf(body, "nomineeName", c.NomineeName)
	setIf(body, "votedFor", c.VotedFor)

	return l.upsert(ctx, body)
}

// UpsertCompany stores the company as a contact when it has an email;
// otherwise there is nothing Loops can hold and ErrSkipped is returned.
func (l *Loops) UpsertCompany(ctx context.Context, c Company) error {
	if c.Email == "" {
		return ErrSkipped
	}

	body := map[string]any{
		"email":     c.Email,
		"source":    loopsSource,
		"userGroup": l.userGroup(c.Role, c.Year),
	}
	setIf(body, "firstName", c.Name)
	setIf(body, "company", c.Name)
	setIf(body, "country", c.Country)
	setIf(body, "subcategory", c.Subcategory)
	setIf(body, "liveUrl", c.LiveURL)

	return l.upsert(ctx, body)
}

func (l *Loops) upsert(ctx context.Context, body map[string]any) error {
	err := l.c.do(ctx, "contact.create", http.MethodPost, "/api/v1/contacts/create", body, nil)
	if !isConflict(err) {
		return err
	}
	return l.c.do(ctx, "contact.update", http.MethodPut, "/api/v1/contacts/update", body, nil)
}
