package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jmehdipour/staffing-awards/internal/config"
	"github.com/jmehdipour/staffing-awards/internal/model"
)

// Custom contact/company properties created in the HubSpot portal.
const (
	propRole        = "wsa_role"
	propYear        = "wsa_year"
	propLiveURL     = "wsa_live_url"
	propNomineeURL  = "wsa_nominee_url"
	propNomineeName = "wsa_nominee_name"
	propVotedFor    = "wsa_voted_for"
	propSubcategory = "wsa_subcategory"
	propLinkedIn    = "wsa_linkedin_url"
)

// HubSpot upserts contacts by email and companies by domain or name
// through the CRM v3 objects API.
type HubSpot struct {
	c    *restClient
	year string

	// companies created by this process, by search key; the search index
	// lags behind creates by a few seconds
	mu      sync.Mutex
	created map[string]createdCompany
	now     func() time.Time
}

type createdCompany struct {
	id string
	at time.Time
}

// searchLag is how long a created company is trusted over the search index.
const searchLag = 5 * time.Minute

var _ Adapter = (*HubSpot)(nil)

func NewHubSpot(cfg config.IntegrationConfig, year string) *HubSpot {
	return &HubSpot{
		c:       newRESTClient(model.TargetHubSpot, cfg),
		year:    year,
		created: map[string]createdCompany{},
		now:     time.Now,
	}
}

func (h *HubSpot) Target() model.Target { return model.TargetHubSpot }
func (h *HubSpot) Health() string       { return h.c.br.State() }
func (h *HubSpot) Ready() bool          { return h.c.br.Ready() }

type hubspotObject struct {
	Properties map[string]any `json:"properties"`
}

func (h *HubSpot) contactProperties(c Contact) map[string]any {
	props := map[string]any{"email": c.Email}
	setIf(props, "firstname", c.Firstname)
	setIf(props, "lastname", c.Lastname)
	setIf(props, "company", c.Company)
	setIf(props, "jobtitle", c.JobTitle)
	setIf(props, "phone", c.Phone)
	setIf(props, "country", c.Country)
	setIf(props, propLinkedIn, c.LinkedIn)
	setIf(props, propRole, string(c.Role))
	setIf(props, propYear, firstNonEmpty(c.Year, h.year))
	setIf(props, propSubcategory, c.Subcategory)
	setIf(props, propLiveURL, c.LiveURL)
	setIf(props, propNomineeURL, c.NomineeURL)
	setIf(props, propNomineeName, c.NomineeName)
	setIf(props, propVotedFor, c.VotedFor)
	return props
}

// UpsertContact creates the contact and falls back to an update by email
// when HubSpot reports it already exists.
func (h *HubSpot) UpsertContact(ctx context.Context, c Contact) error {
	if c.Email == "" {
		return &APIError{Target: model.TargetHubSpot, Op: "contact.create", Status: http.StatusBadRequest, Body: "contact email is required"}
	}
	body := hubspotObject{Properties: h.contactProperties(c)}

	err := h.c.do(ctx, "contact.create", http.MethodPost, "/crm/v3/objects/contacts", body, nil)
	if !isConflict(err) {
		return err
	}

	path := "/crm/v3/objects/contacts/" + url.PathEscape(c.Email) + "?idProperty=email"
	return h.c.do(ctx, "contact.update", http.MethodPatch, path, body, nil)
}

type hubspotSearchRequest struct {
	FilterGroups []hubspotFilterGroup `json:"filterGroups"`
	Properties   []string             `json:"properties"`
	Limit        int                  `json:"limit"`
}

type hubspotFilterGroup struct {
	Filters []hubspotFilter `json:"filters"`
}

type hubspotFilter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type hubspotSearchResponse struct {
	Total   int `json:"total"`
	Results []struct {
		ID string `json:"id"`
	} `json:"results"`
}

// UpsertCompany looks the company up by domain (name when no domain is
// known), then patches the hit or creates a new record. A company this
// process created within searchLag is patched by id without searching.
// Another process redelivering inside that window can still create a
// duplicate.
func (h *HubSpot) UpsertCompany(ctx context.Context, c Company) error {
	key, value := "domain", c.Domain
	if value == "" {
		key, value = "name", c.Name
	}
	if value == "" {
		return &APIError{Target: model.TargetHubSpot, Op: "company.search", Status: http.StatusBadRequest, Body: "company needs a domain or name"}
	}

	cacheKey := key + ":" + strings.ToLower(value)

	props := map[string]any{}
	setIf(props, "name", c.Name)
	setIf(props, "domain", c.Domain)
	setIf(props, "website", c.Website)
	setIf(props, "country", c.Country)
	setIf(props, propRole, string(c.Role))
	setIf(props, propYear, firstNonEmpty(c.Year, h.year))
	setIf(props, propSubcategory, c.Subcategory)
	setIf(props, propLiveURL, c.LiveURL)
	body := hubspotObject{Properties: props}

	if id, ok := h.recentlyCreated(cacheKey); ok {
		return h.c.do(ctx, "company.update", http.MethodPatch, companyPath(id), body, nil)
	}

	search := hubspotSearchRequest{
		FilterGroups: []hubspotFilterGroup{{Filters: []hubspotFilter{{PropertyName: key, Operator: "EQ", Value: value}}}},
		Properties:   []string{"name", "domain"},
		Limit:        1,
	}
	var found hubspotSearchResponse
	if err := h.c.do(ctx, "company.search", http.MethodPost, "/crm/v3/objects/companies/search", search, &found); err != nil {
		return err
	}

	if len(found.Results) > 0 {
		return h.c.do(ctx, "company.update", http.MethodPatch, companyPath(found.Results[0].ID), body, nil)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := h.c.do(ctx, "company.create", http.MethodPost, "/crm/v3/objects/companies", body, &created); err != nil {
		return err
	}
	h.remember(cacheKey, created.ID)
	return nil
}

func companyPath(id string) string {
	return fmt.Sprintf("/crm/v3/objects/companies/%s", url.PathEscape(id))
}

func (h *HubSpot) recentlyCreated(key string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cc, ok := h.created[key]
	if !ok {
		return "", false
	}
	if h.now().Sub(cc.at) > searchLag {
		delete(h.created, key)
		return "", false
	}
	return cc.id, true
}

func (h *HubSpot) remember(key, id string) {
	if id == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	for k, cc := range h.created {
		if now.Sub(cc.at) > searchLag {
			delete(h.created, k)
		}
	}
	h.created[key] = createdCompany{id: id, at: now}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
