package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jmehdipour/staffing-awards/internal/config"
	"github.com/jmehdipour/staffing-awards/internal/model"
)

var (
	ErrCircuitOpen = errors.New("circuit open")
	// ErrSkipped means the target has no representation for the record.
	ErrSkipped = errors.New("skipped: target does not store this record")
	// ErrUnknownTarget is returned for a target name with no adapter.
	ErrUnknownTarget = errors.New("unknown target")
)

type Role string

const (
	RoleNominator Role = "nominator"
	RoleNominee   Role = "nominee"
	RoleVoter     Role = "voter"
)

// Title is the capitalized role used in segment names, e.g. "Nominator".
func (r Role) Title() string {
	switch r {
	case RoleNominator:
		return "Nominator"
	case RoleNominee:
		return "Nominee"
	case RoleVoter:
		return "Voter"
	default:
		return string(r)
	}
}

// Contact is a person upsert, keyed by Email.
type Contact struct {
	Email     string
	Firstname string
	Lastname  string
	LinkedIn  string
	Company   string
	JobTitle  string
	Phone     string
	Country   string

	Role        Role
	Year        string
	Subcategory string
	LiveURL     string // the contact's own public nominee page
	NomineeURL  string // page of the nominee this contact nominated
	NomineeName string
	VotedFor    string
}

// Company is an organisation upsert, keyed by Domain, else by Name.
type Company struct {
	Name        string
	Domain      string
	Website     string
	Email       string
	Country     string
	Role        Role
	Year        string
	Subcategory string
	LiveURL     string
}

// Adapter performs idempotent upserts against one external system.
type Adapter interface {
	Target() model.Target
	UpsertContact(ctx context.Context, c Contact) error
	UpsertCompany(ctx context.Context, c Company) error
	// Health is the circuit breaker state: closed, open or half_open.
	Health() string
	// Ready reports whether the breaker would admit a call now.
	Ready() bool
}

// APIError is a non-2xx response from an external system.
type APIError struct {
	Target model.Target
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status=%d body=%s", e.Target, e.Op, e.Status, e.Body)
}

// Permanent reports whether retrying the same request cannot succeed.
func (e *APIError) Permanent() bool {
	if e.Status < 400 || e.Status >= 500 {
		return false
	}
	switch e.Status {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooManyRequests:
		return false
	default:
		return true
	}
}

// IsPermanent reports whether err wraps a permanent *APIError.
func IsPermanent(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Permanent()
}

func isConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict
}

// New builds the adapter for target from its integration settings.
func New(target model.Target, cfg config.IntegrationConfig, year string) (Adapter, error) {
	switch target {
	case model.TargetHubSpot:
		return NewHubSpot(cfg, year), nil
	case model.TargetLoops:
		return NewLoops(cfg, year), nil
	default:
		return nil, fmt.Errorf("adapter: %w %q", ErrUnknownTarget, target)
	}
}
