package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrInvalidPayload   = errors.New("invalid payload")
)

// Payload is the typed snapshot stored in an outbox row. Each event type has
// exactly one payload struct; the runner switches on the concrete type.
type Payload interface {
	EventType() EventType
	Validate() error
}

// Contact is the person shape shared by nominators and voters.
type Contact struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Email     string `json:"email"`
	LinkedIn  string `json:"linkedin,omitempty"`
	Company   string `json:"company,omitempty"`
	JobTitle  string `json:"jobTitle,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Country   string `json:"country,omitempty"`
}

func (c Contact) DisplayName() string {
	return strings.TrimSpace(c.Firstname + " " + c.Lastname)
}

func (c Contact) validate(role string) error {
	if strings.TrimSpace(c.Email) == "" {
		return fmt.Errorf("%w: %s email is required", ErrInvalidPayload, role)
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return fmt.Errorf("%w: %s email %q: %v", ErrInvalidPayload, role, c.Email, err)
	}
	return nil
}

// NomineeContact carries person or company fields; which ones are used
// depends on the nomination type.
type NomineeContact struct {
	Firstname      string `json:"firstname,omitempty"`
	Lastname       string `json:"lastname,omitempty"`
	Email          string `json:"email,omitempty"`
	LinkedIn       string `json:"linkedin,omitempty"`
	JobTitle       string `json:"jobTitle,omitempty"`
	Country        string `json:"country,omitempty"`
	CompanyName    string `json:"companyName,omitempty"`
	CompanyDomain  string `json:"companyDomain,omitempty"`
	CompanyWebsite string `json:"companyWebsite,omitempty"`
}

// DisplayName is the public name shown on the podium and in vote payloads.
func (n NomineeContact) DisplayName(t NomineeType) string {
	if t == NomineeCompany {
		return strings.TrimSpace(n.CompanyName)
	}
	return strings.TrimSpace(n.Firstname + " " + n.Lastname)
}

type NominationSubmitted struct {
	Nominator     Contact `json:"nominator"`
	NominationID  string  `json:"nominationId,omitempty"`
	SubcategoryID string  `json:"subcategoryId,omitempty"`
}

func (NominationSubmitted) EventType() EventType { return EventNominationSubmitted }

func (p NominationSubmitted) Validate() error {
	return p.Nominator.validate("nominator")
}

type NominationApproved struct {
	Type          NomineeType    `json:"type"`
	SubcategoryID string         `json:"subcategoryId"`
	NominationID  string         `json:"nominationId"`
	LiveURL       string         `json:"liveUrl"`
	Nominee       NomineeContact `json:"nominee"`
	// Nominator is re-tagged with the nominee's live URL once the nominee
	// upsert succeeds.
	Nominator *Contact `json:"nominator,omitempty"`
}

func (NominationApproved) EventType() EventType { return EventNominationApproved }

func (p NominationApproved) Validate() error {
	if !p.Type.Valid() {
		return fmt.Errorf("%w: nominee type %q", ErrInvalidPayload, p.Type)
	}
	if strings.TrimSpace(p.LiveURL) == "" {
		return fmt.Errorf("%w: live url is required", ErrInvalidPayload)
	}
	switch p.Type {
	case NomineePerson:
		if err := (Contact{Email: p.Nominee.Email}).validate("nominee"); err != nil {
			return err
		}
	case NomineeCompany:
		if strings.TrimSpace(p.Nominee.CompanyName) == "" && strings.TrimSpace(p.Nominee.CompanyDomain) == "" {
			return fmt.Errorf("%w: company nominee needs a name or domain", ErrInvalidPayload)
		}
	}
	if p.Nominator != nil {
		return p.Nominator.validate("nominator")
	}
	return nil
}

// LiveUpdate derives the chained nominator update from an approval.
func (p NominationApproved) LiveUpdate() (NominatorLiveUpdate, bool) {
	if p.Nominator == nil {
		return NominatorLiveUpdate{}, false
	}
	return NominatorLiveUpdate{
		Nominator:          *p.Nominator,
		NomineeDisplayName: p.Nominee.DisplayName(p.Type),
		LiveURL:            p.LiveURL,
		SubcategoryID:      p.SubcategoryID,
	}, true
}

type VoteCast struct {
	Voter               Contact `json:"voter"`
	VotedForDisplayName string  `json:"votedForDisplayName"`
	SubcategoryID       string  `json:"subcategoryId"`
	NominationID        string  `json:"nominationId,omitempty"`
}

func (VoteCast) EventType() EventType { return EventVoteCast }

func (p VoteCast) Validate() error {
	if err := p.Voter.validate("voter"); err != nil {
		return err
	}
	if strings.TrimSpace(p.VotedForDisplayName) == "" {
		return fmt.Errorf("%w: voted-for display name is required", ErrInvalidPayload)
	}
	return nil
}

type NominatorLiveUpdate struct {
	Nominator          Contact `json:"nominator"`
	NomineeDisplayName string  `json:"nomineeDisplayName"`
	LiveURL            string  `json:"liveUrl"`
	SubcategoryID      string  `json:"subcategoryId,omitempty"`
}

func (NominatorLiveUpdate) EventType() EventType { return EventNominatorLiveUpdate }

func (p NominatorLiveUpdate) Validate() error {
	if strings.TrimSpace(p.LiveURL) == "" {
		return fmt.Errorf("%w: live url is required", ErrInvalidPayload)
	}
	return p.Nominator.validate("nominator")
}

// EncodePayload validates p and returns its tag and JSON body.
func EncodePayload(p Payload) (EventType, []byte, error) {
	if p == nil {
		return "", nil, fmt.Errorf("%w: nil payload", ErrInvalidPayload)
	}
	if err := p.Validate(); err != nil {
		return "", nil, err
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", nil, fmt.Errorf("marshal %s payload: %w", p.EventType(), err)
	}
	return p.EventType(), b, nil
}

// DecodePayload parses raw into the struct registered for t.
func DecodePayload(t EventType, raw []byte) (Payload, error) {
	var p Payload
	switch t {
	case EventNominationSubmitted:
		var v NominationSubmitted
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, t, err)
		}
		p = v
	case EventNominationApproved:
		var v NominationApproved
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, t, err)
		}
		p = v
	case EventVoteCast:
		var v VoteCast
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, t, err)
		}
		p = v
	case EventNominatorLiveUpdate:
		var v NominatorLiveUpdate
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, t, err)
		}
		p = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, t)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
