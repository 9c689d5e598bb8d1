package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/jmehdipour/staffing-awards/internal/adapter"
	"github.com/jmehdipour/staffing-awards/internal/model"
)

// FakeAdapter stores upserts keyed by identity the way the real systems do:
// contacts by email, companies by domain or name. Repeated upserts of the
// same identity converge on one record.
type FakeAdapter struct {
	mu        sync.Mutex
	target    model.Target
	contacts  map[string]adapter.Contact
	companies map[string]adapter.Company
	calls     []string
	queued    []error

	// Fail is consulted on every call; a non-nil result fails the call.
	Fail func(op, key string) error
	// SkipCompanies mimics a target that only stores people.
	SkipCompanies bool
	// Open reports the breaker as open.
	Open bool
}

var _ adapter.Adapter = (*FakeAdapter)(nil)

func NewFakeAdapter(target model.Target) *FakeAdapter {
	return &FakeAdapter{
		target:    target,
		contacts:  map[string]adapter.Contact{},
		companies: map[string]adapter.Company{},
	}
}

func (f *FakeAdapter) Target() model.Target { return f.target }
func (f *FakeAdapter) Health() string {
	if f.Ready() {
		return "closed"
	}
	return "open"
}

func (f *FakeAdapter) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.Open
}

// FailNext makes the next len(errs) calls return errs in order.
func (f *FakeAdapter) FailNext(errs ...error) {
	f.mu.Lock()
	f.queued = append(f.queued, errs...)
	f.mu.Unlock()
}

func (f *FakeAdapter) check(op, key string) error {
	f.calls = append(f.calls, op+":"+key)
	if len(f.queued) > 0 {
		err := f.queued[0]
		f.queued = f.queued[1:]
		if err != nil {
			return err
		}
	}
	if f.Fail != nil {
		return f.Fail(op, key)
	}
	return nil
}

func (f *FakeAdapter) UpsertContact(_ context.Context, c adapter.Contact) error {
	key := strings.ToLower(c.Email)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("contact", key); err != nil {
		return err
	}
	f.contacts[key] = mergeContact(f.contacts[key], c)
	return nil
}

func (f *FakeAdapter) UpsertCompany(_ context.Context, c adapter.Company) error {
	key := strings.ToLower(c.Domain)
	if key == "" {
		key = strings.ToLower(c.Name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SkipCompanies && c.Email == "" {
		f.calls = append(f.calls, "company:"+key)
		return adapter.ErrSkipped
	}
	if err := f.check("company", key); err != nil {
		return err
	}
	f.companies[key] = c
	return nil
}

func (f *FakeAdapter) Contact(email string) (adapter.Contact, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contacts[strings.ToLower(email)]
	return c, ok
}

func (f *FakeAdapter) Company(key string) (adapter.Company, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.companies[strings.ToLower(key)]
	return c, ok
}

func (f *FakeAdapter) ContactCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.contacts)
}

// Calls lists "contact:<email>" / "company:<key>" in call order.
func (f *FakeAdapter) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// mergeContact keeps existing fields the update leaves empty.
func mergeContact(old, upd adapter.Contact) adapter.Contact {
	pick := func(a, b string) string {
		if b != "" {
			return b
		}
		return a
	}
	return adapter.Contact{
		Email:       pick(old.Email, upd.Email),
		Firstname:   pick(old.Firstname, upd.Firstname),
		Lastname:    pick(old.Lastname, upd.Lastname),
		LinkedIn:    pick(old.LinkedIn, upd.LinkedIn),
		Company:     pick(old.Company, upd.Company),
		JobTitle:    pick(old.JobTitle, upd.JobTitle),
		Phone:       pick(old.Phone, upd.Phone),
		Country:     pick(old.Country, upd.Country),
		Role:        adapter.Role(pick(string(old.Role), string(upd.Role))),
		Year:        pick(old.Year, upd.Year),
		Subcategory: pick(old.Subcategory, upd.Subcategory),
		LiveURL:     pick(old.LiveURL, upd.LiveURL),
		NomineeURL:  pick(old.NomineeURL, upd.NomineeURL),
		NomineeName: pick(old.NomineeName, upd.NomineeName),
		VotedFor:    pick(old.VotedFor, upd.VotedFor),
	}
}
