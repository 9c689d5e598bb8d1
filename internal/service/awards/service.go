package awards

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/jmehdipour/staffing-awards/internal/model"
	"github.com/jmehdipour/staffing-awards/internal/producer"
	"github.com/jmehdipour/staffing-awards/internal/repository"
	"github.com/jmehdipour/staffing-awards/internal/util"
	"github.com/jmoiron/sqlx"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnknownSubcategory = errors.New("unknown subcategory")
	ErrNominationNotFound = errors.New("nomination not found")
	ErrInvalidState       = errors.New("nomination is not in a valid state for this action")
	ErrNotApproved        = errors.New("nomination is not approved")
	ErrAlreadyVoted       = errors.New("already voted in this subcategory")
)

// Hook is the outbox side of every write: Enqueue runs inside the primary
// transaction, Push after it commits.
type Hook interface {
	Enqueue(ctx context.Context, tx *sqlx.Tx, p model.Payload) ([]producer.Enqueued, error)
	Push(ctx context.Context, rows []producer.Enqueued)
}

// Service persists nominations and votes together with their outbox rows
// in a single transaction, then hands the rows to the hook for delivery.
type Service struct {
	db            *sqlx.DB
	nominations   repository.NominationsRepository
	votes         repository.VotesRepository
	subcategories repository.SubcategoriesRepository
	hook          Hook

	siteURL string
	now     func() time.Time
}

// New constructs the awards service.
func New(
	db *sqlx.DB,
	nominationsRepo repository.NominationsRepository,
	votesRepo repository.VotesRepository,
	subcategoriesRepo repository.SubcategoriesRepository,
	hook Hook,
	siteURL string,
) *Service {
	return &Service{
		db:            db,
		nominations:   nominationsRepo,
		votes:         votesRepo,
		subcategories: subcategoriesRepo,
		hook:          hook,
		siteURL:       strings.TrimRight(siteURL, "/"),
		now:           time.Now,
	}
}

type NominationInput struct {
	SubcategoryID string
	Nominator     model.Nominator
	Nominee       model.Nominee
}

type VoteInput struct {
	NominationID string
	Voter        model.Voter
}

// SubmitNomination stores the nomination in `submitted` state and enqueues
// the nominator upsert for every target.
func (s *Service) SubmitNomination(ctx context.Context, in NominationInput) (*model.Nomination, error) {
	nominator, nominee, err := normalizeNomination(in)
	if err != nil {
		return nil, err
	}

	ok, err := s.subcategories.Exists(ctx, in.SubcategoryID)
	if err != nil {
		return nil, fmt.Errorf("check subcategory: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSubcategory, in.SubcategoryID)
	}

	n := model.Nomination{
		ID:            util.NewID(),
		SubcategoryID: in.SubcategoryID,
		State:         model.NominationSubmittedState,
	}

	var rows []producer.Enqueued
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.nominations.UpsertNominator(ctx, tx, &nominator); err != nil {
			return err
		}
		if err := s.nominations.InsertNominee(ctx, tx, &nominee); err != nil {
			return err
		}

		n.NominatorID, n.NomineeID = nominator.ID, nominee.ID
		if err := s.nominations.InsertNomination(ctx, tx, &n); err != nil {
			return err
		}

		rows, err = s.hook.Enqueue(ctx, tx, producer.NominationSubmitted(n, nominator))
		return err
	})
	if err != nil {
		return nil, err
	}

	s.hook.Push(ctx, rows)
	return &n, nil
}

// ApproveNomination publishes a submitted nomination. An empty liveURL
// defaults to {site_url}/nominee/{id}.
func (s *Service) ApproveNomination(ctx context.Context, id, liveURL string) (*model.Nomination, error) {
	if liveURL == "" {
		liveURL = s.LiveURL(id)
	}

	var (
		n    *model.Nomination
		rows []producer.Enqueued
	)
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		n, err = s.nominations.GetForUpdate(ctx, tx, id)
		if err != nil {
			return mapNotFound(err)
		}
		if n.State != model.NominationSubmittedState {
			return fmt.Errorf("%w: %s", ErrInvalidState, n.State)
		}

		at := s.now().UTC()
		if err := s.nominations.Approve(ctx, tx, id, liveURL, at); err != nil {
			return err
		}
		n.State, n.LiveURL, n.ApprovedAt = model.NominationApprovedState, &liveURL, &at

		nominee, nominator, err := s.parties(ctx, tx, n)
		if err != nil {
			return err
		}

		rows, err = s.hook.Enqueue(ctx, tx, producer.NominationApproved(*n, *nominee, nominator, liveURL))
		return err
	})
	if err != nil {
		return nil, err
	}

	s.hook.Push(ctx, rows)
	return n, nil
}

// UpdateLiveURL moves an approved nominee page and re-tags the nominator
// with the new link.
func (s *Service) UpdateLiveURL(ctx context.Context, id, liveURL string) (*model.Nomination, error) {
	if strings.TrimSpace(liveURL) == "" {
		return nil, fmt.Errorf("%w: live url is required", ErrInvalidInput)
	}

	var (
		n    *model.Nomination
		rows []producer.Enqueued
	)
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		n, err = s.nominations.GetForUpdate(ctx, tx, id)
		if err != nil {
			return mapNotFound(err)
		}
		if n.State != model.NominationApprovedState {
			return ErrNotApproved
		}
		if err := s.nominations.SetLiveURL(ctx, tx, id, liveURL); err != nil {
			return err
		}
		n.LiveURL = &liveURL

		nominee, nominator, err := s.parties(ctx, tx, n)
		if err != nil {
			return err
		}
		if nominator == nil {
			return nil
		}

		rows, err = s.hook.Enqueue(ctx, tx, producer.NominatorLiveUpdate(*n, *nominee, *nominator, liveURL))
		return err
	})
	if err != nil {
		return nil, err
	}

	s.hook.Push(ctx, rows)
	return n, nil
}

// CastVote records one vote per voter and subcategory for an approved
// nomination and enqueues the voter upsert.
func (s *Service) CastVote(ctx context.Context, in VoteInput) (*model.Vote, error) {
	voter := in.Voter
	voter.Email = util.NormalizeEmail(voter.Email)
	voter.LinkedIn = util.NormalizeLinkedIn(voter.LinkedIn)
	if err := validEmail("voter", voter.Email); err != nil {
		return nil, err
	}
	if in.NominationID == "" {
		return nil, fmt.Errorf("%w: nomination id is required", ErrInvalidInput)
	}

	var (
		v    model.Vote
		rows []producer.Enqueued
	)
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		n, err := s.nominations.Get(ctx, tx, in.NominationID)
		if err != nil {
			return mapNotFound(err)
		}
		if n.State != model.NominationApprovedState {
			return ErrNotApproved
		}

		if err := s.votes.UpsertVoter(ctx, tx, &voter); err != nil {
			return err
		}

		v = model.Vote{
			ID:            util.NewID(),
			VoterID:       voter.ID,
			NominationID:  n.ID,
			SubcategoryID: n.SubcategoryID,
		}
		if err := s.votes.InsertVote(ctx, tx, &v); err != nil {
			if errors.Is(err, repository.ErrDuplicateVote) {
				return ErrAlreadyVoted
			}
			return err
		}

		nominee, err := s.nominations.GetNominee(ctx, tx, n.NomineeID)
		if err != nil {
			return fmt.Errorf("load nominee: %w", err)
		}

		rows, err = s.hook.Enqueue(ctx, tx, producer.VoteCast(v, voter, *nominee))
		return err
	})
	if err != nil {
		return nil, err
	}

	s.hook.Push(ctx, rows)
	return &v, nil
}

// LiveURL is the default public page of a nomination.
func (s *Service) LiveURL(id string) string {
	return s.siteURL + "/nominee/" + id
}

func (s *Service) parties(ctx context.Context, tx *sqlx.Tx, n *model.Nomination) (*model.Nominee, *model.Nominator, error) {
	nominee, err := s.nominations.GetNominee(ctx, tx, n.NomineeID)
	if err != nil {
		return nil, nil, fmt.Errorf("load nominee: %w", err)
	}
	nominator, err := s.nominations.GetNominator(ctx, tx, n.NominatorID)
	if errors.Is(err, repository.ErrNotFound) {
		return nominee, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load nominator: %w", err)
	}
	return nominee, nominator, nil
}

func (s *Service) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func mapNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNominationNotFound
	}
	return err
}

func normalizeNomination(in NominationInput) (model.Nominator, model.Nominee, error) {
	nominator := in.Nominator
	nominator.Email = util.NormalizeEmail(nominator.Email)
	nominator.Phone = util.NormalizePhone(nominator.Phone)
	nominator.LinkedIn = util.NormalizeLinkedIn(nominator.LinkedIn)
	if err := validEmail("nominator", nominator.Email); err != nil {
		return nominator, model.Nominee{}, err
	}
	if strings.TrimSpace(in.SubcategoryID) == "" {
		return nominator, model.Nominee{}, fmt.Errorf("%w: subcategory is required", ErrInvalidInput)
	}

	nominee := in.Nominee
	t, ok := model.ParseNomineeType(nominee.Type.String())
	if !ok {
		return nominator, nominee, fmt.Errorf("%w: nominee type %q", ErrInvalidInput, nominee.Type)
	}
	nominee.Type = t
	nominee.Email = util.NormalizeEmail(nominee.Email)
	nominee.LinkedIn = util.NormalizeLinkedIn(nominee.LinkedIn)

	switch t {
	case model.NomineePerson:
		if strings.TrimSpace(nominee.Firstname) == "" {
			return nominator, nominee, fmt.Errorf("%w: nominee first name is required", ErrInvalidInput)
		}
		if err := validEmail("nominee", nominee.Email); err != nil {
			return nominator, nominee, err
		}
	case model.NomineeCompany:
		nominee.CompanyDomain = util.NormalizeDomain(firstNonEmpty(nominee.CompanyDomain, nominee.CompanyWebsite))
		if strings.TrimSpace(nominee.CompanyName) == "" {
			return nominator, nominee, fmt.Errorf("%w: company name is required", ErrInvalidInput)
		}
		if nominee.Email != "" {
			if err := validEmail("nominee", nominee.Email); err != nil {
				return nominator, nominee, err
			}
		}
	}
	return nominator, nominee, nil
}

func validEmail(role, email string) error {
	if email == "" {
		return fmt.Errorf("%w: %s email is required", ErrInvalidInput, role)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: %s email %q", ErrInvalidInput, role, email)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
