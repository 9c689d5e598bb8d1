package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/staffing-awards/internal/model"
	"github.com/jmehdipour/staffing-awards/internal/util"
	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("not found")

// NominationsRepository stores nominators, nominees and nominations. Every
// write takes the caller's tx so the outbox rows commit with it.
type NominationsRepository interface {
	// UpsertNominator inserts or refreshes by email and sets n.ID to the stored id.
	UpsertNominator(ctx context.Context, tx *sqlx.Tx, n *model.Nominator) error
	InsertNominee(ctx context.Context, tx *sqlx.Tx, n *model.Nominee) error
	InsertNomination(ctx context.Context, tx *sqlx.Tx, n *model.Nomination) error

	// GetForUpdate locks the nomination row for the rest of tx.
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*model.Nomination, error)
	Get(ctx context.Context, tx *sqlx.Tx, id string) (*model.Nomination, error)
	GetNominee(ctx context.Context, tx *sqlx.Tx, id string) (*model.Nominee, error)
	GetNominator(ctx context.Context, tx *sqlx.Tx, id string) (*model.Nominator, error)

	Approve(ctx context.Context, tx *sqlx.Tx, id, liveURL string, at time.Time) error
	SetLiveURL(ctx context.Context, tx *sqlx.Tx, id, liveURL string) error
}

type NominationsRepositoryImpl struct {
	db *sqlx.DB
}

var _ NominationsRepository = (*NominationsRepositoryImpl)(nil)

func NewNominationsRepository(db *sqlx.DB) *NominationsRepositoryImpl {
	return &NominationsRepositoryImpl{db: db}
}

func (r *NominationsRepositoryImpl) UpsertNominator(ctx context.Context, tx *sqlx.Tx, n *model.Nominator) error {
	if n.ID == "" {
		n.ID = util.NewID()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO nominators (id, email, firstname, lastname, linkedin, company, job_title, phone, country)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			firstname = VALUES(firstname),
			lastname  = VALUES(lastname),
			linkedin  = VALUES(linkedin),
			company   = VALUES(company),
			job_title = VALUES(job_title),
			phone     = VALUES(phone),
			country   = VALUES(country)
	`, n.ID, n.Email, n.Firstname, n.Lastname, n.LinkedIn, n.Company, n.JobTitle, n.Phone, n.Country)
	if err != nil {
		return fmt.Errorf("upsert nominator: %w", err)
	}

	if err := tx.GetContext(ctx, &n.ID, `SELECT id FROM nominators WHERE email = ?`, n.Email); err != nil {
		return fmt.Errorf("load nominator id: %w", err)
	}
	return nil
}

func (r *NominationsRepositoryImpl) InsertNominee(ctx context.Context, tx *sqlx.Tx, n *model.Nominee) error {
	if n.ID == "" {
		n.ID = util.NewID()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO nominees (id, type, firstname, lastname, email, linkedin, job_title,
		                      company_name, company_domain, company_website, country)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.Type.String(), n.Firstname, n.Lastname, n.Email, n.LinkedIn, n.JobTitle,
		n.CompanyName, n.CompanyDomain, n.CompanyWebsite, n.Country)
	if err != nil {
		return fmt.Errorf("insert nominee: %w", err)
	}
	return nil
}

func (r *NominationsRepositoryImpl) InsertNomination(ctx context.Context, tx *sqlx.Tx, n *model.Nomination) error {
	if n.ID == "" {
		n.ID = util.NewID()
	}
	if n.State == "" {
		n.State = model.NominationSubmittedState
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO nominations (id, nominator_id, nominee_id, subcategory_id, state)
		VALUES (?, ?, ?, ?, ?)
	`, n.ID, n.NominatorID, n.NomineeID, n.SubcategoryID, n.State.String())
	if err != nil {
		return fmt.Errorf("insert nomination: %w", err)
	}
	return nil
}

const nominationColumns = `id, nominator_id, nominee_id, subcategory_id, state, live_url, created_at, approved_at`

func (r *NominationsRepositoryImpl) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*model.Nomination, error) {
	return r.getNomination(ctx, tx, `SELECT `+nominationColumns+` FROM nominations WHERE id = ? FOR UPDATE`, id)
}

func (r *NominationsRepositoryImpl) Get(ctx context.Context, tx *sqlx.Tx, id string) (*model.Nomination, error) {
	return r.getNomination(ctx, tx, `SELECT `+nominationColumns+` FROM nominations WHERE id = ?`, id)
}

func (r *NominationsRepositoryImpl) getNomination(ctx context.Context, tx *sqlx.Tx, q, id string) (*model.Nomination, error) {
	var n model.Nomination
	if err := sqlx.GetContext(ctx, r.q(tx), &n, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (r *NominationsRepositoryImpl) GetNominee(ctx context.Context, tx *sqlx.Tx, id string) (*model.Nominee, error) {
	var n model.Nominee
	err := sqlx.GetContext(ctx, r.q(tx), &n, `
		SELECT id, type, firstname, lastname, email, linkedin, job_title,
		       company_name, company_domain, company_website, country, created_at
		  FROM nominees
		 WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NominationsRepositoryImpl) GetNominator(ctx context.Context, tx *sqlx.Tx, id string) (*model.Nominator, error) {
	var n model.Nominator
	err := sqlx.GetContext(ctx, r.q(tx), &n, `
		SELECT id, email, firstname, lastname, linkedin, company, job_title, phone, country, created_at
		  FROM nominators
		 WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NominationsRepositoryImpl) Approve(ctx context.Context, tx *sqlx.Tx, id, liveURL string, at time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE nominations
		   SET state = 'approved', live_url = ?, approved_at = ?
		 WHERE id = ?
	`, liveURL, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("approve nomination: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *NominationsRepositoryImpl) SetLiveURL(ctx context.Context, tx *sqlx.Tx, id, liveURL string) error {
	_, err := tx.ExecContext(ctx, `UPDATE nominations SET live_url = ? WHERE id = ? AND state = 'approved'`, liveURL, id)
	if err != nil {
		return fmt.Errorf("set live url: %w", err)
	}
	return nil
}

// q picks tx when present, the pool otherwise.
func (r *NominationsRepositoryImpl) q(tx *sqlx.Tx) sqlx.QueryerContext {
	if tx != nil {
		return tx
	}
	return r.db
}
