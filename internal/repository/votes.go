package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmehdipour/staffing-awards/internal/db"
	"github.com/jmehdipour/staffing-awards/internal/model"
	"github.com/jmehdipour/staffing-awards/internal/util"
	"github.com/jmoiron/sqlx"
)

// ErrDuplicateVote is returned when the voter already voted in the subcategory.
var ErrDuplicateVote = errors.New("duplicate vote")

type VotesRepository interface {
	// UpsertVoter inserts or refreshes by email and sets v.ID to the stored id.
	UpsertVoter(ctx context.Context, tx *sqlx.Tx, v *model.Voter) error
	InsertVote(ctx context.Context, tx *sqlx.Tx, v *model.Vote) error
}

type VotesRepositoryImpl struct {
	db *sqlx.DB
}

var _ VotesRepository = (*VotesRepositoryImpl)(nil)

func NewVotesRepository(db *sqlx.DB) *VotesRepositoryImpl {
	return &VotesRepositoryImpl{db: db}
}

func (r *VotesRepositoryImpl) UpsertVoter(ctx context.Context, tx *sqlx.Tx, v *model.Voter) error {
	if v.ID == "" {
		v.ID = util.NewID()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO voters (id, email, firstname, lastname, linkedin, company, job_title, country)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			firstname = VALUES(firstname),
			lastname  = VALUES(lastname),
			linkedin  = VALUES(linkedin),
			company   = VALUES(company),
			job_title = VALUES(job_title),
			country   = VALUES(country)
	`, v.ID, v.Email, v.Firstname, v.Lastname, v.LinkedIn, v.Company, v.JobTitle, v.Country)
	if err != nil {
		return fmt.Errorf("upsert voter: %w", err)
	}

	if err := tx.GetContext(ctx, &v.ID, `SELECT id FROM voters WHERE email = ?`, v.Email); err != nil {
		return fmt.Errorf("load voter id: %w", err)
	}
	return nil
}

func (r *VotesRepositoryImpl) InsertVote(ctx context.Context, tx *sqlx.Tx, v *model.Vote) error {
	if v.ID == "" {
		v.ID = util.NewID()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO votes (id, voter_id, nomination_id, subcategory_id)
		VALUES (?, ?, ?, ?)
	`, v.ID, v.VoterID, v.NominationID, v.SubcategoryID)
	if db.IsDuplicateKey(err) {
		return ErrDuplicateVote
	}
	if err != nil {
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}
