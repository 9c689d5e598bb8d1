package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/jmehdipour/staffing-awards/internal/model"
	"github.com/jmehdipour/staffing-awards/internal/service/awards"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AwardsService is the part of awards.Service the handlers use.
type AwardsService interface {
	SubmitNomination(ctx context.Context, in awards.NominationInput) (*model.Nomination, error)
	ApproveNomination(ctx context.Context, id, liveURL string) (*model.Nomination, error)
	UpdateLiveURL(ctx context.Context, id, liveURL string) (*model.Nomination, error)
	CastVote(ctx context.Context, in awards.VoteInput) (*model.Vote, error)
}

type personReq struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Email     string `json:"email"`
	LinkedIn  string `json:"linkedin"`
	Company   string `json:"company"`
	JobTitle  string `json:"jobTitle"`
	Phone     string `json:"phone"`
	Country   string `json:"country"`
}

type nomineeReq struct {
	Type           string `json:"type"` // "person" | "company"
	Firstname      string `json:"firstname"`
	Lastname       string `json:"lastname"`
	Email          string `json:"email"`
	LinkedIn       string `json:"linkedin"`
	JobTitle       string `json:"jobTitle"`
	CompanyName    string `json:"companyName"`
	CompanyDomain  string `json:"companyDomain"`
	CompanyWebsite string `json:"companyWebsite"`
	Country        string `json:"country"`
}

type nominationReq struct {
	SubcategoryID string     `json:"subcategoryId"`
	Nominator     personReq  `json:"nominator"`
	Nominee       nomineeReq `json:"nominee"`
}

type voteReq struct {
	NominationID string    `json:"nominationId"`
	Voter        personReq `json:"voter"`
}

type liveURLReq struct {
	LiveURL string `json:"live_url"`
}

func submitNominationHandler(svc AwardsService, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req nominationReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		n, err := svc.SubmitNomination(c.Request().Context(), awards.NominationInput{
			SubcategoryID: req.SubcategoryID,
			Nominator: model.Nominator{
				Firstname: req.Nominator.Firstname,
				Lastname:  req.Nominator.Lastname,
				Email:     req.Nominator.Email,
				LinkedIn:  req.Nominator.LinkedIn,
				Company:   req.Nominator.Company,
				JobTitle:  req.Nominator.JobTitle,
				Phone:     req.Nominator.Phone,
				Country:   req.Nominator.Country,
			},
			Nominee: model.Nominee{
				Type:           model.NomineeType(req.Nominee.Type),
				Firstname:      req.Nominee.Firstname,
				Lastname:       req.Nominee.Lastname,
				Email:          req.Nominee.Email,
				LinkedIn:       req.Nominee.LinkedIn,
				JobTitle:       req.Nominee.JobTitle,
				CompanyName:    req.Nominee.CompanyName,
				CompanyDomain:  req.Nominee.CompanyDomain,
				CompanyWebsite: req.Nominee.CompanyWebsite,
				Country:        req.Nominee.Country,
			},
		})
		if err != nil {
			return serviceError(c, log, "submit nomination", err)
		}

		return c.JSON(http.StatusCreated, map[string]any{
			"id":    n.ID,
			"state": n.State,
		})
	}
}

func castVoteHandler(svc AwardsService, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req voteReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		v, err := svc.CastVote(c.Request().Context(), awards.VoteInput{
			NominationID: req.NominationID,
			Voter: model.Voter{
				Firstname: req.Voter.Firstname,
				Lastname:  req.Voter.Lastname,
				Email:     req.Voter.Email,
				LinkedIn:  req.Voter.LinkedIn,
				Company:   req.Voter.Company,
				JobTitle:  req.Voter.JobTitle,
				Country:   req.Voter.Country,
			},
		})
		if err != nil {
			return serviceError(c, log, "cast vote", err)
		}

		return c.JSON(http.StatusCreated, map[string]any{"id": v.ID})
	}
}

func approveNominationHandler(svc AwardsService, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		// the body is optional; an empty live_url takes the default page
		var req liveURLReq
		if c.Request().ContentLength > 0 {
			if err := c.Bind(&req); err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
			}
		}

		n, err := svc.ApproveNomination(c.Request().Context(), c.Param("id"), req.LiveURL)
		if err != nil {
			return serviceError(c, log, "approve nomination", err)
		}
		return c.JSON(http.StatusOK, nominationView(n))
	}
}

func updateLiveURLHandler(svc AwardsService, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req liveURLReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		n, err := svc.UpdateLiveURL(c.Request().Context(), c.Param("id"), req.LiveURL)
		if err != nil {
			return serviceError(c, log, "update live url", err)
		}
		return c.JSON(http.StatusOK, nominationView(n))
	}
}

func nominationView(n *model.Nomination) map[string]any {
	out := map[string]any{"id": n.ID, "state": n.State}
	if n.LiveURL != nil {
		out["live_url"] = *n.LiveURL
	}
	return out
}

// serviceError maps awards sentinels to status codes; anything else is a 500.
func serviceError(c echo.Context, log *zap.Logger, op string, err error) error {
	switch {
	case errors.Is(err, awards.ErrInvalidInput), errors.Is(err, awards.ErrUnknownSubcategory):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, awards.ErrNominationNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "nomination not found"})
	case errors.Is(err, awards.ErrAlreadyVoted):
		return c.JSON(http.StatusConflict, map[string]string{"error": "already_voted"})
	case errors.Is(err, awards.ErrInvalidState):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, awards.ErrNotApproved):
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "nomination not approved"})
	}

	log.Error(op+" failed", zap.Error(err))

	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
}
