package producer

import "github.com/jmehdipour/staffing-awards/internal/model"

// NominationSubmitted snapshots the nominator only; the nominee is not
// public until approval.
func NominationSubmitted(n model.Nomination, nominator model.Nominator) model.NominationSubmitted {
	return model.NominationSubmitted{
		Nominator:     nominator.Contact(),
		NominationID:  n.ID,
		SubcategoryID: n.SubcategoryID,
	}
}

func NominationApproved(n model.Nomination, nominee model.Nominee, nominator *model.Nominator, liveURL string) model.NominationApproved {
	p := model.NominationApproved{
		Type:          nominee.Type,
		SubcategoryID: n.SubcategoryID,
		NominationID:  n.ID,
		LiveURL:       liveURL,
		Nominee:       nominee.Contact(),
	}
	if nominator != nil {
		c := nominator.Contact()
		p.Nominator = &c
	}
	return p
}

func VoteCast(v model.Vote, voter model.Voter, nominee model.Nominee) model.VoteCast {
	return model.VoteCast{
		Voter:               voter.Contact(),
		VotedForDisplayName: nominee.DisplayName(),
		SubcategoryID:       v.SubcategoryID,
		NominationID:        v.NominationID,
	}
}

func NominatorLiveUpdate(n model.Nomination, nominee model.Nominee, nominator model.Nominator, liveURL string) model.NominatorLiveUpdate {
	return model.NominatorLiveUpdate{
		Nominator:          nominator.Contact(),
		NomineeDisplayName: nominee.DisplayName(),
		LiveURL:            liveURL,
		SubcategoryID:      n.SubcategoryID,
	}
}
