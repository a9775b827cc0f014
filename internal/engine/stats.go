package engine

import (
	"context"
	"math"
	"time"

	"jobtrail/internal/domain"
	"jobtrail/internal/repo"
)

// ComputeStatistics aggregates one user's search. Rates come from the
// status history, not the current status, so an application that went
// screening -> rejected still counts as a response.
func (e Engine) ComputeStatistics(ctx context.Context, userID string) (domain.Statistics, error) {
	apps, err := e.Repo.ListApplications(ctx, repo.ApplicationFilters{UserID: userID})
	if err != nil {
		return domain.Statistics{}, err
	}
	byStatus, err := e.Repo.CountByStatus(ctx, userID)
	if err != nil {
		return domain.Statistics{}, err
	}

	stats := domain.Statistics{
		Total:    len(apps),
		ByStatus: byStatus,
	}

	var (
		appliedOrLater   int
		responded        int
		interviewOrLater int
		offerOrLater     int
		responseDays     []float64
	)
	appliedRank := forwardRank(domain.StatusApplied)
	screeningRank := forwardRank(domain.StatusScreening)
	interviewRank := forwardRank(domain.StatusInterviewScheduled)
	offerRank := forwardRank(domain.StatusOfferReceived)

	for _, a := range apps {
		changes, err := e.Timeline.StatusChanges(ctx, a.ID)
		if err != nil {
			return domain.Statistics{}, err
		}
		rank := reachedRank(a, changes)
		if rank < appliedRank {
			continue
		}
		appliedOrLater++
		if rank >= screeningRank {
			responded++
			if days, ok := firstResponseDays(a, changes, screeningRank); ok {
				responseDays = append(responseDays, days)
			}
		}
		if rank >= interviewRank {
			interviewOrLater++
		}
		if rank >= offerRank {
			offerOrLater++
		}
	}

	stats.ResponseRate = rate(responded, appliedOrLater)
	stats.InterviewConversionRate = rate(interviewOrLater, responded)
	stats.OfferRate = rate(offerOrLater, appliedOrLater)
	if len(responseDays) > 0 {
		var sum float64
		for _, d := range responseDays {
			sum += d
		}
		avg := round1(sum / float64(len(responseDays)))
		stats.AvgResponseTimeDays = &avg
	}

	since := e.now().UTC().AddDate(0, 0, -30).Format(time.RFC3339)
	recent, err := e.Timeline.CountSince(ctx, userID, since)
	if err != nil {
		return domain.Statistics{}, err
	}
	stats.RecentActivity = recent
	return stats, nil
}

// reachedRank is the furthest forward-progression stage the application
// ever hit, current status included. Terminal exits carry no rank of
// their own.
func reachedRank(a domain.Application, changes []domain.StatusChange) int {
	rank := forwardRank(a.Status)
	for _, c := range changes {
		if r := forwardRank(c.To); r > rank {
			rank = r
		}
		if r := forwardRank(c.From); r > rank {
			rank = r
		}
	}
	return rank
}

// firstResponseDays measures applied-to-first-response latency.
func firstResponseDays(a domain.Application, changes []domain.StatusChange, screeningRank int) (float64, bool) {
	appliedAt, err := time.Parse(time.RFC3339, a.AppliedAt)
	if err != nil {
		return 0, false
	}
	for _, c := range changes {
		if forwardRank(c.To) < screeningRank {
			continue
		}
		at, err := time.Parse(time.RFC3339, c.CreatedAt)
		if err != nil {
			return 0, false
		}
		return at.Sub(appliedAt).Hours() / 24, true
	}
	return 0, false
}

func rate(numerator, denominator int) *float64 {
	if denominator == 0 {
		return nil
	}
	r := round1(float64(numerator) / float64(denominator) * 100)
	return &r
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
