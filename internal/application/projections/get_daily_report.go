package projections

import (
	"context"
	"fmt"
	"time"

	domainDonation "dropin/internal/domain/donation"
	domainService "dropin/internal/domain/service"
)

// GetDailyReportQuery carries query parameters.
type GetDailyReportQuery struct {
	Date string // Optional, defaults to today
}

// ServiceCount is the activity for one service type.
type ServiceCount struct {
	Entries   int `json:"entries"`
	Servings  int `json:"servings"` // sum of quantities; equals Entries except for meals
	Cancelled int `json:"cancelled"`
}

// GetDailyReportResult carries the query result.
type GetDailyReportResult struct {
	Date            string                  `json:"date"`
	Services        map[string]ServiceCount `json:"services"`
	UniqueGuests    int                     `json:"unique_guests"`
	Donations       int                     `json:"donations"`
	DonationsByKind map[string]int          `json:"donations_by_kind"`
	MoneyCents      int64                   `json:"money_cents"`
}

// GetDailyReportDeps holds dependencies for GetDailyReport.
type GetDailyReportDeps struct {
	ServiceStore  ServiceStore
	DonationStore DonationStore
	Now           func() time.Time
}

// QueryGetDailyReport summarizes one service day.
// PRE: Date is empty or YYYY-MM-DD
// POST: Every service type has an entry in Services, zero when unused
// INVARIANT: Cancelled entries count toward Cancelled only
func QueryGetDailyReport(ctx context.Context, query GetDailyReportQuery, deps GetDailyReportDeps) (GetDailyReportResult, error) {
	date := query.Date
	if date == "" {
		now := time.Now()
		if deps.Now != nil {
			now = deps.Now()
		}
		date = now.Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		return GetDailyReportResult{}, fmt.Errorf("invalid date %q: %w", date, err)
	}

	entries, err := deps.ServiceStore.ListByDate(ctx, date)
	if err != nil {
		return GetDailyReportResult{}, err
	}
	donations, err := deps.DonationStore.ListByDate(ctx, date)
	if err != nil {
		return GetDailyReportResult{}, err
	}

	result := GetDailyReportResult{
		Date:            date,
		Services:        make(map[string]ServiceCount, len(domainService.ValidTypes)),
		DonationsByKind: make(map[string]int, len(domainDonation.ValidKinds)),
	}
	for _, t := range domainService.ValidTypes {
		result.Services[t] = ServiceCount{}
	}

	guests := make(map[string]struct{})
	for _, e := range entries {
		c := result.Services[e.Type]
		if e.Status == domainService.StatusCancelled {
			c.Cancelled++
		} else {
			c.Entries++
			c.Servings += e.Quantity
			guests[e.GuestID] = struct{}{}
		}
		result.Services[e.Type] = c
	}
	result.UniqueGuests = len(guests)

	for _, d := range donations {
		result.Donations++
		result.DonationsByKind[d.Kind]++
		if d.Kind == domainDonation.KindMoney {
			result.MoneyCents += d.ValueCents
		}
	}

	return result, nil
}
