// Package tradingdate resolves the ordered list of candidate trading
// dates bulk-data fetchers walk through, per spec.md §4.D: an explicit
// date short-circuits everything; otherwise a KST weekday walk is
// prepended with the broker's self-reported most-recent working date,
// when reachable. Grounded on app/services/trading_date.py's
// get_candidate_dates.
package tradingdate

import (
	"context"
	"time"

	"github.com/sawpanic/marketgov/internal/telemetry"
)

const maxLookback = 10

var kst = time.FixedZone("KST", 9*60*60)

// BrokerDateSource reports the broker's self-reported most recent
// working date, e.g. KIS's "최근영업일" field. A nil result or an error
// means the source is unreachable and the resolver falls back to the
// plain weekday walk.
type BrokerDateSource interface {
	LatestWorkingDate(ctx context.Context) (date string, ok bool, err error)
}

// Resolver produces candidate dates for bulk-data queries.
type Resolver struct {
	broker BrokerDateSource
	now    func() time.Time
}

// New builds a Resolver. broker may be nil, in which case candidates
// fall back to the plain weekday walk.
func New(broker BrokerDateSource) *Resolver {
	return &Resolver{broker: broker, now: time.Now}
}

// Candidates returns an ordered list of YYYYMMDD strings, most
// preferred first. If explicit is non-nil, the result is the
// singleton [*explicit]. Otherwise it's
// [broker_reported_date?, ...recent_weekdays_excluding_that_one].
func (r *Resolver) Candidates(ctx context.Context, explicit *string) []string {
	if explicit != nil && *explicit != "" {
		return []string{*explicit}
	}

	weekdays := recentWeekdays(r.now().In(kst), maxLookback)

	if r.broker == nil {
		return weekdays
	}

	brokerDate, ok, err := r.broker.LatestWorkingDate(ctx)
	if err != nil {
		telemetry.For("tradingdate").Warn().Err(err).Msg("broker working-date lookup failed, falling back to weekday walk")
		return weekdays
	}
	if !ok || brokerDate == "" {
		return weekdays
	}

	out := make([]string, 0, len(weekdays)+1)
	out = append(out, brokerDate)
	for _, d := range weekdays {
		if d != brokerDate {
			out = append(out, d)
		}
	}
	return out
}

// recentWeekdays walks backward from "from" (inclusive), keeping only
// Mon-Fri, until maxEntries dates have been collected.
func recentWeekdays(from time.Time, maxEntries int) []string {
	out := make([]string, 0, maxEntries)
	day := from
	for len(out) < maxEntries {
		wd := day.Weekday()
		if wd != time.Saturday && wd != time.Sunday {
			out = append(out, day.Format("20060102"))
		}
		day = day.AddDate(0, 0, -1)
	}
	return out
}
