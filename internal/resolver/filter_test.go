package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/oilflow/internal/snapshot"
	"github.com/roach88/oilflow/internal/workflow"
)

func row(orderID, customer, timestamp, delivery string) snapshot.PendingRow {
	s := snapshot.Snapshot{OrderID: orderID, CustomerName: customer, Timestamp: timestamp}
	if delivery != "" {
		s.Payload = workflow.Payload{"deliveryDate": delivery}
	}
	return snapshot.PendingRow{Snapshot: s}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

func fixtureRows() []snapshot.PendingRow {
	return []snapshot.PendingRow{
		row("DO-1", "Acme Oils", "2026-03-01 10:00:00", "2026-03-09"),
		row("DO-2", "acme oils ", "2026-03-03 23:59:00", "2026-03-10"),
		row("DO-3", "Bharat Traders", "2026-03-04 00:00:00", "2026-03-12"),
		row("DO-4", "Bharat Traders", "", ""),
	}
}

func ids(rows []snapshot.PendingRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Snapshot.OrderID
	}
	return out
}

func TestFilterZeroMatchesAll(t *testing.T) {
	dispatch := stage(t, "Dispatch Planning")
	var f Filter
	assert.True(t, f.IsZero())
	assert.Equal(t, []string{"DO-1", "DO-2", "DO-3", "DO-4"}, ids(f.Apply(dispatch, fixtureRows())))
}

func TestFilterParty(t *testing.T) {
	dispatch := stage(t, "Dispatch Planning")
	f := Filter{Party: " ACME OILS"}
	assert.Equal(t, []string{"DO-1", "DO-2"}, ids(f.Apply(dispatch, fixtureRows())))
}

func TestFilterDateRangeInclusiveDays(t *testing.T) {
	dispatch := stage(t, "Dispatch Planning")

	f := Filter{From: day(2026, 3, 2), To: day(2026, 3, 3)}
	assert.Equal(t, []string{"DO-2"}, ids(f.Apply(dispatch, fixtureRows())))

	f = Filter{From: day(2026, 3, 3).Add(15 * time.Hour)}
	assert.Equal(t, []string{"DO-2", "DO-3"}, ids(f.Apply(dispatch, fixtureRows())),
		"bounds are whole days and rows without a date are excluded")

	f = Filter{To: day(2026, 3, 1)}
	assert.Equal(t, []string{"DO-1"}, ids(f.Apply(dispatch, fixtureRows())))
}

func TestFilterTimeliness(t *testing.T) {
	dispatch := stage(t, "Dispatch Planning")
	now := day(2026, 3, 10).Add(17 * time.Hour)

	expired := Filter{Timeliness: TimelinessExpired, Now: now}
	assert.Equal(t, []string{"DO-1", "DO-4"}, ids(expired.Apply(dispatch, fixtureRows())),
		"a row without a target date matches either way")

	onTime := Filter{Timeliness: TimelinessOnTime, Now: now}
	assert.Equal(t, []string{"DO-2", "DO-3", "DO-4"}, ids(onTime.Apply(dispatch, fixtureRows())),
		"a target date of today is on time")
}

func TestFilterTimelinessReadsTargetInClockZone(t *testing.T) {
	dispatch := stage(t, "Dispatch Planning")
	west := time.FixedZone("UTC-12", -12*60*60)
	now := time.Date(2026, 3, 10, 0, 30, 0, 0, west)
	rows := []snapshot.PendingRow{row("DO-1", "Acme Oils", "", "2026-03-10")}

	onTime := Filter{Timeliness: TimelinessOnTime, Now: now}
	assert.Equal(t, []string{"DO-1"}, ids(onTime.Apply(dispatch, rows)),
		"a target of today in the clock's zone is on time whatever the process zone")

	expired := Filter{Timeliness: TimelinessExpired, Now: now}
	assert.Empty(t, ids(expired.Apply(dispatch, rows)))

	target, ok := TargetDateIn(dispatch, rows[0].Snapshot, west)
	require.True(t, ok)
	assert.True(t, target.Equal(Midnight(now)), target)
}

func TestFilterRangeReadsFilterDateInBoundZone(t *testing.T) {
	receipt := stage(t, "Material Receipt")
	receipt.FilterDate = "receivedDate"
	west := time.FixedZone("UTC-12", -12*60*60)

	r := row("DO-9", "Acme", "", "")
	r.Snapshot.Payload = workflow.Payload{"receivedDate": "2026-03-05"}

	f := Filter{From: time.Date(2026, 3, 5, 0, 0, 0, 0, west), To: time.Date(2026, 3, 5, 0, 0, 0, 0, west)}
	assert.True(t, f.Match(receipt, r))
}

func TestFilterIsIdempotentAndOrderIndependent(t *testing.T) {
	dispatch := stage(t, "Dispatch Planning")
	rows := fixtureRows()
	now := day(2026, 3, 10)

	combined := Filter{From: day(2026, 3, 1), To: day(2026, 3, 31), Party: "bharat traders", Timeliness: TimelinessOnTime, Now: now}
	once := combined.Apply(dispatch, rows)
	twice := combined.Apply(dispatch, once)
	assert.Equal(t, once, twice)

	party := Filter{Party: "bharat traders"}
	dates := Filter{From: day(2026, 3, 1), To: day(2026, 3, 31)}
	timely := Filter{Timeliness: TimelinessOnTime, Now: now}

	a := timely.Apply(dispatch, dates.Apply(dispatch, party.Apply(dispatch, rows)))
	b := party.Apply(dispatch, timely.Apply(dispatch, dates.Apply(dispatch, rows)))
	assert.Equal(t, ids(once), ids(a))
	assert.Equal(t, ids(a), ids(b))
	assert.Equal(t, []string{"DO-3"}, ids(a))
}

func TestFilterUsesStageFilterDateField(t *testing.T) {
	receipt := stage(t, "Material Receipt")
	receipt.FilterDate = "receivedDate"

	r := row("DO-9", "Acme", "2026-01-01 00:00:00", "")
	r.Snapshot.Payload = workflow.Payload{"receivedDate": "2026-03-05"}

	f := Filter{From: day(2026, 3, 5), To: day(2026, 3, 5)}
	assert.True(t, f.Match(receipt, r))

	d, ok := FilterDate(receipt, r.Snapshot, time.Local)
	require.True(t, ok)
	assert.True(t, d.Equal(day(2026, 3, 5)), d)
}

func TestParseTimeliness(t *testing.T) {
	for in, want := range map[string]Timeliness{
		"":        TimelinessAny,
		"all":     TimelinessAny,
		"On-Time": TimelinessOnTime,
		"expire":  TimelinessExpired,
		"expired": TimelinessExpired,
	} {
		got, err := ParseTimeliness(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseTimeliness("late")
	assert.Error(t, err)
}

func TestMidnight(t *testing.T) {
	ts := time.Date(2026, 3, 5, 17, 45, 12, 99, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), Midnight(ts))
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter(" Acme ", "2026-03-01", "2026-03-05", "expired")
	require.NoError(t, err)
	assert.Equal(t, "Acme", f.Party)
	assert.Equal(t, TimelinessExpired, f.Timeliness)
	assert.Equal(t, 1, f.From.Day())
	assert.Equal(t, 5, f.To.Day())

	f, err = ParseFilter("", "", "", "")
	require.NoError(t, err)
	assert.True(t, f.IsZero())

	for _, tc := range [][4]string{
		{"", "yesterday", "", ""},
		{"", "", "2026-13-40", ""},
		{"", "2026-03-05", "2026-03-01", ""},
		{"", "", "", "late"},
	} {
		_, err := ParseFilter(tc[0], tc[1], tc[2], tc[3])
		assert.Error(t, err, tc)
	}
}
