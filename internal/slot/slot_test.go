package slot

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerive(t *testing.T) {
	tests := []struct {
		name string
		date Date
		want Calendar
	}{
		{name: "monday in march", date: NewDate(2025, time.March, 10), want: Calendar{Year: 2025, Month: 3, Week: 11}},
		{name: "sunday closes the same week", date: NewDate(2025, time.March, 16), want: Calendar{Year: 2025, Month: 3, Week: 11}},
		{name: "dec 31 in week one of next year", date: NewDate(2024, time.December, 31), want: Calendar{Year: 2025, Month: 12, Week: 1}},
		{name: "dec 29 monday of week one", date: NewDate(2025, time.December, 29), want: Calendar{Year: 2026, Month: 12, Week: 1}},
		{name: "jan 1 in week 53 of previous year", date: NewDate(2021, time.January, 1), want: Calendar{Year: 2020, Month: 1, Week: 53}},
		{name: "jan 3 sunday still week 53", date: NewDate(2021, time.January, 3), want: Calendar{Year: 2020, Month: 1, Week: 53}},
		{name: "jan 4 starts week one", date: NewDate(2021, time.January, 4), want: Calendar{Year: 2021, Month: 1, Week: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Derive(tt.date))
		})
	}
}

func TestDeriveMatchesISOWeek(t *testing.T) {
	start := time.Date(1999, time.December, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2031, time.February, 1, 0, 0, 0, 0, time.UTC)
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		wantYear, wantWeek := d.ISOWeek()
		got := Derive(DateOf(d))
		if got.Year != wantYear || got.Week != wantWeek {
			t.Fatalf("Derive(%s) = (%d, %d), want (%d, %d)", d.Format(dateLayout), got.Year, got.Week, wantYear, wantWeek)
		}
	}
}

func TestDeriveSameWeekSameKey(t *testing.T) {
	mondays := []Date{
		NewDate(2024, time.December, 30),
		NewDate(2025, time.December, 29),
		NewDate(2020, time.December, 28),
		NewDate(2025, time.March, 10),
	}
	for _, monday := range mondays {
		first := Derive(monday)
		for i := 1; i < 7; i++ {
			d := DateOf(monday.Time().AddDate(0, 0, i))
			got := Derive(d)
			assert.Equal(t, first.Year, got.Year, "year of %s", d)
			assert.Equal(t, first.Week, got.Week, "week of %s", d)
		}
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    Date
		wantErr bool
	}{
		{in: "2025-03-10", want: NewDate(2025, time.March, 10)},
		{in: "2025-03-10T00:00:00.000Z", want: NewDate(2025, time.March, 10)},
		{in: "2025-03-10T23:30:00+05:00", want: NewDate(2025, time.March, 10)},
		{in: "10/03/2025", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDateJSON(t *testing.T) {
	var v struct {
		Date Date `json:"date"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2025-03-10T00:00:00.000Z"}`), &v))
	assert.Equal(t, NewDate(2025, time.March, 10), v.Date)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2025-03-10"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"date":12}`), &v))
}

func TestIdentityKey(t *testing.T) {
	id := Identity{Date: NewDate(2025, time.March, 10), ClassName: "Grade 2 General", SlotNumber: 4}
	assert.Equal(t, "2025-03-10|Grade 2 General|4", id.Key())
}

func TestValidators(t *testing.T) {
	for _, n := range []int{1, 5, 10} {
		assert.True(t, ValidSlotNumber(n), n)
	}
	for _, n := range []int{0, 11, -1} {
		assert.False(t, ValidSlotNumber(n), n)
	}
	for _, s := range []string{"08:00", "8:05", "23:59", "00:00"} {
		assert.True(t, ValidClock(s), s)
	}
	for _, s := range []string{"24:00", "12:60", "1200", "8:5", ""} {
		assert.False(t, ValidClock(s), s)
	}
}
