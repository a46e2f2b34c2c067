package workspace

import (
	"sort"
	"time"

	"github.com/raphaelgruber/sprintpilot/internal/models"
)

// workdaysPerWeek is the divisor for pro-rating weekly capacity.
const workdaysPerWeek = 5

// MemberCapacity is one member's load for the current week.
type MemberCapacity struct {
	MemberID           string  `json:"member_id"`
	Name               string  `json:"name"`
	WeeklyHours        float64 `json:"weekly_hours"`
	TimeOffDays        int     `json:"time_off_days"`
	AvailableHours     float64 `json:"available_hours"`
	AssignedHours      float64 `json:"assigned_hours"`
	OpenTasks          int     `json:"open_tasks"`
	UtilizationPercent float64 `json:"utilization_percent"`
	Overloaded         bool    `json:"overloaded"`
}

// WeekStart returns the Monday 00:00 UTC of the week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// ComputeCapacity derives per-member capacity for the week starting at weekStart.
// Assigned hours count open sprint tasks; time off removes whole workdays.
func ComputeCapacity(members []models.Member, tasks []models.Task, timeOff []models.TimeOff, weekStart time.Time) []MemberCapacity {
	weekEnd := weekStart.AddDate(0, 0, 7)

	offDays := make(map[string]int, len(members))
	for _, off := range timeOff {
		offDays[off.MemberID] += workdaysOverlapping(off, weekStart, weekEnd)
	}

	assigned := make(map[string]float64, len(members))
	open := make(map[string]int, len(members))
	for _, t := range tasks {
		if t.AssigneeID == nil || !t.Open() || !t.InSprint {
			continue
		}
		assigned[*t.AssigneeID] += t.EstimateHours
		open[*t.AssigneeID]++
	}

	out := make([]MemberCapacity, 0, len(members))
	for _, m := range members {
		days := min(offDays[m.ID], workdaysPerWeek)
		available := m.WeeklyCapacityHours * float64(workdaysPerWeek-days) / workdaysPerWeek
		mc := MemberCapacity{
			MemberID:       m.ID,
			Name:           m.Name,
			WeeklyHours:    m.WeeklyCapacityHours,
			TimeOffDays:    days,
			AvailableHours: round1(available),
			AssignedHours:  round1(assigned[m.ID]),
			OpenTasks:      open[m.ID],
		}
		if available > 0 {
			mc.UtilizationPercent = round1(assigned[m.ID] / available * 100)
			mc.Overloaded = assigned[m.ID] > available
		} else {
			mc.Overloaded = assigned[m.ID] > 0
		}
		out = append(out, mc)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Overloaded filters capacities whose utilization exceeds thresholdPercent.
// A threshold of zero means "assigned exceeds available".
func Overloaded(caps []MemberCapacity, thresholdPercent float64) []MemberCapacity {
	out := []MemberCapacity{}
	for _, c := range caps {
		if thresholdPercent <= 0 {
			if c.Overloaded {
				out = append(out, c)
			}
			continue
		}
		if c.UtilizationPercent > thresholdPercent || (c.AvailableHours == 0 && c.AssignedHours > 0) {
			out = append(out, c)
		}
	}
	return out
}

// workdaysOverlapping counts Monday-Friday dates of the inclusive time-off
// range that fall inside [from, to).
func workdaysOverlapping(off models.TimeOff, from, to time.Time) int {
	start := dayOf(off.Start)
	end := dayOf(off.End)
	if start.Before(from) {
		start = from
	}
	last := to.AddDate(0, 0, -1)
	if end.After(last) {
		end = last
	}
	n := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n++
		}
	}
	return n
}

func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func round1(v float64) float64 {
	if v < 0 {
		return -round1(-v)
	}
	return float64(int64(v*10+0.5)) / 10
}
