package workspace

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/raphaelgruber/sprintpilot/internal/memstore"
	"github.com/raphaelgruber/sprintpilot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// wednesday is mid-week so WeekStart is 2026-05-04.
var wednesday = time.Date(2026, 5, 6, 10, 0, 0, 0, time.UTC)

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want Level
	}{
		{"What's our team capacity this week?", LevelScheduling},
		{"Give me a full overview of everything", LevelFull},
		{"Which tasks should we prioritize?", LevelBacklog},
		{"Hello there", LevelMinimal},
		{"Show the backlog and our sprint schedule", LevelScheduling},
		{"Full report on the backlog please", LevelFull},
		{"My laptop is slow", LevelMinimal},
		{"Who is on PTO next Monday?", LevelScheduling},
		{"Split the epic into stories", LevelBacklog},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.msg))
		})
	}
}

func TestLevelIncludes(t *testing.T) {
	assert.True(t, LevelFull.Includes(LevelBacklog))
	assert.True(t, LevelScheduling.Includes(LevelMinimal))
	assert.False(t, LevelScheduling.Includes(LevelBacklog))
	assert.False(t, LevelMinimal.Includes(LevelScheduling))
}

func TestWeekStart(t *testing.T) {
	assert.Equal(t, time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), WeekStart(wednesday))
	sunday := time.Date(2026, 5, 10, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), WeekStart(sunday))
}

func TestComputeCapacity(t *testing.T) {
	alice, bob := "alice", "bob"
	members := []models.Member{
		{ID: alice, Name: "Alice", WeeklyCapacityHours: 40},
		{ID: bob, Name: "Bob", WeeklyCapacityHours: 40},
	}
	tasks := []models.Task{
		{AssigneeID: &alice, InSprint: true, Status: models.TaskTodo, EstimateHours: 30},
		{AssigneeID: &bob, InSprint: true, Status: models.TaskInProgress, EstimateHours: 20},
		{AssigneeID: &bob, InSprint: true, Status: models.TaskTodo, EstimateHours: 20},
		{AssigneeID: &bob, InSprint: true, Status: models.TaskDone, EstimateHours: 50},
		{AssigneeID: &bob, InSprint: false, Status: models.TaskBacklog, EstimateHours: 50},
	}
	// Bob is off Thursday and Friday, plus the weekend which does not count.
	timeOff := []models.TimeOff{{
		MemberID: bob,
		Start:    time.Date(2026, 5, 7, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC),
	}}

	caps := ComputeCapacity(members, tasks, timeOff, WeekStart(wednesday))
	require.Len(t, caps, 2)

	assert.Equal(t, "Alice", caps[0].Name)
	assert.Equal(t, 40.0, caps[0].AvailableHours)
	assert.Equal(t, 75.0, caps[0].UtilizationPercent)
	assert.False(t, caps[0].Overloaded)

	assert.Equal(t, 2, caps[1].TimeOffDays)
	assert.Equal(t, 24.0, caps[1].AvailableHours)
	assert.Equal(t, 40.0, caps[1].AssignedHours)
	assert.Equal(t, 2, caps[1].OpenTasks)
	assert.True(t, caps[1].Overloaded)

	assert.Len(t, Overloaded(caps, 0), 1)
	assert.Len(t, Overloaded(caps, 70), 2)
}

func TestBuildEmptyWorkspace(t *testing.T) {
	b := NewBuilder(memstore.New(), quietLogger()).WithClock(func() time.Time { return wednesday })

	for _, level := range []Level{LevelMinimal, LevelScheduling, LevelBacklog, LevelFull} {
		snap := b.Build(context.Background(), "empty", level)
		require.NotNil(t, snap)
		assert.Equal(t, level, snap.Level)
		assert.Zero(t, snap.Summary.TeamSize)
		assert.Zero(t, snap.Summary.TotalTasks)
		assert.Zero(t, snap.Summary.CapacityHours)
		assert.NotNil(t, snap.Summary.OverloadedMembers)
		assert.Empty(t, snap.Summary.OverloadedMembers)
	}
}

func seededStore(t *testing.T) *memstore.Store {
	t.Helper()
	s := memstore.New(memstore.WithClock(func() time.Time { return wednesday }))
	s.PutWorkspace(models.Workspace{ID: "ws1", Name: "Platform"})
	alice := s.PutMember(models.Member{WorkspaceID: "ws1", Name: "Alice", WeeklyCapacityHours: 40})
	s.PutMember(models.Member{WorkspaceID: "ws1", Name: "Bob", WeeklyCapacityHours: 20})
	due := wednesday.Add(48 * time.Hour)
	s.PutTask(models.Task{WorkspaceID: "ws1", Title: "Ship login", Status: models.TaskTodo, InSprint: true,
		AssigneeID: &alice.ID, EstimateHours: 50, DueDate: &due})
	s.PutTask(models.Task{WorkspaceID: "ws1", Title: "Low thing", Status: models.TaskBacklog, Priority: "low"})
	s.PutTask(models.Task{WorkspaceID: "ws1", Title: "Hot thing", Status: models.TaskBacklog, Priority: "high"})
	s.PutTimeOff(models.TimeOff{MemberID: alice.ID, Start: due, End: due, Reason: "dentist"})
	return s
}

func TestBuildLevels(t *testing.T) {
	s := seededStore(t)
	b := NewBuilder(s, quietLogger()).WithClock(func() time.Time { return wednesday })
	ctx := context.Background()

	minimal := b.Build(ctx, "ws1", LevelMinimal)
	assert.Equal(t, "Platform", minimal.WorkspaceName)
	assert.Equal(t, 2, minimal.Summary.TeamSize)
	assert.Equal(t, 3, minimal.Summary.TotalTasks)
	assert.Equal(t, 2, minimal.Summary.BacklogTasks)
	assert.Equal(t, 1, minimal.Summary.SprintTasks)
	assert.Equal(t, 1, minimal.Summary.UpcomingDeadlines)
	assert.Equal(t, []string{"Alice"}, minimal.Summary.OverloadedMembers)
	assert.Nil(t, minimal.Capacity)
	assert.Nil(t, minimal.BacklogTasks)

	scheduling := b.Build(ctx, "ws1", LevelScheduling)
	assert.Len(t, scheduling.Capacity, 2)
	assert.Len(t, scheduling.SprintTasks, 1)
	assert.Len(t, scheduling.Deadlines, 1)
	require.Len(t, scheduling.TimeOff, 1)
	assert.Equal(t, "Alice", scheduling.TimeOff[0].MemberName)
	assert.Nil(t, scheduling.BacklogTasks)

	backlog := b.Build(ctx, "ws1", LevelBacklog)
	require.Len(t, backlog.BacklogTasks, 2)
	assert.Equal(t, "Hot thing", backlog.BacklogTasks[0].Title)
	assert.Nil(t, backlog.Capacity)

	full := b.Build(ctx, "ws1", LevelFull)
	assert.Len(t, full.Capacity, 2)
	assert.Len(t, full.BacklogTasks, 2)
}

func TestBuildSeparatesOverdueTasks(t *testing.T) {
	s := seededStore(t)
	overdue := wednesday.Add(-72 * time.Hour)
	later := wednesday.Add(DeadlineHorizon + 24*time.Hour)
	done := wednesday.Add(-24 * time.Hour)
	s.PutTask(models.Task{WorkspaceID: "ws1", Title: "Late migration", Status: models.TaskInProgress, DueDate: &overdue})
	s.PutTask(models.Task{WorkspaceID: "ws1", Title: "Next quarter", Status: models.TaskTodo, DueDate: &later})
	s.PutTask(models.Task{WorkspaceID: "ws1", Title: "Shipped fix", Status: models.TaskDone, DueDate: &done})

	b := NewBuilder(s, quietLogger()).WithClock(func() time.Time { return wednesday })
	snap := b.Build(context.Background(), "ws1", LevelScheduling)

	assert.Equal(t, 1, snap.Summary.UpcomingDeadlines, "overdue and far-off tasks are not upcoming")
	assert.Equal(t, 1, snap.Summary.OverdueTasks, "done tasks are never overdue")
	require.Len(t, snap.Deadlines, 1)
	assert.Equal(t, "Ship login", snap.Deadlines[0].Title)
	require.Len(t, snap.Overdue, 1)
	assert.Equal(t, "Late migration", snap.Overdue[0].Title)
}

// failingStore errors on member reads only.
type failingStore struct {
	*memstore.Store
}

func (failingStore) ListMembers(context.Context, string) ([]models.Member, error) {
	return nil, errors.New("db down")
}

func TestBuildDegradesOnError(t *testing.T) {
	s := seededStore(t)
	b := NewBuilder(failingStore{s}, quietLogger()).WithClock(func() time.Time { return wednesday })

	snap := b.Build(context.Background(), "ws1", LevelFull)
	require.NotNil(t, snap)
	assert.Zero(t, snap.Summary.TeamSize)
	assert.Equal(t, 3, snap.Summary.TotalTasks, "other sections still load")
}

func TestSuffixPatternDetector(t *testing.T) {
	epics := []EpicWork{
		{Key: "E1", Titles: []string{"Foundations", "Build AuthService", "Implement notification handler"}},
		{Key: "E2", Titles: []string{"Checkout", "Create auth service wrapper", "Build PaymentClient"}},
		{Key: "E3", Titles: []string{"Ops", "Implement NotificationHandler retries", "Build AuthService metrics"}},
	}

	got := SuffixPatternDetector{}.Detect(epics)
	require.Len(t, got, 2)
	assert.Equal(t, SharedComponent{Name: "AuthService", EpicKeys: []string{"E1", "E2", "E3"}}, got[0])
	assert.Equal(t, SharedComponent{Name: "NotificationHandler", EpicKeys: []string{"E1", "E3"}}, got[1])
}

func TestSuffixPatternDetectorIgnoresDeterminers(t *testing.T) {
	tests := []struct {
		name  string
		epics []EpicWork
		want  []SharedComponent
	}{
		{
			name: "articles before a bare suffix",
			epics: []EpicWork{
				{Key: "E1", Titles: []string{"Implement the service layer"}},
				{Key: "E2", Titles: []string{"Build the client"}},
				{Key: "E3", Titles: []string{"Create the client retries", "Implement the service tests"}},
			},
			want: []SharedComponent{},
		},
		{
			name: "other determiners",
			epics: []EpicWork{
				{Key: "E1", Titles: []string{"Build a new client", "Create this handler"}},
				{Key: "E2", Titles: []string{"Build new client", "Implement this handler"}},
			},
			want: []SharedComponent{},
		},
		{
			name: "article followed by a real name",
			epics: []EpicWork{
				{Key: "E1", Titles: []string{"Build the billing client"}},
				{Key: "E2", Titles: []string{"Implement the BillingClient"}},
			},
			want: []SharedComponent{{Name: "BillingClient", EpicKeys: []string{"E1", "E2"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SuffixPatternDetector{}.Detect(tt.epics))
		})
	}
}

func TestCamelCaseDetector(t *testing.T) {
	epics := []EpicWork{
		{Key: "E1", Titles: []string{"Wire up EventBus", "Add AuthService"}},
		{Key: "E2", Titles: []string{"Publish to EventBus"}},
	}
	got := CamelCaseDetector{}.Detect(epics)
	require.Len(t, got, 1)
	assert.Equal(t, "EventBus", got[0].Name)

	assert.Empty(t, SuffixPatternDetector{}.Detect(epics), "suffix detector ignores non-verb mentions")
}

func TestProjectBuilder(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)
	p := s.PutProject(models.Project{WorkspaceID: "ws1", Name: "Atlas", Description: "Payments revamp"})
	e1 := s.PutEpic(models.Epic{ProjectID: p.ID, Name: "Foundations", Position: 1})
	e2 := s.PutEpic(models.Epic{ProjectID: p.ID, Name: "Checkout", Position: 2, EstimateWeeks: 3})
	e3 := s.PutEpic(models.Epic{ProjectID: p.ID, Name: "Rollout", Position: 3})
	for _, title := range []string{"Build AuthService", "Schema"} {
		s.PutTask(models.Task{WorkspaceID: "ws1", ProjectID: &p.ID, EpicID: &e1.ID, Title: title})
	}
	s.PutTask(models.Task{WorkspaceID: "ws1", ProjectID: &p.ID, EpicID: &e2.ID, Title: "Implement AuthService tokens"})
	_, err := s.AddEpicDependency(ctx, e3.ID, e2.ID, "")
	require.NoError(t, err)
	_, err = s.AddEpicDependency(ctx, e3.ID, e1.ID, "")
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		title := "Planning " + string(rune('A'+i))
		_, err := s.CreateConversation(ctx, models.ConversationInput{WorkspaceID: "ws1", ProjectID: &p.ID, Title: &title})
		require.NoError(t, err)
	}

	b := NewProjectBuilder(s, s, SuffixPatternDetector{}, quietLogger())
	pc, err := b.Build(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, pc)

	require.Len(t, pc.Epics, 3)
	assert.Equal(t, "E1", pc.Epics[0].Key)
	assert.Equal(t, 2, pc.Epics[0].StoryCount)
	assert.Equal(t, []string{"E1", "E2"}, pc.Epics[2].DependsOn)
	assert.Len(t, pc.RecentConversations, 5)
	require.Len(t, pc.SharedComponents, 1)
	assert.Equal(t, "AuthService", pc.SharedComponents[0].Name)

	e, ok := pc.EpicByKey("e2")
	require.True(t, ok)
	assert.Equal(t, "Checkout", e.Name)

	text := FormatProjectContext(pc)
	assert.Equal(t, text, FormatProjectContext(pc), "formatter is deterministic")
	assert.Contains(t, text, "Project: Atlas")
	assert.Contains(t, text, "- E3 Rollout [draft] stories=0 depends_on=E1,E2")
	assert.Contains(t, text, "estimate=3w")
	assert.Contains(t, text, "AuthService used by E1,E2")
	assert.True(t, strings.Contains(text, "Recent conversations:"))
}

func TestProjectBuilderRecentConversations(t *testing.T) {
	ctx := context.Background()
	now := wednesday
	s := memstore.New(memstore.WithClock(func() time.Time {
		now = now.Add(time.Minute)
		return now
	}))
	p := s.PutProject(models.Project{WorkspaceID: "ws1", Name: "Atlas"})

	for _, title := range []string{"Kickoff", "Epic split", "Estimates"} {
		_, err := s.CreateConversation(ctx, models.ConversationInput{WorkspaceID: "ws1", ProjectID: &p.ID, Title: &title})
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		_, err := s.CreateConversation(ctx, models.ConversationInput{WorkspaceID: "ws1", ProjectID: &p.ID})
		require.NoError(t, err)
	}
	active := "Current planning"
	conv, err := s.CreateConversation(ctx, models.ConversationInput{WorkspaceID: "ws1", ProjectID: &p.ID, Title: &active})
	require.NoError(t, err)

	b := NewProjectBuilder(s, s, nil, quietLogger())

	pc, err := b.BuildFor(ctx, p.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Estimates", "Epic split", "Kickoff"}, pc.RecentConversations)

	pc, err = b.Build(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Current planning", "Estimates", "Epic split", "Kickoff"}, pc.RecentConversations)
}

func TestProjectBuilderMissingProject(t *testing.T) {
	s := memstore.New()
	pc, err := NewProjectBuilder(s, s, nil, quietLogger()).Build(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, pc)
	assert.Empty(t, FormatProjectContext(nil))
}
