package views

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dori/taskdeck/internal/board"
	"github.com/dori/taskdeck/internal/model"
	"github.com/dori/taskdeck/internal/session"
)

var testNow = time.Date(2025, 9, 10, 9, 0, 0, 0, time.UTC)

type fakeBoard struct {
	board     board.Board
	loadErr   error
	mutateErr error
	busy      map[string]bool
	nextID    int

	loads     int
	created   []model.TaskDraft
	statuses  map[string]model.Status
	updated   map[string]model.TaskDraft
	requested []string
	cancelled int
	deleted   []string
}

func newFakeBoard(tasks ...model.Task) *fakeBoard {
	return &fakeBoard{
		board:    board.Board{Tasks: tasks, FetchedAt: testNow},
		busy:     map[string]bool{},
		statuses: map[string]model.Status{},
		updated:  map[string]model.TaskDraft{},
	}
}

func (f *fakeBoard) Snapshot() board.Board            { return f.board }
func (f *fakeBoard) Restore() (board.Board, bool)     { return f.board, true }
func (f *fakeBoard) Busy(key string) bool             { return f.busy[key] }
func (f *fakeBoard) CancelDelete(board.PendingDelete) { f.cancelled++ }

func (f *fakeBoard) Load(ctx context.Context) (board.Board, error) {
	f.loads++
	if f.loadErr != nil {
		return f.board, f.loadErr
	}
	return f.board, nil
}

func (f *fakeBoard) Create(ctx context.Context, d model.TaskDraft) (board.Board, error) {
	f.created = append(f.created, d)
	if f.mutateErr != nil {
		return f.board, f.mutateErr
	}
	f.nextID++
	f.board.Tasks = append(f.board.Tasks, model.Task{
		ID: fmt.Sprintf("new-%d", f.nextID), Title: d.Title, Description: d.Description,
		Status: model.StatusPending, DueDate: d.DueDate,
	})
	return f.board, nil
}

func (f *fakeBoard) ChangeStatus(ctx context.Context, id string, s model.Status) (board.Board, error) {
	f.statuses[id] = s
	if f.mutateErr != nil {
		return f.board, f.mutateErr
	}
	for i := range f.board.Tasks {
		if f.board.Tasks[i].ID == id {
			f.board.Tasks[i].Status = s
		}
	}
	return f.board, nil
}

func (f *fakeBoard) UpdateFields(ctx context.Context, id string, d model.TaskDraft) (board.Board, error) {
	f.updated[id] = d
	if f.mutateErr != nil {
		return f.board, f.mutateErr
	}
	for i := range f.board.Tasks {
		if f.board.Tasks[i].ID == id {
			f.board.Tasks[i].Title = d.Title
			f.board.Tasks[i].Description = d.Description
			f.board.Tasks[i].DueDate = d.DueDate
		}
	}
	return f.board, nil
}

func (f *fakeBoard) RequestDelete(id string) (board.PendingDelete, error) {
	f.requested = append(f.requested, id)
	t, ok := f.board.Find(id)
	if !ok {
		return board.PendingDelete{}, fmt.Errorf("no task %s", id)
	}
	return board.PendingDelete{ID: id, Title: t.Title}, nil
}

func (f *fakeBoard) ConfirmDelete(ctx context.Context, p board.PendingDelete) (board.Board, error) {
	f.deleted = append(f.deleted, p.ID)
	if f.mutateErr != nil {
		return f.board, f.mutateErr
	}
	tasks := []model.Task{}
	for _, t := range f.board.Tasks {
		if t.ID != p.ID {
			tasks = append(tasks, t)
		}
	}
	f.board.Tasks = tasks
	return f.board, nil
}

type fakeReminder struct {
	dueToday, overdue int
}

func (r *fakeReminder) SendDueToday([]model.Task, time.Time) error { r.dueToday++; return nil }
func (r *fakeReminder) SendOverdue([]model.Task, time.Time) error  { r.overdue++; return nil }

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "ctrl+r":
		return tea.KeyMsg{Type: tea.KeyCtrlR}
	case "ctrl+l":
		return tea.KeyMsg{Type: tea.KeyCtrlL}
	case "ctrl+f":
		return tea.KeyMsg{Type: tea.KeyCtrlF}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func sampleTasks() []model.Task {
	return []model.Task{
		{ID: "t1", Title: "Write report", Status: model.StatusPending, DueDate: model.NewDate(2025, 9, 12)},
		{ID: "t2", Title: "Review PR", Status: model.StatusPending, DueDate: model.NewDate(2025, 9, 1)},
		{ID: "t3", Title: "Ship release", Status: model.StatusInProgress, DueDate: model.NewDate(2025, 9, 10)},
	}
}

func clock() time.Time { return testNow }

// activeBoard returns a board view that has finished its first load
func activeBoard(t *testing.T, svc *fakeBoard) BoardView {
	t.Helper()
	v := NewBoardView(svc, nil, clock).SetSize(120, 40)
	v, cmd := v.Activate()
	if cmd == nil {
		t.Fatal("Activate() returned no load command")
	}
	v, _ = v.Update(cmd())
	if !v.loaded {
		t.Fatalf("board not loaded after first load, err = %q", v.errMsg)
	}
	return v
}

func TestBoardActivateShowsRestoredBoard(t *testing.T) {
	svc := newFakeBoard(sampleTasks()...)
	v := NewBoardView(svc, nil, clock)

	v, cmd := v.Activate()
	if cmd == nil {
		t.Fatal("Activate() should start a load")
	}
	if got := len(v.Board().Tasks); got != 3 {
		t.Errorf("restored board has %d tasks, want 3", got)
	}
	if !v.loading {
		t.Error("board should be loading after Activate()")
	}
}

func TestBoardDropsResultsFromEarlierVisit(t *testing.T) {
	svc := newFakeBoard(sampleTasks()...)
	v := NewBoardView(svc, nil, clock)

	v, cmd := v.Activate()
	stale := cmd()
	v = v.Deactivate()
	v, _ = v.Activate()

	v, next := v.Update(stale)
	if next != nil {
		t.Error("stale load result should not produce a command")
	}
	if v.loaded {
		t.Error("stale load result should be ignored")
	}
}

func TestBoardRemindsOncePerVisit(t *testing.T) {
	svc := newFakeBoard(sampleTasks()...)
	rem := &fakeReminder{}
	v := NewBoardView(svc, rem, clock)

	v, cmd := v.Activate()
	v, remind := v.Update(cmd())
	if remind == nil {
		t.Fatal("first load should send reminders")
	}
	remind()
	if rem.overdue != 1 || rem.dueToday != 1 {
		t.Errorf("reminders sent = overdue %d, due today %d; want 1, 1", rem.overdue, rem.dueToday)
	}

	v, cmd = v.Update(keyPress("r"))
	if cmd == nil {
		t.Fatal("r should reload")
	}
	if _, again := v.Update(cmd()); again != nil {
		t.Error("second load in the same visit should not remind again")
	}
}

func TestBoardLoadAuthErrorNavigatesToLogin(t *testing.T) {
	svc := newFakeBoard()
	svc.loadErr = &model.AuthError{Status: 401, Message: "Unauthorized"}
	v := NewBoardView(svc, nil, clock)

	v, cmd := v.Activate()
	v, next := v.Update(cmd())
	if v.errMsg == "" {
		t.Error("auth failure should be shown")
	}
	if next == nil {
		t.Fatal("auth failure should navigate")
	}
	nav, ok := next().(NavigateMsg)
	if !ok {
		t.Fatalf("got %T, want NavigateMsg", next())
	}
	if nav.Route != session.RouteLogin {
		t.Errorf("navigate to %q, want %q", nav.Route, session.RouteLogin)
	}
}

func TestBoardLoadFailureKeepsBoard(t *testing.T) {
	svc := newFakeBoard(sampleTasks()...)
	v := activeBoard(t, svc)

	svc.loadErr = &model.FetchError{Op: "list tasks", Status: 500}
	v, cmd := v.Update(keyPress("r"))
	v, next := v.Update(cmd())
	if next != nil {
		t.Error("a non-auth failure should not navigate")
	}
	if v.errMsg == "" {
		t.Error("load failure should be shown")
	}
	if got := len(v.Board().Tasks); got != 3 {
		t.Errorf("board has %d tasks after failed reload, want 3", got)
	}
}

func fillTaskForm(v BoardView, title, desc, due string) BoardView {
	v.form = v.form.
		SetValue(fieldTitle, title).
		SetValue(fieldDescription, desc).
		SetValue(fieldDue, due)
	return v
}

func TestBoardAddTask(t *testing.T) {
	svc := newFakeBoard(sampleTasks()...)
	v := activeBoard(t, svc)

	v, _ = v.Update(keyPress("a"))
	if v.Mode() != BoardModeAdd {
		t.Fatalf("mode = %v, want add", v.Mode())
	}
	v = fillTaskForm(v, "  Buy milk ", "two litres", "tomorrow")

	v, cmd := v.Update(keyPress("enter"))
	if cmd == nil {
		t.Fatal("submit should start a request")
	}
	if v.Mode() != BoardModeAdd {
		t.Error("form should stay open while saving")
	}

	v, _ = v.Update(cmd())
	if len(svc.created) != 1 {
		t.Fatalf("Create called %d times, want 1", len(svc.created))
	}
	got := svc.created[0]
	if got.Title != "Buy milk" {
		t.Errorf("title = %q, want trimmed %q", got.Title, "Buy milk")
	}
	if !got.DueDate.Equal(model.NewDate(2025, 9, 11)) {
		t.Errorf("due = %s, want 2025-09-11", got.DueDate)
	}
	if v.Mode() != BoardModeNormal {
		t.Error("form should close after a successful save")
	}
	if v.statusMsg != "Task created" {
		t.Errorf("status = %q, want %q", v.statusMsg, "Task created")
	}
	if len(v.Board().Column(model.StatusPending)) != 3 {
		t.Error("new task should be in the pending column")
	}
}

func TestBoardAddRejectsInvalidDraft(t *testing.T) {
	tests := []struct {
		name         string
		title, due   string
		wantContains string
	}{
		{"missing title", "", "tomorrow", "title"},
		{"missing due", "Something", "", "due"},
		{"bad due", "Something", "someday", "someday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeBoard()
			v := activeBoard(t, svc)
			v, _ = v.Update(keyPress("a"))
			v = fillTaskForm(v, tt.title, "", tt.due)

			v, cmd := v.Update(keyPress("enter"))
			if cmd != nil {
				t.Error("invalid draft should not be sent")
			}
			if !strings.Contains(strings.ToLower(v.errMsg), tt.wantContains) {
				t.Errorf("error = %q, want it to mention %q", v.errMsg, tt.wantContains)
			}
			if len(svc.created) != 0 {
				t.Error("Create should not be called")
			}
		})
	}
}

func TestBoardSubmitTwiceIsInFlight(t *testing.T) {
	svc := newFakeBoard()
	v := activeBoard(t, svc)
	v, _ = v.Update(keyPress("a"))
	v = fillTaskForm(v, "Once", "", "today")

	v, first := v.Update(keyPress("enter"))
	if first == nil {
		t.Fatal("first submit should start a request")
	}
	v, second := v.Update(keyPress("enter"))
	if second != nil {
		t.Error("second submit should be refused while the first runs")
	}
	if v.statusMsg != board.ErrInFlight.Error() {
		t.Errorf("status = %q, want in-flight notice", v.statusMsg)
	}

	v, _ = v.Update(first())
	if v.inflight[board.KeyCreate] {
		t.Error("create key should be released after the result arrives")
	}
}

func TestBoardAddBlockedWhileSynchronizerBusy(t *testing.T) {
	svc := newFakeBoard()
	v := activeBoard(t, svc)
	svc.busy[board.KeyCreate] = true

	v, _ = v.Update(keyPress("a"))
	if v.Mode() != BoardModeNormal {
		t.Error("add form should not open while a create is running")
	}
}

func TestBoardReloadErrorClosesForm(t *testing.T) {
	svc := newFakeBoard()
	svc.mutateErr = &board.ReloadError{Op: "create task", Err: errors.New("connection reset")}
	v := activeBoard(t, svc)

	v, _ = v.Update(keyPress("a"))
	v = fillTaskForm(v, "Saved anyway", "", "today")
	v, cmd := v.Update(keyPress("enter"))
	v, _ = v.Update(cmd())

	if v.Mode() != BoardModeNormal {
		t.Error("form should close once the server accepted the task")
	}
	if !strings.Contains(v.errMsg, "refreshing the board failed") {
		t.Errorf("error = %q, want the refresh failure", v.errMsg)
	}
}

func TestBoardFailedSaveKeepsForm(t *testing.T) {
	svc := newFakeBoard()
	svc.mutateErr = &model.FetchError{Op: "create task", Status: 400, Message: "Title too long"}
	v := activeBoard(t, svc)

	v, _ = v.Update(keyPress("a"))
	v = fillTaskForm(v, "Long", "", "today")
	v, cmd := v.Update(keyPress("enter"))
	v, _ = v.Update(cmd())

	if v.Mode() != BoardModeAdd {
		t.Error("form should stay open after a rejected save")
	}
	if v.errMsg != "Title too long" {
		t.Errorf("error = %q, want server message", v.errMsg)
	}
	if v.form.Value(fieldTitle) != "Long" {
		t.Error("form input should be kept")
	}
}

func TestBoardEditPrefillsAndSaves(t *testing.T) {
	svc := newFakeBoard(sampleTasks()...)
	v := activeBoard(t, svc)

	v, _ = v.Update(keyPress("e"))
	if v.Mode() != BoardModeEdit {
		t.Fatalf("mode = %v, want edit", v.Mode())
	}
	if got := v.form.Value(fieldTitle); got != "Write report" {
		t.Errorf("title field = %q, want %q", got, "Write report")
	}
	if got := v.form.Value(fieldDue); got != "2025-09-12" {
		t.Errorf("due field = %q, want 2025-09-12", got)
	}

	v.form = v.form.SetValue(fieldTitle, "Write final report")
	v, cmd := v.Update(keyPress("enter"))
	v, _ = v.Update(cmd())

	if d, ok := svc.updated["t1"]; !ok || d.Title != "Write final report" {
		t.Errorf("UpdateFields got %+v, want new title for t1", svc.updated)
	}
	if v.Mode() != BoardModeNormal || v.statusMsg != "Task updated" {
		t.Errorf("mode = %v, status = %q after edit", v.Mode(), v.statusMsg)
	}
}

func TestBoardMoveTask(t *testing.T) {
	svc := newFakeBoard(sampleTasks()...)
	v := activeBoard(t, svc)

	v, cmd := v.Update(keyPress("L"))
	if cmd == nil {
		t.Fatal("L should move the task right")
	}
	v, _ = v.Update(cmd())
	if got := svc.statuses["t1"]; got != model.StatusInProgress {
		t.Errorf("status of t1 = %q, want in-progress", got)
	}

	// Already in the first column
	v, cmd = v.Update(keyPress("H"))
	if cmd != nil {
		t.Error("H in the first column should do nothing")
	}

	v, cmd = v.Update(keyPress("3"))
	if cmd == nil {
		t.Fatal("3 should complete the selected task")
	}
	v.Update(cmd())
	if got := svc.statuses["t2"]; got != model.StatusCompleted {
		t.Errorf("status of t2 = %q, want completed", got)
	}
}

func TestBoardDeleteConfirmAndCancel(t *testing.T) {
	svc := newFakeBoard(sampleTasks()...)
	v := activeBoard(t, svc)

	v, _ = v.Update(keyPress("d"))
	if v.Mode() != BoardModeConfirmDelete {
		t.Fatalf("mode = %v, want confirm delete", v.Mode())
	}
	v, cmd := v.Update(keyPress("n"))
	if cmd != nil || svc.cancelled != 1 {
		t.Errorf("n should cancel without a request, cancelled = %d", svc.cancelled)
	}
	if len(svc.deleted) != 0 {
		t.Error("nothing should be deleted after cancel")
	}

	v, _ = v.Update(keyPress("d"))
	v, cmd = v.Update(keyPress("y"))
	if cmd == nil {
		t.Fatal("y should send the delete")
	}
	v, _ = v.Update(cmd())
	if len(svc.deleted) != 1 || svc.deleted[0] != "t1" {
		t.Errorf("deleted = %v, want [t1]", svc.deleted)
	}
	if _, ok := v.Board().Find("t1"); ok {
		t.Error("deleted task still on the board")
	}
	if v.statusMsg != "Task deleted" {
		t.Errorf("status = %q, want %q", v.statusMsg, "Task deleted")
	}
}

func TestBoardDeactivateCancelsPendingDelete(t *testing.T) {
	svc := newFakeBoard(sampleTasks()...)
	v := activeBoard(t, svc)

	v, _ = v.Update(keyPress("d"))
	v = v.Deactivate()
	if svc.cancelled != 1 {
		t.Errorf("cancelled = %d, want 1", svc.cancelled)
	}
	if v.Mode() != BoardModeNormal {
		t.Error("mode should reset on deactivate")
	}
}

func TestBoardSearchFiltersColumns(t *testing.T) {
	svc := newFakeBoard(sampleTasks()...)
	v := activeBoard(t, svc)

	v, _ = v.Update(keyPress("/"))
	if !v.IsInputMode() {
		t.Fatal("search should capture keys")
	}
	v.search.SetValue("review")
	v, _ = v.Update(keyPress("enter"))

	if got := len(v.filteredColumn(0)); got != 1 {
		t.Errorf("pending column shows %d tasks, want 1", got)
	}
	if task, _ := v.currentTask(); task.ID != "t2" {
		t.Errorf("selected %q, want t2", task.ID)
	}

	v, _ = v.Update(keyPress("esc"))
	if got := len(v.filteredColumn(0)); got != 2 {
		t.Errorf("after clearing the filter pending shows %d tasks, want 2", got)
	}
}

func TestBoardLogoutKey(t *testing.T) {
	v := activeBoard(t, newFakeBoard())
	_, cmd := v.Update(keyPress("X"))
	if cmd == nil {
		t.Fatal("X should log out")
	}
	if _, ok := cmd().(LogoutMsg); !ok {
		t.Errorf("got %T, want LogoutMsg", cmd())
	}
}

func TestBoardViewRendersColumns(t *testing.T) {
	v := activeBoard(t, newFakeBoard(sampleTasks()...))
	out := v.View()
	for _, want := range []string{"To Do (2)", "In Progress (1)", "Completed (0)", "Write report"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}
}
