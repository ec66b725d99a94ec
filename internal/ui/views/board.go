package views

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dori/taskdeck/internal/board"
	"github.com/dori/taskdeck/internal/model"
	"github.com/dori/taskdeck/internal/session"
	"github.com/dori/taskdeck/internal/ui/theme"
)

// Reminder sends the due-date notifications after the first load
type Reminder interface {
	SendDueToday(tasks []model.Task, now time.Time) error
	SendOverdue(tasks []model.Task, now time.Time) error
}

// BoardMode represents the current input mode
type BoardMode int

const (
	BoardModeNormal BoardMode = iota
	BoardModeAdd
	BoardModeEdit
	BoardModeSearch
	BoardModeConfirmDelete
)

// Task form fields
const (
	fieldTitle = iota
	fieldDescription
	fieldDue
)

type boardLoadedMsg struct {
	gen   int
	board board.Board
	err   error
}

type boardMutatedMsg struct {
	gen   int
	key   string
	op    string
	board board.Board
	err   error
}

// BoardView is the three-column task board
type BoardView struct {
	svc      BoardService
	reminder Reminder
	now      func() time.Time
	width    int
	height   int

	// Bumped on every activation; results from older activations are dropped
	gen int

	board    board.Board
	loading  bool
	loaded   bool
	reminded bool

	// Navigation state
	column    int
	cursorRow int

	// Per-column scroll offset
	columnScroll [3]int

	// Requests started from this screen, keyed like the synchronizer's
	inflight map[string]bool

	mode    BoardMode
	form    Form
	editID  string
	search  textinput.Model
	filter  string
	pending board.PendingDelete

	statusMsg string
	errMsg    string
}

// NewBoardView creates a board backed by svc
func NewBoardView(svc BoardService, reminder Reminder, now func() time.Time) BoardView {
	if now == nil {
		now = time.Now
	}
	ti := textinput.New()
	ti.Prompt = ""
	ti.Placeholder = "Search..."
	ti.CharLimit = 256

	return BoardView{
		svc:      svc,
		reminder: reminder,
		now:      now,
		inflight: make(map[string]bool),
		search:   ti,
		form:     newTaskForm(),
	}
}

func newTaskForm() Form {
	return NewForm(
		FieldSpec{Label: "Title", Placeholder: "What needs doing?"},
		FieldSpec{Label: "Description", Placeholder: "optional", CharLimit: 1024},
		FieldSpec{Label: "Due", Placeholder: "today, friday, +3d or " + model.DateLayout},
	)
}

// Activate starts a fresh visit to the board: it shows the persisted board
// right away and fetches the current one.
func (v BoardView) Activate() (BoardView, tea.Cmd) {
	v.gen++
	v.mode = BoardModeNormal
	v.editID = ""
	v.errMsg = ""
	v.statusMsg = ""
	v.inflight = make(map[string]bool)
	v.reminded = false
	if b, ok := v.svc.Restore(); ok {
		v.board = b
	} else {
		v.board = v.svc.Snapshot()
	}
	v.clampCursor()
	return v.reload()
}

// Deactivate drops pending work when the user leaves the board
func (v BoardView) Deactivate() BoardView {
	v.gen++
	if v.mode == BoardModeConfirmDelete {
		v.svc.CancelDelete(v.pending)
	}
	v.mode = BoardModeNormal
	v.pending = board.PendingDelete{}
	v.inflight = make(map[string]bool)
	v.loading = false
	return v
}

// SetSize sets the view dimensions
func (v BoardView) SetSize(width, height int) BoardView {
	v.width = width
	v.height = height
	return v
}

// SetStatus shows a message in the board footer
func (v BoardView) SetStatus(msg string) BoardView {
	v.statusMsg = msg
	return v
}

// Board returns the board currently rendered
func (v BoardView) Board() board.Board { return v.board }

func (v BoardView) reload() (BoardView, tea.Cmd) {
	v.loading = true
	svc, gen := v.svc, v.gen
	return v, func() tea.Msg {
		b, err := svc.Load(context.Background())
		return boardLoadedMsg{gen: gen, board: b, err: err}
	}
}

func (v BoardView) mutate(key, op string, call func(context.Context) (board.Board, error)) (BoardView, tea.Cmd) {
	if v.inflight[key] || v.svc.Busy(key) {
		v.statusMsg = board.ErrInFlight.Error()
		return v, nil
	}
	v.inflight[key] = true
	gen := v.gen
	return v, func() tea.Msg {
		b, err := call(context.Background())
		return boardMutatedMsg{gen: gen, key: key, op: op, board: b, err: err}
	}
}

// Update handles messages
func (v BoardView) Update(msg tea.Msg) (BoardView, tea.Cmd) {
	switch msg := msg.(type) {
	case boardLoadedMsg:
		if msg.gen != v.gen {
			return v, nil
		}
		v.loading = false
		v.board = v.latest(msg.board)
		v.clampCursor()
		if msg.err != nil {
			return v.fail(msg.err)
		}
		v.loaded = true
		cmd := v.remind()
		v.reminded = true
		return v, cmd

	case boardMutatedMsg:
		if msg.gen != v.gen {
			return v, nil
		}
		delete(v.inflight, msg.key)
		v.board = v.latest(msg.board)
		v.clampCursor()
		return v.finishMutation(msg)

	case tea.KeyMsg:
		switch v.mode {
		case BoardModeAdd, BoardModeEdit:
			return v.handleFormMode(msg)
		case BoardModeSearch:
			return v.handleSearchMode(msg)
		case BoardModeConfirmDelete:
			return v.handleConfirmDeleteMode(msg)
		default:
			return v.handleNormalMode(msg)
		}
	}

	if v.mode == BoardModeAdd || v.mode == BoardModeEdit {
		var cmd tea.Cmd
		v.form, cmd = v.form.Update(msg)
		return v, cmd
	}
	if v.mode == BoardModeSearch {
		var cmd tea.Cmd
		v.search, cmd = v.search.Update(msg)
		return v, cmd
	}
	return v, nil
}

// latest prefers the synchronizer's board, which always holds the last
// completed reload, over the board carried by a message that may have
// been overtaken.
func (v BoardView) latest(fallback board.Board) board.Board {
	if b := v.svc.Snapshot(); !b.IsZero() || fallback.IsZero() {
		return b
	}
	return fallback
}

func (v BoardView) fail(err error) (BoardView, tea.Cmd) {
	v.errMsg = err.Error()
	if model.IsAuth(err) {
		return v, navigate(session.RouteLogin, "Your session has ended. Please log in again.", "")
	}
	return v, nil
}

func (v BoardView) finishMutation(msg boardMutatedMsg) (BoardView, tea.Cmd) {
	var reloadErr *board.ReloadError
	switch {
	case msg.err == nil:
		v.errMsg = ""
		v.statusMsg = doneMessage(msg.op)
		v.closeFormFor(msg.key)
		return v, nil
	case errors.As(msg.err, &reloadErr):
		// Saved on the server; only the refresh failed
		v.closeFormFor(msg.key)
		return v.fail(msg.err)
	case errors.Is(msg.err, board.ErrInFlight):
		v.statusMsg = msg.err.Error()
		return v, nil
	default:
		return v.fail(msg.err)
	}
}

func (v *BoardView) closeFormFor(key string) {
	switch {
	case key == board.KeyCreate && v.mode == BoardModeAdd:
	case v.mode == BoardModeEdit && key == board.EditKey(v.editID):
	default:
		return
	}
	v.mode = BoardModeNormal
	v.editID = ""
	v.form = v.form.Reset()
}

func doneMessage(op string) string {
	switch op {
	case "create":
		return "Task created"
	case "status":
		return "Status updated"
	case "edit":
		return "Task updated"
	case "delete":
		return "Task deleted"
	}
	return ""
}

func (v BoardView) remind() tea.Cmd {
	if v.reminder == nil || v.reminded {
		return nil
	}
	reminder, now := v.reminder, v.now()
	tasks := append([]model.Task(nil), v.board.Tasks...)
	return func() tea.Msg {
		_ = reminder.SendOverdue(tasks, now)
		_ = reminder.SendDueToday(tasks, now)
		return nil
	}
}

// handleNormalMode handles keys in normal mode
func (v BoardView) handleNormalMode(msg tea.KeyMsg) (BoardView, tea.Cmd) {
	v.errMsg = ""
	switch msg.String() {
	// Column navigation
	case "h", "left":
		if v.column > 0 {
			v.column--
			v.clampCursor()
		}
		return v, nil

	case "l", "right":
		if v.column < 2 {
			v.column++
			v.clampCursor()
		}
		return v, nil

	// Row navigation
	case "j", "down":
		col := v.filteredColumn(v.column)
		if v.cursorRow < len(col)-1 {
			v.cursorRow++
			v.ensureCursorVisible()
		}
		return v, nil

	case "k", "up":
		if v.cursorRow > 0 {
			v.cursorRow--
			v.ensureCursorVisible()
		}
		return v, nil

	case "g":
		v.cursorRow = 0
		v.columnScroll[v.column] = 0
		return v, nil

	case "G":
		col := v.filteredColumn(v.column)
		if len(col) > 0 {
			v.cursorRow = len(col) - 1
			v.ensureCursorVisible()
		}
		return v, nil

	// Move task between columns
	case "H":
		return v.moveTask(-1)
	case "L":
		return v.moveTask(1)
	case "1", "2", "3":
		return v.setStatus(model.Statuses()[int(msg.String()[0]-'1')])

	case "a":
		if v.inflight[board.KeyCreate] || v.svc.Busy(board.KeyCreate) {
			v.statusMsg = board.ErrInFlight.Error()
			return v, nil
		}
		v.mode = BoardModeAdd
		v.form = v.form.Reset()
		return v, nil

	case "e", "enter":
		task, ok := v.currentTask()
		if !ok {
			return v, nil
		}
		v.mode = BoardModeEdit
		v.editID = task.ID
		v.form = v.form.Reset().
			SetValue(fieldTitle, task.Title).
			SetValue(fieldDescription, task.Description).
			SetValue(fieldDue, task.DueDate.String())
		return v, nil

	case "d":
		task, ok := v.currentTask()
		if !ok {
			return v, nil
		}
		p, err := v.svc.RequestDelete(task.ID)
		if err != nil {
			return v.fail(err)
		}
		if p.Title == "" {
			p.Title = task.Title
		}
		v.pending = p
		v.mode = BoardModeConfirmDelete
		return v, nil

	case "r":
		v.statusMsg = "Refreshing..."
		return v.reload()

	case "/":
		v.mode = BoardModeSearch
		v.search.SetValue(v.filter)
		v.search.Focus()
		v.search.CursorEnd()
		return v, nil

	case "esc":
		if v.filter != "" {
			v.filter = ""
			v.statusMsg = "Filter cleared"
			v.clampCursor()
		}
		return v, nil

	case "X":
		return v, func() tea.Msg { return LogoutMsg{} }
	}

	return v, nil
}

// handleFormMode handles keys while the add or edit form is open
func (v BoardView) handleFormMode(msg tea.KeyMsg) (BoardView, tea.Cmd) {
	switch msg.String() {
	case "esc":
		v.mode = BoardModeNormal
		v.editID = ""
		v.errMsg = ""
		return v, nil
	case "enter":
		return v.submitForm()
	}

	var cmd tea.Cmd
	v.form, cmd = v.form.Update(msg)
	return v, cmd
}

func (v BoardView) submitForm() (BoardView, tea.Cmd) {
	due, err := model.ParseDue(v.form.Value(fieldDue), v.now())
	if err != nil {
		v.errMsg = err.Error()
		return v, nil
	}
	draft := model.TaskDraft{
		Title:       v.form.Value(fieldTitle),
		Description: v.form.Value(fieldDescription),
		DueDate:     due,
	}.Normalized()
	if err := draft.Validate(); err != nil {
		v.errMsg = err.Error()
		return v, nil
	}
	v.errMsg = ""

	svc := v.svc
	if v.mode == BoardModeAdd {
		v.statusMsg = "Saving..."
		return v.mutate(board.KeyCreate, "create", func(ctx context.Context) (board.Board, error) {
			return svc.Create(ctx, draft)
		})
	}

	id := v.editID
	v.statusMsg = "Saving..."
	return v.mutate(board.EditKey(id), "edit", func(ctx context.Context) (board.Board, error) {
		return svc.UpdateFields(ctx, id, draft)
	})
}

// handleSearchMode handles keys in search mode
func (v BoardView) handleSearchMode(msg tea.KeyMsg) (BoardView, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		v.filter = strings.TrimSpace(v.search.Value())
		v.mode = BoardModeNormal
		v.search.Blur()
		v.cursorRow = 0
		for i := range v.columnScroll {
			v.columnScroll[i] = 0
		}
		return v, nil
	}

	var cmd tea.Cmd
	v.search, cmd = v.search.Update(msg)
	return v, cmd
}

// handleConfirmDeleteMode handles keys in delete confirmation mode
func (v BoardView) handleConfirmDeleteMode(msg tea.KeyMsg) (BoardView, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		v.mode = BoardModeNormal
		p := v.pending
		v.pending = board.PendingDelete{}
		svc := v.svc
		return v.mutate(board.DeleteKey(p.ID), "delete", func(ctx context.Context) (board.Board, error) {
			return svc.ConfirmDelete(ctx, p)
		})
	case "n", "N", "esc":
		v.svc.CancelDelete(v.pending)
		v.mode = BoardModeNormal
		v.pending = board.PendingDelete{}
		return v, nil
	}
	return v, nil
}

func (v BoardView) moveTask(direction int) (BoardView, tea.Cmd) {
	target := v.column + direction
	if target < 0 || target > 2 {
		return v, nil
	}
	return v.setStatus(model.Statuses()[target])
}

func (v BoardView) setStatus(status model.Status) (BoardView, tea.Cmd) {
	task, ok := v.currentTask()
	if !ok || task.Status == status {
		return v, nil
	}
	svc, id := v.svc, task.ID
	return v.mutate(board.StatusKey(id), "status", func(ctx context.Context) (board.Board, error) {
		return svc.ChangeStatus(ctx, id, status)
	})
}

func (v BoardView) currentTask() (model.Task, bool) {
	col := v.filteredColumn(v.column)
	if v.cursorRow < 0 || v.cursorRow >= len(col) {
		return model.Task{}, false
	}
	return col[v.cursorRow], true
}

// filteredColumn returns the tasks of a column after applying the search filter
func (v BoardView) filteredColumn(col int) []model.Task {
	tasks := v.board.Column(model.Statuses()[col])
	if v.filter == "" {
		return tasks
	}

	needle := strings.ToLower(v.filter)
	var filtered []model.Task
	for _, task := range tasks {
		if strings.Contains(strings.ToLower(task.Title), needle) ||
			strings.Contains(strings.ToLower(task.Description), needle) {
			filtered = append(filtered, task)
		}
	}
	return filtered
}

// clampCursor ensures cursor is valid for current column
func (v *BoardView) clampCursor() {
	col := v.filteredColumn(v.column)
	if v.cursorRow >= len(col) {
		if len(col) > 0 {
			v.cursorRow = len(col) - 1
		} else {
			v.cursorRow = 0
		}
	}
	v.ensureCursorVisible()
}

// ensureCursorVisible adjusts scroll to keep cursor in view
func (v *BoardView) ensureCursorVisible() {
	visible := v.visibleItemCount()
	if v.cursorRow >= v.columnScroll[v.column]+visible {
		v.columnScroll[v.column] = v.cursorRow - visible + 1
	}
	if v.cursorRow < v.columnScroll[v.column] {
		v.columnScroll[v.column] = v.cursorRow
	}
}

// visibleItemCount returns how many cards fit in a column. Border, header,
// footer and the two scroll indicators take seven lines.
func (v BoardView) visibleItemCount() int {
	if v.height == 0 {
		return 5
	}
	if n := v.height - 7; n > 0 {
		return n
	}
	return 1
}

// View renders the board
func (v BoardView) View() string {
	if v.width == 0 || v.height == 0 {
		return "Loading..."
	}

	if v.mode == BoardModeAdd || v.mode == BoardModeEdit {
		return v.renderForm()
	}

	t := theme.Current.Theme
	styles := theme.Current.Styles
	now := v.now()

	colWidth := (v.width - 4) / 3
	if colWidth < 24 {
		colWidth = 24
	}

	columnStyle := lipgloss.NewStyle().
		Width(colWidth).
		Height(v.height - 3).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(t.Border)

	var headers, cols []string
	visible := v.visibleItemCount()
	for i, status := range model.Statuses() {
		tasks := v.filteredColumn(i)
		active := i == v.column

		header := fmt.Sprintf("%s (%d)", status.Label(), len(tasks))
		if total := len(v.board.Column(status)); v.filter != "" && total != len(tasks) {
			header = fmt.Sprintf("%s (%d/%d)", status.Label(), len(tasks), total)
		}
		hs := lipgloss.NewStyle().
			Bold(true).
			Foreground(t.StatusColor(status)).
			Width(colWidth).
			Align(lipgloss.Center)
		if active {
			hs = hs.Background(t.Highlight)
		}
		headers = append(headers, hs.Render(header))

		start := v.columnScroll[i]
		if start > len(tasks) {
			start = len(tasks)
		}
		end := start + visible
		if end > len(tasks) {
			end = len(tasks)
		}

		var items []string
		if start > 0 {
			items = append(items, scrollHint(colWidth, fmt.Sprintf("↑ %d more", start)))
		}
		for j := start; j < end; j++ {
			items = append(items, v.renderCard(tasks[j], active && j == v.cursorRow, colWidth, now))
		}
		if end < len(tasks) {
			items = append(items, scrollHint(colWidth, fmt.Sprintf("↓ %d more", len(tasks)-end)))
		}

		content := strings.Join(items, "\n")
		if len(tasks) == 0 {
			empty := "(empty)"
			if v.loading && !v.loaded {
				empty = "loading..."
			}
			content = lipgloss.NewStyle().Foreground(t.Subtle).Italic(true).Render(empty)
		}

		cs := columnStyle
		if active {
			cs = cs.BorderForeground(t.Primary)
		}
		cols = append(cols, cs.Render(content))
	}

	headerRow := lipgloss.JoinHorizontal(lipgloss.Top, headers...)
	columnsRow := lipgloss.JoinHorizontal(lipgloss.Top, cols...)

	var footer string
	switch v.mode {
	case BoardModeSearch:
		footer = styles.InputFocused.Width(v.width - 4).Render("Search: " + v.search.View())
	case BoardModeConfirmDelete:
		footer = lipgloss.NewStyle().Foreground(t.Error).Bold(true).
			Render(fmt.Sprintf("Delete '%s'? (y/n)", v.pending.Title))
	default:
		footer = v.renderStatusLine()
	}

	return lipgloss.JoinVertical(lipgloss.Left, headerRow, columnsRow, footer)
}

func scrollHint(width int, text string) string {
	return lipgloss.NewStyle().
		Foreground(theme.Current.Theme.Subtle).
		Width(width - 4).
		Align(lipgloss.Center).
		Render(text)
}

func (v BoardView) renderCard(task model.Task, selected bool, colWidth int, now time.Time) string {
	styles := theme.Current.Styles
	busy := v.inflight[board.StatusKey(task.ID)] ||
		v.inflight[board.EditKey(task.ID)] ||
		v.inflight[board.DeleteKey(task.ID)]

	style := styles.TaskNormal
	switch {
	case busy:
		style = styles.TaskBusy
	case selected:
		style = styles.TaskSelected
	case task.Status == model.StatusCompleted:
		style = styles.TaskDone
	case task.IsOverdue(now):
		style = styles.TaskOverdue
	}
	style = style.Width(colWidth - 4)

	due := model.FormatDue(task.DueDate, now)
	maxTitle := colWidth - 8 - len(due)
	if maxTitle < 10 {
		maxTitle = 10
	}
	title := task.Title
	if len([]rune(title)) > maxTitle {
		title = string([]rune(title)[:maxTitle-3]) + "..."
	}

	marker := " "
	if busy {
		marker = "…"
	}
	line := marker + " " + title
	if due != "" {
		line += " " + styles.DueDate.Render(due)
	}
	return style.Render(line)
}

func (v BoardView) renderStatusLine() string {
	styles := theme.Current.Styles
	switch {
	case v.errMsg != "":
		return styles.ErrorText.Render(v.errMsg)
	case v.statusMsg != "":
		return styles.InfoText.Render(v.statusMsg)
	case v.filter != "":
		return styles.InfoText.Render("[Search: "+v.filter+"] ") + styles.HelpDesc.Render("esc: clear")
	case !v.board.FetchedAt.IsZero():
		return styles.HelpDesc.Render("updated " + v.board.FetchedAt.Format("15:04:05"))
	}
	return ""
}

func (v BoardView) renderForm() string {
	styles := theme.Current.Styles
	title := "New task"
	if v.mode == BoardModeEdit {
		title = "Edit task"
	}

	width := v.width - 10
	if width > 70 {
		width = 70
	}

	var b strings.Builder
	b.WriteString(styles.Title.Render(title))
	b.WriteString("\n")
	b.WriteString(v.form.View(width))
	b.WriteString("\n\n")
	if v.inflight[board.KeyCreate] && v.mode == BoardModeAdd ||
		v.inflight[board.EditKey(v.editID)] && v.mode == BoardModeEdit {
		b.WriteString(styles.Button.Render("[ Saving... ]"))
	} else {
		b.WriteString(styles.ButtonActive.Render("[ Save ]"))
	}
	if v.errMsg != "" {
		b.WriteString("\n\n")
		b.WriteString(styles.ErrorText.Render(v.errMsg))
	}
	return styles.Panel.Render(b.String())
}

// IsInputMode returns whether the view is in input mode
func (v BoardView) IsInputMode() bool {
	return v.mode != BoardModeNormal
}

// Mode returns the current input mode
func (v BoardView) Mode() BoardMode { return v.mode }
