package notify

import (
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/dori/taskdeck/internal/model"
)

// Urgency levels for notifications
type Urgency int

const (
	UrgencyLow Urgency = iota
	UrgencyNormal
	UrgencyCritical
)

// Notification represents a desktop notification
type Notification struct {
	Title   string
	Body    string
	Urgency Urgency
	Timeout time.Duration
	Icon    string // Optional icon name
}

// Runner executes a command. Tests replace it to capture notify-send calls.
type Runner func(name string, args ...string) error

func execRunner(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// Notifier handles sending desktop notifications
type Notifier struct {
	enabled bool
	run     Runner
}

// NewNotifier creates a new notifier
func NewNotifier(enabled bool) *Notifier {
	return &Notifier{
		enabled: enabled,
		run:     execRunner,
	}
}

// WithRunner returns a copy of n that runs commands through r
func (n *Notifier) WithRunner(r Runner) *Notifier {
	c := *n
	c.run = r
	return &c
}

// Args returns the notify-send arguments for a notification
func Args(notification Notification) []string {
	args := []string{}

	switch notification.Urgency {
	case UrgencyLow:
		args = append(args, "-u", "low")
	case UrgencyCritical:
		args = append(args, "-u", "critical")
	default:
		args = append(args, "-u", "normal")
	}

	// milliseconds
	if notification.Timeout > 0 {
		args = append(args, "-t", strconv.Itoa(int(notification.Timeout.Milliseconds())))
	}

	if notification.Icon != "" {
		args = append(args, "-i", notification.Icon)
	}

	args = append(args, "-a", "taskdeck")

	args = append(args, notification.Title)
	if notification.Body != "" {
		args = append(args, notification.Body)
	}
	return args
}

// Send sends a desktop notification using notify-send
func (n *Notifier) Send(notification Notification) error {
	if n == nil || !n.enabled {
		return nil
	}
	return n.run("notify-send", Args(notification)...)
}

// SendSessionEnded tells the user they were signed out without asking to be
func (n *Notifier) SendSessionEnded(reason string) error {
	return n.Send(Notification{
		Title:   "Signed out",
		Body:    reason,
		Urgency: UrgencyNormal,
		Timeout: 10 * time.Second,
		Icon:    "system-lock-screen-symbolic",
	})
}

// SendDueToday lists the open tasks due today, if any
func (n *Notifier) SendDueToday(tasks []model.Task, now time.Time) error {
	var due []model.Task
	for _, t := range tasks {
		if t.Status != model.StatusCompleted && t.IsDueToday(now) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}

	body := due[0].Title
	if len(due) > 1 {
		body = fmt.Sprintf("%s and %d more", due[0].Title, len(due)-1)
	}
	return n.Send(Notification{
		Title:   "Due today",
		Body:    body,
		Urgency: UrgencyNormal,
		Timeout: 15 * time.Second,
		Icon:    "emblem-important-symbolic",
	})
}

// SendOverdue warns about open tasks past their due date
func (n *Notifier) SendOverdue(tasks []model.Task, now time.Time) error {
	count := 0
	for _, t := range tasks {
		if t.IsOverdue(now) {
			count++
		}
	}
	if count == 0 {
		return nil
	}

	body := "1 task is overdue"
	if count > 1 {
		body = fmt.Sprintf("%d tasks are overdue", count)
	}
	return n.Send(Notification{
		Title:   "Overdue",
		Body:    body,
		Urgency: UrgencyCritical,
		Timeout: 15 * time.Second,
		Icon:    "dialog-warning-symbolic",
	})
}
