package views

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dori/taskdeck/internal/ui/theme"
)

// FieldSpec describes one input of a Form
type FieldSpec struct {
	Label       string
	Placeholder string
	Password    bool
	CharLimit   int
}

// Form is a vertical stack of labelled text inputs with tab navigation
type Form struct {
	labels []string
	inputs []textinput.Model
	focus  int
}

// NewForm creates a form with the first field focused
func NewForm(specs ...FieldSpec) Form {
	f := Form{
		labels: make([]string, len(specs)),
		inputs: make([]textinput.Model, len(specs)),
	}
	for i, spec := range specs {
		ti := textinput.New()
		ti.Prompt = ""
		ti.Placeholder = spec.Placeholder
		ti.CharLimit = spec.CharLimit
		if ti.CharLimit == 0 {
			ti.CharLimit = 256
		}
		if spec.Password {
			ti.EchoMode = textinput.EchoPassword
			ti.EchoCharacter = '•'
		}
		f.labels[i] = spec.Label
		f.inputs[i] = ti
	}
	return f.FocusField(0)
}

// Len returns the number of fields
func (f Form) Len() int { return len(f.inputs) }

// Focused returns the index of the focused field
func (f Form) Focused() int { return f.focus }

// Value returns the text of field i
func (f Form) Value(i int) string {
	if i < 0 || i >= len(f.inputs) {
		return ""
	}
	return f.inputs[i].Value()
}

// SetValue replaces the text of field i
func (f Form) SetValue(i int, s string) Form {
	if i < 0 || i >= len(f.inputs) {
		return f
	}
	f.inputs = append([]textinput.Model(nil), f.inputs...)
	f.inputs[i].SetValue(s)
	f.inputs[i].CursorEnd()
	return f
}

// Reset clears every field and focuses the first one
func (f Form) Reset() Form {
	f.inputs = append([]textinput.Model(nil), f.inputs...)
	for i := range f.inputs {
		f.inputs[i].Reset()
	}
	return f.FocusField(0)
}

// FocusField moves focus to field i
func (f Form) FocusField(i int) Form {
	if len(f.inputs) == 0 {
		return f
	}
	if i < 0 {
		i = len(f.inputs) - 1
	}
	if i >= len(f.inputs) {
		i = 0
	}
	f.inputs = append([]textinput.Model(nil), f.inputs...)
	for j := range f.inputs {
		if j == i {
			f.inputs[j].Focus()
		} else {
			f.inputs[j].Blur()
		}
	}
	f.focus = i
	return f
}

// Update moves focus on tab, shift+tab, up and down and sends every other
// key to the focused input. Enter and esc are left to the caller.
func (f Form) Update(msg tea.Msg) (Form, tea.Cmd) {
	if len(f.inputs) == 0 {
		return f, nil
	}
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "tab", "down":
			return f.FocusField(f.focus + 1), nil
		case "shift+tab", "up":
			return f.FocusField(f.focus - 1), nil
		}
	}

	f.inputs = append([]textinput.Model(nil), f.inputs...)
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return f, cmd
}

// View renders the fields, one labelled box per line
func (f Form) View(width int) string {
	styles := theme.Current.Styles
	if width < 20 {
		width = 20
	}

	var b strings.Builder
	for i, ti := range f.inputs {
		style := styles.Input
		if i == f.focus {
			style = styles.InputFocused
		}
		ti.Width = width - 4
		b.WriteString(styles.Label.Render(f.labels[i]))
		b.WriteString("\n")
		b.WriteString(style.Width(width).Render(ti.View()))
		if i < len(f.inputs)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
