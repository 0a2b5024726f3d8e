package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/chatrelay/chatrelay/pkg/types"
)

// renderer prints conversation turns to a terminal.
type renderer struct {
	out  io.Writer
	json bool

	user      *color.Color
	assistant *color.Color
	dim       *color.Color
	fail      *color.Color
}

func newRenderer(out io.Writer, noColor, asJSON bool) *renderer {
	if noColor {
		color.NoColor = true
	}
	return &renderer{
		out:       out,
		json:      asJSON,
		user:      color.New(color.FgCyan, color.Bold),
		assistant: color.New(color.FgGreen, color.Bold),
		dim:       color.New(color.FgHiBlack),
		fail:      color.New(color.FgRed),
	}
}

func (r *renderer) emit(kind string, fields map[string]any) {
	fields["type"] = kind
	b, _ := json.Marshal(fields)
	fmt.Fprintln(r.out, string(b))
}

func (r *renderer) Banner(sess *types.Session, promptName, welcome string) {
	if r.json {
		r.emit("session", map[string]any{"session_id": sess.ID, "mode": sess.Mode, "prompt": promptName})
		return
	}
	fmt.Fprintln(r.out, r.dim.Sprintf("session %s (%s, %s)", sess.ID, sess.Mode, promptName))
	if welcome != "" {
		r.Assistant(welcome)
	}
}

func (r *renderer) Info(format string, args ...any) {
	if r.json {
		r.emit("info", map[string]any{"text": fmt.Sprintf(format, args...)})
		return
	}
	fmt.Fprintln(r.out, r.dim.Sprintf(format, args...))
}

func (r *renderer) User(text string) {
	if r.json {
		r.emit("user", map[string]any{"text": text})
		return
	}
	fmt.Fprintf(r.out, "%s %s\n", r.user.Sprint("you ›"), text)
}

func (r *renderer) Assistant(text string) {
	if r.json {
		r.emit("assistant", map[string]any{"text": text})
		return
	}
	fmt.Fprintf(r.out, "%s %s\n", r.assistant.Sprint("assistant ›"), text)
}

func (r *renderer) Error(err string) {
	if r.json {
		r.emit("error", map[string]any{"error": err})
		return
	}
	fmt.Fprintln(r.out, r.fail.Sprintf("error: %s", err))
}

// History prints every turn of msgs.
func (r *renderer) History(msgs []types.Message) {
	for _, m := range msgs {
		switch m.Role {
		case types.RoleUser:
			r.User(m.Content)
		case types.RoleAssistant:
			r.Assistant(m.Content)
		default:
			r.Info("[%s] %s", m.Role, m.Content)
		}
	}
}
