package tui

import (
	"fmt"
	"io"
	"time"

	tea "charm.land/bubbletea/v2"
)

// Displayer abstracts all progress output of fleetctl commands. Command
// results go to stdout separately; a Displayer only reports what is happening.
type Displayer interface {
	Banner(env, baseURL string)
	LoggingIn(email string)
	LoggedIn(user string, expiresAt time.Time)
	LoginFailed(err error)
	LoggedOut()
	Requesting(what string)
	Retrying(attempt int, delay time.Duration, err error)
	Refreshing()
	RefreshOK()
	RefreshFailed(err error)
	SessionExpired(reason string)
	UploadProgress(percent int)
	TokenSaved(path string)
	TokenSaveFailed(err error)
	Done(summary string)
	Fatal(err error)
}

// PlainDisplayer writes plain text output to w.
// Used when stderr is not a TTY (pipes, CI, SSH without pty).
type PlainDisplayer struct {
	w io.Writer

	lastStep int
}

// NewPlainDisplayer creates a PlainDisplayer that writes to w.
func NewPlainDisplayer(w io.Writer) *PlainDisplayer {
	return &PlainDisplayer{w: w, lastStep: -1}
}

func (p *PlainDisplayer) Banner(env, baseURL string) {
	fmt.Fprintf(p.w, "=== fleetctl (%s: %s) ===\n", env, baseURL)
}

func (p *PlainDisplayer) LoggingIn(email string) {
	fmt.Fprintf(p.w, "Logging in as %s...\n", email)
}

func (p *PlainDisplayer) LoggedIn(user string, expiresAt time.Time) {
	if expiresAt.IsZero() {
		fmt.Fprintf(p.w, "Logged in as %s\n", user)
		return
	}
	fmt.Fprintf(p.w, "Logged in as %s (token expires %s)\n", user, expiresAt.Format(time.RFC3339))
}

func (p *PlainDisplayer) LoginFailed(err error) {
	fmt.Fprintf(p.w, "Login failed: %v\n", err)
}

func (p *PlainDisplayer) LoggedOut() {
	fmt.Fprintln(p.w, "Logged out, local tokens cleared")
}

func (p *PlainDisplayer) Requesting(what string) {
	fmt.Fprintf(p.w, "%s...\n", what)
}

func (p *PlainDisplayer) Retrying(attempt int, delay time.Duration, err error) {
	fmt.Fprintf(p.w, "Attempt %d failed (%v), retrying in %s\n", attempt+1, err, delay)
}

func (p *PlainDisplayer) Refreshing() {
	fmt.Fprintln(p.w, "Access token rejected (401), refreshing...")
}

func (p *PlainDisplayer) RefreshOK() {
	fmt.Fprintln(p.w, "Token refreshed, replaying request...")
}

func (p *PlainDisplayer) RefreshFailed(err error) {
	fmt.Fprintf(p.w, "Refresh failed: %v\n", err)
}

func (p *PlainDisplayer) SessionExpired(reason string) {
	fmt.Fprintf(p.w, "Session expired (%s), run 'fleetctl login' to sign in again\n", reason)
}

// UploadProgress prints every 10% step; a pipe has no use for each percent.
func (p *PlainDisplayer) UploadProgress(percent int) {
	step := percent / 10
	if step == p.lastStep {
		return
	}
	p.lastStep = step
	fmt.Fprintf(p.w, "Uploading... %d%%\n", percent)
}

func (p *PlainDisplayer) TokenSaved(path string) {
	fmt.Fprintf(p.w, "Tokens saved to %s\n", path)
}

func (p *PlainDisplayer) TokenSaveFailed(err error) {
	fmt.Fprintf(p.w, "Warning: Failed to save tokens: %v\n", err)
}

func (p *PlainDisplayer) Done(summary string) {
	if summary != "" {
		fmt.Fprintln(p.w, summary)
	}
}

func (p *PlainDisplayer) Fatal(err error) {
	fmt.Fprintf(p.w, "Error: %v\n", err)
}

// NoopDisplayer is a no-op implementation used in tests and with --quiet.
type NoopDisplayer struct{}

func (NoopDisplayer) Banner(_, _ string)                       {}
func (NoopDisplayer) LoggingIn(_ string)                       {}
func (NoopDisplayer) LoggedIn(_ string, _ time.Time)           {}
func (NoopDisplayer) LoginFailed(_ error)                      {}
func (NoopDisplayer) LoggedOut()                               {}
func (NoopDisplayer) Requesting(_ string)                      {}
func (NoopDisplayer) Retrying(_ int, _ time.Duration, _ error) {}
func (NoopDisplayer) Refreshing()                              {}
func (NoopDisplayer) RefreshOK()                               {}
func (NoopDisplayer) RefreshFailed(_ error)                    {}
func (NoopDisplayer) SessionExpired(_ string)                  {}
func (NoopDisplayer) UploadProgress(_ int)                     {}
func (NoopDisplayer) TokenSaved(_ string)                      {}
func (NoopDisplayer) TokenSaveFailed(_ error)                  {}
func (NoopDisplayer) Done(_ string)                            {}
func (NoopDisplayer) Fatal(_ error)                            {}

// ProgramDisplayer sends BubbleTea messages to a running tea.Program.
type ProgramDisplayer struct {
	p *tea.Program
}

// NewProgramDisplayer creates a ProgramDisplayer that sends messages to p.
func NewProgramDisplayer(p *tea.Program) *ProgramDisplayer {
	return &ProgramDisplayer{p: p}
}

func (t *ProgramDisplayer) Banner(env, baseURL string) {
	t.p.Send(MsgBanner{Env: env, BaseURL: baseURL})
}

func (t *ProgramDisplayer) LoggingIn(email string) {
	t.p.Send(MsgLoggingIn{Email: email})
}

func (t *ProgramDisplayer) LoggedIn(user string, expiresAt time.Time) {
	t.p.Send(MsgLoggedIn{User: user, ExpiresAt: expiresAt})
}

func (t *ProgramDisplayer) LoginFailed(err error) {
	t.p.Send(MsgLoginFailed{Err: err})
}

func (t *ProgramDisplayer) LoggedOut() {
	t.p.Send(MsgLoggedOut{})
}

func (t *ProgramDisplayer) Requesting(what string) {
	t.p.Send(MsgRequesting{What: what})
}

func (t *ProgramDisplayer) Retrying(attempt int, delay time.Duration, err error) {
	t.p.Send(MsgRetrying{Attempt: attempt, Delay: delay, Err: err})
}

func (t *ProgramDisplayer) Refreshing() {
	t.p.Send(MsgRefreshing{})
}

func (t *ProgramDisplayer) RefreshOK() {
	t.p.Send(MsgRefreshOK{})
}

func (t *ProgramDisplayer) RefreshFailed(err error) {
	t.p.Send(MsgRefreshFailed{Err: err})
}

func (t *ProgramDisplayer) SessionExpired(reason string) {
	t.p.Send(MsgSessionExpired{Reason: reason})
}

func (t *ProgramDisplayer) UploadProgress(percent int) {
	t.p.Send(MsgUploadProgress{Percent: percent})
}

func (t *ProgramDisplayer) TokenSaved(path string) {
	t.p.Send(MsgTokenSaved{Path: path})
}

func (t *ProgramDisplayer) TokenSaveFailed(err error) {
	t.p.Send(MsgTokenSaveFailed{Err: err})
}

func (t *ProgramDisplayer) Done(summary string) {
	t.p.Send(MsgDone{Summary: summary})
}

func (t *ProgramDisplayer) Fatal(err error) {
	t.p.Send(MsgFatal{Err: err})
}
