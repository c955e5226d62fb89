package tui

import (
	"time"
)

// MsgBanner signals that the banner/title should be displayed.
type MsgBanner struct {
	Env     string
	BaseURL string
}

// MsgLoggingIn signals that credentials are being exchanged for tokens.
type MsgLoggingIn struct{ Email string }

// MsgLoggedIn signals a successful login.
type MsgLoggedIn struct {
	User      string
	ExpiresAt time.Time
}

type MsgLoginFailed struct{ Err error }

type MsgLoggedOut struct{}

// MsgRequesting signals that an API call is in flight.
type MsgRequesting struct{ What string }

// MsgRetrying signals that a transient failure is being retried.
type MsgRetrying struct {
	Attempt int
	Delay   time.Duration
	Err     error
}

type MsgRefreshing struct{}

type MsgRefreshOK struct{}

type MsgRefreshFailed struct{ Err error }

// MsgSessionExpired signals that stored credentials were cleared and the
// user has to log in again.
type MsgSessionExpired struct{ Reason string }

// MsgUploadProgress carries an upload percentage in [0, 100].
type MsgUploadProgress struct{ Percent int }

// MsgTokenSaved signals that tokens were persisted.
type MsgTokenSaved struct{ Path string }

type MsgTokenSaveFailed struct{ Err error }

// MsgDone signals that the command finished; Summary is shown in the final view.
type MsgDone struct{ Summary string }

// MsgFatal signals a fatal error that should terminate the command.
type MsgFatal struct{ Err error }
