package oauth2

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// FlowState is a step of the authorization-code exchange
type FlowState int

const (
	// StateRedirected: the user was sent to the provider and a callback arrived
	StateRedirected FlowState = iota
	// StateExchanging: trading the code for an access token
	StateExchanging
	// StateReconciling: fetching the profile and mapping it onto a local record
	StateReconciling
	// StateDone: a session token was issued
	StateDone
	// StateFailed: terminal failure, see Flow.Err
	StateFailed
)

var flowStateNames = map[FlowState]string{
	StateRedirected:  "redirected",
	StateExchanging:  "exchanging",
	StateReconciling: "reconciling",
	StateDone:        "done",
	StateFailed:      "failed",
}

func (s FlowState) String() string {
	if name, ok := flowStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("FlowState(%d)", int(s))
}

// Terminal reports whether no further transition is possible
func (s FlowState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

var allowedTransitions = map[FlowState][]FlowState{
	StateRedirected:  {StateExchanging, StateFailed},
	StateExchanging:  {StateReconciling, StateFailed},
	StateReconciling: {StateDone, StateFailed},
}

// FailureTag is the short reason placed on the error redirect
type FailureTag string

const (
	TagNoCode        FailureTag = "no_code"
	TagNoEmail       FailureTag = "no_email"
	TagOAuthError    FailureTag = "oauth_error"
	TagAccountExists FailureTag = "account_exists"
)

var (
	ErrNoCode            = errors.New("authorization code missing")
	ErrNoEmail           = errors.New("provider returned no email")
	ErrNoProviderID      = errors.New("provider returned no account id")
	ErrStateMismatch     = errors.New("oauth state mismatch")
	ErrInvalidTransition = errors.New("invalid flow transition")
)

// FlowError pairs a failure with the tag reported to the browser
type FlowError struct {
	Tag FailureTag
	Err error
}

func (e *FlowError) Error() string {
	if e.Err == nil {
		return string(e.Tag)
	}
	return fmt.Sprintf("%s: %v", e.Tag, e.Err)
}

func (e *FlowError) Unwrap() error { return e.Err }

// Fail wraps err with a tag. HandleUserFunc implementations return this to
// choose the tag reported to the browser, anything else maps to TagOAuthError.
func Fail(tag FailureTag, err error) *FlowError {
	return &FlowError{Tag: tag, Err: err}
}

// Flow tracks one callback through the exchange
type Flow struct {
	Provider     string
	Token        *oauth2.Token
	UserInfo     *UserInfo
	SessionToken string
	Err          *FlowError

	state   FlowState
	history []FlowState
}

func NewFlow(provider string) *Flow {
	return &Flow{
		Provider: provider,
		state:    StateRedirected,
		history:  []FlowState{StateRedirected},
	}
}

func (f *Flow) State() FlowState { return f.state }

// History lists every state the flow has passed through, in order
func (f *Flow) History() []FlowState {
	out := make([]FlowState, len(f.history))
	copy(out, f.history)
	return out
}

func (f *Flow) transition(to FlowState) error {
	for _, next := range allowedTransitions[f.state] {
		if next == to {
			f.state = to
			f.history = append(f.history, to)
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, f.state, to)
}

// fail moves the flow into StateFailed. A flow that already finished is left alone.
func (f *Flow) fail(tag FailureTag, err error) *Flow {
	if f.state.Terminal() {
		return f
	}
	var fe *FlowError
	if errors.As(err, &fe) {
		f.Err = fe
	} else {
		f.Err = Fail(tag, err)
	}
	f.state = StateFailed
	f.history = append(f.history, StateFailed)
	return f
}

func (f *Flow) complete(sessionToken string) *Flow {
	if err := f.transition(StateDone); err != nil {
		return f.fail(TagOAuthError, err)
	}
	f.SessionToken = sessionToken
	return f
}
