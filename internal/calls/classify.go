package calls

import "fmt"

// connectMarker is the well-known literal the dialplan places as the second
// application argument when a channel was dialed by another channel under
// daemon control. Its presence turns a channel entry into a connect event.
const connectMarker = "dialed_from"

// StartEvent is the daemon-side view of a channel entering the control
// application.
type StartEvent struct {
	ChannelID string
	// Args are the application arguments the dialplan passed along.
	Args []string
	// Application is the control application name the event was declared
	// for.
	Application string
	// ReplaceChannelID is set when the switch signals that a blind
	// transfer created this channel as a pairing replacement.
	ReplaceChannelID string
}

// Classified is the tagged union produced by Classify. Exactly one of the
// concrete types below is returned for a well-formed event.
type Classified interface {
	isClassified()
}

// ConnectCall marks an entry caused by another channel dialing this one;
// OriginatorID is the channel that dialed.
type ConnectCall struct {
	OriginatorID string
}

// NewCall marks a first-contact entry, keyed by application name and an
// optional application instance.
type NewCall struct {
	Application string
	Instance    string
}

func (ConnectCall) isClassified() {}
func (NewCall) isClassified()     {}

// Classify decides how a channel entry is to be handled. A connect-shaped
// argument list that is missing its originator is a local design error: the
// dialplan and the daemon disagree about the protocol, and the call must
// fail loudly rather than be dropped on the floor.
func Classify(ev StartEvent) (Classified, error) {
	if len(ev.Args) >= 2 && ev.Args[1] == connectMarker {
		if len(ev.Args) < 3 || ev.Args[2] == "" {
			return nil, fmt.Errorf("connect event on channel %s is missing its originator: args %v", ev.ChannelID, ev.Args)
		}
		return ConnectCall{OriginatorID: ev.Args[2]}, nil
	}

	newCall := NewCall{Application: ev.Application}
	if len(ev.Args) >= 1 {
		newCall.Instance = ev.Args[0]
	}
	return newCall, nil
}
