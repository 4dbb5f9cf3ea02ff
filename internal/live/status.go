package live

// Status is the connection state of the change feed.
type Status int

const (
	StatusConnecting Status = iota
	StatusSubscribed
	StatusChannelError
	StatusTimedOut
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "CONNECTING"
	case StatusSubscribed:
		return "SUBSCRIBED"
	case StatusChannelError:
		return "CHANNEL_ERROR"
	case StatusTimedOut:
		return "TIMED_OUT"
	case StatusClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

// ShowsConnecting reports whether the view should show a connecting
// indicator. Only a subscribed feed hides it.
func (s Status) ShowsConnecting() bool {
	return s != StatusSubscribed
}

// canTransition encodes the feed state machine. A failed dial moves straight
// from CONNECTING to an error state.
func canTransition(from, to Status) bool {
	switch from {
	case StatusConnecting:
		return to == StatusSubscribed || to == StatusChannelError || to == StatusTimedOut || to == StatusClosed
	case StatusSubscribed:
		return to == StatusChannelError || to == StatusTimedOut || to == StatusClosed
	case StatusChannelError, StatusTimedOut, StatusClosed:
		return to == StatusConnecting || to == StatusClosed
	}
	return false
}
