package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoToken token store has no token
	ErrNoToken = errors.New("no auth token")
	// ErrNotConnected socket is not open
	ErrNotConnected = errors.New("socket not connected")
	// ErrChannelNotJoined push on a channel that is not joined
	ErrChannelNotJoined = errors.New("channel not joined")
	// ErrJoinTimeout no phx_reply for phx_join in time
	ErrJoinTimeout = errors.New("channel join timeout")
	// ErrInvalidPageSize page size must be > 0
	ErrInvalidPageSize = errors.New("invalid page size")
	// ErrMalformedPayload payload missing expected fields
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrRoomNotOpen room has no window
	ErrRoomNotOpen = errors.New("room not open")
	// ErrHandleReleased handle already left
	ErrHandleReleased = errors.New("channel handle released")
)

// JoinError server answered phx_join with status != ok
type JoinError struct {
	Topic  string
	Reason string
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join %s: %s", e.Topic, e.Reason)
}

// FetchOp which history fetch failed
type FetchOp string

const (
	// FetchInitial loadInitial
	FetchInitial FetchOp = "initial"
	// FetchOlder loadOlder
	FetchOlder FetchOp = "older"
)

// FetchError per room fetch failure, window untouched
type FetchError struct {
	RoomID string
	Op     FetchOp
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s messages for room %s: %v", e.Op, e.RoomID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// GraphQLError http status != 200 or errors[] in body
type GraphQLError struct {
	Status   int
	Messages []string
}

func (e *GraphQLError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("graphql: http status %d", e.Status)
	}
	return fmt.Sprintf("graphql: %s", strings.Join(e.Messages, "; "))
}

// Malformed wrap ErrMalformedPayload with the missing field
func Malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedPayload, fmt.Sprintf(format, args...))
}
