package domain

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

// 測試 錯誤型別
func TestErrors(t *testing.T) {
	fe := &FetchError{RoomID: "r1", Op: FetchOlder, Err: io.ErrUnexpectedEOF}
	assert.ErrorIs(t, fe, io.ErrUnexpectedEOF)
	assert.Contains(t, fe.Error(), "older")

	var je *JoinError
	assert.True(t, errors.As(error(&JoinError{Topic: "typing:r1", Reason: "forbidden"}), &je))
	assert.Equal(t, "join typing:r1: forbidden", je.Error())

	assert.Equal(t, "graphql: http status 502", (&GraphQLError{Status: 502}).Error())
	assert.Equal(t, "graphql: a; b", (&GraphQLError{Status: 200, Messages: []string{"a", "b"}}).Error())

	assert.Equal(t, "chat:view:room:r1", RoomViewChannel("r1"))
}
