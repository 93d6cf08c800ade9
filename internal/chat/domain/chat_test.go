package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 測試 群組用名字, 1:1 私訊用對方全名, 多人私訊顯示人數
func TestChat_DisplayName(t *testing.T) {
	name := "general"
	group := Chat{ID: "c1", Name: &name}
	assert.False(t, group.Direct())
	assert.Equal(t, "general", group.DisplayName("u1"))

	dm := Chat{ID: "c2", Members: []UserNode{
		{ID: "u1", Username: "alice", FirstName: "Alice", LastName: "Liu"},
		{ID: "u2", Username: "bob", FirstName: "Bob", LastName: "Chen"},
	}}
	assert.True(t, dm.Direct())
	assert.Equal(t, "Bob Chen", dm.DisplayName("u1"))
	assert.Equal(t, "Alice Liu", dm.DisplayName("u2"))

	noName := Chat{ID: "c3", Members: []UserNode{{ID: "u1"}, {ID: "u2", Username: "bob"}}}
	assert.Equal(t, "bob", noName.DisplayName("u1"))

	many := Chat{ID: "c4", Members: []UserNode{{ID: "u1"}, {ID: "u2"}, {ID: "u3"}}}
	assert.Equal(t, "Direct Message (3 people)", many.DisplayName("u1"))
}

// 測試 chat_updated 解析
func TestDecodeChatUpdated(t *testing.T) {
	c, err := DecodeChatUpdated(json.RawMessage(`{"id":"c1","name":null,"private":true,"members":[{"id":"u2","username":"bob","firstName":"Bob","lastName":"Chen"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)
	assert.True(t, c.Direct())
	assert.True(t, c.Private)
	require.Len(t, c.Members, 1)
	assert.Equal(t, "bob", c.Members[0].Username)

	_, err = DecodeChatUpdated(json.RawMessage(`{"name":"x"}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
	_, err = DecodeChatUpdated(json.RawMessage(`[1,2]`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}
