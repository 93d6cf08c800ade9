package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 測試 產生 token 後讀出 user id
func TestUserIDFromToken(t *testing.T) {
	tok, err := GenerateJWTWrapper("u1", "alice")
	require.NoError(t, err)

	id, err := UserIDFromToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", id)

	id, err = UserIDFromToken("Bearer " + tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", id)

	_, err = UserIDFromToken("not-a-jwt")
	assert.Error(t, err)
}

// 測試 只有 sub 沒有 user_id
func TestParseUnverified_Subject(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u9"}).SignedString([]byte("server-only-key"))
	require.NoError(t, err)

	claims, err := ParseUnverified(tok)
	require.NoError(t, err)
	assert.Equal(t, "u9", claims.UserID)

	tok, err = jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"name": "x"}).SignedString([]byte("k"))
	require.NoError(t, err)
	_, err = ParseUnverified(tok)
	assert.ErrorIs(t, err, ErrNoUserID)
}

// 測試 過期判斷
func TestCheckJWTNotExpire(t *testing.T) {
	tok, err := GenerateJWT("u1", "alice", "test")
	require.NoError(t, err)

	ok, err := CheckJWTNotExpire(tok, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckJWTNotExpire(tok, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	// 沒有 exp 永不過期
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "u1"}).SignedString([]byte("k"))
	require.NoError(t, err)
	ok, err = CheckJWTNotExpire(noExp, time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = CheckJWTNotExpire("opaque", time.Now())
	assert.Error(t, err)
}

// 測試 GenerateJWTFunc 可以被替換
func TestGenerateJWTWrapper_Override(t *testing.T) {
	orig := GenerateJWTFunc
	defer func() { GenerateJWTFunc = orig }()

	GenerateJWTFunc = func(userID, username, issuer string) (string, error) {
		assert.Equal(t, "chat_client", issuer)
		return "fixed", nil
	}
	tok, err := GenerateJWTWrapper("u1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "fixed", tok)
}
