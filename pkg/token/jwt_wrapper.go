package token

// 這個變數會在測試時被覆蓋
var (
	GenerateJWTFunc     = GenerateJWT
	ParseUnverifiedFunc = ParseUnverified
)

// GenerateJWTWrapper test 用, issuer 固定為 chat_client
func GenerateJWTWrapper(userID, username string) (string, error) {
	return GenerateJWTFunc(userID, username, "chat_client")
}

// UserIDFromToken 讓 `SyncClient` test mock使用這個包裝函數
func UserIDFromToken(t string) (string, error) {
	claims, err := ParseUnverifiedFunc(t)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}
