package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims structure for custom claims in JWT
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Secret Key for JWT signing and validation
var (
	JWTSecret       = []byte("secure_secret_key")
	tokenExpiration = 60 * time.Minute
)

// ErrNoUserID token carry no user_id / sub
var ErrNoUserID = errors.New("token has no user id")

// GenerateJWT generates a JWT token
func GenerateJWT(userID, username, issuer string) (string, error) {
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(JWTSecret)
}

// ParseUnverified read the claims of a server issued token.
// 客戶端沒有簽章金鑰, 只讀不驗
func ParseUnverified(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(trimBearer(tokenStr), claims); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, ErrNoUserID
	}
	return claims, nil
}

// CheckJWTNotExpire check JWT token not expires, token without exp never expires
func CheckJWTNotExpire(t string, now time.Time) (bool, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(trimBearer(t), claims); err != nil {
		return false, err
	}

	tokenExpire, err := claims.GetExpirationTime()
	if err != nil || tokenExpire == nil {
		return true, nil
	}

	return tokenExpire.After(now), nil
}

func trimBearer(t string) string {
	return strings.TrimSpace(strings.TrimPrefix(t, "Bearer "))
}
