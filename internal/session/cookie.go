package session

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName はセッションIDを運ぶCookieの名前。
const CookieName = "sessionId"

// CookieConfig は署名付きCookieの属性設定。
type CookieConfig struct {
	Domain string
	Secure bool
	MaxAge time.Duration
}

// CookieCodec は改ざん検知可能なセッションCookieの発行・読み取りを行う。
// Cookie値はセッションIDのみをsubjectに持つHS256署名付きトークンで、
// セッションの中身はCookieではなくKVストア側に保持される。
type CookieCodec struct {
	secret []byte
	config CookieConfig
}

// NewCookieCodec はCookieCodecを生成する。
func NewCookieCodec(secret string, config CookieConfig) *CookieCodec {
	return &CookieCodec{secret: []byte(secret), config: config}
}

// Issue はセッションIDを署名してSet-Cookie用のCookieを生成する。
// 毎リクエスト再発行することでスライディング有効期限を実現する。
func (c *CookieCodec) Issue(sessionID string) (*http.Cookie, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.config.MaxAge)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return nil, err
	}

	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Domain:   c.config.Domain,
		MaxAge:   int(c.config.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.config.Secure,
		SameSite: http.SameSiteStrictMode,
	}, nil
}

// Read はリクエストのCookieからセッションIDを取り出す。
// Cookieの欠落・署名不一致・期限切れ・アルゴリズム不一致はすべて
// 「不在」として扱い、偽造された値を返すことはない。
func (c *CookieCodec) Read(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(cookie.Value, claims,
		func(t *jwt.Token) (interface{}, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", false
	}

	return claims.Subject, true
}

// Expire はセッションCookieを失効させるCookieを生成する（サインアウト用）。
func (c *CookieCodec) Expire() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Domain:   c.config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.config.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}
