package httpapi

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"catatwarung/backend/internal/domain"
)

const tokenIssuer = "catatwarung"

// AuthManager verifies owner tokens. Tokens are minted out of band (see
// Sign) and carry the shop they were issued for.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	shopID   string
}

type ownerClaims struct {
	jwtlib.RegisteredClaims
	Shop string `json:"shop"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, shopID string) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 30 * 24 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		shopID:   strings.TrimSpace(shopID),
	}
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &ownerClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	if a.shopID != "" && claims.Shop != a.shopID {
		return domain.Actor{}, errors.New("token issued for another shop")
	}
	return domain.Actor{ShopID: claims.Shop, Owner: sub}, nil
}

// Sign mints a token for owner at shopID valid for the configured TTL.
func (a *AuthManager) Sign(owner string, shopID string) (string, time.Time, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return "", time.Time{}, errors.New("owner required")
	}
	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	claims := ownerClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   owner,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		Shop: strings.TrimSpace(shopID),
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}
