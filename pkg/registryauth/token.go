package registryauth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	refreshTokenTTL = 30 * 24 * time.Hour
	accessTokenTTL  = time.Hour
)

// User is an authenticated registry user.
type User struct {
	ID string
}

// Claims is the payload of an issued registry token. Access carries the
// approved access list on the scoped path; Usage marks the offline refresh
// token instead.
type Claims struct {
	jwt.RegisteredClaims
	User   string   `json:"user"`
	Access []Access `json:"access,omitempty"`
	Usage  string   `json:"usage,omitempty"`
}

// Issuer signs registry tokens. Signing is stateless; every granted scope
// must have passed the policy check before it reaches the Issuer.
type Issuer struct {
	keys    *SigningKeyStore
	service string
	issuer  string
}

// NewIssuer creates an Issuer for the configured registry service and issuer
// identifiers.
func NewIssuer(keys *SigningKeyStore, service, issuer string) *Issuer {
	return &Issuer{keys: keys, service: service, issuer: issuer}
}

// RefreshToken issues the long-lived offline token bound to the user, with
// no scope list.
func (i *Issuer) RefreshToken(user User) (string, error) {
	return i.sign(Claims{
		User:  user.ID,
		Usage: "refresh_token",
	}, user.ID, refreshTokenTTL)
}

// AccessToken issues a short-lived token embedding the approved access list.
func (i *Issuer) AccessToken(user User, access []Access) (string, error) {
	return i.sign(Claims{
		User:   user.ID,
		Access: access,
	}, user.ID, accessTokenTTL)
}

func (i *Issuer) sign(claims Claims, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   subject,
		ID:        uuid.New().String(),
		Audience:  jwt.ClaimStrings{i.service},
		Issuer:    i.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = i.keys.KeyID()

	signed, err := token.SignedString(i.keys.PrivateKey())
	if err != nil {
		return "", fmt.Errorf("sign registry token: %w", err)
	}
	return signed, nil
}
