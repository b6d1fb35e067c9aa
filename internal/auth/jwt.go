package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const checkoutAudience = "checkout"

// Claims binds a checkout session to the order it was issued for
type Claims struct {
	OrderID string `json:"order_id"`
	jwt.RegisteredClaims
}

// OrderRef is the processor order reference the token authorizes.
func (c *Claims) OrderRef() string { return c.Subject }

// CheckoutTokenService issues the short-lived token a buyer's browser presents
// to act on its own order, for example to cancel it
type CheckoutTokenService struct {
	secretKey []byte
	issuer    string
	expiry    time.Duration
	now       func() time.Time
}

// NewCheckoutTokenService creates a new token service
func NewCheckoutTokenService(secretKey, issuer string, expiry time.Duration) *CheckoutTokenService {
	return &CheckoutTokenService{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		expiry:    expiry,
		now:       time.Now,
	}
}

// Issue creates a token for orderRef
func (s *CheckoutTokenService) Issue(orderRef, orderID string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.expiry)

	claims := Claims{
		OrderID: orderID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   orderRef,
			Audience:  jwt.ClaimStrings{checkoutAudience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// Validate checks a token and returns its claims
func (s *CheckoutTokenService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secretKey, nil
	},
		jwt.WithAudience(checkoutAudience),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Expiry returns the token lifetime
func (s *CheckoutTokenService) Expiry() time.Duration {
	return s.expiry
}
