package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-testing-purposes"

func newTestTokenService() *CheckoutTokenService {
	return NewCheckoutTokenService(testSecret, "Glam Essentials", 45*time.Minute)
}

func TestCheckoutTokenService_Issue(t *testing.T) {
	service := newTestTokenService()

	token, expiresAt, err := service.Issue("order_abc", "id-123")

	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))
	assert.True(t, expiresAt.Before(time.Now().Add(46*time.Minute)))
	assert.Equal(t, 45*time.Minute, service.Expiry())
}

func TestCheckoutTokenService_Validate_Valid(t *testing.T) {
	service := newTestTokenService()
	token, _, err := service.Issue("order_abc", "id-123")
	require.NoError(t, err)

	claims, err := service.Validate(token)

	require.NoError(t, err)
	assert.Equal(t, "order_abc", claims.OrderRef())
	assert.Equal(t, "id-123", claims.OrderID)
	assert.Equal(t, "Glam Essentials", claims.Issuer)
}

func TestCheckoutTokenService_Validate_Expired(t *testing.T) {
	service := newTestTokenService()
	token, _, err := service.Issue("order_abc", "id-123")
	require.NoError(t, err)

	service.now = func() time.Time { return time.Now().Add(time.Hour) }
	claims, err := service.Validate(token)

	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.Nil(t, claims)
}

func TestCheckoutTokenService_Validate_Invalid(t *testing.T) {
	service := newTestTokenService()

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"random string", "not-a-valid-token"},
		{"malformed JWT", "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := service.Validate(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

func TestCheckoutTokenService_Validate_WrongSignature(t *testing.T) {
	service1 := NewCheckoutTokenService("secret-key-1-secret-key-1-secret-key-1", "Glam Essentials", time.Hour)
	service2 := NewCheckoutTokenService("secret-key-2-secret-key-2-secret-key-2", "Glam Essentials", time.Hour)

	token, _, err := service1.Issue("order_abc", "id-123")
	require.NoError(t, err)

	claims, err := service2.Validate(token)

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, claims)
}

func TestCheckoutTokenService_Validate_WrongIssuer(t *testing.T) {
	other := NewCheckoutTokenService(testSecret, "Another Shop", time.Hour)
	token, _, err := other.Issue("order_abc", "id-123")
	require.NoError(t, err)

	_, err = newTestTokenService().Validate(token)

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCheckoutTokenService_Validate_WrongAudience(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "Glam Essentials",
			Subject:   "order_abc",
			Audience:  jwt.ClaimStrings{"admin"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	tokenString, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = newTestTokenService().Validate(tokenString)

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCheckoutTokenService_Validate_WrongAlgorithm(t *testing.T) {
	service := newTestTokenService()

	token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		OrderID: "id-123",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   "Glam Essentials",
			Subject:  "order_abc",
			Audience: jwt.ClaimStrings{"checkout"},
		},
	})
	tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	claims, err := service.Validate(tokenString)

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, claims)
}

func TestCheckoutTokenService_TokensAreBoundToOrders(t *testing.T) {
	service := newTestTokenService()

	a, _, err := service.Issue("order_a", "id-a")
	require.NoError(t, err)
	b, _, err := service.Issue("order_b", "id-b")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	claimsA, err := service.Validate(a)
	require.NoError(t, err)
	assert.Equal(t, "order_a", claimsA.OrderRef())
}
