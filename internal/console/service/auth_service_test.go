package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/avealis/inboxpilot/internal/domain"
)

type userRepoStub struct{ user *domain.User }

func (s *userRepoStub) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	if s.user != nil && s.user.Username == username {
		return s.user, nil
	}
	return nil, nil
}

func newTestAuthService(t *testing.T, ttl time.Duration) (*AuthService, *rsa.PrivateKey) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	repo := &userRepoStub{user: &domain.User{
		ID:           "u1",
		Username:     "operator",
		PasswordHash: string(hash),
		Scopes:       map[string]bool{domain.ScopeApprovalsDecide: true},
	}}
	return NewAuthService(repo, key, &key.PublicKey, ttl), key
}

func TestGenerateTokenRoundTrip(t *testing.T) {
	svc, _ := newTestAuthService(t, time.Hour)

	resp, err := svc.GenerateToken(context.Background(), "operator", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	// Срок жизни приходит из конфигурации, а не зашитые сутки
	assert.InDelta(t, time.Hour.Seconds(), float64(resp.ExpiresIn), 5)

	claims, err := svc.VerifyToken("Bearer " + resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.True(t, claims.Scopes[domain.ScopeApprovalsDecide])
	assert.Equal(t, domain.TokenIssuer, claims.Issuer)
}

func TestGenerateTokenRejectsBadCredentials(t *testing.T) {
	svc, _ := newTestAuthService(t, time.Hour)

	_, err := svc.GenerateToken(context.Background(), "operator", "wrong")
	assert.Error(t, err)
	_, err = svc.GenerateToken(context.Background(), "ghost", "s3cret")
	assert.Error(t, err)
}

func TestVerifyTokenRejectsForeignIssuer(t *testing.T) {
	svc, key := newTestAuthService(t, time.Hour)

	// Валидная подпись нашим же ключом, но issuer чужой
	claims := &domain.CustomClaims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)

	_, err = svc.VerifyToken(signed)
	assert.Error(t, err)
}

func TestVerifyTokenRejectsWrongAlgorithm(t *testing.T) {
	svc, _ := newTestAuthService(t, time.Hour)

	claims := &domain.CustomClaims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    domain.TokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("hmac-key"))
	require.NoError(t, err)

	_, err = svc.VerifyToken(signed)
	assert.Error(t, err)
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	svc, key := newTestAuthService(t, time.Hour)

	claims := &domain.CustomClaims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    domain.TokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)

	_, err = svc.VerifyToken(signed)
	assert.Error(t, err)
}
