package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// CreateTestToken creates a JWT token with the specified user ID and extra
// claims, signed with the provided secret. Useful for testing authentication
// and authorization.
func CreateTestToken(userID string, extraClaims ExtraClaims, secret []byte) (string, error) {
	tokenAuth := jwtauth.New("HS256", secret, nil)

	claims := map[string]interface{}{
		"sub":     userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
		"user_id": userID,
		"extra_claims": map[string]interface{}{
			"email": extraClaims.Email,
			"roles": extraClaims.Roles,
		},
	}

	_, tokenString, err := tokenAuth.Encode(claims)
	return tokenString, err
}

func requestWithToken(t *testing.T, tokenString string, secret []byte) *http.Request {
	t.Helper()

	tokenAuth := jwtauth.New("HS256", secret, nil)
	token, err := tokenAuth.Decode(tokenString)
	require.NoError(t, err, "Failed to decode token")

	ctx := jwtauth.NewContext(context.Background(), token, nil)
	req, err := http.NewRequestWithContext(ctx, "GET", "/", nil)
	require.NoError(t, err, "Failed to create request")
	return req
}

func TestAuthUserMiddleware(t *testing.T) {
	secret := []byte("test-jwt-secret-key")
	userID := uuid.New().String()

	testCases := []struct {
		name        string
		extraClaims ExtraClaims
		expectRoles []string
	}{
		{
			name: "Admin and User Roles",
			extraClaims: ExtraClaims{
				Email: "admin@licensemart.test",
				Roles: []string{"admin", "user"},
			},
			expectRoles: []string{"admin", "user"},
		},
		{
			name: "User Role Only",
			extraClaims: ExtraClaims{
				Email: "user@licensemart.test",
				Roles: []string{"user"},
			},
			expectRoles: []string{"user"},
		},
		{
			name: "No Roles",
			extraClaims: ExtraClaims{
				Email: "norole@licensemart.test",
				Roles: nil,
			},
			expectRoles: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tokenString, err := CreateTestToken(userID, tc.extraClaims, secret)
			require.NoError(t, err, "Failed to create test token")

			req := requestWithToken(t, tokenString, secret)
			res := httptest.NewRecorder()

			handlerCalled := false
			mockHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true

				authUser, ok := AuthUserFromRequest(r)
				require.True(t, ok, "Auth user should be in the context")

				assert.Equal(t, userID, authUser.UserId, "User ID should match")
				assert.Equal(t, userID, authUser.UserUuid.String(), "Parsed UUID should match")
				assert.Equal(t, tc.extraClaims.Email, authUser.ExtraClaims.Email, "Email should match")

				if tc.expectRoles == nil {
					assert.Nil(t, authUser.ExtraClaims.Roles, "Roles should be nil")
				} else {
					assert.Equal(t, tc.expectRoles, authUser.ExtraClaims.Roles, "Roles should match")
				}
			})

			AuthUserMiddleware(mockHandler).ServeHTTP(res, req)

			assert.True(t, handlerCalled, "Handler should have been called")
			assert.Equal(t, http.StatusOK, res.Code)
		})
	}
}

func TestAuthUserMiddlewareRejectsBadTokens(t *testing.T) {
	secret := []byte("test-jwt-secret-key")

	t.Run("no token in context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		res := httptest.NewRecorder()

		called := false
		AuthUserMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		})).ServeHTTP(res, req)

		assert.False(t, called, "Handler should not run without a token")
		assert.Equal(t, http.StatusUnauthorized, res.Code)
	})

	t.Run("non-uuid user id", func(t *testing.T) {
		tokenAuth := jwtauth.New("HS256", secret, nil)
		_, tokenString, err := tokenAuth.Encode(map[string]interface{}{
			"sub":     "not-a-uuid",
			"exp":     time.Now().Add(time.Hour).Unix(),
			"user_id": "not-a-uuid",
		})
		require.NoError(t, err)

		req := requestWithToken(t, tokenString, secret)
		res := httptest.NewRecorder()

		called := false
		AuthUserMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		})).ServeHTTP(res, req)

		assert.False(t, called, "Handler should not run with a malformed user id")
		assert.Equal(t, http.StatusUnauthorized, res.Code)
	})

	t.Run("missing user id", func(t *testing.T) {
		tokenAuth := jwtauth.New("HS256", secret, nil)
		_, tokenString, err := tokenAuth.Encode(map[string]interface{}{
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		require.NoError(t, err)

		req := requestWithToken(t, tokenString, secret)
		res := httptest.NewRecorder()

		AuthUserMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(res, req)
		assert.Equal(t, http.StatusUnauthorized, res.Code)
	})
}

func TestIsAdmin(t *testing.T) {
	assert.True(t, IsAdmin(&AuthUser{ExtraClaims: ExtraClaims{Roles: []string{"admin"}}}))
	assert.True(t, IsAdmin(&AuthUser{ExtraClaims: ExtraClaims{Roles: []string{"user", "superadmin"}}}))
	assert.False(t, IsAdmin(&AuthUser{ExtraClaims: ExtraClaims{Roles: []string{"user"}}}))
	assert.False(t, IsAdmin(&AuthUser{}))
	assert.False(t, IsAdmin(nil))
}

func TestRequireRole(t *testing.T) {
	protected := RequireRole("admin", "superadmin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("unauthenticated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		res := httptest.NewRecorder()

		protected.ServeHTTP(res, req)
		assert.Equal(t, http.StatusUnauthorized, res.Code)
	})

	t.Run("missing role", func(t *testing.T) {
		authUser := &AuthUser{
			UserId:      uuid.New().String(),
			ExtraClaims: ExtraClaims{Roles: []string{"user"}},
		}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(context.WithValue(req.Context(), AuthUserKey, authUser))
		res := httptest.NewRecorder()

		protected.ServeHTTP(res, req)
		assert.Equal(t, http.StatusForbidden, res.Code)
	})

	t.Run("has role", func(t *testing.T) {
		authUser := &AuthUser{
			UserId:      uuid.New().String(),
			ExtraClaims: ExtraClaims{Roles: []string{"admin"}},
		}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(context.WithValue(req.Context(), AuthUserKey, authUser))
		res := httptest.NewRecorder()

		protected.ServeHTTP(res, req)
		assert.Equal(t, http.StatusOK, res.Code)
	})
}
