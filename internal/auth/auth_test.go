package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "rollcall-test"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("teacher-7", "tablet-1", testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)
	assert.True(t, pair.RefreshExp.After(pair.AccessExp))

	claims, err := ParseAccess(pair.AccessToken, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, "teacher-7", claims.Subject)
	assert.Equal(t, "tablet-1", claims.RecorderID)
	assert.Equal(t, RoleRecorder, claims.Role)

	_, err = ParseAccess(pair.RefreshToken, testKey, testIssuer)
	assert.Error(t, err, "refresh tokens are not accepted as access tokens")

	refresh, err := Parse(pair.RefreshToken, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, tokenRefresh, refresh.Type)
}

func TestParseRejects(t *testing.T) {
	pair, err := Issue("teacher-7", "tablet-1", testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)
	expired, err := Issue("teacher-7", "tablet-1", testIssuer, testKey, -time.Minute, -time.Minute)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Type: tokenAccess}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		key    string
		issuer string
	}{
		{"wrong key", pair.AccessToken, "other-key", testIssuer},
		{"wrong issuer", pair.AccessToken, testKey, "someone-else"},
		{"expired", expired.AccessToken, testKey, testIssuer},
		{"unsigned", none, testKey, ""},
		{"garbage", "not.a.token", testKey, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAccess(tt.token, tt.key, tt.issuer)
			assert.Error(t, err)
		})
	}
}

func TestRecorderAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", RecorderAuth(testKey, testIssuer), func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		require.True(t, ok)
		c.String(http.StatusOK, claims.Subject)
	})

	pair, err := Issue("teacher-7", "tablet-1", testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"refresh token", "Bearer " + pair.RefreshToken, http.StatusUnauthorized},
		{"access token", "Bearer " + pair.AccessToken, http.StatusOK},
		{"lower-case scheme", "bearer " + pair.AccessToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "teacher-7", w.Body.String())
			}
		})
	}
}
