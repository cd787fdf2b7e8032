package authapi

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginThrottle_SlidingWindow(t *testing.T) {
	th := newLoginThrottle(2, time.Minute)
	now := testEpoch

	blocked, _ := th.blocked("10.0.0.1", now)
	assert.False(t, blocked)

	th.fail("10.0.0.1", now)
	th.fail("10.0.0.1", now.Add(10*time.Second))

	blocked, retry := th.blocked("10.0.0.1", now.Add(20*time.Second))
	require.True(t, blocked)
	assert.Equal(t, 40*time.Second, retry)

	blocked, _ = th.blocked("10.0.0.2", now.Add(20*time.Second))
	assert.False(t, blocked, "other clients are unaffected")

	blocked, _ = th.blocked("10.0.0.1", now.Add(61*time.Second))
	assert.False(t, blocked, "oldest failure left the window")

	blocked, _ = th.blocked("10.0.0.1", now.Add(2*time.Minute))
	assert.False(t, blocked)
	assert.Empty(t, th.events, "expired keys are dropped")
}

func TestLoginThrottle_NilNeverBlocks(t *testing.T) {
	th := newLoginThrottle(0, time.Minute)
	require.Nil(t, th)
	th.fail("x", testEpoch)
	blocked, _ := th.blocked("x", testEpoch)
	assert.False(t, blocked)
}

func TestLogin_ThrottlesRepeatedFailures(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "ada@example.com")

	bad := `{"email":"ada@example.com","password":"wrong-password"}`
	for i := 0; i < DefaultConfig().LoginFailureLimit; i++ {
		rr := s.do(t, http.MethodPost, "/api/v1/auth/login", bad)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	}

	good := `{"email":"ada@example.com","password":"` + testPassword + `"}`
	rr := s.do(t, http.MethodPost, "/api/v1/auth/login", good)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "rate_limited", errorCode(t, rr))
	assert.Equal(t, "300", rr.Header().Get("Retry-After"))

	s.clock.Advance(5*time.Minute + time.Second)
	rr = s.do(t, http.MethodPost, "/api/v1/auth/login", good)
	assert.Equal(t, http.StatusOK, rr.Code, strings.TrimSpace(rr.Body.String()))
}
