package session

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/inkwell-app/inkwell/internal/db"
	"github.com/inkwell-app/inkwell/internal/models"
	"github.com/inkwell-app/inkwell/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	return conn
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSignUpThenResolveReturnsSameUser(t *testing.T) {
	conn := openTestDB(t)
	auth := NewAuthenticator(conn, 0, nil)
	ctx := context.Background()

	grant, err := auth.SignUp(ctx, SignUpInput{Email: "a@x.com", Password: "secret1", Name: "A"})
	require.NoError(t, err)
	require.NotEmpty(t, grant.UserID)
	require.NotEmpty(t, grant.Token)

	identity, err := auth.Resolve(ctx, grant.Token)
	require.NoError(t, err)
	assert.Equal(t, grant.UserID, identity.UserID())
	assert.Equal(t, "a@x.com", identity.User.Email)
	assert.Equal(t, "A", identity.User.Name)
	assert.False(t, identity.User.HasActiveSubscription)
}

func TestSignUpSetsSevenDayExpiry(t *testing.T) {
	conn := openTestDB(t)
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	auth := NewAuthenticator(conn, 0, clock.Now)

	grant, err := auth.SignUp(context.Background(), SignUpInput{Email: "ttl@x.com", Password: "secret1"})
	require.NoError(t, err)
	assert.True(t, grant.ExpiresAt.Equal(clock.Now().Add(7*24*time.Hour)))
}

func TestResolveInvalidWhenExpired(t *testing.T) {
	conn := openTestDB(t)
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	auth := NewAuthenticator(conn, time.Hour, clock.Now)
	ctx := context.Background()

	grant, err := auth.SignUp(ctx, SignUpInput{Email: "exp@x.com", Password: "secret1"})
	require.NoError(t, err)

	clock.Advance(time.Hour - time.Second)
	_, err = auth.Resolve(ctx, grant.Token)
	require.NoError(t, err)

	// expiresAt == now is already invalid.
	clock.Advance(time.Second)
	_, err = auth.Resolve(ctx, grant.Token)
	assert.ErrorIs(t, err, ErrInvalidSession)

	clock.Advance(time.Minute)
	_, err = auth.Resolve(ctx, grant.Token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestResolveUnknownAndOrphanedTokens(t *testing.T) {
	conn := openTestDB(t)
	auth := NewAuthenticator(conn, 0, nil)
	ctx := context.Background()

	_, err := auth.Resolve(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidSession)
	_, err = auth.Resolve(ctx, "does-not-exist")
	assert.ErrorIs(t, err, ErrInvalidSession)

	orphan := models.Session{Token: "orphan-token", UserID: "missing-user", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, conn.Create(&orphan).Error)
	_, err = auth.Resolve(ctx, "orphan-token")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestSignOutIsIdempotent(t *testing.T) {
	conn := openTestDB(t)
	auth := NewAuthenticator(conn, 0, nil)
	ctx := context.Background()

	grant, err := auth.SignUp(ctx, SignUpInput{Email: "out@x.com", Password: "secret1"})
	require.NoError(t, err)

	require.NoError(t, auth.SignOut(ctx, grant.Token))
	require.NoError(t, auth.SignOut(ctx, grant.Token))
	require.NoError(t, auth.SignOut(ctx, "never-issued"))

	_, err = auth.Resolve(ctx, grant.Token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestSignOutOnlyRevokesOneSession(t *testing.T) {
	conn := openTestDB(t)
	auth := NewAuthenticator(conn, 0, nil)
	ctx := context.Background()

	first, err := auth.SignUp(ctx, SignUpInput{Email: "multi@x.com", Password: "secret1"})
	require.NoError(t, err)
	second, err := auth.SignIn(ctx, "multi@x.com", "secret1")
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)

	require.NoError(t, auth.SignOut(ctx, first.Token))
	identity, err := auth.Resolve(ctx, second.Token)
	require.NoError(t, err)
	assert.Equal(t, first.UserID, identity.UserID())
}

func TestSignUpRejectsCaseInsensitiveDuplicate(t *testing.T) {
	conn := openTestDB(t)
	auth := NewAuthenticator(conn, 0, nil)
	ctx := context.Background()

	_, err := auth.SignUp(ctx, SignUpInput{Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = auth.SignUp(ctx, SignUpInput{Email: "A@X.COM", Password: "secret2"})
	require.ErrorIs(t, err, ErrEmailTaken)
	_, isValidation := validation.Message(err)
	assert.True(t, isValidation)

	var count int64
	require.NoError(t, conn.Model(&models.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSignUpValidatesBeforeWriting(t *testing.T) {
	conn := openTestDB(t)
	auth := NewAuthenticator(conn, 0, nil)
	ctx := context.Background()

	cases := []SignUpInput{
		{Email: "", Password: "secret1"},
		{Email: "bad", Password: "secret1"},
		{Email: "ok@x.com", Password: "12345"},
		{Email: "ok@x.com", Password: strings.Repeat("a", validation.MaxPasswordBytes+1)},
	}
	for _, in := range cases {
		_, err := auth.SignUp(ctx, in)
		_, isValidation := validation.Message(err)
		assert.True(t, isValidation, "expected validation error for %+v, got %v", in, err)
	}

	var count int64
	require.NoError(t, conn.Model(&models.User{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSignInRejectsBadCredentialsUniformly(t *testing.T) {
	conn := openTestDB(t)
	auth := NewAuthenticator(conn, 0, nil)
	ctx := context.Background()

	_, err := auth.SignUp(ctx, SignUpInput{Email: "in@x.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = auth.SignIn(ctx, "in@x.com", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = auth.SignIn(ctx, "nobody@x.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	grant, err := auth.SignIn(ctx, " IN@X.com ", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, grant.Token)
}

type recordingLinker struct {
	userID string
	email  string
	err    error
}

func (l *recordingLinker) LinkPending(_ context.Context, userID, email string) error {
	l.userID = userID
	l.email = email
	return l.err
}

func TestSignUpRunsLinker(t *testing.T) {
	conn := openTestDB(t)
	auth := NewAuthenticator(conn, 0, nil)
	linker := &recordingLinker{err: errors.New("ledger unavailable")}
	auth.SetLinker(linker)

	grant, err := auth.SignUp(context.Background(), SignUpInput{Email: "Link@x.com", Password: "secret1"})
	require.NoError(t, err, "linker failures must not fail sign-up")
	assert.Equal(t, grant.UserID, linker.userID)
	assert.Equal(t, "link@x.com", linker.email)
}
