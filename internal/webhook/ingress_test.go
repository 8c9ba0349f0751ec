package webhook

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/inkwell-app/inkwell/internal/db"
	"github.com/inkwell-app/inkwell/internal/models"
	"github.com/inkwell-app/inkwell/internal/session"
	"github.com/inkwell-app/inkwell/internal/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "polar-test-secret"

type fixture struct {
	conn    *gorm.DB
	subs    *subscription.Service
	ingress *Ingress
}

func newFixture(t *testing.T, orderingGuard bool) fixture {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "webhook.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	subs := subscription.NewService(conn, nil, orderingGuard)
	return fixture{
		conn:    conn,
		subs:    subs,
		ingress: NewIngress(subs, testSecret, NewLedger(conn), nil),
	}
}

func signedHeaders(body []byte, id string) http.Header {
	h := http.Header{}
	h.Set(HeaderID, id)
	h.Set(HeaderTimestamp, "1700000000")
	h.Set(HeaderSignature, "v1,"+Sign([]byte(testSecret), id, "1700000000", body))
	return h
}

func (f fixture) user(t *testing.T, email string) models.User {
	t.Helper()
	var user models.User
	require.NoError(t, f.conn.Where("email = ?", email).Take(&user).Error)
	return user
}

func (f fixture) ledger(t *testing.T) []models.WebhookEvent {
	t.Helper()
	var rows []models.WebhookEvent
	require.NoError(t, f.conn.Order("id ASC").Find(&rows).Error)
	return rows
}

func TestSubscriptionCreatedForUnknownEmailAcknowledges(t *testing.T) {
	f := newFixture(t, false)
	existing := models.User{Email: "someone@x.com", PasswordHash: "x"}
	require.NoError(t, f.conn.Create(&existing).Error)

	body := []byte(`{"type":"subscription.created","data":{"id":"sub_9","status":"active","customer":{"email":"nobody@x.com"}}}`)
	resp := f.ingress.Handle(context.Background(), body, signedHeaders(body, "msg_1"))

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.True(t, resp.Success)
	assert.Equal(t, MessageWillLink, resp.Message)

	after := f.user(t, "someone@x.com")
	assert.False(t, after.HasActiveSubscription)
	assert.Nil(t, after.SubscriptionUpdatedAt)

	rows := f.ledger(t)
	require.Len(t, rows, 1)
	assert.Equal(t, OutcomeUserNotFound, rows[0].Outcome)
	assert.Equal(t, "nobody@x.com", rows[0].Email)
	assert.True(t, rows[0].Verified)
	assert.Equal(t, "msg_1", rows[0].MessageID)
}

func TestSubscriptionLifecycleActivatesThenCancels(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.conn.Create(&models.User{Email: "a@x.com", PasswordHash: "x"}).Error)
	ctx := context.Background()

	created := []byte(`{"type":"subscription.created","data":{"id":"sub_1","status":"trialing","customer":{"email":"A@x.com"}}}`)
	resp := f.ingress.Handle(ctx, created, signedHeaders(created, "msg_1"))
	require.Equal(t, http.StatusOK, resp.Status)
	require.True(t, resp.Success)

	user := f.user(t, "a@x.com")
	assert.True(t, user.HasActiveSubscription)
	assert.Equal(t, "trialing", user.SubscriptionStatus)
	require.NotNil(t, user.SubscriptionID)
	assert.Equal(t, "sub_1", *user.SubscriptionID)

	canceled := []byte(`{"type":"subscription.canceled","data":{"id":"sub_1","status":"active","customer":{"email":"a@x.com"}}}`)
	resp = f.ingress.Handle(ctx, canceled, signedHeaders(canceled, "msg_2"))
	require.Equal(t, http.StatusOK, resp.Status)
	require.True(t, resp.Success)

	user = f.user(t, "a@x.com")
	assert.False(t, user.HasActiveSubscription)
	assert.Equal(t, "canceled", user.SubscriptionStatus)
}

func TestSubscriptionUpdatedInactiveStatus(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.conn.Create(&models.User{Email: "p@x.com", PasswordHash: "x", HasActiveSubscription: true}).Error)

	body := []byte(`{"type":"subscription.updated","data":{"id":"sub_2","status":"past_due","customer":{"email":"p@x.com"}}}`)
	resp := f.ingress.Handle(context.Background(), body, http.Header{})
	require.Equal(t, http.StatusOK, resp.Status)

	user := f.user(t, "p@x.com")
	assert.False(t, user.HasActiveSubscription)
	assert.Equal(t, "past_due", user.SubscriptionStatus)
}

func TestCheckoutCompleted(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.conn.Create(&models.User{Email: "c@x.com", PasswordHash: "x"}).Error)
	ctx := context.Background()

	bare := []byte(`{"type":"checkout.completed","data":{"id":"co_1","customer_email":"c@x.com"}}`)
	resp := f.ingress.Handle(ctx, bare, http.Header{})
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.True(t, resp.Success)
	assert.False(t, f.user(t, "c@x.com").HasActiveSubscription)

	embedded := []byte(`{"type":"checkout.completed","data":{"id":"co_2","customer_email":"c@x.com","subscription":{"id":"sub_3","status":"active"}}}`)
	resp = f.ingress.Handle(ctx, embedded, http.Header{})
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.True(t, resp.Success)
	user := f.user(t, "c@x.com")
	assert.True(t, user.HasActiveSubscription)
	require.NotNil(t, user.SubscriptionID)
	assert.Equal(t, "sub_3", *user.SubscriptionID)
}

func TestAlwaysOKForValidJSON(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.conn.Create(&models.User{Email: "v@x.com", PasswordHash: "x"}).Error)

	forged := http.Header{}
	forged.Set(HeaderID, "msg_f")
	forged.Set(HeaderTimestamp, "1700000000")
	forged.Set(HeaderSignature, "v1,Zm9yZ2Vk")

	bodies := []string{
		`{"type":"subscription.updated","data":{"id":"sub_4","status":"active","customer":{"email":"v@x.com"}}}`,
		`{"type":"order.created","data":{}}`,
		`{"type":"subscription.updated","data":{"status":"active"}}`,
		`{"type":"subscription.canceled","data":[]}`,
		`[]`,
		`null`,
	}
	for _, body := range bodies {
		resp := f.ingress.Handle(context.Background(), []byte(body), forged)
		assert.Equal(t, http.StatusOK, resp.Status, "body %s", body)
	}
	// The forged but well-formed event is still applied, and recorded as unverified.
	assert.True(t, f.user(t, "v@x.com").HasActiveSubscription)
	rows := f.ledger(t)
	require.Len(t, rows, len(bodies))
	assert.False(t, rows[0].Verified)
	assert.Equal(t, OutcomeApplied, rows[0].Outcome)
}

func TestUnparseableBodyReturns500(t *testing.T) {
	f := newFixture(t, false)

	resp := f.ingress.Handle(context.Background(), []byte(`{"type": "subscription.created", `), http.Header{})
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.False(t, resp.Success)
	assert.Equal(t, "Internal server error", resp.Error)
	assert.NotEmpty(t, resp.Details)

	rows := f.ledger(t)
	require.Len(t, rows, 1)
	assert.Equal(t, OutcomeParseError, rows[0].Outcome)
	assert.JSONEq(t, `"{\"type\": \"subscription.created\", "`, string(rows[0].Payload))
}

func TestOrderingGuardIgnoresStaleDelivery(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.conn.Create(&models.User{Email: "o@x.com", PasswordHash: "x"}).Error)
	ctx := context.Background()

	canceled := []byte(`{"type":"subscription.canceled","data":{"id":"sub_5","customer":{"email":"o@x.com"},"modified_at":"2024-05-02T00:00:00Z"}}`)
	require.Equal(t, http.StatusOK, f.ingress.Handle(ctx, canceled, http.Header{}).Status)

	late := []byte(`{"type":"subscription.updated","data":{"id":"sub_5","status":"active","customer":{"email":"o@x.com"},"modified_at":"2024-05-01T00:00:00Z"}}`)
	resp := f.ingress.Handle(ctx, late, http.Header{})
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, MessageStaleIgnored, resp.Message)
	assert.False(t, f.user(t, "o@x.com").HasActiveSubscription)
}

func TestMissingEmailAcknowledgedWithoutChange(t *testing.T) {
	f := newFixture(t, false)

	body := []byte(`{"type":"subscription.created","data":{"id":"sub_6","status":"active"}}`)
	resp := f.ingress.Handle(context.Background(), body, http.Header{})
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.False(t, resp.Success)
	assert.Equal(t, MessageMissingEmail, resp.Message)
}

func TestSignUpLinksPendingSubscription(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	body := []byte(`{"type":"subscription.created","data":{"id":"sub_7","status":"active","customer":{"email":"late@x.com"},"modified_at":"2024-05-01T00:00:00Z"}}`)
	require.Equal(t, MessageWillLink, f.ingress.Handle(ctx, body, http.Header{}).Message)

	auth := session.NewAuthenticator(f.conn, 0, nil)
	auth.SetLinker(f.ingress)
	grant, err := auth.SignUp(ctx, session.SignUpInput{Email: "Late@x.com", Password: "secret1"})
	require.NoError(t, err)

	status, err := f.subs.Status(ctx, grant.UserID)
	require.NoError(t, err)
	assert.True(t, status.HasActiveSubscription)
	require.NotNil(t, status.SubscriptionID)
	assert.Equal(t, "sub_7", *status.SubscriptionID)

	rows := f.ledger(t)
	require.Len(t, rows, 1)
	assert.Equal(t, OutcomeLinked, rows[0].Outcome)
}

func TestLedgerTimestampsUseClock(t *testing.T) {
	f := newFixture(t, false)
	fixed := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	in := NewIngress(f.subs, testSecret, NewLedger(f.conn), func() time.Time { return fixed })

	in.Handle(context.Background(), []byte(`{"type":"ping"}`), http.Header{})
	rows := f.ledger(t)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].ReceivedAt.Equal(fixed))
}
