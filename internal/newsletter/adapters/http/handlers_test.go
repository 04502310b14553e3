package http_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bulletinapp/bulletin/internal/idempotency"
	"github.com/bulletinapp/bulletin/internal/idempotency/memory"
	httpadapter "github.com/bulletinapp/bulletin/internal/newsletter/adapters/http"
	"github.com/bulletinapp/bulletin/internal/newsletter/app"
	"github.com/bulletinapp/bulletin/internal/newsletter/domain"
	"github.com/bulletinapp/bulletin/internal/newsletter/metrics"
	"github.com/bulletinapp/bulletin/internal/newsletter/ports"
	"github.com/bulletinapp/bulletin/internal/telemetry"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type stubTx struct{ pgx.Tx }

func (stubTx) Commit(ctx context.Context) error   { return nil }
func (stubTx) Rollback(ctx context.Context) error { return nil }

type stubBeginner struct{}

func (stubBeginner) Begin(ctx context.Context) (pgx.Tx, error) { return stubTx{}, nil }

type fakeIssueRepo struct {
	issues map[uuid.UUID]domain.Issue
}

func newFakeIssueRepo() *fakeIssueRepo {
	return &fakeIssueRepo{issues: make(map[uuid.UUID]domain.Issue)}
}

func (r *fakeIssueRepo) Create(ctx context.Context, tx pgx.Tx, issue domain.Issue) error {
	r.issues[issue.ID] = issue
	return nil
}

func (r *fakeIssueRepo) EnqueueDeliveries(ctx context.Context, tx pgx.Tx, issueID uuid.UUID) (int64, error) {
	return 2, nil
}

func (r *fakeIssueRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Issue, error) {
	issue, ok := r.issues[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &issue, nil
}

type fakeSubscriberRepo struct{}

func (fakeSubscriberRepo) Create(ctx context.Context, tx pgx.Tx, s domain.Subscriber) error {
	return nil
}

func (fakeSubscriberRepo) StoreToken(ctx context.Context, tx pgx.Tx, id uuid.UUID, token string) error {
	return nil
}

func (fakeSubscriberRepo) ConfirmByToken(ctx context.Context, token string) (uuid.UUID, error) {
	if token == "known-token" {
		return uuid.New(), nil
	}
	return uuid.Nil, ports.ErrTokenNotFound
}

func (fakeSubscriberRepo) GetByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	return nil, ports.ErrNotFound
}

type fakeMailer struct{}

func (fakeMailer) Send(ctx context.Context, recipient, subject, htmlBody, textBody string) error {
	return nil
}

type fakeEvents struct{}

func (fakeEvents) PublishIssuePublished(ctx context.Context, issueID string) error {
	return nil
}

func (fakeEvents) PublishSubscriberConfirmed(ctx context.Context, subscriberID string) error {
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeIssueRepo) {
	t.Helper()

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	m, err := metrics.NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	repo := newFakeIssueRepo()
	coord := idempotency.NewCoordinator(stubBeginner{}, memory.NewStore(), nil, nil)
	service := app.NewService(
		nil,
		repo,
		fakeSubscriberRepo{},
		fakeMailer{},
		fakeEvents{},
		coord,
		telemetry.NewLogger(slog.LevelError),
		m,
		"http://localhost:8080",
	)

	mux := http.NewServeMux()
	httpadapter.NewHandler(service).Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, repo
}

func publishRequest(t *testing.T, url, userID, key, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/admin/newsletters", strings.NewReader(body))
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return res
}

func readBody(t *testing.T, res *http.Response) string {
	t.Helper()
	defer res.Body.Close()
	buf := new(bytes.Buffer)
	_, err := buf.ReadFrom(res.Body)
	require.NoError(t, err)
	return buf.String()
}

func TestPublishNewsletterEndpoint(t *testing.T) {
	srv, repo := newTestServer(t)
	userID := uuid.New().String()
	payload := `{"title":"Release notes","text_content":"text","html_content":"<p>html</p>"}`

	t.Run("publishes and replays identically", func(t *testing.T) {
		first := publishRequest(t, srv.URL, userID, "attempt-1", payload)
		firstBody := readBody(t, first)
		assert.Equal(t, http.StatusAccepted, first.StatusCode)
		assert.Equal(t, "application/json", first.Header.Get("Content-Type"))
		require.Len(t, repo.issues, 1)

		retry := publishRequest(t, srv.URL, userID, "attempt-1", payload)
		retryBody := readBody(t, retry)
		assert.Equal(t, http.StatusAccepted, retry.StatusCode)
		assert.Equal(t, firstBody, retryBody, "retry must replay the identical response")
		assert.Len(t, repo.issues, 1, "retry must not publish a second issue")
	})

	t.Run("distinct key publishes again", func(t *testing.T) {
		res := publishRequest(t, srv.URL, userID, "attempt-2", payload)
		readBody(t, res)
		assert.Equal(t, http.StatusAccepted, res.StatusCode)
		assert.Len(t, repo.issues, 2)
	})

	t.Run("rejects missing identity", func(t *testing.T) {
		res := publishRequest(t, srv.URL, "", "attempt-3", payload)
		readBody(t, res)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	})

	t.Run("rejects invalid idempotency key", func(t *testing.T) {
		res := publishRequest(t, srv.URL, userID, "not a valid key!", payload)
		readBody(t, res)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("rejects empty idempotency key", func(t *testing.T) {
		res := publishRequest(t, srv.URL, userID, "", payload)
		readBody(t, res)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("rejects invalid payload", func(t *testing.T) {
		res := publishRequest(t, srv.URL, userID, "attempt-4", `{"title":""}`)
		readBody(t, res)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})
}

func TestGetNewsletterEndpoint(t *testing.T) {
	srv, repo := newTestServer(t)

	issue := domain.Issue{ID: uuid.New(), Title: "Release notes", TextContent: "text"}
	repo.issues[issue.ID] = issue

	res, err := http.Get(srv.URL + "/admin/newsletters/" + issue.ID.String())
	require.NoError(t, err)
	readBody(t, res)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(srv.URL + "/admin/newsletters/" + uuid.New().String())
	require.NoError(t, err)
	readBody(t, res)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestConfirmSubscriptionEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	res, err := http.Get(srv.URL + "/subscriptions/confirm?subscription_token=known-token")
	require.NoError(t, err)
	readBody(t, res)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(srv.URL + "/subscriptions/confirm?subscription_token=bogus")
	require.NoError(t, err)
	readBody(t, res)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, err = http.Get(srv.URL + "/subscriptions/confirm")
	require.NoError(t, err)
	readBody(t, res)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestSubscribeEndpointValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	res, err := http.PostForm(srv.URL+"/subscriptions", map[string][]string{
		"email": {"not-an-email"},
		"name":  {"Ursula"},
	})
	require.NoError(t, err)
	readBody(t, res)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}
