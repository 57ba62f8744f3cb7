package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/vendor_portal_server/config"
	"github.com/qs3c/vendor_portal_server/internal/model"
	"github.com/qs3c/vendor_portal_server/internal/pkg/notify"
	"github.com/qs3c/vendor_portal_server/internal/pkg/oss"
	"github.com/qs3c/vendor_portal_server/internal/pkg/pubsub"
	"github.com/qs3c/vendor_portal_server/internal/repository"
	"github.com/qs3c/vendor_portal_server/internal/testutil"
)

var testStart = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []*notify.Notification
	err  error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, n *notify.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := n.Validate(); err != nil {
		return err
	}
	if d.err != nil {
		return d.err
	}
	cp := *n
	d.sent = append(d.sent, &cp)
	return nil
}

func (d *fakeDispatcher) SetErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *fakeDispatcher) Sent() []*notify.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*notify.Notification(nil), d.sent...)
}

func (d *fakeDispatcher) Kinds() []notify.Kind {
	var kinds []notify.Kind
	for _, n := range d.Sent() {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []*pubsub.StatusMessage
}

func (p *fakePublisher) PublishStatus(_ context.Context, msg *pubsub.StatusMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakePublisher) Statuses() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.messages {
		out = append(out, m.Status)
	}
	return out
}

type testEnv struct {
	db         *gorm.DB
	repos      *repository.Repositories
	cfg        *config.Config
	clock      *testClock
	dispatcher *fakeDispatcher
	publisher  *fakePublisher
	storage    *oss.LocalStorage

	apps          *ApplicationService
	sections      *SectionService
	documents     *DocumentService
	reminders     *ReminderService
	subscriptions *SubscriptionService
	reviews       *ReviewService
}

func newTestEnv(t *testing.T, opts ...func(*config.Config)) *testEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	cfg := config.Defaults()
	cfg.JWT.Secret = "test-secret-key-for-testing"
	cfg.Payment = config.PaymentConfig{KeyID: "rzp_test_key", KeySecret: "test-payment-secret"}
	for _, opt := range opts {
		opt(cfg)
	}

	storage, err := oss.NewLocalStorage(t.TempDir(), "/files")
	require.NoError(t, err)

	clock := &testClock{now: testStart}
	rt := Runtime{Clock: clock.Now}
	repos := repository.NewRepositories(db)

	env := &testEnv{
		db:         db,
		repos:      repos,
		cfg:        cfg,
		clock:      clock,
		dispatcher: &fakeDispatcher{},
		publisher:  &fakePublisher{},
		storage:    storage,
	}
	env.sections = NewSectionService(repos, cfg, rt)
	env.apps = NewApplicationService(repos, env.sections, env.publisher, cfg, rt)
	env.documents = NewDocumentService(repos, storage, cfg, rt)
	env.reminders = NewReminderService(repos, env.dispatcher, cfg, rt)
	env.subscriptions = NewSubscriptionService(repos, env.reminders, env.dispatcher, cfg, rt)
	env.reviews = NewReviewService(repos, env.apps, env.subscriptions, env.dispatcher, cfg, rt)
	return env
}

var (
	pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)
	pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
)

// underReview 创建一条带申请人邮箱、处于 under_review 的申请
func (e *testEnv) underReview(t *testing.T) *model.Application {
	t.Helper()
	user := testutil.TestUser(t, e.db)
	return testutil.TestApplication(t, e.db, user.ID,
		testutil.WithStatus(model.ApplicationUnderReview),
		testutil.WithApplicantEmail(*user.Email))
}

func (e *testEnv) verifyAllSections(t *testing.T, app *model.Application) {
	t.Helper()
	for _, section := range model.AllSections() {
		_, err := e.sections.MarkSectionVerified(context.Background(), app.Reference, section, 900)
		require.NoError(t, err)
	}
}

// approved 走完核验与终审，返回通过后的申请与会员
func (e *testEnv) approved(t *testing.T) (*model.Application, *model.Subscription) {
	t.Helper()
	ctx := context.Background()

	app := e.underReview(t)
	e.verifyAllSections(t, app)
	resp, err := e.reviews.Decide(ctx, 900, app.Reference, model.ApplicationApproved, "")
	require.NoError(t, err)

	app, err = e.apps.GetByReference(ctx, app.Reference)
	require.NoError(t, err)
	sub, err := e.subscriptions.GetByVendorID(ctx, resp.VendorID)
	require.NoError(t, err)
	return app, sub
}

func (e *testEnv) checkpoints(t *testing.T, vendorID string) []*model.ReminderCheckpoint {
	t.Helper()
	cps, err := e.repos.Reminders.ListByVendor(context.Background(), vendorID)
	require.NoError(t, err)
	return cps
}

func (e *testEnv) auditActions(t *testing.T, appID int64) []string {
	t.Helper()
	logs, err := e.repos.Audits.ListByApplication(context.Background(), appID)
	require.NoError(t, err)
	var actions []string
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	return actions
}

// afterFirstQuery 在下一次查询 table 之后执行一次 fn，用来在读取与写入之间插入另一方的修改。
// 事务内的查询交给 fn 的是同一个事务，fn 的写入随事务一起提交或回滚
func (e *testEnv) afterFirstQuery(t *testing.T, table string, fn func(db *gorm.DB)) {
	t.Helper()
	var fired atomic.Bool
	err := e.db.Callback().Query().After("gorm:query").Register("test:interleave:"+table, func(db *gorm.DB) {
		if db.Error != nil || db.Statement.Table != table || fired.Swap(true) {
			return
		}
		fn(db.Session(&gorm.Session{NewDB: true}))
	})
	require.NoError(t, err)
}
