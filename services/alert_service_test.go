package services

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dakotastrand/BackTrack-CS-499-Team-9/apperrors"
	"github.com/dakotastrand/BackTrack-CS-499-Team-9/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	// one connection: the pool must not hand goroutines separate in-memory DBs
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Friend{},
		&models.Alert{},
		&models.AlertRecipient{},
		&models.Record{},
		&models.UserDevice{},
	))
	require.NoError(t, db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_one_active_per_owner
		ON alerts(user_id) WHERE status = 'active'`).Error)
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username string) models.User {
	t.Helper()
	u := models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: "x",
	}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func seedFriendship(t *testing.T, db *gorm.DB, a, b string) models.Friend {
	t.Helper()
	f := models.Friend{UserID1: a, UserID2: b}
	require.NoError(t, db.Create(&f).Error)
	return f
}

// fakeMailer captures deliveries and can be told to fail for an address.
type fakeMailer struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]bool
}

func (m *fakeMailer) Send(to, subject, text, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[to] {
		return fmt.Errorf("smtp refused %s", to)
	}
	m.sent = append(m.sent, to)
	return nil
}

func (m *fakeMailer) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func newTestAlertService(t *testing.T) (*AlertService, *gorm.DB, *fakeMailer) {
	t.Helper()
	db := newTestDB(t)
	mailer := &fakeMailer{failFor: make(map[string]bool)}
	dir := NewDirectoryService(db, false)
	svc := NewAlertService(db, dir, NewNotifier(mailer), nil, nil)
	return svc, db, mailer
}

func countRecords(t *testing.T, db *gorm.DB, alertID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Record{}).Where("alert_id = ?", alertID).Count(&n).Error)
	return n
}

func reloadAlert(t *testing.T, db *gorm.DB, alertID string) models.Alert {
	t.Helper()
	var a models.Alert
	require.NoError(t, db.First(&a, "alert_id = ?", alertID).Error)
	return a
}

func TestArmRejectsNonPositiveDuration(t *testing.T) {
	svc, db, _ := newTestAlertService(t)
	owner := seedUser(t, db, "dakota")

	for _, minutes := range []float64{0, -1, -0.5} {
		_, err := svc.Arm(owner.UserID, minutes, "out", nil)
		require.ErrorIs(t, err, apperrors.ErrValidation)
	}

	var n int64
	require.NoError(t, db.Model(&models.Alert{}).Count(&n).Error)
	assert.Zero(t, n, "no alert row may exist after rejected arms")
}

func TestArmResolvesOnlyConfirmedFriends(t *testing.T) {
	svc, db, _ := newTestAlertService(t)
	owner := seedUser(t, db, "dakota")
	alice := seedUser(t, db, "alice")
	seedUser(t, db, "bob") // exists but no relation
	seedFriendship(t, db, owner.UserID, alice.UserID)

	alert, err := svc.Arm(owner.UserID, 15, "at the library", []string{"alice", "bob", "carol"})
	require.NoError(t, err)

	require.Len(t, alert.Recipients, 1)
	assert.Equal(t, models.NotifiedPending, alert.Recipients[0].NotifiedStatus)

	var rows []models.AlertRecipient
	require.NoError(t, db.Where("alert_id = ?", alert.AlertID).Find(&rows).Error)
	require.Len(t, rows, 1)
}

func TestArmConflictsWhileAlertActive(t *testing.T) {
	svc, db, _ := newTestAlertService(t)
	owner := seedUser(t, db, "dakota")

	_, err := svc.Arm(owner.UserID, 15, "first", nil)
	require.NoError(t, err)

	_, err = svc.Arm(owner.UserID, 15, "second", nil)
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestCheckInBeforeExpiry(t *testing.T) {
	svc, db, mailer := newTestAlertService(t)
	owner := seedUser(t, db, "dakota")
	alice := seedUser(t, db, "alice")
	seedFriendship(t, db, owner.UserID, alice.UserID)

	alert, err := svc.Arm(owner.UserID, 15, "at the library", []string{"alice"})
	require.NoError(t, err)

	checked, err := svc.CheckIn(owner.UserID, "")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusCheckedIn, checked.Status)

	stored := reloadAlert(t, db, alert.AlertID)
	assert.Equal(t, models.AlertStatusCheckedIn, stored.Status)
	assert.Equal(t, int64(1), countRecords(t, db, alert.AlertID))
	assert.Zero(t, mailer.sentCount(), "check-in must not notify anyone")
}

func TestCheckInRequiresOwner(t *testing.T) {
	svc, db, _ := newTestAlertService(t)
	owner := seedUser(t, db, "dakota")
	mallory := seedUser(t, db, "mallory")

	alert, err := svc.Arm(owner.UserID, 15, "x", nil)
	require.NoError(t, err)

	_, err = svc.CheckIn(mallory.UserID, alert.AlertID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	stored := reloadAlert(t, db, alert.AlertID)
	assert.Equal(t, models.AlertStatusActive, stored.Status)
}

func TestCheckInUnknownAlert(t *testing.T) {
	svc, db, _ := newTestAlertService(t)
	owner := seedUser(t, db, "dakota")

	_, err := svc.CheckIn(owner.UserID, "")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = svc.CheckIn(owner.UserID, "no-such-id")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDoubleCheckInIsConflict(t *testing.T) {
	svc, db, _ := newTestAlertService(t)
	owner := seedUser(t, db, "dakota")

	alert, err := svc.Arm(owner.UserID, 15, "x", nil)
	require.NoError(t, err)

	_, err = svc.CheckIn(owner.UserID, alert.AlertID)
	require.NoError(t, err)

	_, err = svc.CheckIn(owner.UserID, alert.AlertID)
	require.ErrorIs(t, err, apperrors.ErrConflict)

	assert.Equal(t, int64(1), countRecords(t, db, alert.AlertID), "a second Record must never be written")
}

func TestExpiryNotifiesRecipients(t *testing.T) {
	svc, db, mailer := newTestAlertService(t)
	owner := seedUser(t, db, "dakota")
	alice := seedUser(t, db, "alice")
	seedFriendship(t, db, owner.UserID, alice.UserID)

	alert, err := svc.Arm(owner.UserID, 0.0005, "test", []string{"alice"}) // 30ms
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return reloadAlert(t, db, alert.AlertID).Status == models.AlertStatusExpired
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		var row models.AlertRecipient
		if db.First(&row, "alert_id = ?", alert.AlertID).Error != nil {
			return false
		}
		return row.NotifiedStatus == models.NotifiedSent
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, mailer.sentCount())
	assert.Equal(t, int64(1), countRecords(t, db, alert.AlertID))
}

func TestExpiryRecordsFailedDelivery(t *testing.T) {
	svc, db, mailer := newTestAlertService(t)
	owner := seedUser(t, db, "dakota")
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	seedFriendship(t, db, owner.UserID, alice.UserID)
	seedFriendship(t, db, owner.UserID, bob.UserID)
	mailer.failFor["alice@example.com"] = true

	alert, err := svc.Arm(owner.UserID, 0.0005, "test", []string{"alice", "bob"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		var rows []models.AlertRecipient
		if db.Where("alert_id = ?", alert.AlertID).Find(&rows).Error != nil || len(rows) != 2 {
			return false
		}
		for _, r := range rows {
			if r.NotifiedStatus == models.NotifiedPending {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	statuses := map[string]string{}
	var rows []models.AlertRecipient
	require.NoError(t, db.Where("alert_id = ?", alert.AlertID).Find(&rows).Error)
	for _, r := range rows {
		statuses[r.RecipientFriendID] = r.NotifiedStatus
	}
	assert.Contains(t, mapValues(statuses), models.NotifiedFailed)
	assert.Contains(t, mapValues(statuses), models.NotifiedSent)

	// one recipient failing never blocks the other
	assert.Equal(t, 1, mailer.sentCount())
	assert.Equal(t, int64(1), countRecords(t, db, alert.AlertID))
}

func mapValues(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func TestExpiryWithNoRecipients(t *testing.T) {
	svc, db, mailer := newTestAlertService(t)
	owner := seedUser(t, db, "dakota")

	alert, err := svc.Arm(owner.UserID, 0.0005, "alone", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return reloadAlert(t, db, alert.AlertID).Status == models.AlertStatusExpired
	}, 2*time.Second, 10*time.Millisecond)

	assert.Zero(t, mailer.sentCount())
	assert.Equal(t, int64(1), countRecords(t, db, alert.AlertID))
}

func TestCheckInAfterExpiryIsConflict(t *testing.T) {
	svc, db, _ := newTestAlertService(t)
	owner := seedUser(t, db, "dakota")

	alert, err := svc.Arm(owner.UserID, 0.0005, "test", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return reloadAlert(t, db, alert.AlertID).Status == models.AlertStatusExpired
	}, 2*time.Second, 10*time.Millisecond)

	_, err = svc.CheckIn(owner.UserID, alert.AlertID)
	require.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, int64(1), countRecords(t, db, alert.AlertID))
}

// Exactly one of checked_in/expired must win, even when check-in lands right
// on the deadline. Each trial races a fresh alert and asserts a single
// terminal write and a single Record.
func TestConcurrentCheckInAndExpiry(t *testing.T) {
	svc, db, _ := newTestAlertService(t)
	owner := seedUser(t, db, "dakota")

	for trial := 0; trial < 20; trial++ {
		alert, err := svc.Arm(owner.UserID, 0.0005, "race", nil) // 30ms
		require.NoError(t, err)

		go func() {
			time.Sleep(30 * time.Millisecond)
			_, _ = svc.CheckIn(owner.UserID, alert.AlertID)
		}()

		require.Eventually(t, func() bool {
			a := reloadAlert(t, db, alert.AlertID)
			return a.Terminal() && !svc.Scheduler().Armed(alert.AlertID)
		}, 2*time.Second, 5*time.Millisecond, "trial %d never finished", trial)

		// let any in-flight loser finish before counting
		time.Sleep(20 * time.Millisecond)

		final := reloadAlert(t, db, alert.AlertID)
		assert.Contains(t, []string{models.AlertStatusCheckedIn, models.AlertStatusExpired}, final.Status)
		assert.Equal(t, int64(1), countRecords(t, db, alert.AlertID), "trial %d: exactly one Record", trial)
	}
}

// Concurrent arms for one owner must yield exactly one active alert: the
// partial unique index decides the race, not the pre-check.
func TestConcurrentArmSingleActive(t *testing.T) {
	svc, db, _ := newTestAlertService(t)
	owner := seedUser(t, db, "dakota")

	const n = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	var succeeded int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Arm(owner.UserID, 15, "race", nil)
			if err == nil {
				atomic.AddInt32(&succeeded, 1)
				return
			}
			assert.ErrorIs(t, err, apperrors.ErrConflict)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&succeeded), "exactly one arm may win")

	var active int64
	require.NoError(t, db.Model(&models.Alert{}).
		Where("user_id = ? AND status = ?", owner.UserID, models.AlertStatusActive).
		Count(&active).Error)
	assert.Equal(t, int64(1), active)
}

// An alert left active by a previous process run has no timer anymore.
// Check-in must still go through: the status-guarded UPDATE is the only
// fence left.
func TestCheckInWithoutLiveTimer(t *testing.T) {
	svc, db, _ := newTestAlertService(t)
	owner := seedUser(t, db, "dakota")

	now := time.Now()
	alert := models.Alert{
		UserID:    owner.UserID,
		StartTime: now.Add(-5 * time.Minute),
		EndTime:   now.Add(10 * time.Minute),
		Status:    models.AlertStatusActive,
		Message:   "orphaned",
	}
	require.NoError(t, db.Create(&alert).Error)
	require.False(t, svc.Scheduler().Armed(alert.AlertID))

	checked, err := svc.CheckIn(owner.UserID, "")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusCheckedIn, checked.Status)
	assert.Equal(t, int64(1), countRecords(t, db, alert.AlertID))
}

// Extending an orphaned active alert re-arms its countdown instead of
// reporting "too late".
func TestExtendWithoutLiveTimerReArms(t *testing.T) {
	svc, db, _ := newTestAlertService(t)
	owner := seedUser(t, db, "dakota")

	now := time.Now()
	alert := models.Alert{
		UserID:    owner.UserID,
		StartTime: now.Add(-5 * time.Minute),
		EndTime:   now.Add(5 * time.Minute),
		Status:    models.AlertStatusActive,
		Message:   "orphaned",
	}
	require.NoError(t, db.Create(&alert).Error)
	require.False(t, svc.Scheduler().Armed(alert.AlertID))

	extended, err := svc.Extend(owner.UserID, 10)
	require.NoError(t, err)
	assert.Equal(t, alert.EndTime.Add(10*time.Minute).Unix(), extended.EndTime.Unix())
	assert.True(t, svc.Scheduler().Armed(alert.AlertID), "countdown must be re-armed")

	// an orphan whose extension still lands in the past stays rejected
	past := models.Alert{
		UserID:    seedUser(t, db, "erin").UserID,
		StartTime: now.Add(-2 * time.Hour),
		EndTime:   now.Add(-time.Hour),
		Status:    models.AlertStatusActive,
		Message:   "long gone",
	}
	require.NoError(t, db.Create(&past).Error)
	_, err = svc.Extend(past.UserID, 1)
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestExtendPushesDeadline(t *testing.T) {
	svc, db, _ := newTestAlertService(t)
	owner := seedUser(t, db, "dakota")

	alert, err := svc.Arm(owner.UserID, 15, "x", nil)
	require.NoError(t, err)
	origEnd := alert.EndTime

	extended, err := svc.Extend(owner.UserID, 10)
	require.NoError(t, err)
	assert.Equal(t, origEnd.Add(10*time.Minute).Unix(), extended.EndTime.Unix())

	stored := reloadAlert(t, db, alert.AlertID)
	assert.Equal(t, models.AlertStatusActive, stored.Status)
	assert.True(t, svc.Scheduler().Armed(alert.AlertID), "countdown must be re-armed")

	_, err = svc.Extend(owner.UserID, 0)
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestExtendAfterExpiryIsConflict(t *testing.T) {
	svc, db, _ := newTestAlertService(t)
	owner := seedUser(t, db, "dakota")

	alert, err := svc.Arm(owner.UserID, 0.0005, "x", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return reloadAlert(t, db, alert.AlertID).Status == models.AlertStatusExpired
	}, 2*time.Second, 10*time.Millisecond)

	_, err = svc.Extend(owner.UserID, 10)
	require.ErrorIs(t, err, apperrors.ErrNotFound) // no active alert anymore
}

func TestHistoryKeepsRecipientSnapshot(t *testing.T) {
	svc, db, _ := newTestAlertService(t)
	owner := seedUser(t, db, "dakota")
	alice := seedUser(t, db, "alice")
	rel := seedFriendship(t, db, owner.UserID, alice.UserID)

	alert, err := svc.Arm(owner.UserID, 15, "x", []string{"alice"})
	require.NoError(t, err)
	_, err = svc.CheckIn(owner.UserID, alert.AlertID)
	require.NoError(t, err)

	// removing the friend later must not rewrite history
	dir := NewDirectoryService(db, false)
	require.NoError(t, dir.RemoveFriend(owner.UserID, rel.FriendID))

	alerts, err := svc.History(owner.UserID)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Len(t, alerts[0].Recipients, 1)
	assert.Equal(t, rel.FriendID, alerts[0].Recipients[0].RecipientFriendID)

	records, err := svc.Records(owner.UserID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, alert.AlertID, records[0].AlertID)
}
