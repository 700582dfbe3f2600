package services

import (
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/dakotastrand/BackTrack-CS-499-Team-9/apperrors"
	"github.com/dakotastrand/BackTrack-CS-499-Team-9/models"
)

// AlertService is the alert lifecycle controller. It owns the state machine
// pending → active → {checked_in, expired} and the fan-out that runs when a
// countdown expires. At most one of check-in/expiry ever takes effect for an
// alert: the scheduler's per-alert claim decides the race in memory, and a
// status-guarded UPDATE decides it again at the store, so a terminal write
// can never happen twice.
type AlertService struct {
	db       *gorm.DB
	dir      *DirectoryService
	notifier *Notifier
	sched    *Scheduler
	rt       *RealtimeHub // optional
	push     *PushService // optional
}

func NewAlertService(db *gorm.DB, dir *DirectoryService, notifier *Notifier, rt *RealtimeHub, push *PushService) *AlertService {
	s := &AlertService{
		db:       db,
		dir:      dir,
		notifier: notifier,
		rt:       rt,
		push:     push,
	}
	s.sched = NewScheduler(s.expire)
	return s
}

// Scheduler exposes the timer registry, mainly so startup can report alerts
// whose timers were lost to a restart.
func (s *AlertService) Scheduler() *Scheduler {
	return s.sched
}

// Arm creates an alert for the owner and starts its countdown. Contact
// usernames that do not resolve to confirmed friends are skipped; arming with
// zero resolved recipients is allowed. The alert and its recipient rows
// commit in one transaction before the timer starts, and the call returns as
// soon as that commit lands.
func (s *AlertService) Arm(ownerID string, minutes float64, message string, contactUsernames []string) (*models.Alert, error) {
	if minutes <= 0 {
		return nil, apperrors.ValidationFailed("duration_minutes", "duration must be greater than zero")
	}

	// Fast path only: the partial unique index on active alerts is what
	// actually holds this invariant against concurrent arms.
	var existing models.Alert
	err := s.db.Where("user_id = ? AND status = ?", ownerID, models.AlertStatusActive).First(&existing).Error
	if err == nil {
		return nil, apperrors.Conflict("an active alert already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	recipients, err := s.dir.Resolve(ownerID, contactUsernames)
	if err != nil {
		return nil, err
	}

	d := time.Duration(minutes * float64(time.Minute))
	now := time.Now()
	alert := models.Alert{
		UserID:    ownerID,
		StartTime: now,
		EndTime:   now.Add(d),
		Status:    models.AlertStatusPending,
		Message:   message,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&alert).Error; err != nil {
			return err
		}
		for _, r := range recipients {
			row := models.AlertRecipient{
				AlertID:           alert.AlertID,
				RecipientFriendID: r.FriendID,
				NotifiedStatus:    models.NotifiedPending,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			alert.Recipients = append(alert.Recipients, row)
		}
		return tx.Model(&models.Alert{}).
			Where("alert_id = ?", alert.AlertID).
			Update("status", models.AlertStatusActive).Error
	})
	if err != nil {
		// Losing the pending→active step to the unique index means another
		// arm won; the whole transaction rolled back.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.Conflict("an active alert already exists")
		}
		return nil, err
	}
	alert.Status = models.AlertStatusActive

	if err := s.sched.Arm(alert.AlertID, d); err != nil {
		return nil, err
	}
	log.Printf("alert %s armed for %s with %d recipient(s)", alert.AlertID, d, len(recipients))
	return &alert, nil
}

// CheckIn cancels the owner's countdown before it expires. An empty alertID
// means "my active alert". The cancellation must beat the timer: if expiry
// already claimed it, CheckIn fails with a conflict and changes nothing.
// Calling it again on a finished alert is also a conflict, never a second
// Record.
func (s *AlertService) CheckIn(ownerID, alertID string) (*models.Alert, error) {
	alert, err := s.lookup(ownerID, alertID)
	if err != nil {
		return nil, err
	}
	if alert.Terminal() {
		return nil, apperrors.Conflict("alert already " + alert.Status)
	}

	// Claim the live timer. Losing the claim while the timer is still
	// registered means expiry fired first. No registered timer at all means
	// the countdown was lost (restart); the guarded UPDATE below is then the
	// only fence and check-in is still allowed through it.
	if !s.sched.Cancel(alert.AlertID) && s.sched.Armed(alert.AlertID) {
		return nil, apperrors.Conflict("too late: the timer already fired")
	}

	applied, err := s.terminalTransition(alert, models.AlertStatusCheckedIn)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, apperrors.Conflict("alert already finished")
	}

	if s.rt != nil {
		s.rt.Push(ownerID, EventTimerCancelled, map[string]any{"alertId": alert.AlertID})
	}
	log.Printf("alert %s checked in", alert.AlertID)
	return alert, nil
}

// Extend pushes the active alert's deadline out by the given minutes and
// re-arms the countdown for the new remaining time. It must win the claim on
// the live timer the same way CheckIn does.
func (s *AlertService) Extend(ownerID string, minutes float64) (*models.Alert, error) {
	if minutes <= 0 {
		return nil, apperrors.ValidationFailed("minutes", "extension must be greater than zero")
	}

	alert, err := s.lookup(ownerID, "")
	if err != nil {
		return nil, err
	}

	// Same claim rule as CheckIn: losing to a live timer is a conflict, but
	// an active alert whose countdown was lost to a restart may still be
	// extended, which also re-arms it.
	if !s.sched.Cancel(alert.AlertID) && s.sched.Armed(alert.AlertID) {
		return nil, apperrors.Conflict("too late: the timer already fired")
	}

	newEnd := alert.EndTime.Add(time.Duration(minutes * float64(time.Minute)))
	if time.Until(newEnd) <= 0 {
		return nil, apperrors.ValidationFailed("minutes", "new deadline is still in the past")
	}
	res := s.db.Model(&models.Alert{}).
		Where("alert_id = ? AND status = ?", alert.AlertID, models.AlertStatusActive).
		Update("end_time", newEnd)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.Conflict("alert already finished")
	}
	alert.EndTime = newEnd

	if err := s.sched.Arm(alert.AlertID, time.Until(newEnd)); err != nil {
		return nil, err
	}

	if s.rt != nil {
		s.rt.Push(ownerID, EventTimerExtended, map[string]any{
			"alertId": alert.AlertID,
			"endTime": newEnd,
		})
	}
	log.Printf("alert %s extended to %s", alert.AlertID, newEnd.Format(time.RFC3339))
	return alert, nil
}

// ActiveAlert returns the owner's currently running alert, if any.
func (s *AlertService) ActiveAlert(ownerID string) (*models.Alert, error) {
	return s.lookup(ownerID, "")
}

// History returns the owner's alerts, newest first, with their recipient
// snapshots. Delivery outcomes land on the recipient rows, so past failures
// are visible here even though they were never surfaced at expiry time.
func (s *AlertService) History(ownerID string) ([]models.Alert, error) {
	var alerts []models.Alert
	err := s.db.Preload("Recipients").
		Where("user_id = ?", ownerID).
		Order("start_time DESC").
		Find(&alerts).Error
	return alerts, err
}

// Records returns the owner's completion audit rows, newest first.
func (s *AlertService) Records(ownerID string) ([]models.Record, error) {
	var records []models.Record
	err := s.db.Where("user_id = ?", ownerID).Order("time_stamp DESC").Find(&records).Error
	return records, err
}

// expire runs on the scheduler's timer goroutine when a countdown fires. The
// terminal write commits before any notification goes out; if the guarded
// UPDATE misses, a check-in won at the store and everything else is skipped.
func (s *AlertService) expire(alertID string) {
	var alert models.Alert
	if err := s.db.First(&alert, "alert_id = ?", alertID).Error; err != nil {
		log.Printf("expire: alert %s not found: %v", alertID, err)
		return
	}
	if alert.Terminal() {
		return
	}

	applied, err := s.terminalTransition(&alert, models.AlertStatusExpired)
	if err != nil {
		log.Printf("expire: terminal write for alert %s failed: %v", alertID, err)
		return
	}
	if !applied {
		return // check-in won
	}
	log.Printf("alert %s expired, notifying recipients", alertID)

	var owner models.User
	if err := s.db.First(&owner, "user_id = ?", alert.UserID).Error; err != nil {
		log.Printf("expire: owner of alert %s not found: %v", alertID, err)
		return
	}

	var rows []models.AlertRecipient
	if err := s.db.Where("alert_id = ?", alertID).Find(&rows).Error; err != nil {
		log.Printf("expire: recipients of alert %s not loaded: %v", alertID, err)
		return
	}

	resolved := make([]ResolvedRecipient, 0, len(rows))
	rowByFriend := make(map[string]string, len(rows))
	for _, row := range rows {
		rowByFriend[row.RecipientFriendID] = row.AlertRecipientID
		r, err := s.recipientAddress(alert.UserID, row.RecipientFriendID)
		if err != nil {
			// Relation or contact gone since arm time: the snapshot row
			// stays, the delivery is recorded as failed.
			s.markRecipient(row.AlertRecipientID, models.NotifiedFailed)
			delete(rowByFriend, row.RecipientFriendID)
			continue
		}
		resolved = append(resolved, r)
	}

	outcomes := s.notifier.Notify(&alert, owner.Username, resolved)
	for _, o := range outcomes {
		status := models.NotifiedSent
		if o.Err != nil {
			status = models.NotifiedFailed
		}
		if rowID, ok := rowByFriend[o.FriendID]; ok {
			s.markRecipient(rowID, status)
		}
	}

	if s.rt != nil {
		s.rt.Push(alert.UserID, EventTimerComplete, map[string]any{"alertId": alert.AlertID})
	}
	if s.push != nil {
		s.push.PushToUser(alert.UserID, "Check-in missed",
			"Your timer expired and your contacts were notified.",
			map[string]string{"alertId": alert.AlertID})
	}
}

// terminalTransition moves an active alert to its final status and writes the
// completion Record in one transaction. The status guard makes it idempotent:
// it reports false, with nothing written, when some other transition got
// there first. Commit failures are retried since re-applying is safe.
func (s *AlertService) terminalTransition(alert *models.Alert, to string) (bool, error) {
	var applied bool
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
		}
		applied, err = s.tryTerminal(alert.AlertID, alert.UserID, to)
		if err == nil {
			break
		}
	}
	if err != nil {
		return false, err
	}
	if applied {
		alert.Status = to
	}
	return applied, nil
}

func (s *AlertService) tryTerminal(alertID, ownerID, to string) (bool, error) {
	applied := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Alert{}).
			Where("alert_id = ? AND status = ?", alertID, models.AlertStatusActive).
			Update("status", to)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // lost the race; commit nothing else
		}
		applied = true
		return tx.Create(&models.Record{
			UserID:    ownerID,
			AlertID:   alertID,
			TimeStamp: time.Now(),
		}).Error
	})
	return applied, err
}

func (s *AlertService) markRecipient(alertRecipientID, status string) {
	err := s.db.Model(&models.AlertRecipient{}).
		Where("alert_recipient_id = ?", alertRecipientID).
		Update("notified_status", status).Error
	if err != nil {
		log.Printf("recipient %s: status update failed: %v", alertRecipientID, err)
	}
}

func (s *AlertService) lookup(ownerID, alertID string) (*models.Alert, error) {
	var alert models.Alert
	var err error
	if alertID == "" {
		err = s.db.Preload("Recipients").
			Where("user_id = ? AND status = ?", ownerID, models.AlertStatusActive).
			First(&alert).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("active alert", ownerID)
		}
	} else {
		err = s.db.Preload("Recipients").First(&alert, "alert_id = ?", alertID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("alert", alertID)
		}
	}
	if err != nil {
		return nil, err
	}
	if alert.UserID != ownerID {
		return nil, apperrors.Forbidden("not your alert")
	}
	return &alert, nil
}

func (s *AlertService) recipientAddress(ownerID, friendID string) (ResolvedRecipient, error) {
	var rel models.Friend
	if err := s.db.First(&rel, "friend_id = ?", friendID).Error; err != nil {
		return ResolvedRecipient{}, err
	}
	var contact models.User
	if err := s.db.First(&contact, "user_id = ?", rel.Other(ownerID)).Error; err != nil {
		return ResolvedRecipient{}, err
	}
	return ResolvedRecipient{
		FriendID: rel.FriendID,
		UserID:   contact.UserID,
		Username: contact.Username,
		Email:    contact.Email,
	}, nil
}
