package schedule

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebell/carebell/internal/models"
	"github.com/carebell/carebell/internal/rrule"
)

// MedicineStore is the slice of the catalog the generator reads.
type MedicineStore interface {
	ListByElder(ctx context.Context, elderID int64) ([]*models.Medicine, error)
}

// ScheduleStore is the slice of the schedule persistence the generator and
// the status sweep mutate. CreateItemIfAbsent and MarkMissed carry the
// correctness guarantees: at-most-one creation per deterministic id, and
// at-most-one missed transition per item.
type ScheduleStore interface {
	EnsureDay(ctx context.Context, elderID int64, day string, now time.Time) (created bool, err error)
	ListItems(ctx context.Context, elderID int64, day string) ([]*models.ScheduleItem, error)
	CreateItemIfAbsent(ctx context.Context, item *models.ScheduleItem) (created bool, err error)
	// MarkMissed flips a non-terminal item to missed and appends the
	// missed-dose log entry in one transaction. Returns true only for the
	// call that performed the flip.
	MarkMissed(ctx context.Context, elderID int64, day, itemID string, now time.Time) (bool, error)
}

// SyncResult is what one generator pass hands downstream. NewlyMissed are
// the items this pass itself flipped to missed (the only ones eligible for
// caretaker notification); DueReminders are items inside their intake
// window that have not yet been announced to the elder.
type SyncResult struct {
	NewlyMissed  []*models.ScheduleItem
	DueReminders []*models.ScheduleItem
}

// Service generates and repairs the dose schedule for a calendar date and
// runs the evaluator-driven status sweep.
type Service struct {
	medicines MedicineStore
	schedule  ScheduleStore
	loc       *time.Location
	log       zerolog.Logger
}

func NewService(medicines MedicineStore, store ScheduleStore, loc *time.Location, log zerolog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		medicines: medicines,
		schedule:  store,
		loc:       loc,
		log:       log.With().Str("component", "schedule").Logger(),
	}
}

// Location returns the location dose instants are built in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Sync brings the elder's schedule for now's calendar date up to date:
// creates the day and any absent dose instances, sweeps the previous day
// when the day is first created, and flips overdue items through the
// marker. Safe to call repeatedly and concurrently; duplicate work
// resolves to no-ops in the store.
func (s *Service) Sync(ctx context.Context, elderID int64, now time.Time) (*SyncResult, error) {
	now = now.In(s.loc)
	day := now.Format(models.DayKey)
	result := &SyncResult{}

	dayCreated, err := s.schedule.EnsureDay(ctx, elderID, day, now)
	if err != nil {
		return nil, err
	}
	// A device that was off all evening must not let yesterday's pending
	// doses escape detection: the first pass of a new day sweeps them.
	if dayCreated {
		s.sweepDay(ctx, elderID, now.AddDate(0, 0, -1).Format(models.DayKey), now, result)
	}

	meds, err := s.medicines.ListByElder(ctx, elderID)
	if err != nil {
		return nil, err
	}
	existing, err := s.itemSet(ctx, elderID, day)
	if err != nil {
		return nil, err
	}

	for _, med := range meds {
		if !s.medicineDue(med, now) {
			continue
		}
		times, malformed := med.DoseTimes()
		for _, bad := range malformed {
			s.log.Warn().Str("medicine", med.MedicineID).Str("time", bad).
				Msg("skipping malformed dose time")
		}
		for _, tod := range times {
			if existing[models.ItemID(med.MedicineID, tod)] {
				continue
			}
			s.createItem(ctx, med, day, tod, now, result)
		}
	}

	s.sweepDay(ctx, elderID, day, now, result)
	return result, nil
}

// itemSet returns the ids of the day's stored items.
func (s *Service) itemSet(ctx context.Context, elderID int64, day string) (map[string]bool, error) {
	items, err := s.schedule.ListItems(ctx, elderID, day)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item.ItemID] = true
	}
	return set, nil
}

// medicineDue reports whether the medicine generates doses on now's date.
func (s *Service) medicineDue(med *models.Medicine, now time.Time) bool {
	if !med.ActiveOn(now) {
		return false
	}
	if med.RecurrenceRule == "" {
		return true
	}
	start := now
	if med.StartDate != nil {
		start = *med.StartDate
	}
	due, err := rrule.OccursOn(med.RecurrenceRule, start, now, s.loc)
	if err != nil {
		s.log.Warn().Err(err).Str("medicine", med.MedicineID).
			Msg("skipping medicine with invalid recurrence rule")
		return false
	}
	return due
}

func (s *Service) createItem(ctx context.Context, med *models.Medicine, day, tod string, now time.Time, result *SyncResult) {
	base, err := models.DoseInstant(now, tod, s.loc)
	if err != nil {
		s.log.Warn().Err(err).Str("medicine", med.MedicineID).Msg("skipping dose time")
		return
	}
	item := &models.ScheduleItem{
		ItemID:        models.ItemID(med.MedicineID, tod),
		ElderID:       med.ElderID,
		Day:           day,
		MedicineID:    med.MedicineID,
		Name:          med.Name,
		Type:          med.Type,
		Amount:        med.Amount,
		TimeOfDay:     tod,
		BaseTimestamp: base,
		Status:        StatusAt(base, now),
		CreatedAt:     now,
	}
	// An item born after its cutoff still takes the marker path so the
	// missed flag and the log entry land in one transaction.
	bornMissed := item.Status == models.StatusMissed
	if bornMissed {
		item.Status = models.StatusInSnooze
	}
	created, err := s.schedule.CreateItemIfAbsent(ctx, item)
	if err != nil {
		s.log.Error().Err(err).Str("item", item.ItemID).Msg("failed to create schedule item")
		return
	}
	if !created || !bornMissed {
		return
	}
	s.markMissed(ctx, item, now, result)
}

// sweepDay runs the evaluator over a day's stored items and routes every
// overdue one through the marker.
func (s *Service) sweepDay(ctx context.Context, elderID int64, day string, now time.Time, result *SyncResult) {
	items, err := s.schedule.ListItems(ctx, elderID, day)
	if err != nil {
		s.log.Error().Err(err).Str("day", day).Msg("failed to list schedule items")
		return
	}
	for _, item := range items {
		if item.Terminal() {
			continue
		}
		switch Evaluate(item, now) {
		case models.StatusMissed:
			s.markMissed(ctx, item, now, result)
		case models.StatusInSnooze:
			if item.RemindedAt == nil {
				result.DueReminders = append(result.DueReminders, item)
			}
		}
	}
}

func (s *Service) markMissed(ctx context.Context, item *models.ScheduleItem, now time.Time, result *SyncResult) {
	wasNew, err := s.schedule.MarkMissed(ctx, item.ElderID, item.Day, item.ItemID, now)
	if err != nil {
		s.log.Error().Err(err).Str("item", item.ItemID).Msg("failed to mark dose missed")
		return
	}
	if !wasNew {
		return
	}
	flipped := *item
	flipped.Status = models.StatusMissed
	flipped.MissedLoggedAt = &now
	result.NewlyMissed = append(result.NewlyMissed, &flipped)
	s.log.Info().Str("item", item.ItemID).Str("medicine", item.Name).
		Time("scheduled", item.BaseTimestamp).Msg("dose marked missed")
}
