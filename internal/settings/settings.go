package settings

import (
	"math"

	"github.com/conorfennell/knoldeck/internal/domain"
)

const (
	MinMinutesPerDay = 1
	MinIntensity     = 0.0
	MaxIntensity     = 10.0
	MinRetention     = 0.5
	MaxRetention     = 1.0
)

// Persister stores a user's settings record.
type Persister interface {
	LoadSettings(user string) (domain.SettingsRecord, bool, error)
	SaveSettings(user string, rec domain.SettingsRecord) error
}

// UserSettings maps a user's daily study budget to scheduler intensity.
// Every mutator persists before returning.
type UserSettings struct {
	user  string
	store Persister
	rec   domain.SettingsRecord
}

// Load reads the user's settings, falling back to defaults when none exist.
// Out-of-range stored values are clamped.
func Load(store Persister, user string) (*UserSettings, error) {
	rec, _, err := store.LoadSettings(user)
	if err != nil {
		return nil, err
	}
	s := &UserSettings{user: user, store: store, rec: rec}
	s.rec.MinutesPerDay = max(MinMinutesPerDay, s.rec.MinutesPerDay)
	s.rec.RequestRetention = clampRetention(s.rec.RequestRetention)
	if o := s.rec.ManualIntensityOverride; o != nil {
		v := clampIntensity(*o)
		s.rec.ManualIntensityOverride = &v
	}
	return s, nil
}

// MinutesToIntensity maps minutes of daily study to an intensity in [1, 10].
//
//	 5 min -> 1.0
//	10 min -> 2.5
//	20 min -> 5.0
//	30 min -> 7.0
//	60 min -> 10.0
func MinutesToIntensity(minutes int) float64 {
	m := float64(minutes)
	switch {
	case minutes <= 5:
		return 1.0
	case minutes <= 10:
		return 1.0 + (m-5)*0.3
	case minutes <= 20:
		return 2.5 + (m-10)*0.25
	case minutes <= 30:
		return 5.0 + (m-20)*0.2
	default:
		return 7.0 + math.Min((m-30)*0.1, 3.0)
	}
}

func (s *UserSettings) User() string {
	return s.user
}

func (s *UserSettings) MinutesPerDay() int {
	return s.rec.MinutesPerDay
}

func (s *UserSettings) RequestRetention() float64 {
	return s.rec.RequestRetention
}

// ManualIntensity returns the override and whether one is set.
func (s *UserSettings) ManualIntensity() (float64, bool) {
	if s.rec.ManualIntensityOverride == nil {
		return 0, false
	}
	return *s.rec.ManualIntensityOverride, true
}

// EffectiveIntensity is the override when set, otherwise the intensity
// derived from minutes per day.
func (s *UserSettings) EffectiveIntensity() float64 {
	if v, ok := s.ManualIntensity(); ok {
		return v
	}
	return MinutesToIntensity(s.rec.MinutesPerDay)
}

// Record returns a copy of the persisted form.
func (s *UserSettings) Record() domain.SettingsRecord {
	rec := s.rec
	if o := rec.ManualIntensityOverride; o != nil {
		v := *o
		rec.ManualIntensityOverride = &v
	}
	return rec
}

// SetManualIntensity sets the override, clamped to [0, 10]. nil clears it.
func (s *UserSettings) SetManualIntensity(value *float64) error {
	next := s.rec
	next.ManualIntensityOverride = nil
	if value != nil {
		v := clampIntensity(*value)
		next.ManualIntensityOverride = &v
	}
	return s.save(next)
}

// SetMinutesPerDay sets the daily study budget, at least one minute.
func (s *UserSettings) SetMinutesPerDay(minutes int) error {
	next := s.rec
	next.MinutesPerDay = max(MinMinutesPerDay, minutes)
	return s.save(next)
}

// SetRetention sets the target retention, clamped to [0.5, 1.0].
func (s *UserSettings) SetRetention(r float64) error {
	next := s.rec
	next.RequestRetention = clampRetention(r)
	return s.save(next)
}

// save persists next and only then makes it current, so a failed write
// leaves memory and disk in agreement.
func (s *UserSettings) save(next domain.SettingsRecord) error {
	if err := s.store.SaveSettings(s.user, next); err != nil {
		return err
	}
	s.rec = next
	return nil
}

func clampIntensity(v float64) float64 {
	if math.IsNaN(v) {
		return MinIntensity
	}
	return math.Max(MinIntensity, math.Min(MaxIntensity, v))
}

func clampRetention(r float64) float64 {
	if math.IsNaN(r) {
		return domain.DefaultRetention
	}
	return math.Max(MinRetention, math.Min(MaxRetention, r))
}
