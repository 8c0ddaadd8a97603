package domain

const (
	DefaultMinutesPerDay = 20
	DefaultRetention     = 0.9
)

// SettingsRecord is the persisted form of a user's scheduling settings.
type SettingsRecord struct {
	MinutesPerDay           int      `json:"minutes_per_day"`
	RequestRetention        float64  `json:"request_retention"`
	ManualIntensityOverride *float64 `json:"manual_intensity_override"`
}

// DefaultSettings returns the settings of a user who never changed any.
func DefaultSettings() SettingsRecord {
	return SettingsRecord{
		MinutesPerDay:    DefaultMinutesPerDay,
		RequestRetention: DefaultRetention,
	}
}
