package models

// HistoryDateLayout is the calendar-day format of HistoryRecord.Date (UTC).
const HistoryDateLayout = "2006-01-02"

type HistoryRecord struct {
	Date     string `json:"date"`
	SourceID string `json:"lab_id"`
	JobCount int    `json:"job_count"`

	SourceName  string `json:"lab_name,omitempty"`
	SourceColor string `json:"lab_color,omitempty"`
}

// TrendRecord compares a source's active count with its count a week ago.
// WeekAgoCount and PercentageChange are nil when undefined.
type TrendRecord struct {
	SourceID         string   `json:"lab_id"`
	SourceName       string   `json:"lab_name"`
	SourceColor      string   `json:"lab_color"`
	CurrentCount     int      `json:"current_count"`
	WeekAgoCount     *int     `json:"week_ago_count"`
	Difference       int      `json:"difference"`
	PercentageChange *float64 `json:"percentage_change"`
}

type FieldCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}
