// Package reporting aggregates registry counts and trends for the staff
// dashboard. It only reads; all writes go through the lifecycle package.
package reporting

import (
	"context"
	"time"

	"gadify-server/internal/storage"
)

const (
	trendDays       = 30
	recentLimit     = 10
	weekdayBuckets  = 7
	trendDateFormat = "2006-01-02"
)

type DeviceStats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Verified int `json:"verified"`
	Reported int `json:"reported"`
}

type ReportStats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Resolved int `json:"resolved"`
}

type TrendPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type WeekdayPoint struct {
	Weekday string `json:"weekday"`
	Count   int    `json:"count"`
}

// Dashboard is the full staff overview payload.
type Dashboard struct {
	Devices           DeviceStats      `json:"devices"`
	Reports           ReportStats      `json:"reports"`
	DevicesByType     map[string]int   `json:"devices_by_type"`
	RegistrationTrend []TrendPoint     `json:"registration_trend"`
	WeekdayActivity   []WeekdayPoint   `json:"weekday_activity"`
	RecentDevices     []storage.Device `json:"recent_devices"`
}

type Service struct {
	store storage.Provider
}

func NewService(store storage.Provider) *Service {
	return &Service{store: store}
}

// Overview assembles the dashboard from the storage counters. Recent
// devices are ordered pending first so verification work surfaces at the
// top, newest first within each group.
func (s *Service) Overview(ctx context.Context) (*Dashboard, error) {
	deviceCounts, err := s.store.CountDevicesByStatus(ctx)
	if err != nil {
		return nil, err
	}
	typeCounts, err := s.store.CountDevicesByType(ctx)
	if err != nil {
		return nil, err
	}
	reportCounts, err := s.store.CountReportsByStatus(ctx)
	if err != nil {
		return nil, err
	}

	since := time.Now().UTC().AddDate(0, 0, -trendDays)
	dates, err := s.store.RegistrationDates(ctx, since)
	if err != nil {
		return nil, err
	}

	recent, err := s.store.ListRecentDevices(ctx, recentLimit)
	if err != nil {
		return nil, err
	}

	byType := make(map[string]int, len(typeCounts))
	for t, n := range typeCounts {
		byType[string(t)] = n
	}

	dashboard := &Dashboard{
		Devices: DeviceStats{
			Pending:  deviceCounts[storage.DeviceStatusPending],
			Verified: deviceCounts[storage.DeviceStatusVerified],
			Reported: deviceCounts[storage.DeviceStatusReported],
		},
		Reports: ReportStats{
			Active:   reportCounts[storage.ReportStatusActive],
			Resolved: reportCounts[storage.ReportStatusResolved],
		},
		DevicesByType:     byType,
		RegistrationTrend: trend(dates, since),
		WeekdayActivity:   weekdays(dates),
		RecentDevices:     recent,
	}
	dashboard.Devices.Total = dashboard.Devices.Pending + dashboard.Devices.Verified + dashboard.Devices.Reported
	for _, n := range reportCounts {
		dashboard.Reports.Total += n
	}

	return dashboard, nil
}

// trend buckets registration timestamps into daily counts over the window,
// emitting every day so the chart has no gaps.
func trend(dates []time.Time, since time.Time) []TrendPoint {
	counts := make(map[string]int, trendDays)
	for _, d := range dates {
		counts[d.UTC().Format(trendDateFormat)]++
	}

	points := make([]TrendPoint, 0, trendDays+1)
	day := since.Truncate(24 * time.Hour)
	end := time.Now().UTC().Truncate(24 * time.Hour)
	for !day.After(end) {
		key := day.Format(trendDateFormat)
		points = append(points, TrendPoint{Date: key, Count: counts[key]})
		day = day.AddDate(0, 0, 1)
	}
	return points
}

func weekdays(dates []time.Time) []WeekdayPoint {
	var counts [weekdayBuckets]int
	for _, d := range dates {
		counts[int(d.UTC().Weekday())]++
	}

	points := make([]WeekdayPoint, 0, weekdayBuckets)
	for i := 0; i < weekdayBuckets; i++ {
		points = append(points, WeekdayPoint{
			Weekday: time.Weekday(i).String(),
			Count:   counts[i],
		})
	}
	return points
}
