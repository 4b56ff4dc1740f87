// Package availability stores the weekly consultation hours per clinician.
package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a clinician has never published a schedule.
// That is different from a published schedule with every day closed.
var ErrNotFound = errors.New("availability: no schedule published")

// Interval is one consulting window, 24-hour "HH:MM" strings. Overlapping
// or reversed intervals are stored as given; nothing validates them.
type Interval struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// WeekSchedule maps each day to its consulting windows. An absent or empty
// day means the clinician does not consult that day.
type WeekSchedule struct {
	Monday    []Interval `json:"monday,omitempty"`
	Tuesday   []Interval `json:"tuesday,omitempty"`
	Wednesday []Interval `json:"wednesday,omitempty"`
	Thursday  []Interval `json:"thursday,omitempty"`
	Friday    []Interval `json:"friday,omitempty"`
	Saturday  []Interval `json:"saturday,omitempty"`
	Sunday    []Interval `json:"sunday,omitempty"`
}

// Schedule is a clinician's published weekly availability. Away marks the
// clinician explicitly unavailable regardless of the week grid, for leave
// or travel.
type Schedule struct {
	ClinicianID string       `json:"clinician_id"`
	Week        WeekSchedule `json:"week"`
	Away        bool         `json:"away,omitempty"`
	Note        string       `json:"note,omitempty"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Day returns the consulting windows for a weekday name ("monday" ...
// "sunday", case-insensitive). The second result is false for an unknown
// weekday.
func (s *Schedule) Day(weekday string) ([]Interval, bool) {
	switch strings.ToLower(weekday) {
	case "monday":
		return s.Week.Monday, true
	case "tuesday":
		return s.Week.Tuesday, true
	case "wednesday":
		return s.Week.Wednesday, true
	case "thursday":
		return s.Week.Thursday, true
	case "friday":
		return s.Week.Friday, true
	case "saturday":
		return s.Week.Saturday, true
	case "sunday":
		return s.Week.Sunday, true
	}
	return nil, false
}

// Store persists clinician schedules. Writes replace the whole week; there
// are no per-day updates.
type Store interface {
	Get(ctx context.Context, clinicianID string) (*Schedule, error)
	Put(ctx context.Context, schedule *Schedule) error
}

// RedisStore keeps schedules as JSON blobs in Redis.
type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{redis: redisClient}
}

func (s *RedisStore) key(clinicianID string) string {
	return fmt.Sprintf("clinic:availability:%s", clinicianID)
}

// Get retrieves a clinician's schedule. ErrNotFound means nothing was ever
// published for them.
func (s *RedisStore) Get(ctx context.Context, clinicianID string) (*Schedule, error) {
	data, err := s.redis.Get(ctx, s.key(clinicianID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("availability: get schedule: %w", err)
	}
	var schedule Schedule
	if err := json.Unmarshal(data, &schedule); err != nil {
		return nil, fmt.Errorf("availability: unmarshal schedule: %w", err)
	}
	return &schedule, nil
}

// Put replaces the clinician's whole week.
func (s *RedisStore) Put(ctx context.Context, schedule *Schedule) error {
	schedule.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(schedule)
	if err != nil {
		return fmt.Errorf("availability: marshal schedule: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(schedule.ClinicianID), data, 0).Err(); err != nil {
		return fmt.Errorf("availability: set schedule: %w", err)
	}
	return nil
}

// MemoryStore keeps schedules in memory for development mode and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]*Schedule
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*Schedule)}
}

func (s *MemoryStore) Get(ctx context.Context, clinicianID string) (*Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schedule, ok := s.rows[clinicianID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *schedule
	return &cp, nil
}

func (s *MemoryStore) Put(ctx context.Context, schedule *Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedule.UpdatedAt = time.Now().UTC()
	cp := *schedule
	s.rows[schedule.ClinicianID] = &cp
	return nil
}
