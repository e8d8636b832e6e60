package appointment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextWaiting(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	entry := func(token int, status QueueStatus, emergency bool, priority int, arrived int) QueueEntry {
		return QueueEntry{
			TokenNumber: token,
			Status:      status,
			IsEmergency: emergency,
			Priority:    priority,
			CreatedAt:   base.Add(time.Duration(arrived) * time.Minute),
		}
	}

	tests := []struct {
		name    string
		entries []QueueEntry
		want    int
		found   bool
	}{
		{name: "empty", found: false},
		{
			name:    "lowest token among scheduled",
			entries: []QueueEntry{entry(3, QueueWaiting, false, 0, 3), entry(2, QueueWaiting, false, 0, 2), entry(1, QueueCompleted, false, 0, 1)},
			want:    2,
			found:   true,
		},
		{
			name:    "any emergency beats a lower token",
			entries: []QueueEntry{entry(1, QueueWaiting, false, 0, 1), entry(5, QueueWaiting, true, 1, 5)},
			want:    5,
			found:   true,
		},
		{
			name:    "higher severity first",
			entries: []QueueEntry{entry(2, QueueWaiting, true, 2, 2), entry(3, QueueWaiting, true, 4, 3)},
			want:    3,
			found:   true,
		},
		{
			name:    "earlier arrival breaks ties",
			entries: []QueueEntry{entry(4, QueueWaiting, true, 3, 4), entry(6, QueueWaiting, true, 3, 1)},
			want:    6,
			found:   true,
		},
		{
			name:    "only finished entries",
			entries: []QueueEntry{entry(1, QueueCompleted, false, 0, 1), entry(2, QueueNoShow, true, 4, 2)},
			found:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := nextWaiting(tt.entries)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, got.TokenNumber)
			}
		})
	}
}

func TestSeverityPriority(t *testing.T) {
	assert.Equal(t, 4, SeverityCritical.Priority())
	assert.Equal(t, 3, SeveritySevere.Priority())
	assert.Equal(t, 2, SeverityModerate.Priority())
	assert.Equal(t, 1, SeverityMinor.Priority())
	assert.Equal(t, 0, Severity("unknown").Priority())
}
