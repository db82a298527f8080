package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResourceAgeDays(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		createdAt time.Time
		want      int
	}{
		{"created 120 days ago", now.AddDate(0, 0, -120), 120},
		{"created today", now, 0},
		{"created in the future", now.AddDate(0, 0, 5), 0},
		{"zero creation time", time.Time{}, 0},
		{"partial day rounds down", now.Add(-36 * time.Hour), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Resource{ID: "vol-1", CreatedAt: tt.createdAt}
			assert.Equal(t, tt.want, r.AgeDays(now))
		})
	}
}

func TestResourceAttr(t *testing.T) {
	r := Resource{
		ID:     "func-1",
		Family: FamilyFunction,
		Attributes: map[string]Value{
			"memory_mb": Number(1024),
			"runtime":   String("provided.al2"),
		},
	}

	v, ok := r.Attr("memory_mb")
	assert.True(t, ok)
	num, ok := v.AsNumber()
	assert.True(t, ok)
	assert.Equal(t, 1024.0, num)

	_, ok = r.Attr("missing")
	assert.False(t, ok)
}

func TestBuildResourceMap(t *testing.T) {
	resources := []Resource{
		{ID: "a", Family: FamilyBlockVolume},
		{ID: "b", Family: FamilyFunction},
	}

	m := BuildResourceMap(resources)
	assert.Len(t, m, 2)
	assert.Equal(t, FamilyBlockVolume, m["a"].Family)
}
