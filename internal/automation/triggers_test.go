package automation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestIsBusinessHours(t *testing.T) {
	ams, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		t.Skip("tzdata unavailable")
	}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"tuesday 14:00", time.Date(2024, 6, 4, 14, 0, 0, 0, ams), true},
		{"monday 09:00 opens", time.Date(2024, 6, 3, 9, 0, 0, 0, ams), true},
		{"friday 17:59", time.Date(2024, 6, 7, 17, 59, 0, 0, ams), true},
		{"friday 18:00 closed", time.Date(2024, 6, 7, 18, 0, 0, 0, ams), false},
		{"wednesday 08:59", time.Date(2024, 6, 5, 8, 59, 0, 0, ams), false},
		{"saturday noon", time.Date(2024, 6, 8, 12, 0, 0, 0, ams), false},
		{"sunday 10:00", time.Date(2024, 6, 9, 10, 0, 0, 0, ams), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBusinessHours(tt.at, ams))
		})
	}
}

func TestIsBusinessHours_ConvertsToLocation(t *testing.T) {
	ams, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	// 07:30 UTC on a summer Tuesday is 09:30 in Amsterdam
	at := time.Date(2024, 6, 4, 7, 30, 0, 0, time.UTC)
	assert.True(t, IsBusinessHours(at, ams))
	assert.False(t, IsBusinessHours(at, time.UTC))
}

func TestIsBusinessHours_SaturdayAllDay(t *testing.T) {
	for h := 0; h < 24; h++ {
		at := time.Date(2024, 6, 8, h, 30, 0, 0, time.UTC)
		assert.False(t, IsBusinessHours(at, time.UTC), "hour %d", h)
	}
}

func TestMatchKeyword(t *testing.T) {
	tests := []struct {
		name    string
		content *string
		keyword string
		want    bool
	}{
		{"case insensitive", strPtr("Wat is de PRIJS?"), "prijs", true},
		{"keyword in upper case", strPtr("wat kost het, de prijs?"), "PRIJS", true},
		{"typo does not match", strPtr("wat is de priis"), "prijs", false},
		{"nil content", nil, "prijs", false},
		{"empty content", strPtr(""), "prijs", false},
		{"empty keyword", strPtr("prijs"), "", false},
		{"unicode folding", strPtr("CAFÉ open?"), "café", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchKeyword(tt.content, tt.keyword))
		})
	}
}

func TestRenderReply(t *testing.T) {
	got := renderReply("Hoi {{contact_name}}, je vroeg: {{message}}", "Sanne", "open?")
	assert.Equal(t, "Hoi Sanne, je vroeg: open?", got)
	assert.Equal(t, "geen placeholders", renderReply("geen placeholders", "x", "y"))
}
