package health

import (
	"testing"
	"time"
)

func TestNewHealthy(t *testing.T) {
	component := "consumer"
	message := "Stream connected"

	status := NewHealthy(component, message)

	if status.Component != component {
		t.Errorf("Expected component %s, got %s", component, status.Component)
	}

	if status.Level != LevelHealthy {
		t.Errorf("Expected level healthy, got %s", status.Level)
	}

	if !status.Healthy {
		t.Error("Expected Healthy flag to be true")
	}

	if status.Message != message {
		t.Errorf("Expected message %s, got %s", message, status.Message)
	}

	if status.Timestamp.IsZero() {
		t.Error("Expected timestamp to be set")
	}

	if !status.IsHealthy() {
		t.Error("Expected IsHealthy() to return true")
	}
}

func TestNewWarning(t *testing.T) {
	component := "queue"
	message := "Fill ratio above threshold"

	status := NewWarning(component, message)

	if status.Component != component {
		t.Errorf("Expected component %s, got %s", component, status.Component)
	}

	if status.Level != LevelWarning {
		t.Errorf("Expected level warning, got %s", status.Level)
	}

	if status.Healthy {
		t.Error("Expected Healthy flag to be false")
	}

	if status.Message != message {
		t.Errorf("Expected message %s, got %s", message, status.Message)
	}

	if !status.IsWarning() {
		t.Error("Expected IsWarning() to return true")
	}
}

func TestNewCritical(t *testing.T) {
	component := "transport"
	message := "Connection lost"

	status := NewCritical(component, message)

	if status.Component != component {
		t.Errorf("Expected component %s, got %s", component, status.Component)
	}

	if status.Level != LevelCritical {
		t.Errorf("Expected level critical, got %s", status.Level)
	}

	if status.Healthy {
		t.Error("Expected Healthy flag to be false")
	}

	if !status.IsCritical() {
		t.Error("Expected IsCritical() to return true")
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name         string
		component    string
		subStatuses  []Status
		wantLevel    Level
		wantMessage  string
		wantSubCount int
	}{
		{
			name:         "empty sub-statuses",
			component:    "system",
			subStatuses:  []Status{},
			wantLevel:    LevelHealthy,
			wantMessage:  "No sub-components to aggregate",
			wantSubCount: 0,
		},
		{
			name:      "all healthy",
			component: "system",
			subStatuses: []Status{
				{Level: LevelHealthy, Component: "comp1"},
				{Level: LevelHealthy, Component: "comp2"},
			},
			wantLevel:    LevelHealthy,
			wantMessage:  "All sub-components are healthy",
			wantSubCount: 2,
		},
		{
			name:      "one critical",
			component: "system",
			subStatuses: []Status{
				{Level: LevelHealthy, Component: "comp1"},
				{Level: LevelCritical, Component: "comp2"},
			},
			wantLevel:    LevelCritical,
			wantMessage:  "One or more sub-components are critical",
			wantSubCount: 2,
		},
		{
			name:      "one warning no critical",
			component: "system",
			subStatuses: []Status{
				{Level: LevelHealthy, Component: "comp1"},
				{Level: LevelWarning, Component: "comp2"},
			},
			wantLevel:    LevelWarning,
			wantMessage:  "One or more sub-components are degraded",
			wantSubCount: 2,
		},
		{
			name:      "warning and critical - critical wins",
			component: "system",
			subStatuses: []Status{
				{Level: LevelWarning, Component: "comp1"},
				{Level: LevelCritical, Component: "comp2"},
			},
			wantLevel:    LevelCritical,
			wantMessage:  "One or more sub-components are critical",
			wantSubCount: 2,
		},
		{
			name:      "multiple warnings",
			component: "system",
			subStatuses: []Status{
				{Level: LevelWarning, Component: "comp1"},
				{Level: LevelWarning, Component: "comp2"},
				{Level: LevelHealthy, Component: "comp3"},
			},
			wantLevel:    LevelWarning,
			wantMessage:  "One or more sub-components are degraded",
			wantSubCount: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Aggregate(tt.component, tt.subStatuses)

			if result.Component != tt.component {
				t.Errorf("Expected component %s, got %s", tt.component, result.Component)
			}

			if result.Level != tt.wantLevel {
				t.Errorf("Expected level %s, got %s", tt.wantLevel, result.Level)
			}

			if result.Message != tt.wantMessage {
				t.Errorf("Expected message %s, got %s", tt.wantMessage, result.Message)
			}

			if len(result.SubStatuses) != tt.wantSubCount {
				t.Errorf("Expected %d sub-statuses, got %d", tt.wantSubCount, len(result.SubStatuses))
			}

			if result.Timestamp.IsZero() {
				t.Error("Expected timestamp to be set")
			}

			// Verify sub-statuses are copied correctly
			for i, expected := range tt.subStatuses {
				if i < len(result.SubStatuses) {
					if result.SubStatuses[i].Component != expected.Component {
						t.Errorf("Sub-status %d: expected component %s, got %s",
							i, expected.Component, result.SubStatuses[i].Component)
					}
					if result.SubStatuses[i].Level != expected.Level {
						t.Errorf("Sub-status %d: expected level %s, got %s",
							i, expected.Level, result.SubStatuses[i].Level)
					}
				}
			}
		})
	}
}

func TestAggregate_DoesNotModifyInput(t *testing.T) {
	original := []Status{
		{Level: LevelHealthy, Component: "comp1"},
		{Level: LevelCritical, Component: "comp2"},
	}

	// Make a copy for comparison
	originalCopy := make([]Status, len(original))
	copy(originalCopy, original)

	result := Aggregate("system", original)

	// Verify original slice is not modified
	if len(original) != len(originalCopy) {
		t.Error("Aggregate modified the length of input slice")
	}

	for i, orig := range original {
		if orig.Component != originalCopy[i].Component {
			t.Errorf("Aggregate modified input slice at index %d", i)
		}
		if orig.Level != originalCopy[i].Level {
			t.Errorf("Aggregate modified input slice at index %d", i)
		}
	}

	// Verify sub-statuses are independent copies
	if len(result.SubStatuses) > 0 {
		result.SubStatuses[0].Component = "modified"
		if original[0].Component == "modified" {
			t.Error("Modifying result sub-statuses should not affect input")
		}
	}
}

func TestHelperTimestamps(t *testing.T) {
	// Test that all helper functions set timestamps within a reasonable window
	before := time.Now()

	healthy := NewHealthy("comp", "msg")
	warning := NewWarning("comp", "msg")
	critical := NewCritical("comp", "msg")
	aggregated := Aggregate("system", []Status{healthy})

	after := time.Now()

	statuses := []Status{healthy, warning, critical, aggregated}
	for i, status := range statuses {
		if status.Timestamp.Before(before) || status.Timestamp.After(after) {
			t.Errorf("Status %d timestamp %v is outside expected range [%v, %v]",
				i, status.Timestamp, before, after)
		}
	}
}
