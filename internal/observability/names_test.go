package observability

import "testing"

func Test_NormalizeStatus(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"done", "done", "done"},
		{"failed", "failed", "failed"},
		{"other empty", "", "other"},
		{"other uppercase", "DONE", "other"},
		{"other running", "running", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeStatus(tt.input)
			if got != tt.expected {
				t.Errorf("NormalizeStatus(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func Test_NormalizeReason(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		allowed  map[string]bool
		expected string
	}{
		{"known timeout", "timeout", AllowedFailureReasons, "timeout"},
		{"known storage", "storage", AllowedFailureReasons, "storage"},
		{"known stalled", "stalled", AllowedFailureReasons, "stalled"},
		{"unknown empty", "", AllowedFailureReasons, "other"},
		{"unknown random", "disk_full", AllowedFailureReasons, "other"},
		{"known dropped reason", "diamond_deleted", AllowedDroppedReasons, "diamond_deleted"},
		{"dropped reason not in failure set", "diamond_deleted", AllowedFailureReasons, "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeReason(tt.input, tt.allowed)
			if got != tt.expected {
				t.Errorf("NormalizeReason(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func Test_NormalizeSource(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"uppercase ALGO", "ALGO", "algo"},
		{"uppercase PREMIUM", "PREMIUM", "premium"},
		{"uppercase MANUAL", "MANUAL", "manual"},
		{"already lowercase", "algo", "algo"},
		{"other empty", "", "other"},
		{"other random", "import", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeSource(tt.input)
			if got != tt.expected {
				t.Errorf("NormalizeSource(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func Test_NormalizeTrigger(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"api", "api", "api"},
		{"queue", "queue", "queue"},
		{"other empty", "", "other"},
		{"other cron", "cron", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTrigger(tt.input)
			if got != tt.expected {
				t.Errorf("NormalizeTrigger(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func Test_NormalizeCacheName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"run_pairs", "run_pairs", "run_pairs"},
		{"latest_run", "latest_run", "latest_run"},
		{"other empty", "", "other"},
		{"other random", "job_list", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeCacheName(tt.input)
			if got != tt.expected {
				t.Errorf("NormalizeCacheName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
