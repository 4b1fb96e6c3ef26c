package app

import (
	"os"
	"testing"
	"time"
)

func TestGetenv(t *testing.T) {
	tests := []struct {
		name     string
		envKey   string
		envValue string
		defValue string
		want     string
	}{
		{
			name:     "env set",
			envKey:   "TEST_ENV_VAR",
			envValue: "custom_value",
			defValue: "default",
			want:     "custom_value",
		},
		{
			name:     "env not set",
			envKey:   "TEST_ENV_VAR_NOTSET",
			envValue: "",
			defValue: "default",
			want:     "default",
		},
		{
			name:     "empty default",
			envKey:   "TEST_ENV_VAR_EMPTY",
			envValue: "",
			defValue: "",
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.envKey, tt.envValue)
				defer os.Unsetenv(tt.envKey)
			}

			got := getenv(tt.envKey, tt.defValue)
			if got != tt.want {
				t.Errorf("getenv(%q, %q) = %q, want %q", tt.envKey, tt.defValue, got, tt.want)
			}
		})
	}
}

func TestGetint(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      int
		want     int
	}{
		{name: "env set", envValue: "2525", def: 587, want: 2525},
		{name: "env not set", envValue: "", def: 587, want: 587},
		{name: "not a number", envValue: "smtp", def: 587, want: 587},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv("TEST_INT_VAR", tt.envValue)
				defer os.Unsetenv("TEST_INT_VAR")
			}

			got := getint("TEST_INT_VAR", tt.def)
			if got != tt.want {
				t.Errorf("getint(%q, %d) = %d, want %d", tt.envValue, tt.def, got, tt.want)
			}
		})
	}
}

func TestGetduration(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      time.Duration
		want     time.Duration
	}{
		{name: "env set", envValue: "30m", def: time.Hour, want: 30 * time.Minute},
		{name: "env not set", envValue: "", def: time.Hour, want: time.Hour},
		{name: "unparseable", envValue: "soon", def: time.Hour, want: time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv("TEST_DUR_VAR", tt.envValue)
				defer os.Unsetenv("TEST_DUR_VAR")
			}

			got := getduration("TEST_DUR_VAR", tt.def)
			if got != tt.want {
				t.Errorf("getduration(%q, %v) = %v, want %v", tt.envValue, tt.def, got, tt.want)
			}
		})
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfigFromEnv()

	if cfg.HTTPAddr == "" {
		t.Error("HTTPAddr default is empty")
	}
	if cfg.OpenAIModel == "" {
		t.Error("OpenAIModel default is empty")
	}
	if cfg.SMTPPort == 0 {
		t.Error("SMTPPort default is zero")
	}
	if cfg.JWTExpiry == 0 {
		t.Error("JWTExpiry default is zero")
	}
	if cfg.SessionIdleTimeout == 0 {
		t.Error("SessionIdleTimeout default is zero")
	}
	if cfg.DigestSchedule == "" {
		t.Error("DigestSchedule default is empty")
	}
}
