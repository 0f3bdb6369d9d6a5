package config

import (
	"fmt"
	"os"
	"strings"

	"google.golang.org/api/option"
)

// Settings holds the ambient configuration for a drive: the default
// project used when a bucket create names none, the credentials source,
// and an optional endpoint override for emulators.
type Settings struct {
	ProjectID       string
	CredentialsFile string
	Endpoint        string
}

// NewSettings creates an empty settings instance.
func NewSettings() *Settings {
	return &Settings{}
}

// LoadFromEnvironment fills unset fields from the standard Google Cloud
// environment variables. Explicitly set fields win.
func (s *Settings) LoadFromEnvironment() {
	if s.ProjectID == "" {
		s.ProjectID = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}
	if s.ProjectID == "" {
		s.ProjectID = os.Getenv("GCLOUD_PROJECT")
	}
	if s.CredentialsFile == "" {
		s.CredentialsFile = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	if s.Endpoint == "" {
		s.Endpoint = os.Getenv("STORAGE_EMULATOR_HOST")
	}
}

// Validate rejects obviously malformed settings.
func (s *Settings) Validate() error {
	if s.CredentialsFile != "" {
		if _, err := os.Stat(s.CredentialsFile); err != nil {
			return fmt.Errorf("credentials file not readable: %w", err)
		}
	}
	if s.ProjectID != "" && strings.ContainsAny(s.ProjectID, " /\\") {
		return fmt.Errorf("invalid project id %q", s.ProjectID)
	}
	return nil
}

// ClientOptions translates the settings into client options.
func (s *Settings) ClientOptions() []option.ClientOption {
	var opts []option.ClientOption
	if s.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(s.CredentialsFile))
	}
	if s.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.Endpoint))
	}
	return opts
}
