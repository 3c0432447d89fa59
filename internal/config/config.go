package config

import (
	"fmt"
	"os"
	"strings"
)

// Config carries every process-level setting. Secrets arrive through the
// environment; a missing required setting is fatal at startup.
type Config struct {
	HTTPAddr  string
	PublicURL string

	DBDriver string
	DBDSN    string

	// JWTSecret signs bearer tokens; OAuth2StateSecret signs the OAuth2
	// state round-trip; LMSSecret's leading 16 bytes are the AES key for
	// developer secrets at rest.
	JWTSecret         string
	OAuth2StateSecret string
	LMSSecret         string

	// Hypothesis service settings.
	HAPIURLPublic    string
	HAPIURLPrivate   string
	HAuthority       string
	HClientID        string
	HClientSecret    string
	HJWTClientID     string
	HJWTClientSecret string

	ViaURL            string
	RPCAllowedOrigins []string

	GoogleClientID     string
	GoogleDeveloperKey string
}

func FromEnv() Config {
	return Config{
		HTTPAddr:  envOr("HTTP_ADDR", ":8001"),
		PublicURL: envOr("PUBLIC_URL", "http://localhost:8001"),

		DBDriver: envOr("DB_DRIVER", "sqlite"),
		DBDSN:    os.Getenv("DB_DSN"),

		JWTSecret:         os.Getenv("JWT_SECRET"),
		OAuth2StateSecret: os.Getenv("OAUTH2_STATE_SECRET"),
		LMSSecret:         os.Getenv("LMS_SECRET"),

		HAPIURLPublic:    os.Getenv("H_API_URL_PUBLIC"),
		HAPIURLPrivate:   os.Getenv("H_API_URL_PRIVATE"),
		HAuthority:       os.Getenv("H_AUTHORITY"),
		HClientID:        os.Getenv("H_CLIENT_ID"),
		HClientSecret:    os.Getenv("H_CLIENT_SECRET"),
		HJWTClientID:     os.Getenv("H_JWT_CLIENT_ID"),
		HJWTClientSecret: os.Getenv("H_JWT_CLIENT_SECRET"),

		ViaURL:            os.Getenv("VIA_URL"),
		RPCAllowedOrigins: csv(os.Getenv("RPC_ALLOWED_ORIGINS")),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleDeveloperKey: os.Getenv("GOOGLE_DEVELOPER_KEY"),
	}
}

// Validate reports every missing required setting at once.
func (c Config) Validate() error {
	required := []struct {
		name, value string
	}{
		{"JWT_SECRET", c.JWTSecret},
		{"OAUTH2_STATE_SECRET", c.OAuth2StateSecret},
		{"LMS_SECRET", c.LMSSecret},
		{"H_API_URL_PUBLIC", c.HAPIURLPublic},
		{"H_API_URL_PRIVATE", c.HAPIURLPrivate},
		{"H_AUTHORITY", c.HAuthority},
		{"H_CLIENT_ID", c.HClientID},
		{"H_CLIENT_SECRET", c.HClientSecret},
		{"H_JWT_CLIENT_ID", c.HJWTClientID},
		{"H_JWT_CLIENT_SECRET", c.HJWTClientSecret},
		{"VIA_URL", c.ViaURL},
	}
	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	if len(c.LMSSecret) < 16 {
		return fmt.Errorf("LMS_SECRET must be at least 16 bytes, got %d", len(c.LMSSecret))
	}
	return nil
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func csv(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
