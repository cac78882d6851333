package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ssmToEnvMapping maps each bootstrap inventory SSM category/key to the
// environment variable the config loader reads it from. Every inventory
// step must have an entry here so --export-env produces a complete .env.
var ssmToEnvMapping = map[string]string{
	"database/url":                   "DATABASE_URL",
	"billing/stripe_secret_key":      "STRIPE_SECRET_KEY",
	"billing/stripe_publishable_key": "STRIPE_PUBLISHABLE_KEY",
	"billing/stripe_webhook_secret":  "STRIPE_WEBHOOK_SECRET",
	"billing/price_growth":           "STRIPE_PRICE_GROWTH",
	"billing/price_scale":            "STRIPE_PRICE_SCALE",
	"billing/price_enterprise":       "STRIPE_PRICE_ENTERPRISE",
	"ai/api_key":                     "AI_API_KEY",
	"places/api_key":                 "PLACES_API_KEY",
	"logo/api_key":                   "LOGO_API_KEY",
	"sec/user_agent":                 "SEC_USER_AGENT",
	"security/admin_api_key":         "ADMIN_API_KEY",
}

// localDevDefaults are the environment variables the config loader requires
// that are NOT sourced from SSM. They are appended to the exported .env only
// when IncludeLocalDefaults is set, with values pointing at local services
// (LocalStack for SQS/CloudWatch).
var localDevDefaults = map[string]string{
	"APP_ENV":          "local",
	"LOG_LEVEL":        "debug",
	"PORT":             "8080",
	"API_EXTERNAL_URL": "http://localhost:8080",
	"DASHBOARD_URL":    "http://localhost:3000",
	"AWS_REGION":       "us-east-1",
	"AWS_ENDPOINT_URL": "http://localhost:4566",
	"SQS_BULK_JOBS":    "http://localhost:4566/000000000000/bulk-jobs",
	"ENABLE_METRICS":   "false",
}

// ExportEnvConfig holds the parameters for ExportEnvFile.
type ExportEnvConfig struct {
	// OutputPath is the file to write. Parent directories are created as
	// needed. The file is written with 0600 permissions since it contains
	// decrypted secrets.
	OutputPath string

	// Environment is the bootstrap environment (dev/staging/prod), recorded
	// in the file header.
	Environment string

	// SSM reads parameter values back from Parameter Store.
	SSM *SSMManager

	// Stderr receives progress output.
	Stderr io.Writer

	// IncludeLocalDefaults appends the localDevDefaults section after the
	// SSM-sourced values.
	IncludeLocalDefaults bool
}

// ExportEnvFile reads every bootstrap inventory parameter back from SSM and
// writes a .env file for local development. Parameters missing from SSM
// (e.g., skipped optional steps) are omitted from the file rather than
// failing the export; the export only fails if NO parameters could be read,
// which indicates the bootstrap never ran for this environment.
func ExportEnvFile(ctx context.Context, cfg ExportEnvConfig) error {
	// Sort SSM keys for deterministic file output.
	keys := make([]string, 0, len(ssmToEnvMapping))
	for k := range ssmToEnvMapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lines []string
	var missing []string

	for _, key := range keys {
		path := cfg.SSM.SSMPath(key)

		// Always request decryption: SecureString values need it, and SSM
		// ignores the flag for plain String parameters.
		value, err := cfg.SSM.GetParameterValue(ctx, path, true)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("export cancelled: %w", ctx.Err())
			}
			missing = append(missing, key)
			fmt.Fprintf(cfg.Stderr, "  (skipping %s: not found in SSM)\n", key)
			continue
		}

		lines = append(lines, formatEnvLine(ssmToEnvMapping[key], value))
	}

	if len(lines) == 0 {
		return fmt.Errorf("no parameters could be read from SSM for environment %q (%d missing); run bootstrap first", cfg.Environment, len(missing))
	}

	var sb strings.Builder
	sb.WriteString("# Auto-generated by bootstrap --export-env\n")
	fmt.Fprintf(&sb, "# Environment: %s\n", cfg.Environment)
	fmt.Fprintf(&sb, "# Generated: %s\n", time.Now().UTC().Format(time.RFC3339))
	sb.WriteString("#\n")
	sb.WriteString("# SECURITY WARNING: this file contains decrypted secrets.\n")
	sb.WriteString("# Do not commit it to version control.\n")
	sb.WriteString("\n")

	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	if cfg.IncludeLocalDefaults {
		sb.WriteString("\n# --- Local Development Defaults ---\n")

		defaults := make([]string, 0, len(localDevDefaults))
		for k := range localDevDefaults {
			defaults = append(defaults, k)
		}
		sort.Strings(defaults)

		for _, k := range defaults {
			sb.WriteString(formatEnvLine(k, localDevDefaults[k]))
			sb.WriteString("\n")
		}
	}

	// Ensure the parent directory exists for custom output paths.
	if dir := filepath.Dir(cfg.OutputPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory %q: %w", dir, err)
		}
	}

	// 0600: the file holds plaintext secrets.
	if err := os.WriteFile(cfg.OutputPath, []byte(sb.String()), 0o600); err != nil {
		return fmt.Errorf("writing env file %q: %w", cfg.OutputPath, err)
	}

	fmt.Fprintf(cfg.Stderr, "\n  Environment file exported: %s\n", cfg.OutputPath)
	fmt.Fprintf(cfg.Stderr, "  Parameters written: %d (skipped: %d)\n", len(lines), len(missing))
	fmt.Fprintf(cfg.Stderr, "  File permissions: 0600 (owner read/write only)\n")

	return nil
}

// envSafeChars are the characters allowed in an unquoted .env value.
const envSafeChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_-./:@=+,"

// formatEnvLine renders a KEY=value line, quoting and escaping the value
// when it contains characters that dotenv parsers treat specially (spaces,
// quotes, comments, shell expansion).
func formatEnvLine(key, value string) string {
	if value != "" && !strings.ContainsFunc(value, func(r rune) bool {
		return !strings.ContainsRune(envSafeChars, r)
	}) {
		return fmt.Sprintf("%s=%s", key, value)
	}

	escaped := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
	).Replace(value)

	return key + `="` + escaped + `"`
}
