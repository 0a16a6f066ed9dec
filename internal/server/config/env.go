package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const envPrefix = "GOPHAUTH_"

// parseEnv overlays GOPHAUTH_<KEY> variables, where KEY is the upper-cased
// JSON key (GOPHAUTH_ACCESS_TOKEN_TTL=15m). ROLE_POLICY_TABLE is a comma
// separated list.
func parseEnv(config *Config) error {
	strs := map[string]*string{
		"HTTP_ADDR":                 &config.HTTPAddr,
		"GRPC_ADDR":                 &config.GRPCAddr,
		"DATABASE_DSN":              &config.DatabaseDSN,
		"ALGORITHM":                 &config.Algorithm,
		"SIGNING_KEY":               &config.SigningKey,
		"PRIVATE_KEY_FILE":          &config.PrivateKeyFile,
		"PUBLIC_KEY_FILE":           &config.PublicKeyFile,
		"REVOCATION_STORE_ENDPOINT": &config.RevocationStoreEndpoint,
		"LOG_LEVEL":                 &config.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"ACCESS_TOKEN_TTL":           &config.AccessTokenTTL,
		"REFRESH_TOKEN_TTL":          &config.RefreshTokenTTL,
		"REVOCATION_CACHE_STALENESS": &config.RevocationCacheStaleness,
		"PURGE_INTERVAL":             &config.PurgeInterval,
	}
	for key, dst := range durations {
		v, ok := os.LookupEnv(envPrefix + key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = d
	}

	if v, ok := os.LookupEnv(envPrefix + "ROLE_POLICY_TABLE"); ok {
		config.RolePolicyTable = splitRoles(v)
	}
	return nil
}

func splitRoles(s string) []string {
	var roles []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}
