package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/flagx"
	"github.com/dmitrijs2005/gophauth/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "15m" and integer nanoseconds.
//
// Pointer fields distinguish "absent" from "zero", so a file only overrides
// what it mentions.
type JsonConfig struct {
	HTTPAddr                 *string         `json:"http_addr"`
	GRPCAddr                 *string         `json:"grpc_addr"`
	DatabaseDSN              *string         `json:"database_dsn"`
	Algorithm                *string         `json:"algorithm"`
	SigningKey               *string         `json:"signing_key"`
	PrivateKeyFile           *string         `json:"private_key_file"`
	PublicKeyFile            *string         `json:"public_key_file"`
	AccessTokenTTL           *timex.Duration `json:"access_token_ttl"`
	RefreshTokenTTL          *timex.Duration `json:"refresh_token_ttl"`
	RevocationStoreEndpoint  *string         `json:"revocation_store_endpoint"`
	RevocationCacheStaleness *timex.Duration `json:"revocation_cache_staleness"`
	RolePolicyTable          []string        `json:"role_policy_table"`
	PurgeInterval            *timex.Duration `json:"purge_interval"`
	LogLevel                 *string         `json:"log_level"`
}

// parseJson loads configuration values from a JSON file into config. The
// path comes from -c/-config in args or from GOPHAUTH_CONFIG; when neither
// is set nothing is loaded.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigPath(args, ConfigEnv)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.Algorithm, c.Algorithm)
	setString(&config.SigningKey, c.SigningKey)
	setString(&config.PrivateKeyFile, c.PrivateKeyFile)
	setString(&config.PublicKeyFile, c.PublicKeyFile)
	setDuration(&config.AccessTokenTTL, c.AccessTokenTTL)
	setDuration(&config.RefreshTokenTTL, c.RefreshTokenTTL)
	setString(&config.RevocationStoreEndpoint, c.RevocationStoreEndpoint)
	setDuration(&config.RevocationCacheStaleness, c.RevocationCacheStaleness)
	if c.RolePolicyTable != nil {
		config.RolePolicyTable = c.RolePolicyTable
	}
	setDuration(&config.PurgeInterval, c.PurgeInterval)
	setString(&config.LogLevel, c.LogLevel)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
