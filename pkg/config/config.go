// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Tenant source strategies.
const (
	StrategyDirectClaim    = "direct-claim"
	StrategyExternalLookup = "external-lookup"
	StrategyRego           = "rego"
)

const (
	DefaultTenantIDPattern = `^[A-Za-z0-9][A-Za-z0-9_.:/=+@-]{0,63}$`
	DefaultClaimNamespace  = "https://aws.amazon.com/tags"
)

// registered JWT claims that can never carry the tenant tag
var reservedClaims = []string{"iss", "sub", "aud", "exp", "nbf", "iat", "jti", "typ", "azp", "nonce", "at_hash", "scope"}

type Config struct {
	Env      string `yaml:"env"`
	HTTPAddr string `yaml:"http_addr"`

	Enrichment Enrichment `yaml:"enrichment"`
	Lookup     Lookup     `yaml:"lookup"`
	Hook       Hook       `yaml:"hook"`

	// Redis & Postgres
	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`
}

// Enrichment holds the options that shape a single login enrichment.
type Enrichment struct {
	TenantSourceStrategy   string   `yaml:"tenant_source_strategy"`
	MaxTenantsPerPrincipal int      `yaml:"max_tenants_per_principal"`
	TenantIDPattern        string   `yaml:"tenant_id_pattern"`
	AllowTenantless        bool     `yaml:"allow_tenantless"`
	LookupTimeoutMS        int      `yaml:"lookup_timeout_ms"`
	ClaimNamespace         string   `yaml:"claim_namespace"`
	MaxClaimBytes          int      `yaml:"max_claim_bytes"`
	SourceAttributes       []string `yaml:"source_attributes"` // direct-claim
	SourceExpression       string   `yaml:"source_expression"` // direct-claim, JMESPath
	RegoFile               string   `yaml:"rego_file"`         // rego
}

// LookupTimeout converts LookupTimeoutMS into a duration.
func (e Enrichment) LookupTimeout() time.Duration {
	return time.Duration(e.LookupTimeoutMS) * time.Millisecond
}

type Lookup struct {
	CacheTTLSec int    `yaml:"cache_ttl_sec"`
	SeedJSON    string `yaml:"-"`
}

func (l Lookup) CacheTTL() time.Duration { return time.Duration(l.CacheTTLSec) * time.Second }

// Hook configures how callers of the post-login hook are authenticated.
type Hook struct {
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
	JWKSURL       string `yaml:"jwks_url"`
	RequiredScope string `yaml:"required_scope"`
}

// Load reads .env, the environment and, when ENRICH_CONFIG_FILE is set, a YAML overlay.
func Load() (Config, error) {
	_ = godotenv.Load()
	cfg := Config{
		Env:      env("ENRICH_ENV", "dev"),
		HTTPAddr: env("HOOK_HTTP_ADDR", ":8090"),
		Enrichment: Enrichment{
			TenantSourceStrategy:   env("TENANT_SOURCE_STRATEGY", StrategyDirectClaim),
			MaxTenantsPerPrincipal: envInt("MAX_TENANTS_PER_PRINCIPAL", 10),
			TenantIDPattern:        env("TENANT_ID_PATTERN", DefaultTenantIDPattern),
			AllowTenantless:        envBool("ALLOW_TENANTLESS", false),
			LookupTimeoutMS:        envInt("LOOKUP_TIMEOUT_MS", 500),
			ClaimNamespace:         env("TENANT_CLAIM_NAMESPACE", DefaultClaimNamespace),
			MaxClaimBytes:          envInt("MAX_CLAIM_BYTES", 2048),
			SourceAttributes:       envList("TENANT_SOURCE_ATTRIBUTES", []string{"org"}),
			SourceExpression:       env("TENANT_SOURCE_EXPRESSION", ""),
			RegoFile:               env("TENANT_REGO_FILE", ""),
		},
		Lookup: Lookup{
			CacheTTLSec: envInt("LOOKUP_CACHE_TTL_SEC", 60),
			SeedJSON:    env("PRINCIPAL_TENANTS_JSON", ""),
		},
		Hook: Hook{
			Issuer:        env("HOOK_ISSUER", ""),
			Audience:      env("HOOK_AUDIENCE", ""),
			JWKSURL:       env("HOOK_JWKS_URL", ""),
			RequiredScope: env("HOOK_REQUIRED_SCOPE", "hooks:post-login"),
		},
		RedisURL:    env("REDIS_URL", ""),
		DatabaseURL: env("DATABASE_URL", ""),
	}
	if path := os.Getenv("ENRICH_CONFIG_FILE"); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if cfg.Enrichment.TenantSourceStrategy == StrategyExternalLookup && cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set; using in-memory principal directory for dev")
	}
	return cfg, cfg.Validate()
}

// LoadFile overlays the YAML document at path onto cfg. Keys absent from the file keep their
// current values.
func LoadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects configurations the enrichment pipeline cannot run with.
func (c Config) Validate() error {
	e := c.Enrichment
	switch e.TenantSourceStrategy {
	case StrategyDirectClaim:
		if len(e.SourceAttributes) == 0 && strings.TrimSpace(e.SourceExpression) == "" {
			return errors.New("direct-claim strategy needs source_attributes or source_expression")
		}
	case StrategyExternalLookup:
	case StrategyRego:
		if e.RegoFile == "" {
			return errors.New("rego strategy needs rego_file")
		}
	default:
		return fmt.Errorf("unknown tenant_source_strategy %q", e.TenantSourceStrategy)
	}
	if e.MaxTenantsPerPrincipal <= 0 {
		return errors.New("max_tenants_per_principal must be positive")
	}
	if e.LookupTimeoutMS <= 0 {
		return errors.New("lookup_timeout_ms must be positive")
	}
	if e.MaxClaimBytes <= 0 {
		return errors.New("max_claim_bytes must be positive")
	}
	if _, err := regexp.Compile(e.TenantIDPattern); err != nil {
		return fmt.Errorf("tenant_id_pattern: %w", err)
	}
	ns := strings.TrimSpace(e.ClaimNamespace)
	if ns == "" {
		return errors.New("claim_namespace is required")
	}
	if IsReservedClaim(ns) {
		return fmt.Errorf("claim_namespace %q collides with a registered claim", ns)
	}
	return nil
}

// IsReservedClaim reports whether name is a registered JWT claim.
func IsReservedClaim(name string) bool {
	for _, r := range reservedClaims {
		if strings.EqualFold(r, name) {
			return true
		}
	}
	return false
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}
		return b
	}
	return def
}
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return def
		}
		return i
	}
	return def
}
func envList(k string, def []string) []string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
