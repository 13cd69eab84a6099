package config

import (
	"os"
	"strconv"
	"strings"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MOBILETRACKING_"

// ApplyEnv overlays MOBILETRACKING_* environment variables onto c. Unset
// variables leave the field as it is.
func ApplyEnv(c *Config) {
	c.AdvertiserID = envStr("ADVERTISER_ID", c.AdvertiserID)
	c.CampaignID = envStr("CAMPAIGN_ID", c.CampaignID)
	c.BaseURL = envStr("BASE_URL", c.BaseURL)
	c.DebugBaseURL = envStr("DEBUG_BASE_URL", c.DebugBaseURL)
	c.Debug = envBool("DEBUG", c.Debug)
	c.Store = envStr("STORE", c.Store)
	c.DataPath = envStr("DATA_PATH", c.DataPath)
	c.RedisAddr = envStr("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = envStr("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = envInt("REDIS_DB", c.RedisDB)
	c.RedisKey = envStr("REDIS_KEY", c.RedisKey)
	c.RequestTimeoutSeconds = envInt("REQUEST_TIMEOUT_SECONDS", c.RequestTimeoutSeconds)
	c.ConnectTimeoutSeconds = envInt("CONNECT_TIMEOUT_SECONDS", c.ConnectTimeoutSeconds)
	c.UserAgent = envStr("USER_AGENT", c.UserAgent)
	c.ProbeURL = envStr("PROBE_URL", c.ProbeURL)
	c.ProbeIntervalSeconds = envInt("PROBE_INTERVAL_SECONDS", c.ProbeIntervalSeconds)
	c.WaitForActiveFingerprint = envBool("WAIT_FOR_ACTIVE_FINGERPRINT", c.WaitForActiveFingerprint)
	c.LogLevel = envStr("LOG_LEVEL", c.LogLevel)
	c.MockAddr = envStr("MOCK_ADDR", c.MockAddr)
}

func envStr(key, def string) string {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return def
	}
	s := strings.ToLower(v)
	return s == "1" || s == "true" || s == "yes"
}

func envInt(key string, def int) int {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}
