package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/cryptguard/cryptguard/internal/flagx"
	"github.com/cryptguard/cryptguard/internal/timex"
)

// JsonConfig is the intermediate DTO for the JSON configuration file. It
// uses timex.Duration for interval fields, which accepts both string values
// such as "15m" and integer nanoseconds. After unmarshalling, its fields are
// copied into the runtime Config.
type JsonConfig struct {
	EndpointAddrHTTP string `json:"endpoint_addr_http"`
	DatabaseDSN      string `json:"database_dsn"`
	CORSOrigin       string `json:"cors_origin"`

	AccessTokenSecret            string         `json:"access_token_secret"`
	RefreshTokenSecret           string         `json:"refresh_token_secret"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`

	MasterKeyHex        string `json:"master_key_hex"`
	MasterKeyPassphrase string `json:"master_key_passphrase"`
	MasterKeySaltHex    string `json:"master_key_salt_hex"`

	StorageBackend   string `json:"storage_backend"`
	PinataAPIURL     string `json:"pinata_api_url"`
	PinataGatewayURL string `json:"pinata_gateway_url"`
	PinataJWT        string `json:"pinata_jwt"`

	S3AccessKey    string `json:"s3_access_key"`
	S3SecretKey    string `json:"s3_secret_key"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	LedgerRPCURL    string `json:"ledger_rpc_url"`
	ContractAddress string `json:"contract_address"`

	MaxUploadBytes    int64          `json:"max_upload_bytes"`
	DependencyTimeout timex.Duration `json:"dependency_timeout"`

	ReplayGuardEnabled bool           `json:"replay_guard_enabled"`
	ReplayWindow       timex.Duration `json:"replay_window"`
}

// parseJson loads configuration values from the JSON file named by the -c or
// -config flags into the provided Config. Absent file path means nothing to
// overlay. Unreadable or malformed files panic: a half-applied config is
// worse than a crash at startup.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	overlayString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	overlayString(&config.DatabaseDSN, c.DatabaseDSN)
	overlayString(&config.CORSOrigin, c.CORSOrigin)
	overlayString(&config.AccessTokenSecret, c.AccessTokenSecret)
	overlayString(&config.RefreshTokenSecret, c.RefreshTokenSecret)
	overlayDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	overlayDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	overlayString(&config.MasterKeyHex, c.MasterKeyHex)
	overlayString(&config.MasterKeyPassphrase, c.MasterKeyPassphrase)
	overlayString(&config.MasterKeySaltHex, c.MasterKeySaltHex)
	overlayString(&config.StorageBackend, c.StorageBackend)
	overlayString(&config.PinataAPIURL, c.PinataAPIURL)
	overlayString(&config.PinataGatewayURL, c.PinataGatewayURL)
	overlayString(&config.PinataJWT, c.PinataJWT)
	overlayString(&config.S3AccessKey, c.S3AccessKey)
	overlayString(&config.S3SecretKey, c.S3SecretKey)
	overlayString(&config.S3Bucket, c.S3Bucket)
	overlayString(&config.S3Region, c.S3Region)
	overlayString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	overlayString(&config.LedgerRPCURL, c.LedgerRPCURL)
	overlayString(&config.ContractAddress, c.ContractAddress)
	if c.MaxUploadBytes > 0 {
		config.MaxUploadBytes = c.MaxUploadBytes
	}
	overlayDuration(&config.DependencyTimeout, c.DependencyTimeout)
	config.ReplayGuardEnabled = c.ReplayGuardEnabled
	overlayDuration(&config.ReplayWindow, c.ReplayWindow)
}

func overlayString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func overlayDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = time.Duration(v.Duration)
	}
}
