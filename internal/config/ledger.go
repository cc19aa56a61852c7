package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/prestadia/backend/internal/models"
)

// LedgerConfig groups every tunable of the ledger engine. All values come
// from viper (env/.env) with defaults matching production behavior.
type LedgerConfig struct {
	// DefaultCurrency tags lazily created accounts.
	DefaultCurrency string

	// Per-kind negative-balance policy. Field agents are allowed to operate
	// ahead of reconciliation, so every kind defaults to permitting negative
	// balances; flip a flag to restore the strict historical wallet behavior.
	AllowNegativeWallet     bool
	AllowNegativeSafe       bool
	AllowNegativeCollection bool

	// Serialization-conflict retry loop for balance-affecting transactions.
	MaxTxAttempts  int
	TxRetryBackoff time.Duration

	// Civil time zone all day boundaries are computed in.
	ClosingTimeZone string

	// DriftTolerance is the max stored-vs-replayed balance difference the
	// reconciler accepts before overwriting the cache.
	DriftTolerance string
}

// LoadLedgerConfig reads the ledger block from viper.
func LoadLedgerConfig() *LedgerConfig {
	viper.SetDefault("ledger.default_currency", "ARS")
	viper.SetDefault("ledger.allow_negative_wallet", true)
	viper.SetDefault("ledger.allow_negative_safe", true)
	viper.SetDefault("ledger.allow_negative_collection", true)
	viper.SetDefault("ledger.max_tx_attempts", 4)
	viper.SetDefault("ledger.tx_retry_backoff", 50*time.Millisecond)
	viper.SetDefault("ledger.closing_timezone", "America/Argentina/Buenos_Aires")
	viper.SetDefault("ledger.drift_tolerance", "0.01")

	return &LedgerConfig{
		DefaultCurrency:         viper.GetString("ledger.default_currency"),
		AllowNegativeWallet:     viper.GetBool("ledger.allow_negative_wallet"),
		AllowNegativeSafe:       viper.GetBool("ledger.allow_negative_safe"),
		AllowNegativeCollection: viper.GetBool("ledger.allow_negative_collection"),
		MaxTxAttempts:           viper.GetInt("ledger.max_tx_attempts"),
		TxRetryBackoff:          viper.GetDuration("ledger.tx_retry_backoff"),
		ClosingTimeZone:         viper.GetString("ledger.closing_timezone"),
		DriftTolerance:          viper.GetString("ledger.drift_tolerance"),
	}
}

// AllowNegative resolves the policy for one account kind.
func (c *LedgerConfig) AllowNegative(kind models.AccountKind) bool {
	switch kind {
	case models.Safe:
		return c.AllowNegativeSafe
	case models.CollectionWallet:
		return c.AllowNegativeCollection
	default:
		return c.AllowNegativeWallet
	}
}

// Location resolves the closing time zone, falling back to UTC if the zone
// database does not know the configured name.
func (c *LedgerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.ClosingTimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
