package config

import (
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"intentLedger/internal/model"
	"intentLedger/internal/permit"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL  string
	ChainID uint64

	Ledger        string
	Token         string
	Permit2       string
	Intents       string
	Settlement    string
	Permit2Domain string

	PrivateKey      string
	Keystore        string
	KeystorePassEnv string
	Yes             bool

	LocalNetwork bool
	NonceOffset  int64

	Deadline         time.Duration
	InclusionTimeout time.Duration
	PollInterval     time.Duration

	DepositGas  uint64
	WithdrawGas uint64
	IntentGas   uint64
	SettleGas   uint64
	ApproveGas  uint64

	Decimals    uint8
	DecimalsSet bool
	Journal     string
	PGDSN       string
	MetricsFile string
	Listen      string
	RPCRPS      float64

	Accounts     []string
	BatchSize    int
	Interval     time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INTENTCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("permit2-domain", permit.DefaultDomainName)
	v.SetDefault("keystore-pass-env", "INTENTCTL_KEYSTORE_PASSWORD")
	v.SetDefault("nonce-offset", int64(1))
	v.SetDefault("deadline", time.Hour)
	v.SetDefault("inclusion-timeout", 2*time.Minute)
	v.SetDefault("poll-interval", time.Second)
	v.SetDefault("deposit-gas", uint64(500000))
	v.SetDefault("withdraw-gas", uint64(500000))
	v.SetDefault("intent-gas", uint64(1500000))
	v.SetDefault("settle-gas", uint64(2000000))
	v.SetDefault("approve-gas", uint64(0))
	v.SetDefault("journal", "./data/activity.jsonl")
	v.SetDefault("listen", ":8080")
	v.SetDefault("batch-size", 50)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	// Unset decimals are read from the token once connected.
	decimals := 6
	if v.IsSet("decimals") {
		decimals = v.GetInt("decimals")
	}
	if decimals < 0 || decimals > 77 {
		return Config{}, fmt.Errorf("decimals out of range: %d", decimals)
	}

	cfg := Config{
		RPCURL:           v.GetString("rpc"),
		ChainID:          v.GetUint64("chain-id"),
		Ledger:           v.GetString("ledger"),
		Token:            v.GetString("token"),
		Permit2:          v.GetString("permit2"),
		Intents:          v.GetString("intents"),
		Settlement:       v.GetString("settlement"),
		Permit2Domain:    v.GetString("permit2-domain"),
		PrivateKey:       v.GetString("private-key"),
		Keystore:         v.GetString("keystore"),
		KeystorePassEnv:  v.GetString("keystore-pass-env"),
		Yes:              v.GetBool("yes"),
		LocalNetwork:     v.GetBool("local-network"),
		NonceOffset:      v.GetInt64("nonce-offset"),
		Deadline:         v.GetDuration("deadline"),
		InclusionTimeout: v.GetDuration("inclusion-timeout"),
		PollInterval:     v.GetDuration("poll-interval"),
		DepositGas:       v.GetUint64("deposit-gas"),
		WithdrawGas:      v.GetUint64("withdraw-gas"),
		IntentGas:        v.GetUint64("intent-gas"),
		SettleGas:        v.GetUint64("settle-gas"),
		ApproveGas:       v.GetUint64("approve-gas"),
		Decimals:         uint8(decimals),
		DecimalsSet:      v.IsSet("decimals"),
		Journal:          v.GetString("journal"),
		PGDSN:            v.GetString("pg-dsn"),
		MetricsFile:      v.GetString("metrics-file"),
		Listen:           v.GetString("listen"),
		RPCRPS:           v.GetFloat64("rpc-rps"),
		Accounts:         getStringSlice(v, "account"),
		BatchSize:        v.GetInt("batch-size"),
		Interval:         v.GetDuration("interval"),
		MaxRetries:       v.GetInt("max-retries"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
		LogLevel:         v.GetString("log-level"),
	}

	return cfg, nil
}

// Contracts validates the configured addresses. Intents and settlement
// default to the ledger when unset. chainID is the value reported by the
// node and must match chain-id when that is configured.
func (c Config) Contracts(chainID *big.Int) (model.Contracts, error) {
	if chainID == nil || chainID.Sign() <= 0 {
		return model.Contracts{}, fmt.Errorf("chain id is required")
	}
	if c.ChainID != 0 && chainID.Uint64() != c.ChainID {
		return model.Contracts{}, fmt.Errorf("chain id mismatch: configured %d, node reports %s", c.ChainID, chainID)
	}

	ledger, err := parseAddress("ledger", c.Ledger)
	if err != nil {
		return model.Contracts{}, err
	}
	token, err := parseAddress("token", c.Token)
	if err != nil {
		return model.Contracts{}, err
	}
	auth, err := parseAddress("permit2", c.Permit2)
	if err != nil {
		return model.Contracts{}, err
	}

	out := model.Contracts{
		Ledger:        ledger,
		Token:         token,
		Authorization: auth,
		Intents:       ledger,
		Settlement:    ledger,
		ChainID:       new(big.Int).Set(chainID),
	}
	if c.Intents != "" {
		if out.Intents, err = parseAddress("intents", c.Intents); err != nil {
			return model.Contracts{}, err
		}
	}
	if c.Settlement != "" {
		if out.Settlement, err = parseAddress("settlement", c.Settlement); err != nil {
			return model.Contracts{}, err
		}
	}
	return out, nil
}

// NoncePolicy returns the offset policy on local networks and the exact
// nonce everywhere else.
func (c Config) NoncePolicy() permit.NoncePolicy {
	if c.LocalNetwork && c.NonceOffset != 0 {
		return permit.FixedOffset{Offset: c.NonceOffset}
	}
	return permit.ExactNonce{}
}

// RedactedDSN hides the password of a postgres DSN for logging. DSNs
// that are not URLs are hidden entirely.
func (c Config) RedactedDSN() string {
	if c.PGDSN == "" {
		return ""
	}
	u, err := url.Parse(c.PGDSN)
	if err != nil || u.Scheme == "" {
		return "[redacted]"
	}
	return u.Redacted()
}

func parseAddress(name, value string) (common.Address, error) {
	if value == "" {
		return common.Address{}, fmt.Errorf("%s address is required", name)
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address: %s", name, value)
	}
	addr := common.HexToAddress(value)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s address is zero", name)
	}
	return addr, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
