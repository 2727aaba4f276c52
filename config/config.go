package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

//go:embed config.yml
var embeddedConfig []byte

type ProviderConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Host    string        `mapstructure:"host"`
	Model   string        `mapstructure:"model"`
	APIKey  string        `mapstructure:"apiKey"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type JWTConfig struct {
	SecretKey string `mapstructure:"secretKey"`
	Issuer    string `mapstructure:"issuer"`
	Audience  string `mapstructure:"audience"`
}

type Config struct {
	Mode     string `mapstructure:"mode"`
	Dotenv   string `mapstructure:"dotenv"`
	Handlers struct {
		Prometheus struct {
			Port string `mapstructure:"port"`
		} `mapstructure:"prometheus"`
	} `mapstructure:"handlers"`
	Repositories struct {
		Postgres struct {
			Enabled           bool   `mapstructure:"enabled"`
			Host              string `mapstructure:"host"`
			Password          string `mapstructure:"password"`
			Port              string `mapstructure:"port"`
			Username          string `mapstructure:"username"`
			DB                string `mapstructure:"db"`
			SSLMODE           string `mapstructure:"SSLMODE"`
			MAXCONWAITINGTIME int    `mapstructure:"MAXCONWAITINGTIME"`
		} `mapstructure:"postgres"`
		Redis struct {
			Enabled    bool          `mapstructure:"enabled"`
			Addr       string        `mapstructure:"addr"`
			Password   string        `mapstructure:"password"`
			DB         int           `mapstructure:"db"`
			HistoryTTL time.Duration `mapstructure:"historyTTL"`
		} `mapstructure:"redis"`
	} `mapstructure:"repositories"`
	Server struct {
		HTTPPort string        `mapstructure:"HTTPPort"`
		Timeout  time.Duration `mapstructure:"HTTPTimeout"`
	} `mapstructure:"server"`
	JWT JWTConfig `mapstructure:"jwt"`
	Assistant struct {
		HistoryTurns int `mapstructure:"historyTurns"`
		MaxHistory   int `mapstructure:"maxHistory"`
	} `mapstructure:"assistant"`
	Providers struct {
		Remote ProviderConfig `mapstructure:"remote"`
		Local  ProviderConfig `mapstructure:"local"`
	} `mapstructure:"providers"`
	Location struct {
		GraphFile       string  `mapstructure:"graphFile"`
		ProximityKm     float64 `mapstructure:"proximityKm"`
		GeocodeRadiusKm float64 `mapstructure:"geocodeRadiusKm"`
	} `mapstructure:"location"`
	Suggestions struct {
		MaxSuggestions         int    `mapstructure:"maxSuggestions"`
		MaxLocationSuggestions int    `mapstructure:"maxLocationSuggestions"`
		DefaultLocation        string `mapstructure:"defaultLocation"`
	} `mapstructure:"suggestions"`
	Recommendations struct {
		Limit          int                         `mapstructure:"limit"`
		CandidateLimit int                         `mapstructure:"candidateLimit"`
		Weights        types.RecommendationWeights `mapstructure:"weights"`
	} `mapstructure:"recommendations"`
	Improvement struct {
		Schedule   string        `mapstructure:"schedule"`
		Window     time.Duration `mapstructure:"window"`
		MinSamples int           `mapstructure:"minSamples"`
		MaxRecords int           `mapstructure:"maxRecords"`
		Step       float64       `mapstructure:"step"`
	} `mapstructure:"improvement"`
	Notifications struct {
		NewListingWindow time.Duration `mapstructure:"newListingWindow"`
		DedupeTTL        time.Duration `mapstructure:"dedupeTTL"`
		MinScore         float64       `mapstructure:"minScore"`
	} `mapstructure:"notifications"`
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()

	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	v.SetEnvPrefix("REN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		fmt.Printf("Warning: Failed to find file-based config: %s. Falling back to embedded config.\n", err)
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Secrets only come from the environment.
	if config.Providers.Remote.APIKey == "" {
		config.Providers.Remote.APIKey = os.Getenv("GOOGLE_GEMINI_API_KEY")
	}
	if secret := os.Getenv("JWT_SECRET_KEY"); secret != "" {
		config.JWT.SecretKey = secret
	}
	if err = config.Validate(); err != nil {
		return Config{}, err
	}
	fmt.Println("Successfully loaded app configs...")
	return config, nil
}

// RemoteEnabled reports whether Tier 1 can be attempted at all.
func (c Config) RemoteEnabled() bool {
	return c.Providers.Remote.Enabled && c.Providers.Remote.APIKey != ""
}

// TierBudget is the longest a request can spend in the network tiers, which
// run one after another.
func (c Config) TierBudget() time.Duration {
	var total time.Duration
	if c.Providers.Remote.Enabled {
		total += c.Providers.Remote.Timeout
	}
	if c.Providers.Local.Enabled {
		total += c.Providers.Local.Timeout
	}
	return total
}

// Validate rejects tier timeouts that the HTTP timeout would cut short.
func (c Config) Validate() error {
	if c.Server.Timeout <= 0 {
		return nil
	}
	if budget := c.TierBudget(); budget >= c.Server.Timeout {
		return fmt.Errorf("provider timeouts (%s) must stay below server.HTTPTimeout (%s)", budget, c.Server.Timeout)
	}
	return nil
}
