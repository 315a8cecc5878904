// internal/config/config.go
package config

import (
	"log"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	App      AppConfig
	Training TrainingConfig
	Artifact ArtifactConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type CacheConfig struct {
	Enabled            bool
	RedisURL           string
	RedisHost          string
	RedisPort          string
	RedisPassword      string
	RedisDB            int
	ForecastTTLSeconds int
}

type AppConfig struct {
	ModelDir string
	DataDir  string
}

// TrainingConfig holds the tunable knobs of the forecasting pipeline.
// Thresholds are deliberately configuration, not constants: small
// per-product datasets overfit the tree models.
type TrainingConfig struct {
	MinObservations   int     // below this: naive fallback, low_confidence
	FullBankThreshold int     // below this: ridge only; at/above: full bank + ensemble
	CVFolds           int     // chronological cross-validation folds
	WorkerCount       int     // bounded parallelism for per-product training
	RidgeAlpha        float64 // L2 penalty for the linear model
	ForestTrees       int
	ForestMaxDepth    int
	BoostingRounds    int
	BoostingDepth     int
	BoostingLearnRate float64
	MinReorderQty     float64 // EOQ clamp floor
}

// ArtifactConfig configures the optional S3-compatible mirror for
// trained model artifacts.
type ArtifactConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		viper.SetDefault("SERVER_PORT", "8002")
		viper.SetDefault("SERVER_MODE", "debug")
		viper.SetDefault("SERVER_READ_TIMEOUT", 30)
		viper.SetDefault("SERVER_WRITE_TIMEOUT", 60)
		viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
		viper.SetDefault("DB_HOST", "localhost")
		viper.SetDefault("DB_PORT", "5432")
		viper.SetDefault("DB_USER", "postgres")
		viper.SetDefault("DB_PASSWORD", "postgres")
		viper.SetDefault("DB_NAME", "forecast")
		viper.SetDefault("DB_SSLMODE", "disable")
		viper.SetDefault("CACHE_ENABLED", false)
		viper.SetDefault("REDIS_URL", "")
		viper.SetDefault("REDIS_HOST", "127.0.0.1")
		viper.SetDefault("REDIS_PORT", "6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("CACHE_FORECAST_TTL_SECONDS", 300)
		viper.SetDefault("APP_MODEL_DIR", "./data/models")
		viper.SetDefault("APP_DATA_DIR", "./data/output")
		viper.SetDefault("TRAINING_MIN_OBSERVATIONS", 30)
		viper.SetDefault("TRAINING_FULL_BANK_THRESHOLD", 90)
		viper.SetDefault("TRAINING_CV_FOLDS", 5)
		viper.SetDefault("TRAINING_WORKER_COUNT", 4)
		viper.SetDefault("TRAINING_RIDGE_ALPHA", 1.0)
		viper.SetDefault("TRAINING_FOREST_TREES", 50)
		viper.SetDefault("TRAINING_FOREST_MAX_DEPTH", 8)
		viper.SetDefault("TRAINING_BOOSTING_ROUNDS", 100)
		viper.SetDefault("TRAINING_BOOSTING_DEPTH", 3)
		viper.SetDefault("TRAINING_BOOSTING_LEARN_RATE", 0.1)
		viper.SetDefault("TRAINING_MIN_REORDER_QTY", 1.0)
		viper.SetDefault("ARTIFACT_MIRROR_ENABLED", false)
		viper.SetDefault("ARTIFACT_ENDPOINT", "")
		viper.SetDefault("ARTIFACT_ACCESS_KEY", "")
		viper.SetDefault("ARTIFACT_SECRET_KEY", "")
		viper.SetDefault("ARTIFACT_BUCKET", "forecast-models")
		viper.SetDefault("ARTIFACT_USE_SSL", true)

		viper.AutomaticEnv()

		ensureDir(viper.GetString("APP_MODEL_DIR"))
		ensureDir(viper.GetString("APP_DATA_DIR"))

		instance = &Config{
			Server: ServerConfig{
				Port:           viper.GetString("SERVER_PORT"),
				Mode:           viper.GetString("SERVER_MODE"),
				ReadTimeout:    viper.GetInt("SERVER_READ_TIMEOUT"),
				WriteTimeout:   viper.GetInt("SERVER_WRITE_TIMEOUT"),
				AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
			},
			Database: DatabaseConfig{
				Host:     viper.GetString("DB_HOST"),
				Port:     viper.GetString("DB_PORT"),
				User:     viper.GetString("DB_USER"),
				Password: viper.GetString("DB_PASSWORD"),
				DBName:   viper.GetString("DB_NAME"),
				SSLMode:  viper.GetString("DB_SSLMODE"),
			},
			Cache: CacheConfig{
				Enabled:            viper.GetBool("CACHE_ENABLED"),
				RedisURL:           viper.GetString("REDIS_URL"),
				RedisHost:          viper.GetString("REDIS_HOST"),
				RedisPort:          viper.GetString("REDIS_PORT"),
				RedisPassword:      viper.GetString("REDIS_PASSWORD"),
				RedisDB:            viper.GetInt("REDIS_DB"),
				ForecastTTLSeconds: viper.GetInt("CACHE_FORECAST_TTL_SECONDS"),
			},
			App: AppConfig{
				ModelDir: viper.GetString("APP_MODEL_DIR"),
				DataDir:  viper.GetString("APP_DATA_DIR"),
			},
			Training: TrainingConfig{
				MinObservations:   viper.GetInt("TRAINING_MIN_OBSERVATIONS"),
				FullBankThreshold: viper.GetInt("TRAINING_FULL_BANK_THRESHOLD"),
				CVFolds:           viper.GetInt("TRAINING_CV_FOLDS"),
				WorkerCount:       viper.GetInt("TRAINING_WORKER_COUNT"),
				RidgeAlpha:        viper.GetFloat64("TRAINING_RIDGE_ALPHA"),
				ForestTrees:       viper.GetInt("TRAINING_FOREST_TREES"),
				ForestMaxDepth:    viper.GetInt("TRAINING_FOREST_MAX_DEPTH"),
				BoostingRounds:    viper.GetInt("TRAINING_BOOSTING_ROUNDS"),
				BoostingDepth:     viper.GetInt("TRAINING_BOOSTING_DEPTH"),
				BoostingLearnRate: viper.GetFloat64("TRAINING_BOOSTING_LEARN_RATE"),
				MinReorderQty:     viper.GetFloat64("TRAINING_MIN_REORDER_QTY"),
			},
			Artifact: ArtifactConfig{
				Enabled:   viper.GetBool("ARTIFACT_MIRROR_ENABLED"),
				Endpoint:  viper.GetString("ARTIFACT_ENDPOINT"),
				AccessKey: viper.GetString("ARTIFACT_ACCESS_KEY"),
				SecretKey: viper.GetString("ARTIFACT_SECRET_KEY"),
				Bucket:    viper.GetString("ARTIFACT_BUCKET"),
				UseSSL:    viper.GetBool("ARTIFACT_USE_SSL"),
			},
		}
	})

	return instance
}

func ensureDir(dir string) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}
}
