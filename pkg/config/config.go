package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"custody-wallet/pkg/vault"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Allocator AllocatorConfig `mapstructure:"allocator"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Verifier  VerifierConfig  `mapstructure:"verifier"`
	Observer  ObserverConfig  `mapstructure:"observer"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
	GrpcPort string `mapstructure:"grpc_port"`
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

// DSN gorm / golang-migrate 共用的连接串
func (c DBConfig) DSN() string {
	return "host=" + c.Host + " user=" + c.User + " password=" + c.Password +
		" dbname=" + c.Name + " port=" + c.Port + " sslmode=disable TimeZone=UTC"
}

// URL golang-migrate 使用的 postgres:// 形式
func (c DBConfig) URL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.Name + "?sslmode=disable"
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	MQType   string `mapstructure:"mq_type"` // "redis" or "kafka"
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
}

type WalletConfig struct {
	MasterKeyID  string `mapstructure:"master_key_id"`
	KeystorePath string `mapstructure:"keystore_path"` // 本地 vault 目录
	Password     string `mapstructure:"password"`      // 通常通过环境变量 WALLET_PASSWORD 传入
	VaultBackend string `mapstructure:"vault_backend"` // "file" or "s3"
	S3Bucket     string `mapstructure:"s3_bucket"`
	S3Prefix     string `mapstructure:"s3_prefix"`
	S3Region     string `mapstructure:"s3_region"`
	S3Endpoint   string `mapstructure:"s3_endpoint"` // 兼容存储的地址，留空使用 AWS
	S3AccessKey  string `mapstructure:"s3_access_key"`
	S3SecretKey  string `mapstructure:"s3_secret_key"`
}

// S3 vault 的对象存储配置
func (c WalletConfig) S3() vault.S3Config {
	return vault.S3Config{
		Bucket:          c.S3Bucket,
		Prefix:          c.S3Prefix,
		Region:          c.S3Region,
		Endpoint:        c.S3Endpoint,
		AccessKeyID:     c.S3AccessKey,
		SecretAccessKey: c.S3SecretKey,
	}
}

type AllocatorConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	DelegatedChains []string      `mapstructure:"delegated_chains"`
	RemoteAddr      string        `mapstructure:"remote_addr"`
	RemoteTimeout   time.Duration `mapstructure:"remote_timeout"`
	MaxTagRetries   int           `mapstructure:"max_tag_retries"`
}

type WatchConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxRetry int           `mapstructure:"max_retry"`
}

type TrackerConfig struct {
	WSURL      string        `mapstructure:"ws_url"`
	APIURL     string        `mapstructure:"api_url"`
	MinBackoff time.Duration `mapstructure:"min_backoff"`
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
}

type VerifierConfig struct {
	ChallengeTTL      time.Duration `mapstructure:"challenge_ttl"`
	AttemptsPerMinute int           `mapstructure:"attempts_per_minute"`
}

// ObserverConfig EVM 确认数观察器，rpc_url 为空时不启动
type ObserverConfig struct {
	EVMRPCURL string        `mapstructure:"evm_rpc_url"`
	Interval  time.Duration `mapstructure:"interval"`
	Workers   int           `mapstructure:"workers"`
}

type ReconcileConfig struct {
	Schedule string `mapstructure:"schedule"`
}

var Global Config

func Init() {
	// .env 只补充缺失的环境变量，不覆盖已有值
	if err := godotenv.Load(); err == nil {
		log.Printf("Loaded .env file")
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Warning: Config file not found, using defaults and environment variables")
		} else {
			log.Fatalf("Fatal error config file: %s \n", err)
		}
	}

	if err := viper.Unmarshal(&Global); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

func setDefaults() {
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.http_port", "8080")
	viper.SetDefault("app.grpc_port", "50051")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.user", "wallet_user")
	viper.SetDefault("db.password", "wallet_password")
	viper.SetDefault("db.name", "wallet_db")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.mq_type", "redis")

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.group_id", "custody-wallet")

	viper.SetDefault("wallet.keystore_path", "vault")
	viper.SetDefault("wallet.vault_backend", "file")
	viper.SetDefault("wallet.s3_prefix", "vault/")

	viper.SetDefault("allocator.max_retries", 5)
	viper.SetDefault("allocator.max_tag_retries", 3)
	viper.SetDefault("allocator.remote_timeout", 3*time.Second)

	viper.SetDefault("watch.timeout", 5*time.Second)
	viper.SetDefault("watch.max_retry", 10)

	viper.SetDefault("tracker.ws_url", "ws://localhost:8080/api/v1/ws/deposits")
	viper.SetDefault("tracker.api_url", "http://localhost:8080")
	viper.SetDefault("tracker.min_backoff", 500*time.Millisecond)
	viper.SetDefault("tracker.max_backoff", 30*time.Second)

	viper.SetDefault("verifier.challenge_ttl", 10*time.Minute)
	viper.SetDefault("verifier.attempts_per_minute", 5)

	viper.SetDefault("observer.interval", 12*time.Second)
	viper.SetDefault("observer.workers", 4)

	viper.SetDefault("reconcile.schedule", "@every 1h")
}
