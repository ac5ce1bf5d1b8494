package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Signer    SignerConfig    `mapstructure:"signer"`
	Network   NetworkConfig   `mapstructure:"network"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Transport TransportConfig `mapstructure:"transport"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
	ApiURL   string `mapstructure:"api_url"` // relay-cli 访问 relay-server 的地址
}

type DBConfig struct {
	Enabled  bool   `mapstructure:"enabled"` // 关闭时不落库，只保留内存中的最近 10 条
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	MQType   string `mapstructure:"mq_type"` // "redis" or "kafka"
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

// SignerConfig L1 签名账户来源，优先级: keystore > private_key > mnemonic
type SignerConfig struct {
	KeystorePath   string `mapstructure:"keystore_path"`
	Password       string `mapstructure:"password"` // 通常通过环境变量 SIGNER_PASSWORD 传入
	PrivateKey     string `mapstructure:"private_key"`
	Mnemonic       string `mapstructure:"mnemonic"`
	DerivationPath string `mapstructure:"derivation_path"`
}

type NetworkConfig struct {
	Default      string `mapstructure:"default"`       // 目标 L2 网络 key，例如 unichain
	RegistryFile string `mapstructure:"registry_file"` // 可选的 TOML 网络表，覆盖内置网络
	L1RpcUrl     string `mapstructure:"l1_rpc_url"`    // L1 (Sepolia) 节点
}

type RelayConfig struct {
	Mode         string        `mapstructure:"mode"` // "portal" or "direct"
	PollInterval time.Duration `mapstructure:"poll_interval"`
	CheckRate    time.Duration `mapstructure:"check_rate"` // 手动查询回执的最小间隔
}

type TransportConfig struct {
	EventsTopic   string        `mapstructure:"events_topic"`
	ActionsTopic  string        `mapstructure:"actions_topic"`
	StatusTopic   string        `mapstructure:"status_topic"`
	ConsumerGroup string        `mapstructure:"consumer_group"`
	ConsumerName  string        `mapstructure:"consumer_name"`
	DedupTTL      time.Duration `mapstructure:"dedup_ttl"` // 重复事件抑制窗口
}

var Global Config

func Init() {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yaml")   // REQUIRED if the config file does not have the extension in the name
	viper.AddConfigPath(".")      // optionally look for config in the working directory
	viper.AddConfigPath("./config")

	// 环境变量设置, 例如 SIGNER_PRIVATE_KEY / NETWORK_L1_RPC_URL
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 设置默认值
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

	log.Printf("Configuration loaded successfully. Env: %s, Network: %s, Mode: %s",
		Global.App.Env, Global.Network.Default, Global.Relay.Mode)
}

func setDefaults() {
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.http_port", "8080")
	viper.SetDefault("app.api_url", "http://localhost:8080/api/v1")

	viper.SetDefault("db.enabled", false)
	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.user", "relay_user")
	viper.SetDefault("db.password", "relay_password")
	viper.SetDefault("db.name", "relay_db")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.mq_type", "redis")

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})

	viper.SetDefault("signer.keystore_path", "")
	viper.SetDefault("signer.password", "")
	viper.SetDefault("signer.private_key", "")
	viper.SetDefault("signer.mnemonic", "")
	viper.SetDefault("signer.derivation_path", "m/44'/60'/0'/0/0")

	viper.SetDefault("network.default", "unichain")
	viper.SetDefault("network.registry_file", "")
	viper.SetDefault("network.l1_rpc_url", "https://ethereum-sepolia-rpc.publicnode.com")

	viper.SetDefault("relay.mode", "portal")
	viper.SetDefault("relay.poll_interval", 5*time.Second)
	viper.SetDefault("relay.check_rate", time.Second)

	viper.SetDefault("transport.events_topic", "walletconnect_events")
	viper.SetDefault("transport.actions_topic", "walletconnect_actions")
	viper.SetDefault("transport.status_topic", "bridge_relay_status")
	viper.SetDefault("transport.consumer_group", "bridge_relay")
	viper.SetDefault("transport.consumer_name", "relay-0")
	viper.SetDefault("transport.dedup_ttl", 10*time.Minute)
}
