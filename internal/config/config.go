package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig
	Mongo  MongoConfig
	Redis  RedisConfig
	Kafka  KafkaConfig
	JWT    JWTConfig
	Collab CollabConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type MongoConfig struct {
	URI      string
	Database string
}

// RedisConfig holds the cross-instance relay settings. An empty URL
// disables the relay and the service runs single-instance.
type RedisConfig struct {
	URL string
}

// KafkaConfig holds the event-stream settings. Empty brokers disable it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type JWTConfig struct {
	Secret string
}

type CollabConfig struct {
	ChatHistoryLimit int
}

func LoadConfig() (*Config, error) {
	viper.SetDefault("COLLAB_HOST", "")
	viper.SetDefault("COLLAB_PORT", "8080")
	viper.SetDefault("COLLAB_READ_TIMEOUT", 30*time.Second)
	viper.SetDefault("COLLAB_WRITE_TIMEOUT", 30*time.Second)
	viper.SetDefault("COLLAB_IDLE_TIMEOUT", 60*time.Second)
	viper.SetDefault("COLLAB_JWT_SECRET", "secret")
	viper.SetDefault("COLLAB_CHAT_HISTORY_LIMIT", 50)
	viper.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	viper.SetDefault("MONGO_DB", "autonote")
	viper.SetDefault("REDIS_URL", "")
	viper.SetDefault("KAFKA_BROKERS", []string{})
	viper.SetDefault("KAFKA_TOPIC", "collab-events")
	viper.AutomaticEnv()

	return &Config{
		Server: ServerConfig{
			Host:         viper.GetString("COLLAB_HOST"),
			Port:         viper.GetString("COLLAB_PORT"),
			ReadTimeout:  viper.GetDuration("COLLAB_READ_TIMEOUT"),
			WriteTimeout: viper.GetDuration("COLLAB_WRITE_TIMEOUT"),
			IdleTimeout:  viper.GetDuration("COLLAB_IDLE_TIMEOUT"),
		},
		Mongo: MongoConfig{
			URI:      viper.GetString("MONGO_URI"),
			Database: viper.GetString("MONGO_DB"),
		},
		Redis: RedisConfig{
			URL: viper.GetString("REDIS_URL"),
		},
		Kafka: KafkaConfig{
			Brokers: viper.GetStringSlice("KAFKA_BROKERS"),
			Topic:   viper.GetString("KAFKA_TOPIC"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("COLLAB_JWT_SECRET"),
		},
		Collab: CollabConfig{
			ChatHistoryLimit: viper.GetInt("COLLAB_CHAT_HISTORY_LIMIT"),
		},
	}, nil
}
