package server

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string
	JwtSecret   string
	IdleTimeout time.Duration

	GateTimeout       time.Duration
	ReconcileInterval time.Duration

	AwsRegion                  string
	SessionsTableName          string
	PairingsTableName          string
	StandingsTableName         string
	PairingsBySessionIndexName string

	RedisAddress  string
	RedisPassword string
}

func NewConfig() Config {
	var config Config

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs/server")
	viper.AddConfigPath(".")
	err := viper.ReadInConfig()
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %s", err))
	}
	viper.AutomaticEnv()

	config.Port = viper.GetString("Server.Port")
	config.JwtSecret = viper.GetString("JWT_SECRET")
	config.IdleTimeout = mustDuration("Server.IdleTimeout")
	config.GateTimeout = mustDuration("Server.GateTimeout")
	config.ReconcileInterval = mustDuration("Server.ReconcileInterval")

	config.AwsRegion = viper.GetString("AWS_REGION")
	config.SessionsTableName = viper.GetString("SESSIONS_TABLE_NAME")
	config.PairingsTableName = viper.GetString("PAIRINGS_TABLE_NAME")
	config.StandingsTableName = viper.GetString("STANDINGS_TABLE_NAME")
	config.PairingsBySessionIndexName = viper.GetString("PAIRINGS_BY_SESSION_INDEX_NAME")

	config.RedisAddress = viper.GetString("REDIS_ADDRESS")
	config.RedisPassword = viper.GetString("REDIS_PASSWORD")

	return config
}

func mustDuration(key string) time.Duration {
	d, err := time.ParseDuration(viper.GetString(key))
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %s", err))
	}
	return d
}
