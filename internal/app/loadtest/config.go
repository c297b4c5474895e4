package loadtest

import (
	"github.com/spf13/viper"
)

type Config struct {
	ServerUrl   string
	JwtSecret   string
	Pairs       int
	TimeControl string
}

func LoadConfig() Config {
	viper.SetDefault("LOADTEST_SERVER_URL", "ws://localhost:8080/ws")
	viper.SetDefault("LOADTEST_PAIRS", 10)
	viper.SetDefault("LOADTEST_TIME_CONTROL", "5+0")
	viper.AutomaticEnv()

	return Config{
		ServerUrl:   viper.GetString("LOADTEST_SERVER_URL"),
		JwtSecret:   viper.GetString("JWT_SECRET"),
		Pairs:       viper.GetInt("LOADTEST_PAIRS"),
		TimeControl: viper.GetString("LOADTEST_TIME_CONTROL"),
	}
}
