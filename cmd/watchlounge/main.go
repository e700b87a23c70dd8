package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/watchlounge/client/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
}

var (
	apiURL = configVar[string]{
		envKey:       "WATCHLOUNGE_API_URL",
		flagKey:      "api-url",
		defaultValue: "http://localhost:8080",
	}
	roomId = configVar[string]{
		envKey:       "WATCHLOUNGE_ROOM_ID",
		flagKey:      "room-id",
		defaultValue: "",
	}
	authToken = configVar[string]{
		envKey:       "WATCHLOUNGE_AUTH_TOKEN",
		flagKey:      "auth-token",
		defaultValue: "",
	}
	logLevel = configVar[string]{
		envKey:       "WATCHLOUNGE_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
	}
	videoDuration = configVar[int]{
		envKey:       "WATCHLOUNGE_VIDEO_DURATION",
		flagKey:      "video-duration",
		defaultValue: 3600,
	}
	maxReconnectAttempts = configVar[int]{
		envKey:       "WATCHLOUNGE_MAX_RECONNECT_ATTEMPTS",
		flagKey:      "max-reconnect-attempts",
		defaultValue: 3,
	}
	reconnectBaseDelayMs = configVar[int]{
		envKey:       "WATCHLOUNGE_RECONNECT_BASE_DELAY_MS",
		flagKey:      "reconnect-base-delay-ms",
		defaultValue: 1000,
	}
	stalenessThresholdMs = configVar[int]{
		envKey:       "WATCHLOUNGE_STALENESS_THRESHOLD_MS",
		flagKey:      "staleness-threshold-ms",
		defaultValue: 10000,
	}
)

func loadAppConfig() *app.AppConfig {
	pflag.String(apiURL.flagKey, apiURL.defaultValue, "Room server base url")
	pflag.String(roomId.flagKey, roomId.defaultValue, "Room to join")
	pflag.String(authToken.flagKey, authToken.defaultValue, "Bearer token")
	pflag.String(logLevel.flagKey, logLevel.defaultValue, "Logging level")
	pflag.Int(videoDuration.flagKey, videoDuration.defaultValue, "Simulated video duration in seconds")
	pflag.Int(maxReconnectAttempts.flagKey, maxReconnectAttempts.defaultValue, "Reconnect attempts before giving up")
	pflag.Int(reconnectBaseDelayMs.flagKey, reconnectBaseDelayMs.defaultValue, "Base reconnect delay in milliseconds")
	pflag.Int(stalenessThresholdMs.flagKey, stalenessThresholdMs.defaultValue, "Sync staleness threshold in milliseconds")
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	viper.BindEnv(apiURL.flagKey, apiURL.envKey)
	viper.BindEnv(roomId.flagKey, roomId.envKey)
	viper.BindEnv(authToken.flagKey, authToken.envKey)
	viper.BindEnv(logLevel.flagKey, logLevel.envKey)
	viper.BindEnv(videoDuration.flagKey, videoDuration.envKey)
	viper.BindEnv(maxReconnectAttempts.flagKey, maxReconnectAttempts.envKey)
	viper.BindEnv(reconnectBaseDelayMs.flagKey, reconnectBaseDelayMs.envKey)
	viper.BindEnv(stalenessThresholdMs.flagKey, stalenessThresholdMs.envKey)

	viper.SetDefault(apiURL.flagKey, apiURL.defaultValue)
	viper.SetDefault(roomId.flagKey, roomId.defaultValue)
	viper.SetDefault(authToken.flagKey, authToken.defaultValue)
	viper.SetDefault(logLevel.flagKey, logLevel.defaultValue)
	viper.SetDefault(videoDuration.flagKey, videoDuration.defaultValue)
	viper.SetDefault(maxReconnectAttempts.flagKey, maxReconnectAttempts.defaultValue)
	viper.SetDefault(reconnectBaseDelayMs.flagKey, reconnectBaseDelayMs.defaultValue)
	viper.SetDefault(stalenessThresholdMs.flagKey, stalenessThresholdMs.defaultValue)

	return &app.AppConfig{
		APIURL:               viper.GetString(apiURL.flagKey),
		RoomId:               viper.GetString(roomId.flagKey),
		AuthToken:            viper.GetString(authToken.flagKey),
		LogLevel:             viper.GetString(logLevel.flagKey),
		VideoDuration:        viper.GetInt(videoDuration.flagKey),
		MaxReconnectAttempts: viper.GetInt(maxReconnectAttempts.flagKey),
		ReconnectBaseDelayMs: viper.GetInt(reconnectBaseDelayMs.flagKey),
		StalenessThresholdMs: viper.GetInt(stalenessThresholdMs.flagKey),
	}
}

func main() {
	ctx := context.Background()

	appConfig := loadAppConfig()

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting watchlounge with config: %s\n", jsonConfig)

	log.Fatal(app.Run(ctx, appConfig))
}
