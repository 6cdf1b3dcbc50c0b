package main

import "time"

type Config struct {
	Host     string `env:"HOST,default=localhost"`
	Port     int    `env:"PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`

	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`

	// Asymmetric debounce: fast online feedback, reconnect tolerance offline.
	OnlineDebounce  time.Duration `env:"ONLINE_DEBOUNCE,default=2s"`
	OfflineDebounce time.Duration `env:"OFFLINE_DEBOUNCE,default=10s"`

	SendBufferSize     int   `env:"SEND_BUFFER_SIZE,default=256"`
	DeliveryBufferSize int   `env:"DELIVERY_BUFFER_SIZE,default=1024"`
	MaxMessageSize     int64 `env:"MAX_MESSAGE_SIZE,default=4096"`
	HistoryLimit       *int  `env:"HISTORY_LIMIT"`

	CensusInterval  time.Duration `env:"CENSUS_INTERVAL,default=1m"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms"`

	// One censored word per line; empty path disables moderation.
	CensoredWordsFile string `env:"CENSORED_WORDS_FILE"`
	CharReplacement   string `env:"CHARACTER_REPLACEMENT,default=*"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}
