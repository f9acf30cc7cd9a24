package config

import (
	"github.com/knadh/koanf/providers/confmap"
)

func DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"database": "duewatch.db",
		"timezone": "America/Argentina/Buenos_Aires",
		"locale":   "es-AR",
		"http": map[string]interface{}{
			"addr": "",
		},
		"sync": map[string]interface{}{
			"schedule":    "@every 5m",
			"default_tag": "check-vencimientos",
		},
		"timers": map[string]interface{}{
			"max_delay": "24h",
		},
		"lease": map[string]interface{}{
			"ttl": "15m",
		},
		"display": map[string]interface{}{
			"console": true,
			"tray":    true,
		},
		"notification": map[string]interface{}{
			"icon":  "/assets/icons/icon-192x192.png",
			"badge": "/assets/icons/badge-72x72.png",
			"url":   "/tarjetas",
		},
		"log": map[string]interface{}{
			"level":  "info",
			"format": "text",
		},
	}
}

func NewDefaultProvider() *confmap.Confmap {
	return confmap.Provider(DefaultConfig(), ".")
}

func GetDefaultConfigPath() string {
	return "~/.config/duewatch/config.yaml"
}
