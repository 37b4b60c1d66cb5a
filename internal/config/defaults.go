package config

var defaults = map[string]any{
	"secret":      "",
	"session_ttl": 24 * 8, // 8 days
	"log_level":   "info",

	"nonce_store": "memory",

	"listen_addr":      ":8080",
	"allowed_networks": "",
	"base_url":         "/",

	"rbac.policy_file": "",

	"storage.sqlite.path": "./data/gadify.db",
}

func Defaults() map[string]any {
	values := make(map[string]any)
	for k, v := range defaults {
		values[k] = v
	}
	return values
}
