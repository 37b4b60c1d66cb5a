package config

type Storage struct {
	SQLite *SQLiteStorage `mapstructure:"sqlite,omitempty"`
	// Memory keeps all rows in process memory. Development and tests only.
	Memory bool `mapstructure:"memory,omitempty"`
}

type SQLiteStorage struct {
	Path string `mapstructure:"path,omitempty"`
}
