package redisstorage

// Config stores the redis connection configs
type Config struct {
	// Enabled disables the quote cache entirely when false
	Enabled bool `mapstructure:"Enabled"`
	// Addr is the redis host:port
	Addr string `mapstructure:"Addr"`
	// Username for redis auth
	Username string `mapstructure:"Username"`
	// Password for redis auth
	Password string `mapstructure:"Password"`
	// DB is the redis database number
	DB int `mapstructure:"DB"`
	// QuoteTTLSeconds is how long a cached swap quote stays valid
	QuoteTTLSeconds int64 `mapstructure:"QuoteTTLSeconds"`
}
