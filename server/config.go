package server

// Config struct
type Config struct {
	// HTTPPort is the port the consolidation API listens on
	HTTPPort string `mapstructure:"HTTPPort"`
}
