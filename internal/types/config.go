package types

// Config represents the complete daemon configuration
type Config struct {
	DataDir  string          `yaml:"datadir"`
	Node     NodeConfig      `yaml:"node"`
	Network  NetworkConfig   `yaml:"network"`
	Managers []ManagerConfig `yaml:"managers"`
	Logging  LoggingConfig   `yaml:"logging"`
}

// NodeConfig contains node-specific configuration
type NodeConfig struct {
	// SigningKey is the hex-encoded 32-byte Bitcoin private key used to
	// produce cosigner signatures. Generated on first run if empty.
	SigningKey string `yaml:"signing_key"`
}

// NetworkConfig contains network-related configuration
type NetworkConfig struct {
	Addresses []string `yaml:"addresses"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DataDir: "", // resolved to ~/.cosignerd when empty
		Node: NodeConfig{
			SigningKey: "", // will be generated if empty
		},
		Network: NetworkConfig{
			Addresses: []string{
				"/ip4/127.0.0.1/tcp/8383",
			},
		},
		Managers: []ManagerConfig{},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
