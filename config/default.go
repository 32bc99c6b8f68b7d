package config

// DefaultValues is the default configuration
const DefaultValues = `
[Log]
Environment = "development"
Level = "debug"
Outputs = ["stdout"]

[DB]
Database = "postgres"
User = "test_user"
Password = "test_password"
Name = "test_db"
Host = "flightpath-consolidator-db"
Port = "5432"
MaxConns = 20

[Quote]
SwapURL = "http://localhost:8090"
BridgeURL = "http://localhost:8091"
RequestTimeout = "5s"
MinQuoteWindow = "30s"
MaxQuoteWindow = "30m"

[Redis]
Enabled = false
Addr = "localhost:6379"
Username = ""
Password = ""
DB = 0
QuoteTTLSeconds = 15

[PriceFeed]
Enabled = false
URL = "http://localhost:8093/prices"
Frequency = "30s"
RequestTimeout = "5s"

[Accumulator]
ChainID = 1337
JobLifetime = "1h"
FrequencyToCheckDeadlines = "1m"
MaxFeeWei = 1000000000000000
RelayURL = "http://localhost:8092"
RequestTimeout = "10s"

[Dispatcher]
FrequencyToMonitorLegs = "15s"
RelayURL = "http://localhost:8092"
RequestTimeout = "10s"

[Server]
HTTPPort = "8080"

[Metrics]
Enabled = false
Port = "9090"
Env = "local"

[SignerKeystore]
Path = "./test/signer.keystore"
Password = "testonly"
`
