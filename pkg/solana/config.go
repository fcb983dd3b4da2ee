package solana

import "strings"

type Environment string

const (
	EnvironmentLocal Environment = "http://localhost:8899"
	EnvironmentDev   Environment = "https://api.devnet.solana.com"
	EnvironmentTest  Environment = "https://api.testnet.solana.com"
	EnvironmentProd  Environment = "https://api.mainnet-beta.solana.com"
)

// ResolveEnvironment maps a cluster moniker (localnet, devnet, testnet,
// mainnet-beta) to its public endpoint. Anything else is treated as an
// explicit endpoint URL.
func ResolveEnvironment(value string) Environment {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "local", "localnet", "localhost":
		return EnvironmentLocal
	case "dev", "devnet":
		return EnvironmentDev
	case "test", "testnet":
		return EnvironmentTest
	case "prod", "mainnet", "mainnet-beta":
		return EnvironmentProd
	}
	return Environment(value)
}

// IsProduction reports whether the environment points at mainnet, where
// test funds cannot be requested.
func (e Environment) IsProduction() bool {
	return e == EnvironmentProd
}
