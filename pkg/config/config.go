// Package config loads the set of chains the synchronizer can index
// against, analogous to a chains.json for a multi-network indexer.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// ChainConfig holds configuration for one LBRY-style network.
type ChainConfig struct {
	Name              string `json:"name"`
	BlockFilesDir     string `json:"blockFilesDir"`    // trusted node's on-disk block-file store
	PositionCachePath string `json:"positionCachePath"` // bbolt file for the scan-position cache
	NetworkMagic      uint32 `json:"networkMagic"`      // wire-format magic bytes for this network
	StartHeight       uint64 `json:"startHeight"`       // loaded but not read; an unindexed file is ingested from height 0
	SPVAddressFilters bool   `json:"spvAddressFilters"` // enables the filter phase
	TrendingEnabled   bool   `json:"trendingEnabled"`   // enables the trend phase
}

// Config holds all named chain configurations.
type Config struct {
	Chains map[string]*ChainConfig `json:"chains"`
}

// LoadConfig loads chain configuration from a JSON file.
func LoadConfig(filepath string) (*Config, error) {
	file, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// GetChain returns configuration for a specific chain.
func (c *Config) GetChain(name string) (*ChainConfig, error) {
	chain, ok := c.Chains[name]
	if !ok {
		return nil, fmt.Errorf("chain %s not found in config", name)
	}
	return chain, nil
}
