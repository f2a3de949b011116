package config

import "strings"

// Environment identifies the runtime environment where the storefront operates.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

// StorageDriver selects the snapshot storage backend.
type StorageDriver string

const (
	// StorageMemory keeps cart snapshots in process memory.
	StorageMemory StorageDriver = "memory"
	// StorageFile writes one JSON file per cart snapshot.
	StorageFile StorageDriver = "file"
	// StorageRedis stores snapshots in Redis.
	StorageRedis StorageDriver = "redis"
	// StoragePostgres stores snapshots in PostgreSQL.
	StoragePostgres StorageDriver = "postgres"
)

func normalizeDriver(name string) StorageDriver {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	switch trimmed {
	case "", "mem", "inmemory", "in-memory":
		return StorageMemory
	case "fs", "filesystem":
		return StorageFile
	case "pg", "postgresql":
		return StoragePostgres
	}
	return StorageDriver(trimmed)
}
