package storage

import "manimrender/internal/ports"

// Provider is the storage contract shared by the api, worker and runner.
type Provider = ports.StorageProvider
