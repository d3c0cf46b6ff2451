package postgres

import "rewardsetl/internal/storage"

func init() {
	// registers the backend factory
	storage.Register("postgres", New)
}
