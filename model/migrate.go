package model

import "gorm.io/gorm"

// clientModels lists the tables of the on-device store.
var clientModels = []interface{}{
	&SnapshotBlob{},
	&QueuedMutation{},
	&SyncHistory{},
}

// serverModels lists the tables of the reference backend.
var serverModels = []interface{}{
	&Account{},
	&RelationshipEdge{},
	&FitnessProfile{},
	&DirectMessage{},
}

// AutoMigrateClient creates or updates the on-device store tables.
func AutoMigrateClient(db *gorm.DB) error {
	return db.AutoMigrate(clientModels...)
}

// AutoMigrateServer creates or updates the reference backend tables.
func AutoMigrateServer(db *gorm.DB) error {
	return db.AutoMigrate(serverModels...)
}
