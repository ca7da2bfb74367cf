// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Key Principles:
// 1. Domain entities should be free of GORM tags and infrastructure concerns
// 2. Persistence models contain all GORM annotations and table mappings
// 3. Models convert to and from domain snapshots; domain restore functions
//    reject rows that break ledger invariants
// 4. Repositories use persistence models for database operations
//
// Structure:
// - base.go: BaseModel and VersionedModel
// - inventory.go: stock items, batches, reservations, history, wastage
// - partner.go: warehouses
// - catalog.go: item policies published by the catalog
package models
