// Package core defines the shared language of the leapgov engine.
//
// This package contains:
//   - Domain entities (Version, Branch, Tag, LineageRecord, EntityRef)
//   - Storage contracts (VersionRepository, LineageRepository)
//   - The error taxonomy shared by every component
//   - The tenant/actor scope carried on contexts
//
// The Golden Rule: pkg/core imports ONLY the standard library.
// All other packages depend on core, not the reverse.
package core
