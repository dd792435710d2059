// Package core turns bunches of raw catalog rows into entity, attribute,
// relationship and stock write-sets.
//
// This package is the heart of the importer. It holds no transport or storage
// code; persistence, uploads, category storage and metadata lookup are
// collaborators declared in collaborators.go and supplied by the caller.
//
// # Run Lifecycle
//
// An [Importer] owns one run. It is created from [Options], a set of
// [Dependencies] and the [Seed] of already persisted entities:
//
//	im, err := core.NewImporter(opts, deps, seed)
//	report, err := im.Run(ctx, source)
//
// Each bunch handed over by the [BunchSource] is processed in three steps:
//
//  1. Every row is validated ([Importer.ValidateRow]). Validation is
//     idempotent per row number and fills the SKU and URL-key registries.
//  2. Accepted rows are transformed into a per-bunch write-set: entities,
//     websites, categories, tier prices, media gallery and attribute values.
//  3. The write-set is flushed through the [Writer], phase by phase, and stock
//     rows are derived and saved ([Importer.SyncStock]).
//
// State that later bunches depend on (SKU registry, URL-key registry,
// type and attribute-set carry-forward) lives for the whole run.
//
// # Scopes
//
// Rows are classified by [ResolveScope]. A Default row starts an entity
// block; Store, Website and Null rows that leave the SKU empty belong to the
// block of the most recent Default row. When the Default row fails, the rest
// of its block is rejected as orphaned.
//
// # Product Types
//
// Type handlers are registered at init time using [RegisterType] and
// snapshotted when a run starts:
//
//	core.RegisterType(core.TypeDefinition{
//	    ID:        "simple",
//	    Label:     "Simple Product",
//	    TracksQty: true,
//	    New:       newSimple,
//	})
//
// # Error Handling
//
// Row problems are recorded in the [ErrorAggregator] and never abort a run.
// Each [ErrorKind] carries a severity and a support code (see
// error_messages.go). Fatal problems such as an unknown website code or a
// writer failure are returned as errors and stop the run; work flushed for
// earlier bunches stays committed.
package core
