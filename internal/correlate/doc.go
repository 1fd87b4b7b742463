// Package correlate reconstructs USB transactions from dispatch and
// completion trace events.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│      eventstream.Source                 │
//	└─────────────────┬───────────────────────┘
//	                  │ usbtrace.Event (timestamp order)
//	                  ▼
//	┌─────────────────────────────────────────┐
//	│   Correlator.HandleEvent                │
//	│   - Dispatch:   pending[key] = Open     │
//	│   - Completion: Open -> Transaction     │
//	│   - Other / key 0: ignored              │
//	└─────────┬───────────────────────────────┘
//	          │
//	          ├──→ Result.Completed (duration < 100ms)
//	          │
//	          ├──→ TransactionHandler (optional, e.g. span export)
//	          │
//	          └──→ devmeta.Registry (identity, per-device issues)
//
// The pending table is owned by the goroutine calling HandleEvent; a
// Correlator must not be shared between goroutines.
package correlate
