// Package core contains the canonical ledgerlink domain contracts, entities,
// and orchestration logic for the accounting provider OAuth link. Lower-level
// adapters must depend on this package; core must not depend on transport or
// storage adapters.
package core
