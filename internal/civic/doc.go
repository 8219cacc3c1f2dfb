// Package civic defines the core types shared across the ledger pipeline.
package civic
