// Package transcript records the frames exchanged with the Autai shell in a
// SQLite ledger so a session can be replayed or inspected after the fact.
package transcript
