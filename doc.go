/*

Package weave defines interfaces used throughout the escrow ledger, such as:
storage, transactions, handlers, program-derived conditions and the context
carried through every call.
Look into this package to get a brief overview of design decisions made around
interfaces and extension building blocks.

*/

package weave
