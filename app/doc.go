/*
Package app contains the building blocks of a ledger application: a
router dispatching messages to handlers, the decorator chain wrapped
around it and the Ledger that executes transactions against a
persistent store.

The Ledger executes one transaction at a time. Every transaction works
on a fresh cache wrap of the committed store which is written back only
if the whole stack returns no error. A failed transaction leaves no
trace in the store.
*/
package app
