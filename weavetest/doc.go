/*
Package weavetest provides mocks and helpers for testing handlers,
decorators and extensions without a running ledger.
*/
package weavetest
