/*
Package gconf stores per-extension configuration on the ledger.

Every extension keeps a single configuration entity under "_c:<pkg>". The
initial value comes from the genesis file, where it is read from
"conf"."<pkg>", validated and saved. Handlers Load it at execution time, so
the configuration is part of the state like any other entity.
*/
package gconf
