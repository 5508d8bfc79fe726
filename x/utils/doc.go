/*
Package utils contains the decorators every transaction passes through:
panic recovery, logging and savepoints.
*/
package utils
