/*
Package x contains the helpers shared by all extensions. The extensions
themselves live in subpackages.
*/
package x
