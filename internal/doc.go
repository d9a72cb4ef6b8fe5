// Package internal holds code generation helpers shared by the recovery
// engine. Nothing here is part of the public API.
package internal
