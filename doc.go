// Package iostream is an asynchronous file-streaming I/O engine: a
// Manager owns a table of Devices, each running its own scheduler and
// granule buffer pool against a host-supplied LowLevelIOHook. Callers open
// StdStreams for explicit blocking reads and writes, or AutoStreams for
// continuous heuristics-driven prefetch, through CreateStd/CreateAuto.
//
// The engine performs no I/O itself — resolving file names to devices and
// moving bytes is entirely the responsibility of the resolver.FileLocationResolver
// and resolver.LowLevelIOHook implementations a host installs on the Manager.
// See the backend package for an in-memory reference implementation of both.
package iostream
