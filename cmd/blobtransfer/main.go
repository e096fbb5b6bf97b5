// Command blobtransfer is a thin Cobra CLI over the provider/getter
// session engine, wired to the in-process pipe transport
// (internal/transport/pipe.go) standing in for the real QUIC+TLS
// adapter spec.md §1 treats as an external collaborator. The pipe
// transport only connects callers inside one process, so a `fetch`
// run as its own process does not reach a `serve` running in another.
package main

func main() {
	Execute()
}
