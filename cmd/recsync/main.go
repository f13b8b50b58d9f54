// Command recsync is the operator CLI: one-off sweeps, schema migration and token minting.
package main

func main() {
	Execute()
}
