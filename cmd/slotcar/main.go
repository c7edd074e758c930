// Command slotcar runs the slot-car race server and headless simulations.
//
// Subcommands:
//   - serve: WebSocket game server, one race session per connected driver
//   - simulate: bot-only race on a track file, results printed as a table
//
// Settings come from flags, a YAML config file ($HOME/.slotcar.yml or
// ./.slotcar.yml) and SLOTCAR_* environment variables, in that order.
package main

func main() {
	Execute()
}
