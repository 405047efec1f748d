// Package commands maps human readable eISCP command and value names to
// packets.
//
// The table is embedded YAML grouped by zone (main, zone2, zone3, zone4 and
// dock). It lives outside the protocol core; the protocol package accepts
// any three character command.
//
//	p, err := commands.Lookup("main", "master-volume", "level-up")
//	// p == protocol.NewPacket("MVL", "UP")
package commands
