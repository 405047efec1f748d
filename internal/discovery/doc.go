// Package discovery finds eISCP receivers and oink bridges on the local
// network.
//
// # Receiver Discovery
//
// Receivers answer an ECN query broadcast to UDP port 60128. Discover sends
// the query twice, once per device type marker receivers listen for ("x"
// and "p"), and collects the answers:
//
//	devices, err := discovery.Discover(ctx, discovery.Options{
//	    DeviceLimit: 1,
//	    TimeLimit:   2 * time.Second,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, d := range devices {
//	    fmt.Printf("%s %s at %s\n", d.Model, d.Identifier, d.Address)
//	}
//
// Each response parameter is "model/port/region/identifier", for example
// "TX-NR686/60128/DX/0009B0123456". A receiver may answer both queries, so
// the same receiver can appear twice; results are not deduplicated.
//
// # Bridge Discovery
//
// A running "oink serve" can announce itself as an "_oink._tcp" mDNS
// service. BridgeScanner browses for those announcements.
//
// # Network Requirements
//
//   - Broadcast UDP must reach the receiver's segment
//   - mDNS (UDP port 5353) must be allowed for bridge discovery
package discovery
