// Package server implements the oink HTTP bridge.
//
// A Server holds one receiver connection and exposes it over HTTP:
//
//	GET  /MVL              query a command (see package api)
//	POST /MVL              send {"parameter": "1F"}
//	GET  /healthz          {"connected": true, "receiver": "192.168.1.50:60128", ...}
//	GET  /events           websocket stream of every packet the receiver sends
//	GET  /events?encoding=cbor
//
// Events are JSON text frames by default and CBOR binary frames when
// requested. The server pings each stream every pingPeriod and drops
// streams that miss a pong.
//
// # Usage Example
//
//	dev := device.New("192.168.1.50", 60128, "1")
//	srv, err := server.New(&server.Config{Port: 8080, Advertise: true}, dev)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
// With Advertise set the bridge registers itself over mDNS so
// discovery.ScanForBridges can find it.
package server
