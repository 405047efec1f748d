// Package api exposes a receiver over a small REST-like HTTP surface.
//
//	GET  /MVL              -> query MVL, responds with the receiver's packet
//	GET  /MVL?timeout=500  -> same, waiting at most 500ms
//	POST /MVL {"parameter": "UP"}
//
// Responses are the packet as JSON:
//
//	{"command": "MVL", "parameter": "2A", "deviceType": "1"}
//
// Errors are {"error": "<message>"} with 400 for bad input, 405 for other
// methods, 504 when the receiver does not answer in time and 500 otherwise.
package api
