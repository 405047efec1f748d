// Package device manages the persistent TCP control connection to an eISCP
// receiver.
//
// A Device connects once and keeps a single socket open. A background
// reader reassembles packets from the stream and hands each one to the
// oldest pending Send waiting for the same command code, then to every
// subscriber.
//
// # Correlation
//
// eISCP responses carry no request id. A response is matched to a request
// only by its three character command, so two concurrent sends of the same
// command are resolved in the order they were sent. Packets for other
// commands never resolve a pending send; unsolicited status updates
// (a volume knob turned on the front panel, for example) simply reach the
// subscribers.
//
// # Usage Example
//
//	dev := device.New("192.168.1.20", protocol.DiscoveryPort, "1")
//	if err := dev.Connect(ctx); err != nil {
//	    return err
//	}
//	defer dev.Close()
//
//	p, err := dev.Query(ctx, "MVL", time.Second)
//	if errors.Is(err, device.ErrCommandTimedOut) {
//	    ...
//	}
//	fmt.Println("volume:", p.Parameter)
package device
