// Package tui is the interactive oink remote built on Bubble Tea.
//
// The application has two screens:
//
//   - Discovery: broadcasts an eISCP discovery, lists the receivers that
//     answered, and accepts a hand-typed address
//   - Control: connects to one receiver, shows power, volume, mute and input
//     state, and logs every packet in both directions
//
// The control screen keeps its state current from the receiver's own
// status broadcasts, so changes made with the front panel or another
// remote show up too.
//
// # Usage
//
//	err := tui.Run(tui.Options{
//	    Scan: func(ctx context.Context) ([]*discovery.DiscoveredDevice, error) {
//	        return discovery.Discover(ctx, discovery.Options{TimeLimit: time.Second})
//	    },
//	    TimeLimit: time.Second,
//	    NewReceiver: func(d *discovery.DiscoveredDevice) tui.Receiver {
//	        return d.ToDevice()
//	    },
//	    CommandTimeout: time.Second,
//	})
package tui
