// Package client is a headless Go peer for the Broadway protocol. It dials
// a display server's /socket or /socket-bin endpoint, mirrors the window
// table the server synchronizes (geometry, stacking, transients, pixel
// content), answers sync commands, and sends input events with
// automatically assigned serials and timestamps.
//
// The package exists for integration tests, the load benchmark, and
// embedders that want a protocol client without a browser. It behaves like
// the embedded browser client: put-image commands replace pixels, patch
// commands XOR onto them, grabs are acknowledged with a grab-notify event.
//
//	c, err := client.Dial(ctx, "http://127.0.0.1:8080", nil)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	err = c.WaitFor(ctx, func() bool {
//	    w, ok := c.Window(1)
//	    return ok && w.Visible
//	})
//
// All methods are safe for concurrent use. State accessors return copies;
// WaitFor blocks until a predicate over the mirrored state holds.
package client
