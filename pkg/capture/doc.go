// Package capture composes the display's window stack into a single image
// and persists the result through pluggable stores.
//
// A capture flattens the visible windows in stacking order onto one canvas,
// encodes it as PNG, and hands it to a Store. Two backends ship with the
// package: DiskStore writes PNGs with JSON metadata sidecars to a local
// directory, S3Store puts them in a bucket and serves presigned URLs.
//
// # Usage
//
// Take a snapshot of a running display server and store it:
//
//	store, err := capture.NewDiskStore("/var/lib/broadway/captures", 0)
//	if err != nil {
//	    return err
//	}
//
//	snap, err := capture.Take(srv)
//	if err != nil {
//	    return err
//	}
//	id, err := store.Save(ctx, snap)
//
// The daemon exposes this as POST /debug/capture and serves stored captures
// back on GET /debug/capture/{id}.
//
// Captures hold whatever the application last drew, so treat the store
// directory or bucket with the same confidentiality as the display itself.
package capture
