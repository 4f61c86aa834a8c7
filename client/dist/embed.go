package clientdist

import _ "embed"

// BroadwayJS is the browser protocol client. The display handler serves it
// at "/broadway.js".
//
//go:embed broadway.js
var BroadwayJS []byte

// ClientHTML is the host page for the browser client, served at "/" and
// "/client.html".
//
//go:embed client.html
var ClientHTML []byte
