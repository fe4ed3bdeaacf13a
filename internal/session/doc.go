// Package session expresses the speech-synthesis service's lifecycle on top of the
// frame codec: send helpers for each client event, a single-message wait primitive, the
// audio streaming loop, and a Tracker for the connection/session state machine.
//
// Nothing here times out on its own. Callers bound every wait with a context deadline.
package session
