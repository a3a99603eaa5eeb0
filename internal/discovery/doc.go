// Package discovery advertises and finds wsrelay servers on the local network
// using mDNS/DNS-SD.
//
// A server announces itself as a "_wsrelay._tcp" service. TXT records carry
// the WebSocket endpoint path, the URL scheme and the server version:
//
//	path=/websocket
//	scheme=ws
//	version=dev-20261018
//
// # Advertising
//
//	adv, err := discovery.Advertise("wsrelay", 9988, discovery.TXT{Path: "/websocket"})
//	if err != nil {
//	    return err
//	}
//	defer adv.Shutdown()
//
// # Browsing
//
//	relays, err := discovery.NewScanner().Scan(ctx)
//	for _, r := range relays {
//	    fmt.Println(r.URL())
//	}
//
// The scanner waits for the full timeout; mDNS has no "end of results"
// signal.
package discovery
