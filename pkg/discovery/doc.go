// Package discovery finds Mumble servers on the local network with
// mDNS/DNS-SD.
//
// Servers advertise the _mumble._tcp service in the local domain. The
// instance name is the server's display name; SRV and A/AAAA records give
// the host, port and addresses. Servers may publish TXT records, which are
// passed through untouched.
//
// A server reachable on several interfaces is reported once, with the
// addresses of every interface merged. It disappears when its last
// address is withdrawn.
package discovery
