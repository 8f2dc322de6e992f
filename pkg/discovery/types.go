package discovery

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"
)

// Service constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of Mumble servers.
	ServiceType = "_mumble._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// BrowseTimeout is the default time spent collecting servers.
	BrowseTimeout = 5 * time.Second
)

// Discovery errors.
var (
	ErrNotFound      = errors.New("server not found")
	ErrBrowserClosed = errors.New("browser stopped")
)

// ServiceEntry is a raw DNS-SD answer, decoupled from the mDNS library.
type ServiceEntry struct {
	Instance string
	Service  string
	Domain   string
	Host     string
	Port     uint16
	Text     []string
	Addrs    []string
}

// Server is a discovered Mumble server.
type Server struct {
	// Instance is the advertised server name.
	Instance string

	// Host is the advertised host name.
	Host string

	// Port is the control-channel port.
	Port uint16

	// Addresses lists the server's IP addresses across interfaces.
	Addresses []string

	// Text holds the TXT records, if any.
	Text TXTRecordMap
}

// DialHost returns the host to connect to: the first IPv4 address, then
// any address, then the advertised host name.
func (s *Server) DialHost() string {
	for _, addr := range s.Addresses {
		if ip := net.ParseIP(addr); ip != nil && ip.To4() != nil {
			return addr
		}
	}
	if len(s.Addresses) > 0 {
		return s.Addresses[0]
	}
	return strings.TrimSuffix(s.Host, ".")
}

// String returns "instance (host:port)".
func (s *Server) String() string {
	return s.Instance + " (" + net.JoinHostPort(s.DialHost(), strconv.Itoa(int(s.Port))) + ")"
}

// ToServer converts a ServiceEntry to a Server.
func (e *ServiceEntry) ToServer() *Server {
	return &Server{
		Instance:  e.Instance,
		Host:      e.Host,
		Port:      e.Port,
		Addresses: append([]string(nil), e.Addrs...),
		Text:      StringsToTXTRecords(e.Text),
	}
}

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}
