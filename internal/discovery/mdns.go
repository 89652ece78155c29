// ABOUTME: mDNS service discovery for exjack remote control endpoints
// ABOUTME: Advertises a running bridge and browses for bridges on the network
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the mDNS service type of an exjack remote endpoint
const ServiceType = "_exjack._tcp"

const (
	defaultQueryTimeout   = 3 * time.Second
	defaultBrowseInterval = 5 * time.Second
)

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	Path        string // websocket path advertised in TXT
	InstanceID  string // bridge instance ID advertised in TXT
	Backend     string // audio server backend advertised in TXT

	BrowseInterval time.Duration
	QueryTimeout   time.Duration
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
}

// ServerInfo describes a discovered bridge
type ServerInfo struct {
	Name       string
	Host       string
	Port       int
	Path       string
	InstanceID string
	Backend    string
}

// URL returns the websocket URL of the discovered bridge
func (s *ServerInfo) URL() string {
	path := s.Path
	if path == "" {
		path = "/exjack"
	}
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(s.Host, fmt.Sprint(s.Port)), path)
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Path == "" {
		config.Path = "/exjack"
	}
	if config.BrowseInterval <= 0 {
		config.BrowseInterval = defaultBrowseInterval
	}
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = defaultQueryTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
	}
}

// txtRecords builds the TXT records for the advertised service
func (m *Manager) txtRecords() []string {
	txt := []string{"path=" + m.config.Path}
	if m.config.InstanceID != "" {
		txt = append(txt, "id="+m.config.InstanceID)
	}
	if m.config.Backend != "" {
		txt = append(txt, "backend="+m.config.Backend)
	}
	return txt
}

// Advertise advertises this bridge via mDNS until Stop
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		m.txtRecords(),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Printf("Advertising mDNS service: %s on port %d (type: %s)", m.config.ServiceName, m.config.Port, ServiceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for bridges until Stop, delivering each on Servers
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

func (m *Manager) browseLoop() {
	seen := make(map[string]bool)
	for {
		found, err := m.query()
		if err != nil {
			log.Printf("mDNS query failed: %v", err)
		}

		for _, server := range found {
			key := fmt.Sprintf("%s|%s:%d", server.Name, server.Host, server.Port)
			if seen[key] {
				continue
			}
			seen[key] = true
			log.Printf("Discovered bridge: %s at %s:%d", server.Name, server.Host, server.Port)

			select {
			case m.servers <- server:
			case <-m.ctx.Done():
				return
			}
		}

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(m.config.BrowseInterval):
		}
	}
}

// Lookup runs a single query and returns every bridge that answered
func (m *Manager) Lookup() ([]*ServerInfo, error) {
	return m.query()
}

func (m *Manager) query() ([]*ServerInfo, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	done := make(chan []*ServerInfo)

	go func() {
		var found []*ServerInfo
		for entry := range entries {
			if info := serverInfo(entry); info != nil {
				found = append(found, info)
			}
		}
		done <- found
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Timeout = m.config.QueryTimeout
	params.Entries = entries
	params.DisableIPv6 = true

	err := mdns.Query(params)
	close(entries)
	return <-done, err
}

// serverInfo converts a service entry, ignoring other service types
func serverInfo(entry *mdns.ServiceEntry) *ServerInfo {
	if !strings.Contains(entry.Name, ServiceType) {
		return nil
	}

	info := &ServerInfo{
		Name: strings.TrimSuffix(entry.Name, "."+ServiceType+".local."),
		Port: entry.Port,
	}
	if entry.AddrV4 != nil {
		info.Host = entry.AddrV4.String()
	} else if entry.AddrV6 != nil {
		info.Host = entry.AddrV6.String()
	} else {
		info.Host = entry.Host
	}

	for _, field := range entry.InfoFields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "path":
			info.Path = value
		case "id":
			info.InstanceID = value
		case "backend":
			info.Backend = value
		}
	}
	return info
}

// Servers returns the channel of discovered bridges
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Stop stops advertising and browsing
func (m *Manager) Stop() {
	m.cancel()
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
