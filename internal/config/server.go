package config

import (
	"fmt"
	"net"
)

// pickIP chooses a usable IPv4 address from a local, non-loopback
// interface matching mode ("public" prefers a non-private address,
// "private" requires one).
func pickIP(mode string) (net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if (iface.Flags&net.FlagUp) == 0 || (iface.Flags&net.FlagLoopback) != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.IsLoopback() {
				continue
			}
			ip = ip.To4()
			if ip == nil {
				continue
			}

			if mode == "private" && isPrivateIP(ip) {
				return ip, nil
			}
			if mode == "public" && !isPrivateIP(ip) {
				return ip, nil
			}
		}
	}
	return nil, fmt.Errorf("no suitable %s interface found", mode)
}

func isPrivateIP(ip net.IP) bool {
	privateBlocks := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
	}
	for _, block := range privateBlocks {
		_, cidr, _ := net.ParseCIDR(block)
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// Listen opens the node's gRPC listener and returns it along with the
// "host:port" address the node should advertise to peers: Host if set,
// otherwise an address auto-picked per AddrMode.
func (cfg *NodeConfig) Listen() (net.Listener, string, error) {
	host := cfg.Host
	if host == "" {
		mode := cfg.AddrMode
		if mode == "" {
			mode = "private"
		}
		ip, err := pickIP(mode)
		if err != nil {
			return nil, "", err
		}
		host = ip.String()
	} else {
		ip := net.ParseIP(host)
		if ip == nil {
			return nil, "", fmt.Errorf("invalid IP address: %s", host)
		}
		if cfg.AddrMode == "private" && !isPrivateIP(ip) {
			return nil, "", fmt.Errorf("host %s is not private but addrMode=private", host)
		}
		if cfg.AddrMode == "public" && isPrivateIP(ip) {
			return nil, "", fmt.Errorf("host %s is private but addrMode=public", host)
		}
	}

	bind := cfg.Bind
	if bind == "" {
		bind = "0.0.0.0"
	}
	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", bind, cfg.Port))
	if err != nil {
		return nil, "", err
	}
	advertised := fmt.Sprintf("%s:%d", host, cfg.Port)
	return lis, advertised, nil
}
