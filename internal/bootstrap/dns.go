package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"

	"minhton/internal/config"
	"minhton/internal/logger"
	"minhton/internal/mdomain"
)

// DNS resolves candidates via SRV or A/AAAA lookups, the same
// github.com/miekg/dns-backed approach the teacher used for Koorde
// bootstrap discovery.
type DNS struct {
	cfg config.BootstrapConfig
	lgr logger.Logger
}

func NewDNS(cfg config.BootstrapConfig, lgr logger.Logger) *DNS {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &DNS{cfg: cfg, lgr: lgr}
}

func (d *DNS) Discover(ctx context.Context) ([]mdomain.PhysicalAddress, error) {
	client := &dns.Client{Timeout: 2 * time.Second}

	server := d.cfg.Resolver
	if server == "" {
		server = "8.8.8.8:53"
	} else if !strings.Contains(server, ":") {
		server += ":53"
	}

	qctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if d.cfg.SRV {
		return d.discoverSRV(qctx, client, server)
	}
	return d.discoverHost(qctx, client, server)
}

func (d *DNS) discoverSRV(ctx context.Context, client *dns.Client, server string) ([]mdomain.PhysicalAddress, error) {
	name := fmt.Sprintf("_minhton._tcp.%s", d.cfg.DNSName)
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeSRV)
	d.lgr.Info("sending SRV query", logger.F("qname", msg.Question[0].Name))

	in, _, err := client.ExchangeContext(ctx, msg, server)
	if err != nil || len(in.Answer) == 0 {
		d.lgr.Warn("SRV lookup returned nothing", logger.F("err", err), logger.F("qname", name))
		return nil, nil
	}

	extraIPs := map[string][]string{}
	for _, extra := range in.Extra {
		switch rr := extra.(type) {
		case *dns.A:
			extraIPs[strings.TrimSuffix(rr.Hdr.Name, ".")] = append(extraIPs[strings.TrimSuffix(rr.Hdr.Name, ".")], rr.A.String())
		case *dns.AAAA:
			extraIPs[strings.TrimSuffix(rr.Hdr.Name, ".")] = append(extraIPs[strings.TrimSuffix(rr.Hdr.Name, ".")], rr.AAAA.String())
		}
	}

	var out []mdomain.PhysicalAddress
	for _, ans := range in.Answer {
		srv, ok := ans.(*dns.SRV)
		if !ok {
			continue
		}
		target := strings.TrimSuffix(srv.Target, ".")
		for _, ip := range extraIPs[target] {
			out = append(out, mdomain.PhysicalAddress{IP: ip, Port: srv.Port})
		}
	}
	return out, nil
}

func (d *DNS) discoverHost(ctx context.Context, client *dns.Client, server string) ([]mdomain.PhysicalAddress, error) {
	name := dns.Fqdn(d.cfg.DNSName)
	msg := new(dns.Msg)
	msg.SetQuestion(name, dns.TypeA)

	in, _, err := client.ExchangeContext(ctx, msg, server)
	if err != nil {
		d.lgr.Warn("A lookup failed", logger.F("err", err), logger.F("qname", name))
		return nil, nil
	}

	var out []mdomain.PhysicalAddress
	for _, ans := range in.Answer {
		if a, ok := ans.(*dns.A); ok {
			out = append(out, mdomain.PhysicalAddress{IP: a.A.String(), Port: uint16(d.cfg.Port)})
		}
	}
	return out, nil
}
