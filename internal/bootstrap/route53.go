package bootstrap

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/route53"

	"minhton/internal/config"
	"minhton/internal/logger"
	"minhton/internal/mdomain"
)

// Route53 resolves candidates from SRV records in a hosted zone;
// internal/register.Route53 is the counterpart that publishes them.
type Route53 struct {
	client       *route53.Client
	hostedZoneID string
	domainSuffix string
	lgr          logger.Logger
}

func NewRoute53(cfg config.BootstrapConfig, lgr logger.Logger) (*Route53, error) {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return &Route53{
		client:       route53.NewFromConfig(awsCfg),
		hostedZoneID: cfg.HostedZoneID,
		domainSuffix: strings.TrimSuffix(cfg.DNSName, "."),
		lgr:          lgr,
	}, nil
}

func (r *Route53) Discover(ctx context.Context) ([]mdomain.PhysicalAddress, error) {
	var out []mdomain.PhysicalAddress
	input := &route53.ListResourceRecordSetsInput{HostedZoneId: aws.String(r.hostedZoneID)}
	paginator := route53.NewListResourceRecordSetsPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("route53: list records: %w", err)
		}
		for _, rrset := range page.ResourceRecordSets {
			if rrset.Type != "SRV" || !strings.HasSuffix(strings.TrimSuffix(*rrset.Name, "."), r.domainSuffix) {
				continue
			}
			for _, rr := range rrset.ResourceRecords {
				var prio, weight, port int
				var target string
				if _, err := fmt.Sscanf(*rr.Value, "%d %d %d %s", &prio, &weight, &port, &target); err != nil {
					continue
				}
				target = strings.TrimSuffix(target, ".")
				ips, err := net.LookupHost(target)
				if err != nil {
					r.lgr.Warn("route53: target lookup failed", logger.F("target", target), logger.F("err", err))
					continue
				}
				for _, ip := range ips {
					out = append(out, mdomain.PhysicalAddress{IP: ip, Port: uint16(port)})
				}
			}
		}
	}
	return out, nil
}
