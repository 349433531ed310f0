package register

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
)

// Route53Registrar upserts/deletes an SRV record per node, the
// counterpart to internal/bootstrap.Route53's discovery-side read of
// the same zone.
type Route53Registrar struct {
	client       *route53.Client
	hostedZoneID string
	domainSuffix string
	ttl          int64
}

func NewRoute53Registrar(ctx context.Context, hostedZoneID, domainSuffix string, ttl int64) (*Route53Registrar, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return &Route53Registrar{
		client:       route53.NewFromConfig(awsCfg),
		hostedZoneID: hostedZoneID,
		domainSuffix: strings.TrimSuffix(domainSuffix, "."),
		ttl:          ttl,
	}, nil
}

func (r *Route53Registrar) recordName(nodeID string) string {
	return fmt.Sprintf("%s.%s.", nodeID, r.domainSuffix)
}

func (r *Route53Registrar) change(ctx context.Context, action types.ChangeAction, nodeID, targetHost string, port int) error {
	targetHost = strings.TrimSuffix(targetHost, ".")
	input := &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(r.hostedZoneID),
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{
				{
					Action: action,
					ResourceRecordSet: &types.ResourceRecordSet{
						Name: aws.String(r.recordName(nodeID)),
						Type: types.RRTypeSrv,
						TTL:  aws.Int64(r.ttl),
						ResourceRecords: []types.ResourceRecord{
							{Value: aws.String(fmt.Sprintf("0 0 %d %s.", port, targetHost))},
						},
					},
				},
			},
		},
	}
	_, err := r.client.ChangeResourceRecordSets(ctx, input)
	return err
}

func (r *Route53Registrar) RegisterNode(ctx context.Context, nodeID, targetHost string, port int) error {
	return r.change(ctx, types.ChangeActionUpsert, nodeID, targetHost, port)
}

func (r *Route53Registrar) DeregisterNode(ctx context.Context, nodeID, targetHost string, port int) error {
	return r.change(ctx, types.ChangeActionDelete, nodeID, targetHost, port)
}

// RenewNode is a no-op: Route53 records don't expire on their own, an
// Upsert is already idempotent.
func (r *Route53Registrar) RenewNode(ctx context.Context, nodeID, targetHost string, port int) error {
	return nil
}

func (r *Route53Registrar) Close() error { return nil }
