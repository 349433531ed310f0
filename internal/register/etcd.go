package register

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdRegistrar publishes a lease-backed JSON record per node under
// keyPrefix; RenewNode keeps the lease alive so a crashed node's entry
// expires on its own instead of needing an explicit deregister.
type EtcdRegistrar struct {
	client  *clientv3.Client
	prefix  string
	ttl     int64
	leaseID clientv3.LeaseID
}

func NewEtcdRegistrar(endpoints []string, keyPrefix string, leaseTTL time.Duration) (*EtcdRegistrar, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	if keyPrefix == "" {
		keyPrefix = "minhton/nodes"
	}
	ttl := int64(leaseTTL.Seconds())
	if ttl <= 0 {
		ttl = 30
	}
	return &EtcdRegistrar{client: cli, prefix: strings.TrimSuffix(keyPrefix, "/"), ttl: ttl}, nil
}

type record struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (r *EtcdRegistrar) key(nodeID string) string {
	return fmt.Sprintf("%s/%s", r.prefix, nodeID)
}

func (r *EtcdRegistrar) RegisterNode(ctx context.Context, nodeID, targetHost string, port int) error {
	val, err := json.Marshal(record{Host: targetHost, Port: port})
	if err != nil {
		return fmt.Errorf("register: marshal record: %w", err)
	}
	lease, err := r.client.Grant(ctx, r.ttl)
	if err != nil {
		return fmt.Errorf("register: grant lease: %w", err)
	}
	r.leaseID = lease.ID
	_, err = r.client.Put(ctx, r.key(nodeID), string(val), clientv3.WithLease(lease.ID))
	return err
}

func (r *EtcdRegistrar) DeregisterNode(ctx context.Context, nodeID, targetHost string, port int) error {
	_, err := r.client.Delete(ctx, r.key(nodeID))
	return err
}

func (r *EtcdRegistrar) RenewNode(ctx context.Context, nodeID, targetHost string, port int) error {
	if r.leaseID == 0 {
		return fmt.Errorf("register: no active lease, call RegisterNode first")
	}
	_, err := r.client.KeepAliveOnce(ctx, r.leaseID)
	return err
}

func (r *EtcdRegistrar) Close() error { return r.client.Close() }
