// Package discovery finds the group introducer through etcd. A node joins
// through any node already registered; only when none is registered does it
// race for the introducer key, and the winner bootstraps the group.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	introducerKey = "/membership/introducer"
	nodesPrefix   = "/membership/nodes/"
)

func NewClient(endpoints []string) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
}

// grantKept grants a lease of ttl seconds and keeps it alive until the
// returned cancel func is called.
func grantKept(cli *clientv3.Client, ttl int64) (clientv3.LeaseID, context.CancelFunc, error) {
	lease, err := cli.Grant(context.TODO(), ttl)
	if err != nil {
		return 0, nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := cli.KeepAlive(ctx, lease.ID)
	if err != nil {
		cancel()
		return 0, nil, err
	}
	go func() {
		for range ch {
		}
	}()
	return lease.ID, cancel, nil
}

// RegisterNode records addr under a lease so operators can list live
// processes. The key disappears ttl seconds after the process dies.
func RegisterNode(cli *clientv3.Client, addr string, ttl int64) (clientv3.LeaseID, context.CancelFunc, error) {
	leaseID, cancel, err := grantKept(cli, ttl)
	if err != nil {
		return 0, nil, err
	}
	if _, err := cli.Put(context.TODO(), nodesPrefix+addr, addr, clientv3.WithLease(leaseID)); err != nil {
		cancel()
		return 0, nil, err
	}
	return leaseID, cancel, nil
}

// ClaimIntroducer atomically stores self as the introducer unless one is
// already set, and returns the introducer address either way. When self
// wins, the claim lives as long as the returned lease is kept alive.
func ClaimIntroducer(ctx context.Context, cli *clientv3.Client, self string, ttl int64) (string, context.CancelFunc, error) {
	leaseID, cancel, err := grantKept(cli, ttl)
	if err != nil {
		return "", nil, err
	}

	resp, err := cli.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(introducerKey), "=", 0)).
		Then(clientv3.OpPut(introducerKey, self, clientv3.WithLease(leaseID))).
		Else(clientv3.OpGet(introducerKey)).
		Commit()
	if err != nil {
		cancel()
		return "", nil, fmt.Errorf("claim introducer: %w", err)
	}
	if resp.Succeeded {
		return self, cancel, nil
	}

	// Someone else holds the role; our lease is not needed.
	cancel()
	_, _ = cli.Revoke(context.TODO(), leaseID)
	kvs := resp.Responses[0].GetResponseRange().Kvs
	if len(kvs) == 0 {
		return "", nil, fmt.Errorf("claim introducer: key vanished")
	}
	return string(kvs[0].Value), func() {}, nil
}

// ListNodes returns every registered node address.
func ListNodes(ctx context.Context, cli *clientv3.Client) ([]string, error) {
	resp, err := cli.Get(ctx, nodesPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		out = append(out, strings.TrimPrefix(string(kv.Key), nodesPrefix))
	}
	return out, nil
}

// PickIntroducer returns the first registered node other than self. Any
// member of the group can admit a joiner.
func PickIntroducer(nodes []string, self string) (string, bool) {
	for _, n := range nodes {
		if n != self {
			return n, true
		}
	}
	return "", false
}

// ResolveIntroducer joins through a registered node when one exists and
// otherwise claims the introducer key. A node that claimed the key must keep
// the returned cancel func alive for as long as it runs.
func ResolveIntroducer(ctx context.Context, cli *clientv3.Client, self string, ttl int64) (string, context.CancelFunc, error) {
	nodes, err := ListNodes(ctx, cli)
	if err != nil {
		return "", nil, fmt.Errorf("list nodes: %w", err)
	}
	if addr, ok := PickIntroducer(nodes, self); ok {
		return addr, func() {}, nil
	}
	return ClaimIntroducer(ctx, cli, self, ttl)
}
