// Command minhtonctl is an interactive shell onto a MINHTON overlay.
// Unlike the teacher's client, which talks to a remote node over a
// dedicated client RPC, MINHTON only exposes the peer-to-peer Deliver
// RPC (spec.md §6's application API is local to a Node) so minhtonctl
// joins the overlay itself, as an ephemeral peer, and drives its own
// embedded Node's Insert/Update/Remove/Find directly.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	"google.golang.org/grpc"

	"minhton/internal/logger"
	"minhton/internal/mdomain"
	"minhton/internal/mnode"
	"minhton/internal/transport/grpctransport"
)

func main() {
	via := flag.String("via", "", "address of any node already in the overlay to join through (host:port)")
	bind := flag.String("bind", "0.0.0.0:0", "local address minhtonctl listens on for the duration of the session")
	fanout := flag.Uint("fanout", 2, "overlay fanout; must match the network's configured topology")
	timeout := flag.Duration("timeout", 10*time.Second, "per-command timeout")
	flag.Parse()

	if *via == "" {
		fmt.Println("minhtonctl: -via <host:port> is required")
		return
	}

	lis, err := net.Listen("tcp", *bind)
	if err != nil {
		fmt.Printf("minhtonctl: listen: %v\n", err)
		return
	}
	defer lis.Close()

	physical, err := parseHostPort(lis.Addr().String())
	if err != nil {
		fmt.Printf("minhtonctl: %v\n", err)
		return
	}
	seed, err := parseHostPort(*via)
	if err != nil {
		fmt.Printf("minhtonctl: -via %v\n", err)
		return
	}

	lgr := &logger.NopLogger{}
	transportClient := grpctransport.NewClient(lgr)
	defer transportClient.Close()

	node, err := mnode.New(uint16(*fanout), physical, transportClient)
	if err != nil {
		fmt.Printf("minhtonctl: node init: %v\n", err)
		return
	}

	server := grpctransport.NewServer(node, lgr)
	gs := grpc.NewServer()
	grpctransport.RegisterTransportServer(gs, server)
	go gs.Serve(lis)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	err = node.Start(ctx, mnode.JoinInfo{ViaAddress: seed})
	cancel()
	if err != nil {
		fmt.Printf("minhtonctl: join via %s failed: %v\n", *via, err)
		return
	}
	fmt.Printf("minhtonctl: joined overlay via %s, listening on %s\n", *via, physical.String())
	fmt.Println("Available commands: insert/update/remove/find/stop/exit")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt(fmt.Sprintf("minhton[%s]> ", physical.String()))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Println("Aborted")
				continue
			}
			break
		}
		line.AppendHistory(input)

		args := strings.Fields(strings.TrimSpace(input))
		if len(args) == 0 {
			continue
		}
		cmd := args[0]

		switch cmd {
		case "insert":
			if len(args) < 3 {
				fmt.Println("Usage: insert <key> <value> [volatile]")
				continue
			}
			node.Insert([]mdomain.Attribute{{Key: args[1], Value: args[2], Volatile: len(args) > 3 && args[3] == "volatile"}})
			fmt.Println("ok")

		case "update":
			if len(args) < 3 {
				fmt.Println("Usage: update <key> <value>")
				continue
			}
			node.Update([]mdomain.Attribute{{Key: args[1], Value: args[2]}})
			fmt.Println("ok")

		case "remove":
			if len(args) < 2 {
				fmt.Println("Usage: remove <key>")
				continue
			}
			node.Remove(args[1:])
			fmt.Println("ok")

		case "find":
			if len(args) < 2 {
				fmt.Println("Usage: find <query> [threshold]")
				continue
			}
			threshold := 1
			if len(args) > 2 {
				if n, err := strconv.Atoi(args[2]); err == nil {
					threshold = n
				}
			}
			findCtx, findCancel := context.WithTimeout(context.Background(), *timeout)
			future, err := node.Find(findCtx, args[1], mdomain.ScopeAll, threshold)
			if err != nil {
				fmt.Printf("find failed: %v\n", err)
				findCancel()
				continue
			}
			results, err := future.Wait(findCtx)
			findCancel()
			if err != nil {
				fmt.Printf("find failed: %v\n", err)
				continue
			}
			fmt.Printf("found %d node(s):\n", len(results))
			for _, r := range results {
				fmt.Printf("  - %s\n", r.Node.String())
				for _, a := range r.Attributes {
					fmt.Printf("      %s=%s\n", a.Key, a.Value)
				}
			}

		case "stop", "exit", "quit":
			stopCtx, stopCancel := context.WithTimeout(context.Background(), *timeout)
			if err := node.Stop(stopCtx); err != nil {
				fmt.Printf("leave failed: %v\n", err)
			}
			stopCancel()
			gs.GracefulStop()
			fmt.Println("Bye!")
			return

		default:
			fmt.Printf("Unknown command: %s\n", cmd)
		}
	}
}

func parseHostPort(addr string) (mdomain.PhysicalAddress, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return mdomain.PhysicalAddress{}, err
	}
	if host == "" || host == "::" {
		host = "127.0.0.1"
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return mdomain.PhysicalAddress{}, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return mdomain.PhysicalAddress{IP: host, Port: uint16(port)}, nil
}
