// Command kvbridge-cli runs one storage operation against a hub:
//
//	kvbridge-cli -server ws://localhost:7070/channel set theme dark
//	kvbridge-cli -server ws://localhost:7070/channel get theme
//	kvbridge-cli -etcd 127.0.0.1:2379 -name settings length
//
// The hub address is given directly or resolved through etcd discovery.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"kvbridge/client"
	"kvbridge/loadbalance"
	"kvbridge/registry"
)

func main() {
	serverAddr := flag.String("server", "", "hub address, e.g. ws://localhost:7070/channel")
	etcdEndpoints := flag.String("etcd", "", "comma-separated etcd endpoints for hub discovery")
	name := flag.String("name", "kvbridge", "logical hub name in etcd")
	localOrigin := flag.String("origin", "", "origin to declare to the hub")
	timeout := flag.Duration("timeout", 5*time.Second, "how long to wait for the result")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	addr := *serverAddr
	if addr == "" {
		if *etcdEndpoints == "" {
			log.Fatal("either -server or -etcd is required")
		}
		addr = discover(*etcdEndpoints, *name)
	}

	ch, err := client.Open(addr,
		client.WithLocalOrigin(*localOrigin),
		client.WithReadyTimeout(*timeout))
	if err != nil {
		log.Fatalf("open channel: %v", err)
	}
	defer ch.Destroy()

	done := make(chan struct{})
	cb := func(err error, value any) {
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		} else if value == nil {
			fmt.Println("(null)")
		} else {
			fmt.Println(value)
		}
		close(done)
	}

	switch args[0] {
	case "get":
		requireArgs(args, 2)
		ch.GetItem(args[1], cb)
	case "set":
		requireArgs(args, 3)
		ch.SetItem(args[1], args[2], cb)
	case "remove":
		requireArgs(args, 2)
		ch.RemoveItem(args[1], cb)
	case "clear":
		ch.Clear(cb)
	case "length":
		ch.Length(cb)
	case "key":
		requireArgs(args, 2)
		index, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatalf("key: index must be an integer, got %q", args[1])
		}
		ch.Key(index, cb)
	default:
		usage()
	}

	select {
	case <-done:
	case <-time.After(*timeout):
		log.Fatal("timed out waiting for the hub")
	}
}

func discover(endpoints, name string) string {
	reg, err := registry.NewEtcdRegistry(strings.Split(endpoints, ","))
	if err != nil {
		log.Fatalf("etcd: %v", err)
	}
	eps, err := reg.Discover(name)
	if err != nil {
		log.Fatalf("etcd discover: %v", err)
	}
	bal := &loadbalance.RoundRobin{}
	ep, err := bal.Pick(eps)
	if err != nil {
		log.Fatalf("no hub registered under %q", name)
	}
	return ep.Addr
}

func requireArgs(args []string, n int) {
	if len(args) != n {
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: kvbridge-cli [flags] <command>

commands:
  get <key>        print the stored value
  set <key> <val>  store a value
  remove <key>     delete a key
  clear            delete everything
  length           print the entry count
  key <index>      print the key name at an index`)
	os.Exit(2)
}
