package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"ringkv/internal/httpapi"
)

const defaultNodes = "http://localhost:8001,http://localhost:8002,http://localhost:8003"

var errUsage = errors.New("invalid command, type 'help' for available commands")

// shell holds one client per node and the node commands are sent to.
type shell struct {
	clients []*httpapi.Client
	current int
	out     io.Writer
}

func newShell(nodes []string, timeout time.Duration, out io.Writer) *shell {
	s := &shell{out: out}
	for _, n := range nodes {
		n = strings.TrimSpace(n)
		if n != "" {
			s.clients = append(s.clients, httpapi.NewClient(n, timeout))
		}
	}
	return s
}

func (s *shell) client() *httpapi.Client {
	return s.clients[s.current]
}

func (s *shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

// nodeIndex parses a 1-based node number.
func (s *shell) nodeIndex(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(s.clients) {
		return 0, fmt.Errorf("invalid node number, use 1-%d", len(s.clients))
	}
	return n - 1, nil
}

func optional(parts []string, i int) string {
	if len(parts) > i {
		return parts[i]
	}
	return ""
}

// execute runs one command line. It reports whether the shell should exit.
func (s *shell) execute(ctx context.Context, line string) (bool, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false, nil
	}

	switch cmd := strings.ToLower(parts[0]); {
	case cmd == "quit" || cmd == "exit" || cmd == "q":
		return true, nil
	case cmd == "put" && len(parts) >= 3:
		return false, s.put(ctx, parts[1], parts[2], optional(parts, 3))
	case cmd == "get" && len(parts) >= 2:
		return false, s.get(ctx, parts[1], optional(parts, 2))
	case cmd == "delete" && len(parts) >= 2:
		return false, s.delete(ctx, parts[1], optional(parts, 2))
	case cmd == "status":
		idx := s.current
		if len(parts) > 1 {
			var err error
			if idx, err = s.nodeIndex(parts[1]); err != nil {
				return false, err
			}
		}
		return false, s.status(ctx, idx)
	case cmd == "switch" && len(parts) >= 2:
		idx, err := s.nodeIndex(parts[1])
		if err != nil {
			return false, err
		}
		s.current = idx
		s.printf("Switched to node %d (%s)\n", idx+1, s.client().BaseURL())
		return false, nil
	case cmd == "nodes":
		s.nodes()
		return false, nil
	case cmd == "peers":
		return false, s.peers(ctx)
	case cmd == "join" && len(parts) >= 2:
		return false, s.join(ctx, parts[1])
	case cmd == "help":
		s.help()
		return false, nil
	default:
		return false, errUsage
	}
}

func (s *shell) put(ctx context.Context, key, value, consistency string) error {
	res, err := s.client().Put(ctx, key, value, consistency)
	if err != nil {
		return fmt.Errorf("PUT failed: %w", err)
	}
	s.printf("PUT successful!\n")
	s.printf("   Key: %s\n   Value: %s\n   Consistency: %s\n", res.Key, res.Value, res.ConsistencyLevel)
	s.printf("   Replicas: %d/%d (of %d possible)\n", res.SuccessfulReplicas, res.RequiredReplicas, res.TotalPossibleReplicas)
	s.printf("   Coordinated by: %s\n", res.CoordinatedBy)
	return nil
}

func (s *shell) get(ctx context.Context, key, consistency string) error {
	res, err := s.client().Get(ctx, key, consistency)
	if errors.Is(err, httpapi.ErrNotFound) {
		s.printf("Key %s not found\n", key)
		return nil
	}
	if err != nil {
		return fmt.Errorf("GET failed: %w", err)
	}
	s.printf("GET successful!\n")
	s.printf("   Key: %s\n   Value: %s\n   Consistency: %s\n", res.Key, res.Value, res.ConsistencyLevel)
	s.printf("   Responses: %d/%d (of %d possible)\n", res.SuccessfulReplicas, res.RequiredReplicas, res.TotalPossibleReplicas)
	s.printf("   Queried: %s\n", res.CoordinatedBy)
	return nil
}

func (s *shell) delete(ctx context.Context, key, consistency string) error {
	res, err := s.client().Delete(ctx, key, consistency)
	if err != nil {
		return fmt.Errorf("DELETE failed: %w", err)
	}
	s.printf("DELETE successful!\n")
	s.printf("   Message: %s\n   Consistency: %s\n", res.Message, res.ConsistencyLevel)
	s.printf("   Replicas: %d/%d (of %d possible)\n", res.SuccessfulReplicas, res.RequiredReplicas, res.TotalPossibleReplicas)
	return nil
}

func (s *shell) status(ctx context.Context, idx int) error {
	st, err := s.clients[idx].Status(ctx)
	if err != nil {
		return fmt.Errorf("status failed: %w", err)
	}
	s.printf("Node %d Status:\n", idx+1)
	s.printf("   Node ID: %s\n   Address: %s\n   Local Keys: %d\n", st.NodeID, st.Address, st.LocalKeys)
	s.printf("   Ring Size: %d\n   Peers: %d\n   Replication Factor: %d\n", st.RingSize, st.PeerCount, st.ReplicationFactor)
	if len(st.KeysSample) > 0 {
		s.printf("   Sample Keys: %s\n", strings.Join(st.KeysSample, ", "))
	}
	return nil
}

func (s *shell) nodes() {
	s.printf("Available nodes:\n")
	for i, c := range s.clients {
		marker := " "
		if i == s.current {
			marker = "*"
		}
		s.printf(" %s %d. %s\n", marker, i+1, c.BaseURL())
	}
}

func (s *shell) peers(ctx context.Context) error {
	peers, err := s.client().Peers(ctx)
	if err != nil {
		return fmt.Errorf("peers failed: %w", err)
	}
	for _, p := range peers {
		s.printf("   %-10s %-24s %s\n", p.ID, p.Address, p.Status)
	}
	return nil
}

func (s *shell) join(ctx context.Context, contact string) error {
	res, err := s.client().Join(ctx, contact)
	if err != nil {
		return fmt.Errorf("join failed: %w", err)
	}
	s.printf("%s\n", res.Message)
	return nil
}

func (s *shell) help() {
	s.printf(`Commands:
  put <key> <value> [consistency]   - Store a key-value pair
  get <key> [consistency]           - Retrieve a value
  delete <key> [consistency]        - Delete a key
  status [node_num]                 - Show node status
  switch <node_num>                 - Switch to different node
  nodes                             - List configured nodes
  peers                             - List cluster members seen by the current node
  join <peer_addr>                  - Ask the current node to join a cluster
  help                              - Show this help
  quit                              - Exit the shell

Consistency levels: one, quorum, all (put/delete default: quorum, get default: one)
`)
}

// repl reads commands from in until quit or EOF.
func (s *shell) repl(ctx context.Context, in io.Reader) {
	s.printf("Connected to nodes: %d\n", len(s.clients))
	s.nodes()
	s.help()

	scanner := bufio.NewScanner(in)
	for {
		s.printf("kvstore[%d]> ", s.current+1)
		if !scanner.Scan() {
			s.printf("\n")
			return
		}
		quit, err := s.execute(ctx, scanner.Text())
		if err != nil {
			s.printf("Error: %v\n", err)
		}
		if quit {
			return
		}
	}
}

func main() {
	nodes := flag.String("nodes", defaultNodes, "comma-separated node HTTP URLs")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	flag.Parse()

	s := newShell(strings.Split(*nodes, ","), *timeout, os.Stdout)
	if len(s.clients) == 0 {
		fmt.Fprintln(os.Stderr, "kvctl: no nodes given")
		os.Exit(2)
	}

	ctx := context.Background()
	if flag.NArg() == 0 {
		s.repl(ctx, os.Stdin)
		return
	}

	if _, err := s.execute(ctx, strings.Join(flag.Args(), " ")); err != nil {
		fmt.Fprintf(os.Stderr, "kvctl: %v\n", err)
		os.Exit(1)
	}
}
