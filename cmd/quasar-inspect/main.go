// quasar-inspect prints the latest Teradata cycle reports published to the
// transport Redis and can ask a node to run a check immediately.
//
// Usage:
//
//	quasar-inspect [--redis URL] [--service NAME] [--run-check NODE|*]
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	qredis "github.com/gravito-framework/quasar-teradata/internal/redis"
	"github.com/gravito-framework/quasar-teradata/pkg/agent"
	"github.com/gravito-framework/quasar-teradata/pkg/config"
	"github.com/gravito-framework/quasar-teradata/pkg/sink"
	"github.com/gravito-framework/quasar-teradata/pkg/types"
)

func main() {
	redisURL := config.DefaultRedisURL
	if v := os.Getenv("QUASAR_REDIS_URL"); v != "" {
		redisURL = v
	}
	service := "*"
	runCheck := ""

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		next := func() string {
			if i+1 >= len(args) {
				fmt.Fprintf(os.Stderr, "%s requires a value\n", args[i])
				os.Exit(2)
			}
			i++
			return args[i]
		}
		switch args[i] {
		case "--redis":
			redisURL = next()
		case "--service":
			service = next()
		case "--run-check":
			runCheck = next()
		default:
			fmt.Fprintf(os.Stderr, "unknown option %s\n", args[i])
			os.Exit(2)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := qredis.NewClient(ctx, redisURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	if runCheck != "" {
		if service == "*" {
			fmt.Fprintln(os.Stderr, "--run-check needs --service")
			os.Exit(2)
		}
		if err := publishRunCheck(ctx, client, service, runCheck); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	var keys []string
	iter := client.Scan(ctx, 0, sink.KeyPrefix+service+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	sort.Strings(keys)

	fmt.Printf("Found %d Teradata nodes:\n\n", len(keys))

	for _, key := range keys {
		val, err := client.Get(ctx, key).Result()
		if err != nil {
			continue
		}

		var report types.CycleReport
		if err := json.Unmarshal([]byte(val), &report); err != nil {
			fmt.Printf("📍 %s: unreadable report (%v)\n\n", key, err)
			continue
		}
		printReport(report)
	}
}

func publishRunCheck(ctx context.Context, client *qredis.Client, service, nodeID string) error {
	cmd := types.QuasarCommand{
		ID:           uuid.NewString(),
		Type:         types.CmdRunCheck,
		TargetNodeID: nodeID,
		Timestamp:    time.Now().UnixMilli(),
		Issuer:       "quasar-inspect",
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	// Broadcasts still go to one channel per node
	target := []string{nodeID}
	if nodeID == "*" {
		keys, err := client.Keys(ctx, sink.KeyPrefix+service+":*").Result()
		if err != nil {
			return err
		}
		target = target[:0]
		for _, key := range keys {
			target = append(target, key[len(sink.KeyPrefix+service+":"):])
		}
	}

	for _, node := range target {
		receivers, err := client.Publish(ctx, agent.CommandChannel(service, node), data).Result()
		if err != nil {
			return fmt.Errorf("failed to publish to %s: %w", node, err)
		}
		fmt.Printf("RUN_CHECK %s -> %s (%d listeners)\n", cmd.ID, node, receivers)
	}
	return nil
}

func printReport(r types.CycleReport) {
	fmt.Printf("📍 Service: %s\n", r.Service)
	fmt.Printf("   Node ID: %s\n", r.ID)
	fmt.Printf("   Server: %s\n", r.Server)
	fmt.Printf("   Run: %s at %s (%d ms)\n", r.RunID, time.UnixMilli(r.Timestamp).Format(time.RFC3339), r.DurationMs)
	fmt.Printf("   Queries: %d run, %d errors\n", r.QueriesRun, r.QueryErrors)
	if r.Error != "" {
		fmt.Printf("   Error: %s\n", r.Error)
	}
	for _, sc := range r.ServiceChecks {
		line := fmt.Sprintf("   %s: %s", sc.Name, sc.Status)
		if sc.Message != "" {
			line += " (" + sc.Message + ")"
		}
		fmt.Println(line)
	}
	fmt.Printf("   Metrics: %d\n", len(r.Metrics))
	if r.Agent != nil {
		fmt.Printf("   Agent: pid %d on %s, %.2f%% CPU, %.1f MB RSS\n",
			r.Agent.PID, r.Agent.Hostname, r.Agent.CPUPercent, float64(r.Agent.RSS)/1024/1024)
	}
	fmt.Println()
}
