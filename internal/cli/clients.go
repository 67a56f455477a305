package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"waysock.dev/go/waysock/internal/client"
)

var clientsJSON bool

func init() {
	rootCmd.AddCommand(clientsCmd)
	clientsCmd.Flags().BoolVar(&clientsJSON, "json", false, "output as JSON")
}

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "List connected display clients",
	Long: `List the peers currently connected to the daemon's display
socket, with their kernel-reported credentials and drained byte
counts.`,
	RunE: runClients,
}

func runClients(cmd *cobra.Command, args []string) error {
	c, err := client.Connect()
	if err != nil {
		return fmt.Errorf("daemon not running: %w", err)
	}
	defer c.Close()

	clients, err := c.Clients()
	if err != nil {
		return fmt.Errorf("list clients: %w", err)
	}

	if clientsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(clients)
	}

	if len(clients) == 0 {
		fmt.Println("No clients connected.")
		return nil
	}

	fmt.Printf("%-10s %-12s %-8s %-8s %-10s %s\n", "ID", "SOCKET", "PID", "UID", "CONNECTED", "BYTES")
	for _, ci := range clients {
		pid, uid := "-", "-"
		if ci.Creds != nil {
			pid = fmt.Sprintf("%d", ci.Creds.PID)
			uid = fmt.Sprintf("%d", ci.Creds.UID)
		}
		age := time.Since(ci.ConnectedAt).Round(time.Second)
		fmt.Printf("%-10s %-12s %-8s %-8s %-10s %d\n",
			shortID(ci.ID), ci.Socket, pid, uid, age, ci.Bytes)
	}

	return nil
}

// shortID truncates a UUID for table display
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
