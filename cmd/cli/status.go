package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show host usage and scheduler status",
	RunE: func(cmd *cobra.Command, args []string) error {
		var st struct {
			CPUPercent        float64 `json:"cpu_percent"`
			MemoryPercent     float64 `json:"memory_percent"`
			DiskPercent       float64 `json:"disk_percent"`
			ActiveAutomations int     `json:"active_automations"`
			TotalAutomations  int     `json:"total_automations"`
			SchedulerRunning  bool    `json:"scheduler_running"`
		}
		if err := newAPIClient().do(http.MethodGet, "/status", nil, &st); err != nil {
			return err
		}
		fmt.Printf("CPU Usage:          %.1f%%\n", st.CPUPercent)
		fmt.Printf("Memory Usage:       %.1f%%\n", st.MemoryPercent)
		fmt.Printf("Disk Usage:         %.1f%%\n", st.DiskPercent)
		fmt.Printf("Active Automations: %d\n", st.ActiveAutomations)
		fmt.Printf("Total Automations:  %d\n", st.TotalAutomations)
		fmt.Printf("Scheduler Running:  %t\n", st.SchedulerRunning)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
