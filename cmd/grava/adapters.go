package main

import (
	"context"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/grava-ml/grava/backend/webgpu"
)

type adapterReport struct {
	Vendor       string `json:"vendor"`
	Device       string `json:"device"`
	Description  string `json:"description,omitempty"`
	Architecture string `json:"architecture,omitempty"`
	Backend      string `json:"backend"`
	Type         string `json:"type"`
	VendorID     uint32 `json:"vendor_id"`
	DeviceID     uint32 `json:"device_id"`
}

func adaptersCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:  "adapters",
		Usage: "List available GPU adapters",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "emit machine-readable output", Destination: &asJSON},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			infos, err := webgpu.ListAdapters()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: list adapters: %v", err), 1)
			}

			reports := make([]adapterReport, 0, len(infos))
			for _, info := range infos {
				reports = append(reports, adapterReport{
					Vendor:       info.Vendor,
					Device:       info.Device,
					Description:  info.Description,
					Architecture: info.Architecture,
					Backend:      fmt.Sprintf("%v", info.BackendType),
					Type:         fmt.Sprintf("%v", info.AdapterType),
					VendorID:     info.VendorID,
					DeviceID:     info.DeviceID,
				})
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(reports)
			}

			for i, r := range reports {
				fmt.Printf("Adapter %d: %s %s\n", i, r.Vendor, r.Device)
				if r.Description != "" {
					fmt.Printf("  Description:  %s\n", r.Description)
				}
				if r.Architecture != "" {
					fmt.Printf("  Architecture: %s\n", r.Architecture)
				}
				fmt.Printf("  Backend:      %s\n", r.Backend)
				fmt.Printf("  Type:         %s\n", r.Type)
				fmt.Printf("  PCI:          %04x:%04x\n", r.VendorID, r.DeviceID)
			}
			return nil
		},
	}
}
