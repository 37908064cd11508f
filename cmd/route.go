package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/uberum/fleetsim/app"
	"github.com/uberum/fleetsim/config"
	"github.com/uberum/fleetsim/core/graph"
	"github.com/uberum/fleetsim/core/model"
)

var (
	routeFrom  int
	routeTo    int
	routeClass string
	routeAlg   string
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Search a single route on the configured network and print it",
	RunE:  runRoute,
}

func init() {
	routeCmd.Flags().IntVar(&routeFrom, "from", 0, "origin node id")
	routeCmd.Flags().IntVar(&routeTo, "to", 0, "destination node id")
	routeCmd.Flags().StringVar(&routeClass, "class", "electric", "vehicle class (electric, combustion, hybrid)")
	routeCmd.Flags().StringVar(&routeAlg, "algorithm", "", "search algorithm override")
	_ = routeCmd.MarkFlagRequired("from")
	_ = routeCmd.MarkFlagRequired("to")
}

func runRoute(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	class, err := model.ParseClass(routeClass)
	if err != nil {
		return err
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	route, err := svc.SearchOnce(ctx, graph.NodeID(routeFrom), graph.NodeID(routeTo), class, routeAlg)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(route, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
