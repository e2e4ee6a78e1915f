package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/modelpark/asset-registry/pkg/graph"
)

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Inspect and manage dependency edges",
}

var (
	depDepth int
	depType  string
)

func init() {
	depsListCmd.Flags().IntVar(&depDepth, "depth", 0, "Traversal depth (0 uses the server default)")
	depsAddCmd.Flags().StringVar(&depType, "type", "runtime", "Dependency type (runtime, build, data, policy, optional)")

	depsCmd.AddCommand(depsListCmd)
	depsCmd.AddCommand(depsAddCmd)
	depsCmd.AddCommand(depsDependentsCmd)
	depsCmd.AddCommand(depsImpactCmd)
	depsCmd.AddCommand(depsDeployOrderCmd)
}

func printDependencies(deps []graph.Dependency) {
	rows := make([][]string, 0, len(deps))
	for _, d := range deps {
		rows = append(rows, []string{
			d.AssetID, d.Name, d.Version, d.Status, string(d.DependencyType), strconv.Itoa(d.Depth),
		})
	}
	printTable([]string{"id", "name", "version", "status", "type", "depth"}, rows)
}

func listEdges(path, key string) error {
	var body map[string][]graph.Dependency
	if err := newClient().getJSON(path, &body); err != nil {
		return err
	}
	if outputFmt != "table" {
		return printOutput(body)
	}
	printDependencies(body[key])
	return nil
}

var depsListCmd = &cobra.Command{
	Use:   "list <asset-id>",
	Short: "List an asset's transitive dependencies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := fmt.Sprintf("/assets/%s/dependencies?depth=%d", args[0], depDepth)
		return listEdges(path, "dependencies")
	},
}

var depsAddCmd = &cobra.Command{
	Use:   "add <asset-id> <dependency-id>",
	Short: "Add a dependency edge",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{
			"dependencies": []map[string]string{
				{"dependency_id": args[1], "dependency_type": depType},
			},
		}
		if err := newClient().postJSON("/assets/"+args[0]+"/dependencies", body, nil); err != nil {
			return err
		}
		fmt.Printf("added %s -> %s (%s)\n", args[0], args[1], depType)
		return nil
	},
}

var depsDependentsCmd = &cobra.Command{
	Use:   "dependents <asset-id>",
	Short: "List assets that directly depend on this one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return listEdges("/assets/"+args[0]+"/dependents", "dependents")
	},
}

var depsImpactCmd = &cobra.Command{
	Use:   "impact <asset-id>",
	Short: "List everything transitively affected by a change to this asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return listEdges("/assets/"+args[0]+"/impact", "impacted")
	},
}

var depsDeployOrderCmd = &cobra.Command{
	Use:   "deploy-order <asset-id>",
	Short: "Print the asset's dependency closure in dependency-first order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return listEdges("/assets/"+args[0]+"/deploy-order", "order")
	},
}
