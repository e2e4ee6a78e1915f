package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/modelpark/asset-registry/pkg/registry"
)

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "Manage registered assets",
}

var (
	listType  string
	listTag   string
	listLimit int
	forceFlag bool
	specFile  string
)

func init() {
	assetsListCmd.Flags().StringVar(&listType, "type", "", "Filter by asset type")
	assetsListCmd.Flags().StringVar(&listTag, "tag", "", "Filter by tag")
	assetsListCmd.Flags().IntVar(&listLimit, "limit", 0, "Page size")
	assetsRegisterCmd.Flags().StringVarP(&specFile, "file", "f", "", "JSON file with the asset to register")
	_ = assetsRegisterCmd.MarkFlagRequired("file")
	assetsUpdateCmd.Flags().StringVarP(&specFile, "file", "f", "", "JSON file with the metadata patch")
	_ = assetsUpdateCmd.MarkFlagRequired("file")
	assetsDeleteCmd.Flags().BoolVar(&forceFlag, "force", false, "Hard-delete instead of archiving")

	assetsCmd.AddCommand(assetsListCmd)
	assetsCmd.AddCommand(assetsGetCmd)
	assetsCmd.AddCommand(assetsRegisterCmd)
	assetsCmd.AddCommand(assetsUpdateCmd)
	assetsCmd.AddCommand(assetsDeprecateCmd)
	assetsCmd.AddCommand(assetsDeleteCmd)
	assetsCmd.AddCommand(assetsVerifyCmd)
}

var assetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List assets",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := fmt.Sprintf("/assets?type=%s&tag=%s&pageSize=%d", listType, listTag, listLimit)
		var page struct {
			Assets        []registry.Asset `json:"assets"`
			NextPageToken string           `json:"nextPageToken"`
			TotalSize     int64            `json:"totalSize"`
		}
		if err := newClient().getJSON(path, &page); err != nil {
			return err
		}
		if outputFmt != "table" {
			return printOutput(page)
		}
		rows := make([][]string, 0, len(page.Assets))
		for _, a := range page.Assets {
			rows = append(rows, []string{
				a.ID.String(), a.Name, a.Version, string(a.Type), string(a.Status),
			})
		}
		printTable([]string{"id", "name", "version", "type", "status"}, rows)
		if page.NextPageToken != "" {
			fmt.Printf("\nNext page token: %s\n", page.NextPageToken)
		}
		return nil
	},
}

var assetsGetCmd = &cobra.Command{
	Use:   "get <asset-id>",
	Short: "Show one asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var asset registry.Asset
		if err := newClient().getJSON("/assets/"+args[0], &asset); err != nil {
			return err
		}
		if outputFmt == "table" {
			outputFmt = "yaml"
		}
		return printOutput(asset)
	},
}

var assetsRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register an asset from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(specFile)
		if err != nil {
			return err
		}
		var asset registry.Asset
		if err := newClient().postJSON("/assets", rawJSON(data), &asset); err != nil {
			return err
		}
		fmt.Printf("registered %s %s@%s\n", asset.ID, asset.Name, asset.Version)
		return nil
	},
}

var assetsUpdateCmd = &cobra.Command{
	Use:   "update <asset-id>",
	Short: "Patch an asset's mutable metadata from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(specFile)
		if err != nil {
			return err
		}
		var asset registry.Asset
		if err := newClient().patchJSON("/assets/"+args[0], rawJSON(data), &asset); err != nil {
			return err
		}
		fmt.Printf("updated %s@%s\n", asset.Name, asset.Version)
		return nil
	},
}

var assetsDeprecateCmd = &cobra.Command{
	Use:   "deprecate <asset-id>",
	Short: "Mark an asset deprecated",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var asset registry.Asset
		if err := newClient().postJSON("/assets/"+args[0]+":deprecate", nil, &asset); err != nil {
			return err
		}
		fmt.Printf("deprecated %s@%s\n", asset.Name, asset.Version)
		return nil
	},
}

var assetsDeleteCmd = &cobra.Command{
	Use:   "delete <asset-id>",
	Short: "Archive an asset, or hard-delete it with --force",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/assets/" + args[0]
		if forceFlag {
			path += "?force=true"
		}
		if err := newClient().delete(path); err != nil {
			return err
		}
		fmt.Println("deleted", args[0])
		return nil
	},
}

var assetsVerifyCmd = &cobra.Command{
	Use:   "verify <asset-id> <content-file>",
	Short: "Verify a content file against the asset's stored checksum",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		if err := newClient().do("POST", "/assets/"+args[0]+":verify", f, nil); err != nil {
			return err
		}
		fmt.Println("checksum verified")
		return nil
	},
}
