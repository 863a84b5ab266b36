package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/akaszubski/autonomous-dev/internal/config"
	"github.com/akaszubski/autonomous-dev/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Get and set workspace configuration",
	Long: `Read and write .autodev/config.yaml. Values are resolved with the
usual precedence: environment (AUTODEV_*) over the config file over
built-in defaults.`,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a config value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		key := args[0]
		value := config.GetString(key)

		if jsonOutput {
			outputJSON(map[string]string{key: value})
			return
		}
		fmt.Println(value)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value in config.yaml",
	Long: `Set a key in the workspace config.yaml. Existing comments and key
ordering are preserved; commented-out keys are uncommented in place.

Examples:
  autodev config set batch.workers 8
  autodev config set llm.model claude-haiku-4-5`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		key, value := args[0], args[1]

		if err := config.SetYamlValue(key, value); err != nil {
			fatal("%v", err)
		}

		if jsonOutput {
			outputJSON(map[string]string{key: value})
			return
		}
		info("%s %s = %s", ui.RenderPass(ui.IconPass), key, value)
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all resolved config values",
	Run: func(cmd *cobra.Command, _ []string) {
		keys := config.AllKeys()
		sort.Strings(keys)

		if jsonOutput {
			values := make(map[string]string, len(keys))
			for _, key := range keys {
				values[key] = config.GetString(key)
			}
			outputJSON(values)
			return
		}

		for _, key := range keys {
			fmt.Printf("%s: %s\n", ui.RenderAccent(key), config.GetString(key))
		}
	},
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configListCmd)

	rootCmd.AddCommand(configCmd)
}
