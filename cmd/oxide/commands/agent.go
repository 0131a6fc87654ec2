package commands

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/oxide-run/oxide/internal/agent"
	"github.com/oxide-run/oxide/internal/config"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Inspect configured agents",
	Long: `Inspect the built-in agents (build, plan, explore, code_reviewer,
general) and the agent.<role> overrides layered on top of them by
configuration.`,
}

var agentListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all agents",
	RunE:    runAgentList,
}

func init() {
	agentCmd.AddCommand(agentListCmd)
}

func runAgentList(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	reg := agent.NewRegistry()
	agents := reg.List()
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMODE\tMODEL OVERRIDE\tTOOLS\t")

	for _, a := range agents {
		tools := "all"
		if len(a.Tools) > 0 && !a.Tools["*"] {
			var enabled []string
			for t, v := range a.Tools {
				if v {
					enabled = append(enabled, t)
				}
			}
			sort.Strings(enabled)
			if len(enabled) > 0 {
				tools = strings.Join(enabled, ", ")
			}
		}

		override := "-"
		if o, ok := appConfig.Agent[a.Name]; ok && o.Model != "" {
			override = o.Model
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", a.Name, a.Mode, override, tools)
	}

	return w.Flush()
}
