package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/dife-bioinformatics/mekewe/cli/render"
	"github.com/dife-bioinformatics/mekewe/params"
)

// MethodsCommand returns the methods command with subcommands for
// inspecting the analysis method catalog.
func MethodsCommand() *cli.Command {
	return &cli.Command{
		Name:  "methods",
		Usage: "Inspect the analysis method catalog",
		Subcommands: []*cli.Command{
			methodsListCommand(),
			methodsParamsCommand(),
		},
	}
}

func methodsListCommand() *cli.Command {
	return &cli.Command{
		Name:   "list",
		Usage:  "List the available analysis methods",
		Flags:  ReadOnlyFlags(),
		Action: methodsListAction,
	}
}

func methodsListAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(params.Methods())
}

func methodsParamsCommand() *cli.Command {
	return &cli.Command{
		Name:      "params",
		Usage:     "Show the parameter schema of one analysis method",
		ArgsUsage: "<method-name>",
		Flags:     ReadOnlyFlags(),
		Action:    methodsParamsAction,
	}
}

func methodsParamsAction(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return cli.Exit("usage: mekewe methods params <method-name>", 1)
	}
	if params.FindMethod(name) == nil {
		return cli.Exit(fmt.Sprintf("unknown analysis method %q", name), 1)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(params.DescriptorSet{
		GlobalParams:         params.GlobalDescriptors(),
		MethodSpecificParams: params.MethodDescriptors(name),
	})
}
