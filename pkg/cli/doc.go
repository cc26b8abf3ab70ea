/*
Package cli holds the helpers shared by the ledger commands: output
formatters, a progress reporter, signal handling and typed command errors.

Output Formatting:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(cmd.OutOrStdout(), summary); err != nil {
		return err
	}

Values implementing Table render as aligned columns with the text formatter.

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
