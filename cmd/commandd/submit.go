package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/radio-control/commandd/internal/client"
)

func submitCmd() *cobra.Command {
	var (
		url     string
		file    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "submit [name[:arg,...]]...",
		Short: "Submit instructions to a running server",
		Long: `Submit a batch of instructions and print the response.

Each positional argument is one instruction. Arguments after the colon are
comma separated and decoded as JSON when possible, otherwise sent as strings.
--file sends a prepared submission body unchanged ("-" reads stdin).

Examples:
  commandd submit echo:hello
  commandd submit set:freq,2412 get:freq
  commandd submit --file batch.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (file == "") == (len(args) == 0) {
				return errors.New("give either instructions or --file")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			c := client.New(url)

			var (
				resp json.RawMessage
				err  error
			)
			if file != "" {
				body, rerr := readSubmission(cmd.InOrStdin(), file)
				if rerr != nil {
					return rerr
				}
				resp, err = c.SubmitRaw(ctx, body)
			} else {
				sub := client.Submission{}
				for _, a := range args {
					ins, perr := client.ParseInstruction(a)
					if perr != nil {
						return perr
					}
					sub.Instructions = append(sub.Instructions, ins)
				}
				resp, err = c.Submit(ctx, sub)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().StringVarP(&url, "url", "u", "http://127.0.0.1:50055/", "Command server URL")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Submission JSON file")
	cmd.Flags().DurationVar(&timeout, "timeout", client.DefaultTimeout, "Round trip timeout")

	return cmd
}

func readSubmission(stdin io.Reader, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(stdin)
	}
	body, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read submission: %w", err)
	}
	return body, nil
}

func printJSON(w io.Writer, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		buf.Reset()
		buf.Write(raw)
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}
