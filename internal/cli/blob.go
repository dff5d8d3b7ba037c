package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/litewrap/pkg/blobtext"
)

func newEncodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode [file]",
		Short: "Encode binary data as quote-free, NUL-free text",
		Long:  "Encode the file, or stdin, so it can be embedded in an SQL string literal.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) > 0 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			data, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			var b blobtext.Binary
			b.SetBinary(data)
			_, err = cmd.OutOrStdout().Write(b.Encoded())
			return err
		},
	}
}

func newDecodeCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "decode [text]",
		Short: "Decode text produced by encode back to the original bytes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readArg(cmd, args)
			if err != nil {
				return err
			}
			var b blobtext.Binary
			b.SetEncoded([]byte(text))
			data, err := b.Bytes()
			if err != nil {
				return fmt.Errorf("decode: %w", err)
			}

			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(output, data, 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the decoded bytes to this file instead of stdout")
	return cmd
}
