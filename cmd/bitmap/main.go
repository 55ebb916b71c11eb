package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"bitmap/pkg/bitmap"
)

func newRootCmd() *cobra.Command {
	var sparse bool

	root := &cobra.Command{
		Use:   "bitmap",
		Short: "Evaluate bitmap operations on binary strings",
		Long: `Bitmaps are written as binary strings whose last character is position 0,
so "00101" has bits 0 and 2 set. Binary operations yield a bitmap as long
as the shorter operand.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&sparse, "sparse", false, "use the run-length representation")

	for _, name := range []string{"and", "or", "xor"} {
		root.AddCommand(&cobra.Command{
			Use:   name + " <a> <b>",
			Short: "Bitwise " + name + " of two bitmaps",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				result, err := combine(name, args[0], args[1], sparse)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), result)
				return nil
			},
		})
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "not <a>",
			Short: "Bitwise complement of a bitmap",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var result bitmap.Bitmap
				if sparse {
					s, err := bitmap.ParseSparse(args[0])
					if err != nil {
						return err
					}
					result = s.Not()
				} else {
					d, err := bitmap.ParseDense(args[0])
					if err != nil {
						return err
					}
					result = d.Not()
				}
				fmt.Fprintln(cmd.OutOrStdout(), result)
				return nil
			},
		},
		&cobra.Command{
			Use:   "get <a> <position>",
			Short: "Print the bit at position",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				b, err := bitmap.Parse(args[0], sparse)
				if err != nil {
					return err
				}
				pos, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("position: %w", err)
				}
				if pos < 0 || pos >= b.Size() {
					return fmt.Errorf("%w: %d not in [0, %d)", bitmap.ErrOutOfRange, pos, b.Size())
				}
				bit := 0
				if b.Get(pos) {
					bit = 1
				}
				fmt.Fprintln(cmd.OutOrStdout(), bit)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <a> <position> <0|1>",
			Short: "Print the bitmap with one bit changed",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				b, err := bitmap.Parse(args[0], sparse)
				if err != nil {
					return err
				}
				pos, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("position: %w", err)
				}
				value, err := strconv.ParseBool(args[2])
				if err != nil {
					return fmt.Errorf("value: %w", err)
				}
				if err := b.Set(pos, value); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), b)
				return nil
			},
		},
		&cobra.Command{
			Use:   "runs <a>",
			Short: "List the runs of ones as start+length",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := bitmap.ParseSparse(args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, r := range s.Runs() {
					fmt.Fprintf(out, "%d+%d\n", r.Start, r.Length)
				}
				fmt.Fprintf(out, "size=%d ones=%d\n", s.Size(), s.Count())
				return nil
			},
		},
	)
	return root
}

func combine(op, a, b string, sparse bool) (bitmap.Bitmap, error) {
	if sparse {
		x, err := bitmap.ParseSparse(a)
		if err != nil {
			return nil, err
		}
		y, err := bitmap.ParseSparse(b)
		if err != nil {
			return nil, err
		}
		switch op {
		case "and":
			return x.And(y), nil
		case "or":
			return x.Or(y), nil
		default:
			return x.Xor(y), nil
		}
	}

	x, err := bitmap.ParseDense(a)
	if err != nil {
		return nil, err
	}
	y, err := bitmap.ParseDense(b)
	if err != nil {
		return nil, err
	}
	switch op {
	case "and":
		return x.And(y), nil
	case "or":
		return x.Or(y), nil
	default:
		return x.Xor(y), nil
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
