// Command cbordump reads CBOR data items and prints them as lossy JSON.
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	cbor "github.com/synadia-labs/cborval/runtime"
)

// CLI defines the cbordump command-line interface.
type CLI struct {
	Paths     []string `arg:"" optional:"" help:"Input files (stdin when omitted)"`
	Output    string   `short:"o" help:"Write output to this file instead of stdout"`
	Pretty    bool     `short:"p" help:"Indent the JSON output"`
	SortKeys  bool     `short:"k" help:"Sort JSON object keys"`
	Sequence  bool     `short:"s" help:"Decode a CBOR sequence (every item in the input)"`
	Decode    bool     `short:"d" help:"Base64-decode the input first"`
	IgnoreTag []uint64 `help:"Strip these semantic tags and dump their content; applies to tags without a built-in decoder (may be repeated)"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("cbordump"),
		kong.Description("Dump CBOR data items as JSON."),
	)
	ctx.FatalIfErrorf(run(&cli))
}

func run(cli *CLI) error {
	out := io.Writer(os.Stdout)
	if cli.Output != "" {
		f, err := os.Create(cli.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	if len(cli.Paths) == 0 {
		return dumpReader(cli, out, os.Stdin)
	}
	for _, path := range cli.Paths {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		err = dumpReader(cli, out, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func dumpReader(cli *CLI, out io.Writer, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if cli.Decode {
		data, err = base64.StdEncoding.DecodeString(string(bytes.TrimSpace(data)))
		if err != nil {
			return fmt.Errorf("base64 input: %w", err)
		}
	}

	ignored := make(map[uint64]bool, len(cli.IgnoreTag))
	for _, t := range cli.IgnoreTag {
		ignored[t] = true
	}
	opts := cbor.DecOptions{
		TagHook: func(d *cbor.Decoder, tag cbor.Tag) (any, error) {
			if ignored[tag.Number] {
				return tag.Content, nil
			}
			return tag, nil
		},
	}

	// Readahead is disabled so the reader's remaining length marks exactly
	// where the next item starts.
	opts.ReadSize = -1
	br := bytes.NewReader(data)
	dec, err := cbor.NewDecoder(br, opts)
	if err != nil {
		return err
	}
	for {
		// A clean end of input between items terminates a sequence.
		if cli.Sequence && br.Len() == 0 {
			return nil
		}
		v, err := dec.Decode()
		if err != nil {
			return err
		}
		if err := writeJSON(cli, out, v); err != nil {
			return err
		}
		if !cli.Sequence {
			return nil
		}
	}
}

func writeJSON(cli *CLI, out io.Writer, v any) error {
	var (
		buf []byte
		err error
	)
	jv := cbor.JSONValue(v, cli.SortKeys)
	if cli.Pretty {
		buf, err = json.MarshalIndent(jv, "", "  ")
	} else {
		buf, err = json.Marshal(jv)
	}
	if err != nil {
		return err
	}
	buf = append(buf, '\n')
	_, err = out.Write(buf)
	return err
}
